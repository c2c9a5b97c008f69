// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package gitops_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentyard/agentyard/internal/gitops"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-b", "main")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "config", "user.email", "test@example.com")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial commit")
	return dir
}

func TestGetCurrentBranch(t *testing.T) {
	repo := newTestRepo(t)
	ops := gitops.New(repo)

	branch, err := ops.GetCurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestCreateBranchAndCheckout(t *testing.T) {
	repo := newTestRepo(t)
	ops := gitops.New(repo)
	ctx := context.Background()

	require.NoError(t, ops.CreateBranch(ctx, "feature/x", ""))
	require.NoError(t, ops.Checkout(ctx, "feature/x"))

	branch, err := ops.GetCurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feature/x", branch)
}

func TestCommitAndLog(t *testing.T) {
	repo := newTestRepo(t)
	ops := gitops.New(repo)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(repo, "a.txt"), []byte("content"), 0o644))
	runGit(t, repo, "add", ".")

	hash, err := ops.Commit(ctx, "add a.txt")
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	log, err := ops.Log(ctx, 10)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Contains(t, log[0], "add a.txt")
}

func TestDiff(t *testing.T) {
	repo := newTestRepo(t)
	ops := gitops.New(repo)
	ctx := context.Background()

	require.NoError(t, ops.CreateBranch(ctx, "feature/y", ""))
	require.NoError(t, ops.Checkout(ctx, "feature/y"))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello\nmore\n"), 0o644))
	runGit(t, repo, "add", ".")
	_, err := ops.Commit(ctx, "extend readme")
	require.NoError(t, err)

	diff, err := ops.Diff(ctx, "main", "feature/y")
	require.NoError(t, err)
	assert.Contains(t, diff, "more")
}

func TestDiff_NoChangesIsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	ops := gitops.New(repo)
	ctx := context.Background()

	require.NoError(t, ops.CreateBranch(ctx, "feature/z", ""))

	diff, err := ops.Diff(ctx, "main", "feature/z")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestClean_RemovesUntrackedFiles(t *testing.T) {
	repo := newTestRepo(t)
	ops := gitops.New(repo)
	ctx := context.Background()

	untracked := filepath.Join(repo, "untracked.txt")
	require.NoError(t, os.WriteFile(untracked, []byte("x"), 0o644))

	require.NoError(t, ops.Clean(ctx))
	assert.NoFileExists(t, untracked)
}

func TestFetch_FailsWithoutRemote(t *testing.T) {
	repo := newTestRepo(t)
	ops := gitops.New(repo)

	err := ops.Fetch(context.Background(), "origin")
	assert.Error(t, err)
}
