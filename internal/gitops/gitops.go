// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gitops wraps `git` subprocess invocations behind a narrow
// interface (spec.md §4.5). Every call is per-cwd; callers bind one
// GitOps per worktree or repository path.
package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentyard/agentyard/internal/logger"
)

var (
	shellPath     string
	shellPathOnce sync.Once
)

// resolvedPATH returns the user's login-shell PATH, resolved once and
// cached for the process lifetime, so subprocesses spawned by a daemon
// see the same `git`/`gh` binaries a terminal session would.
func resolvedPATH() string {
	shellPathOnce.Do(func() {
		shellPath = os.Getenv("PATH")
		shell := os.Getenv("SHELL")
		if shell == "" {
			return
		}
		out, err := exec.Command(shell, "-ilc", "echo -n $PATH").Output()
		if err == nil && len(out) > 0 {
			shellPath = strings.TrimSpace(string(out))
		}
	})
	return shellPath
}

func getLog() zerolog.Logger {
	return logger.GetGitLogger()
}

// GitOps is the set of git operations the pipeline engine, hooks, and the
// worktree manager need. Every method runs in the bound working directory.
type GitOps interface {
	Fetch(ctx context.Context, remote string) error
	CreateBranch(ctx context.Context, name, from string) error
	Checkout(ctx context.Context, ref string) error
	Push(ctx context.Context, branch string, force bool) error
	Pull(ctx context.Context) error
	Diff(ctx context.Context, from, to string) (string, error)
	Commit(ctx context.Context, message string) (string, error)
	Log(ctx context.Context, count int) ([]string, error)
	Rebase(ctx context.Context, onto string) error
	GetCurrentBranch(ctx context.Context) (string, error)
	Clean(ctx context.Context) error
}

// execGitOps is the subprocess-backed GitOps implementation.
type execGitOps struct {
	dir string
}

// New returns a GitOps bound to dir (a repository or worktree path).
func New(dir string) GitOps {
	return &execGitOps{dir: dir}
}

func (g *execGitOps) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	cmd.Env = append(os.Environ(), "PATH="+resolvedPATH())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	getLog().Debug().Str("dir", g.dir).Strs("args", args).Msg("running git command")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (g *execGitOps) Fetch(ctx context.Context, remote string) error {
	if remote == "" {
		remote = "origin"
	}
	_, err := g.run(ctx, "fetch", remote)
	return err
}

func (g *execGitOps) CreateBranch(ctx context.Context, name, from string) error {
	args := []string{"branch", name}
	if from != "" {
		args = append(args, from)
	}
	_, err := g.run(ctx, args...)
	return err
}

func (g *execGitOps) Checkout(ctx context.Context, ref string) error {
	_, err := g.run(ctx, "checkout", ref)
	return err
}

func (g *execGitOps) Push(ctx context.Context, branch string, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, "origin", branch)
	_, err := g.run(ctx, args...)
	return err
}

func (g *execGitOps) Pull(ctx context.Context) error {
	_, err := g.run(ctx, "pull")
	return err
}

func (g *execGitOps) Diff(ctx context.Context, from, to string) (string, error) {
	rangeArg := from
	if to != "" {
		rangeArg = from + ".." + to
	}
	return g.run(ctx, "diff", rangeArg)
}

func (g *execGitOps) Commit(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return g.run(ctx, "rev-parse", "HEAD")
}

func (g *execGitOps) Log(ctx context.Context, count int) ([]string, error) {
	if count <= 0 {
		count = 20
	}
	out, err := g.run(ctx, "log", "-n", strconv.Itoa(count), "--oneline")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (g *execGitOps) Rebase(ctx context.Context, onto string) error {
	_, err := g.run(ctx, "rebase", onto)
	return err
}

func (g *execGitOps) GetCurrentBranch(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

func (g *execGitOps) Clean(ctx context.Context) error {
	_, err := g.run(ctx, "clean", "-fd")
	return err
}
