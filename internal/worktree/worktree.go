// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package worktree maintains one isolated git checkout per task
// (spec.md §4.4), backed by `git worktree` subprocess invocations.
package worktree

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentyard/agentyard/internal/logger"
)

// Worktree is a single isolated git checkout directory bound to a task.
// It is never persisted; it is always reconstructed from
// `git worktree list --porcelain`.
type Worktree struct {
	Path   string
	Branch string
	TaskID string
	Locked bool
}

// Manager creates, locks, and removes per-task worktrees under a single
// project's worktrees directory.
type Manager struct {
	projectPath   string
	worktreesPath string // absolute path: <projectPath>/<worktreesDir>
	mu            sync.Mutex
	log           zerolog.Logger
}

// New returns a Manager rooted at <projectPath>/<worktreesDir>. worktreesDir
// defaults to ".agent-worktrees" when empty.
func New(projectPath, worktreesDir string) *Manager {
	if worktreesDir == "" {
		worktreesDir = ".agent-worktrees"
	}
	return &Manager{
		projectPath:   projectPath,
		worktreesPath: filepath.Join(projectPath, worktreesDir),
		log:           logger.GetWorktreeLogger(),
	}
}

func (m *Manager) taskPath(taskID string) string {
	return filepath.Join(m.worktreesPath, taskID)
}

func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.projectPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ensureGitignore appends the worktrees directory to the project's
// .gitignore if it isn't already listed.
func (m *Manager) ensureGitignore() error {
	rel, err := filepath.Rel(m.projectPath, m.worktreesPath)
	if err != nil {
		rel = m.worktreesPath
	}
	entry := rel + "/"

	path := filepath.Join(m.projectPath, ".gitignore")
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(existing), "\n") {
		if strings.TrimSpace(line) == strings.TrimSuffix(entry, "/") || strings.TrimSpace(line) == entry {
			return nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	_, err = f.WriteString(entry + "\n")
	return err
}

// Create creates a worktree for taskID on branch, reusing one that
// already exists for this task. It prefers `git worktree add -b <branch>
// <path>` and, on failure (branch already exists), retries
// `git worktree add <path> <branch>`.
func (m *Manager) Create(ctx context.Context, taskID, branch string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, err := m.get(ctx, taskID); err == nil && existing != nil {
		return existing, nil
	}

	if err := os.MkdirAll(m.worktreesPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating worktrees directory: %w", err)
	}
	if err := m.ensureGitignore(); err != nil {
		m.log.Warn().Err(err).Msg("failed to update .gitignore for worktrees path")
	}

	path := m.taskPath(taskID)

	_, err := m.run(ctx, "worktree", "add", "-b", branch, path)
	if err != nil {
		m.log.Debug().Err(err).Str("branch", branch).Msg("worktree add -b failed, retrying against existing branch")
		if _, retryErr := m.run(ctx, "worktree", "add", path, branch); retryErr != nil {
			return nil, fmt.Errorf("creating worktree for task %s: %w", taskID, retryErr)
		}
	}

	return &Worktree{Path: path, Branch: branch, TaskID: taskID}, nil
}

// Get returns the worktree for taskID, or nil if none exists.
func (m *Manager) Get(ctx context.Context, taskID string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(ctx, taskID)
}

func (m *Manager) get(ctx context.Context, taskID string) (*Worktree, error) {
	all, err := m.list(ctx)
	if err != nil {
		return nil, err
	}
	for _, wt := range all {
		if wt.TaskID == taskID {
			return wt, nil
		}
	}
	return nil, nil
}

// List returns every worktree under this manager's worktrees path.
func (m *Manager) List(ctx context.Context) ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(ctx)
}

func (m *Manager) list(ctx context.Context) ([]*Worktree, error) {
	out, err := m.run(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("listing worktrees: %w", err)
	}

	var result []*Worktree
	var cur *Worktree
	flush := func() {
		if cur == nil {
			return
		}
		if strings.HasPrefix(cur.Path, m.worktreesPath+string(os.PathSeparator)) || cur.Path == m.worktreesPath {
			cur.TaskID = filepath.Base(cur.Path)
			result = append(result, cur)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch "):
			if cur != nil {
				cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
			}
		case line == "locked" || strings.HasPrefix(line, "locked "):
			if cur != nil {
				cur.Locked = true
			}
		}
	}
	flush()

	return result, nil
}

// Lock marks a task's worktree locked, so an agent can safely run in it.
// Idempotent: "already locked" is swallowed.
func (m *Manager) Lock(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.run(ctx, "worktree", "lock", m.taskPath(taskID))
	if err != nil && strings.Contains(err.Error(), "already locked") {
		return nil
	}
	return err
}

// Unlock clears a task's worktree lock. Idempotent: "not locked" is
// swallowed.
func (m *Manager) Unlock(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.run(ctx, "worktree", "unlock", m.taskPath(taskID))
	if err != nil && strings.Contains(err.Error(), "not locked") {
		return nil
	}
	return err
}

// Delete removes a task's worktree (and prunes its administrative files).
func (m *Manager) Delete(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.run(ctx, "worktree", "remove", "--force", m.taskPath(taskID))
	if err != nil {
		if _, statErr := os.Stat(m.taskPath(taskID)); os.IsNotExist(statErr) {
			return nil
		}
		return fmt.Errorf("removing worktree for task %s: %w", taskID, err)
	}
	return nil
}

// Cleanup prunes dangling worktree administrative entries and removes
// every unlocked worktree still present under the worktrees path.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	if _, err := m.run(ctx, "worktree", "prune"); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("pruning worktrees: %w", err)
	}
	all, err := m.list(ctx)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, wt := range all {
		if wt.Locked {
			continue
		}
		if err := m.Delete(ctx, wt.TaskID); err != nil {
			m.log.Warn().Err(err).Str("task_id", wt.TaskID).Msg("failed to clean up worktree")
		}
	}
	return nil
}
