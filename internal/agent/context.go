// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package agent implements the lifecycle of external agent subprocesses
// (spec.md §4.2): spawn, stream output, timeout/cancel, capture a
// structured outcome, and dispatch an auto-transition on completion.
package agent

import (
	"time"

	"github.com/agentyard/agentyard/internal/store"
)

// Context is the AgentContext of spec.md §4.2 step 3: everything an
// Implementation needs to build a prompt and run in isolation.
type Context struct {
	Task    *store.Task
	Project *store.Project
	Mode    string
	Workdir string

	// TaskContext carries supplementary fields the implementation may
	// fold into its prompt (parent task title, dependency summaries,
	// prior phase outcomes). Building its content is the markdown
	// template renderer's job (out of scope per spec.md §1); here it's
	// just opaque key/value data passed through.
	TaskContext map[string]any

	ValidationErrors []string
	Skills           []string
}

// RunConfig is the resolved per-invocation agent configuration, after
// applying the precedence globals < project.config < agent-definition
// overrides (spec.md §4.2 step 1).
type RunConfig struct {
	Model    string
	MaxTurns int
	Timeout  time.Duration
}

// Result is what Execute captures from one finished (or killed) run.
type Result struct {
	ExitCode         int
	Output           string
	Outcome          string
	Payload          map[string]any
	CostInputTokens  int
	CostOutputTokens int
	Prompt           string
}
