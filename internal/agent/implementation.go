// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import "context"

// Implementation is the per-agent-type capability set used in place of
// class inheritance: IsAvailable, BuildPrompt, OutputFormat and Execute,
// tagged by Type(). The built-in registry holds two types, claude-code and
// scripted; there is no pr-reviewer implementation. The interface has no
// separate inferOutcome, buildResult or stop method: outcome inference is
// the package-level InferOutcome, Execute builds the Result itself, and a
// run is stopped only by cancelling the ctx passed to Execute.
type Implementation interface {
	// Type identifies the agent type this implementation serves
	// (matches AgentRun.AgentType and the agents[type] config key).
	Type() string

	// IsAvailable reports whether this implementation's external tool
	// can be invoked in the current environment (e.g. found on PATH).
	IsAvailable() bool

	// BuildPrompt composes the prompt text for one run from actx.
	BuildPrompt(actx Context) (string, error)

	// OutputFormat names the structured-output convention this
	// implementation expects from its tool (e.g. "text", "json").
	OutputFormat() string

	// Execute runs the agent to completion (or until ctx is cancelled),
	// forwarding output chunks to onOutput as they arrive, and returns
	// the captured Result. Implementations are expected to use
	// runProcess and InferOutcome internally; Execute is the seam a
	// scripted test double replaces wholesale.
	Execute(ctx context.Context, actx Context, cfg RunConfig, prompt string, onOutput func(string)) (*Result, error)
}
