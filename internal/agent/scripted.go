// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"fmt"
)

// ScriptedImplementation is the agent-service test double named in
// spec.md §9 ("scripted for tests"), grounded in the teacher's
// TestAdapter: it executes a literal shell command instead of invoking a
// real AI tool, so tests can deterministically drive outcomes.
//
// The command comes from actx.TaskContext["command"]; absent that, it
// defaults to a no-op that reports the outcome from
// actx.TaskContext["outcome"] (or "no_changes").
type ScriptedImplementation struct{}

func NewScriptedImplementation() *ScriptedImplementation { return &ScriptedImplementation{} }

func (s *ScriptedImplementation) Type() string        { return "scripted" }
func (s *ScriptedImplementation) IsAvailable() bool    { return true }
func (s *ScriptedImplementation) OutputFormat() string { return "text" }

func (s *ScriptedImplementation) BuildPrompt(actx Context) (string, error) {
	return fmt.Sprintf("scripted run for task %s, mode %s", actx.Task.ID, actx.Mode), nil
}

func (s *ScriptedImplementation) Execute(ctx context.Context, actx Context, cfg RunConfig, prompt string, onOutput func(string)) (*Result, error) {
	command, _ := actx.TaskContext["command"].(string)
	if command == "" {
		outcome, _ := actx.TaskContext["outcome"].(string)
		if outcome == "" {
			outcome = "no_changes"
		}
		if onOutput != nil {
			onOutput(fmt.Sprintf("scripted: outcome=%s", outcome))
		}
		payload, _ := actx.TaskContext["payload"].(map[string]any)
		return &Result{ExitCode: 0, Output: fmt.Sprintf("scripted: outcome=%s", outcome), Outcome: outcome, Payload: payload, Prompt: prompt}, nil
	}

	output, exitCode, err := runProcess(ctx, actx.Workdir, []string{"sh", "-c", command}, onOutput)
	if err != nil {
		return nil, err
	}
	outcome, payload, costIn, costOut := InferOutcome(output, exitCode)
	return &Result{
		ExitCode: exitCode, Output: output, Outcome: outcome, Payload: payload,
		CostInputTokens: costIn, CostOutputTokens: costOut, Prompt: prompt,
	}, nil
}
