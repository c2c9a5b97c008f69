// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// resultBlockPattern matches the structured-result block a claude-code
// agent run is asked to emit: a fenced outcome/payload/cost JSON object,
// the same "marker block in free text" convention the teacher's
// ParseStepSummary uses for its own summary blocks.
var resultBlockPattern = regexp.MustCompile(`(?s)---RESULT---\s*(\{.*?\})\s*---END RESULT---`)

type resultBlock struct {
	Outcome          string         `json:"outcome"`
	Payload          map[string]any `json:"payload,omitempty"`
	CostInputTokens  int            `json:"costInputTokens,omitempty"`
	CostOutputTokens int            `json:"costOutputTokens,omitempty"`
}

// ClaudeImplementation drives the `claude` CLI in non-interactive mode.
// The concrete AI-provider SDK is out of scope (spec.md §1); this talks
// to it only through its `--print` subprocess interface.
type ClaudeImplementation struct{}

func NewClaudeImplementation() *ClaudeImplementation { return &ClaudeImplementation{} }

func (c *ClaudeImplementation) Type() string { return "claude-code" }

func (c *ClaudeImplementation) IsAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

func (c *ClaudeImplementation) OutputFormat() string { return "text" }

func (c *ClaudeImplementation) BuildPrompt(actx Context) (string, error) {
	if actx.Task == nil {
		return "", fmt.Errorf("claude implementation requires a task")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n", actx.Mode)
	fmt.Fprintf(&b, "Task: %s\n", actx.Task.Title)
	if actx.Task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", actx.Task.Description)
	}
	for k, v := range actx.TaskContext {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	b.WriteString("\nWhen finished, emit a single fenced block:\n")
	b.WriteString("---RESULT---\n{\"outcome\": \"<outcome>\", \"payload\": {...}}\n---END RESULT---\n")
	return b.String(), nil
}

func (c *ClaudeImplementation) command(cfg RunConfig, prompt string) []string {
	cmd := []string{"claude", "--print"}
	if cfg.Model != "" {
		cmd = append(cmd, "--model", cfg.Model)
	}
	if cfg.MaxTurns > 0 {
		cmd = append(cmd, "--max-turns", fmt.Sprintf("%d", cfg.MaxTurns))
	}
	return append(cmd, prompt)
}

func (c *ClaudeImplementation) Execute(ctx context.Context, actx Context, cfg RunConfig, prompt string, onOutput func(string)) (*Result, error) {
	output, exitCode, err := runProcess(ctx, actx.Workdir, c.command(cfg, prompt), onOutput)
	if err != nil {
		return nil, err
	}
	outcome, payload, costIn, costOut := InferOutcome(output, exitCode)
	return &Result{
		ExitCode: exitCode, Output: output, Outcome: outcome, Payload: payload,
		CostInputTokens: costIn, CostOutputTokens: costOut, Prompt: prompt,
	}, nil
}

// InferOutcome extracts the agent's declared outcome from output's
// trailing RESULT block. Absent a parsable block, it falls back to
// "failed" on a non-zero exit and "no_changes" on a clean one — both
// signal-only, so they never block on payload validation.
func InferOutcome(output string, exitCode int) (outcome string, payload map[string]any, costIn, costOut int) {
	matches := resultBlockPattern.FindStringSubmatch(output)
	if len(matches) == 2 {
		var block resultBlock
		if err := json.Unmarshal([]byte(matches[1]), &block); err == nil && block.Outcome != "" {
			return block.Outcome, block.Payload, block.CostInputTokens, block.CostOutputTokens
		}
	}
	if exitCode != 0 {
		return "failed", nil, 0, 0
	}
	return "no_changes", nil, 0, 0
}
