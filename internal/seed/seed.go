// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package seed holds the built-in pipeline definitions of spec.md §6 and
// loads them idempotently, mirroring the teacher's defaultConfig()
// pattern of a single Go literal as the source of truth rather than a
// JSON asset on disk.
package seed

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/store"
)

func status(name, label, color string, isFinal bool) store.PipelineStatus {
	return store.PipelineStatus{Name: name, Label: label, Color: color, IsFinal: isFinal}
}

func guard(name string, params map[string]any) store.GuardRef {
	return store.GuardRef{Name: name, Params: params}
}

func hook(name string, policy store.HookPolicy, params map[string]any) store.HookRef {
	return store.HookRef{Name: name, Params: params, Policy: policy}
}

// simplePipeline is open -> in_progress -> done, with no guards or hooks:
// the minimal pipeline for tasks with no git/agent involvement at all.
func simplePipeline() *store.Pipeline {
	p := &store.Pipeline{Name: "Simple", TaskType: "simple"}
	p.Statuses.Value = []store.PipelineStatus{
		status("open", "Open", "gray", false),
		status("in_progress", "In Progress", "blue", false),
		status("done", "Done", "green", true),
	}
	p.Transitions.Value = []store.Transition{
		{From: "open", To: "in_progress", Trigger: store.TriggerManual, Label: "Start"},
		{From: "in_progress", To: "done", Trigger: store.TriggerManual, Label: "Complete"},
	}
	return p
}

// featurePipeline adds a review gate: a task can't enter in_review
// without a PR link, and review can send work back to in_progress.
func featurePipeline() *store.Pipeline {
	p := &store.Pipeline{Name: "Feature", TaskType: "feature"}
	p.Statuses.Value = []store.PipelineStatus{
		status("open", "Open", "gray", false),
		status("in_progress", "In Progress", "blue", false),
		status("in_review", "In Review", "yellow", false),
		status("done", "Done", "green", true),
	}
	p.Transitions.Value = []store.Transition{
		{From: "open", To: "in_progress", Trigger: store.TriggerManual, Label: "Start"},
		{
			From: "in_progress", To: "in_review", Trigger: store.TriggerManual, Label: "Submit for review",
			Guards: []store.GuardRef{guard("has_pr", nil)},
		},
		{From: "in_review", To: "in_progress", Trigger: store.TriggerManual, Label: "Request changes"},
		{From: "in_review", To: "done", Trigger: store.TriggerManual, Label: "Approve"},
	}
	return p
}

// bugPipeline walks investigate -> fix -> verify -> done, with rework
// looping verify back to fix.
func bugPipeline() *store.Pipeline {
	p := &store.Pipeline{Name: "Bug", TaskType: "bug"}
	p.Statuses.Value = []store.PipelineStatus{
		status("investigate", "Investigate", "gray", false),
		status("fix", "Fix", "blue", false),
		status("verify", "Verify", "yellow", false),
		status("done", "Done", "green", true),
	}
	p.Transitions.Value = []store.Transition{
		{From: "investigate", To: "fix", Trigger: store.TriggerManual, Label: "Start fix"},
		{
			From: "fix", To: "verify", Trigger: store.TriggerManual, Label: "Submit for verification",
			Guards: []store.GuardRef{guard("has_pr", nil)},
		},
		{From: "verify", To: "fix", Trigger: store.TriggerManual, Label: "Rework"},
		{From: "verify", To: "done", Trigger: store.TriggerManual, Label: "Close"},
	}
	return p
}

// agentPipeline drives a task entirely through agent runs: a plan phase,
// an implementation phase, and a PR review/merge phase, with a shared
// needs_info side-state and a max_retries(3) self-loop on repeated
// agent failure in the planning and implementing phases.
func agentPipeline() *store.Pipeline {
	p := &store.Pipeline{Name: "Agent", TaskType: "agent"}
	p.Statuses.Value = []store.PipelineStatus{
		status("open", "Open", "gray", false),
		status("planning", "Planning", "blue", false),
		status("needs_info", "Needs Info", "orange", false),
		status("plan_review", "Plan Review", "yellow", false),
		status("implementing", "Implementing", "blue", false),
		status("pr_review", "PR Review", "yellow", false),
		status("done", "Done", "green", true),
	}
	p.Transitions.Value = []store.Transition{
		{
			From: "open", To: "planning", Trigger: store.TriggerManual, Label: "Start planning",
			Hooks: []store.HookRef{hook("start_agent", store.HookPolicyRequired, map[string]any{"mode": "plan"})},
		},
		{From: "planning", To: "plan_review", Trigger: store.TriggerAgent, AgentOutcome: "plan_complete", Label: "Plan ready"},
		{From: "planning", To: "needs_info", Trigger: store.TriggerAgent, AgentOutcome: "needs_info", Label: "Agent needs info"},
		{
			From: "planning", To: "planning", Trigger: store.TriggerAgent, AgentOutcome: "failed", Label: "Retry planning",
			Guards: []store.GuardRef{guard("max_retries", map[string]any{"max": 3})},
		},
		{
			From: "needs_info", To: "planning", Trigger: store.TriggerAgent, AgentOutcome: "info_provided", Label: "Resume planning",
			Hooks: []store.HookRef{hook("start_agent", store.HookPolicyRequired, map[string]any{"mode": "plan"})},
		},
		{
			From: "plan_review", To: "implementing", Trigger: store.TriggerManual, Label: "Approve plan",
			Hooks: []store.HookRef{hook("start_agent", store.HookPolicyRequired, map[string]any{"mode": "implement"})},
		},
		{From: "plan_review", To: "planning", Trigger: store.TriggerManual, Label: "Request re-plan"},
		{
			From: "implementing", To: "pr_review", Trigger: store.TriggerAgent, AgentOutcome: "pr_ready", Label: "Implementation ready",
			Hooks: []store.HookRef{hook("push_and_create_pr", store.HookPolicyRequired, nil)},
		},
		{
			From: "implementing", To: "implementing", Trigger: store.TriggerAgent, AgentOutcome: "failed", Label: "Retry implementation",
			Guards: []store.GuardRef{guard("max_retries", map[string]any{"max": 3})},
		},
		{
			From: "pr_review", To: "done", Trigger: store.TriggerManual, Label: "Merge",
			Guards: []store.GuardRef{guard("has_pr", nil)},
			Hooks:  []store.HookRef{hook("merge_pr", store.HookPolicyRequired, nil)},
		},
		{
			From: "pr_review", To: "implementing", Trigger: store.TriggerManual, Label: "Request changes",
			Hooks: []store.HookRef{hook("start_agent", store.HookPolicyRequired, map[string]any{"mode": "implement"})},
		},
	}
	return p
}

// All returns the four built-in pipelines of spec.md §6.
func All() []*store.Pipeline {
	return []*store.Pipeline{simplePipeline(), featurePipeline(), bugPipeline(), agentPipeline()}
}

// Load inserts every built-in pipeline not already present, keyed by its
// unique taskType. Existing rows are left untouched so a project can
// customize a seeded pipeline after the fact without Load reverting it.
func Load(ctx context.Context, db *gorm.DB) error {
	for _, p := range All() {
		var existing store.Pipeline
		err := db.WithContext(ctx).Where("task_type = ?", p.TaskType).First(&existing).Error
		switch {
		case err == nil:
			continue
		case err == gorm.ErrRecordNotFound:
			if err := db.WithContext(ctx).Create(p).Error; err != nil {
				return fmt.Errorf("seeding pipeline %s: %w", p.TaskType, err)
			}
		default:
			return fmt.Errorf("checking for existing pipeline %s: %w", p.TaskType, err)
		}
	}
	return nil
}
