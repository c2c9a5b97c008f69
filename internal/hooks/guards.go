// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hooks implements the built-in guards and hooks of spec.md §4.7.
// Hooks that must call back into the workflow service depend only on a
// narrow interface satisfied structurally by it (spec.md §9's
// cyclic-ownership note): this package never imports internal/workflow
// or internal/agent.
package hooks

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/store"
)

// RegisterGuards registers every built-in guard on engine.
func RegisterGuards(engine *pipeline.Engine, db *gorm.DB) {
	engine.RegisterGuard("has_pr", HasPR)
	engine.RegisterGuard("dependencies_resolved", DependenciesResolved(db))
	engine.RegisterGuard("no_running_agent", NoRunningAgent(db))
	engine.RegisterGuard("max_retries", MaxRetries(db))
}

// HasPR is allowed iff task.PRLink is non-empty.
func HasPR(ctx context.Context, task *store.Task, params map[string]any) (pipeline.GuardOutcome, error) {
	if task.PRLink == "" {
		return pipeline.GuardOutcome{Allowed: false, Reason: "Task must have a PR link"}, nil
	}
	return pipeline.GuardOutcome{Allowed: true}, nil
}

// DependenciesResolved is allowed iff every dependency of the task is in
// an isFinal status of its own pipeline.
func DependenciesResolved(db *gorm.DB) pipeline.GuardFunc {
	return func(ctx context.Context, task *store.Task, params map[string]any) (pipeline.GuardOutcome, error) {
		var deps []store.TaskDependency
		if err := db.WithContext(ctx).Where("task_id = ?", task.ID).Find(&deps).Error; err != nil {
			return pipeline.GuardOutcome{}, fmt.Errorf("loading dependencies: %w", err)
		}
		for _, dep := range deps {
			var depTask store.Task
			if err := db.WithContext(ctx).First(&depTask, "id = ?", dep.DependsOnTaskID).Error; err != nil {
				return pipeline.GuardOutcome{}, fmt.Errorf("loading dependency task %s: %w", dep.DependsOnTaskID, err)
			}
			var depPipeline store.Pipeline
			if err := db.WithContext(ctx).First(&depPipeline, "id = ?", depTask.PipelineID).Error; err != nil {
				return pipeline.GuardOutcome{}, fmt.Errorf("loading dependency pipeline %s: %w", depTask.PipelineID, err)
			}
			final := false
			for _, s := range depPipeline.FinalStatuses() {
				if depTask.Status == s {
					final = true
					break
				}
			}
			if !final {
				return pipeline.GuardOutcome{Allowed: false, Reason: fmt.Sprintf("dependency %s is not in a final status", dep.DependsOnTaskID)}, nil
			}
		}
		return pipeline.GuardOutcome{Allowed: true}, nil
	}
}

// NoRunningAgent is allowed iff no agent_runs row exists for the task
// with status='running'.
func NoRunningAgent(db *gorm.DB) pipeline.GuardFunc {
	return func(ctx context.Context, task *store.Task, params map[string]any) (pipeline.GuardOutcome, error) {
		var count int64
		if err := db.WithContext(ctx).Model(&store.AgentRun{}).
			Where("task_id = ? AND status = ?", task.ID, store.AgentRunRunning).
			Count(&count).Error; err != nil {
			return pipeline.GuardOutcome{}, fmt.Errorf("counting running agent runs: %w", err)
		}
		if count > 0 {
			return pipeline.GuardOutcome{Allowed: false, Reason: "an agent run is already in progress for this task"}, nil
		}
		return pipeline.GuardOutcome{Allowed: true}, nil
	}
}

// MaxRetries is allowed iff the count of immediately-preceding
// self-transitions (same from=to) for this task is < params["max"].
func MaxRetries(db *gorm.DB) pipeline.GuardFunc {
	return func(ctx context.Context, task *store.Task, params map[string]any) (pipeline.GuardOutcome, error) {
		max := 3
		if v, ok := params["max"]; ok {
			switch n := v.(type) {
			case int:
				max = n
			case float64:
				max = int(n)
			}
		}

		var history []store.TransitionHistory
		if err := db.WithContext(ctx).Where("task_id = ?", task.ID).Order("created_at DESC").Find(&history).Error; err != nil {
			return pipeline.GuardOutcome{}, fmt.Errorf("loading transition history: %w", err)
		}

		count := 0
		for _, h := range history {
			if h.FromStatus == h.ToStatus {
				count++
				continue
			}
			break
		}

		if count >= max {
			return pipeline.GuardOutcome{Allowed: false, Reason: fmt.Sprintf("max retries (%d) reached", max)}, nil
		}
		return pipeline.GuardOutcome{Allowed: true}, nil
	}
}
