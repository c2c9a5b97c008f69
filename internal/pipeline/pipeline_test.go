// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/testutil"
)

// seedSimplePipeline creates a feature-like pipeline (open -> in_progress
// -> in_review -> done, with has_pr guarding the review gate) and one
// task sitting in in_progress, for transition tests.
func seedSimplePipeline(t *testing.T, db *gorm.DB) (*store.Pipeline, *store.Task) {
	t.Helper()

	p := &store.Pipeline{Name: "Feature", TaskType: "feature-test"}
	p.Statuses.Value = []store.PipelineStatus{
		{Name: "open", Label: "Open"},
		{Name: "in_progress", Label: "In Progress"},
		{Name: "in_review", Label: "In Review"},
		{Name: "done", Label: "Done", IsFinal: true},
	}
	p.Transitions.Value = []store.Transition{
		{From: "open", To: "in_progress", Trigger: store.TriggerManual},
		{
			From: "in_progress", To: "in_review", Trigger: store.TriggerManual,
			Guards: []store.GuardRef{{Name: "has_pr"}},
		},
		{From: "in_review", To: "done", Trigger: store.TriggerManual},
	}
	require.NoError(t, db.Create(p).Error)

	project := &store.Project{Name: "proj", Path: "/tmp/proj"}
	require.NoError(t, db.Create(project).Error)

	task := &store.Task{ProjectID: project.ID, PipelineID: p.ID, Title: "t1", Status: "in_progress"}
	require.NoError(t, db.Create(task).Error)

	return p, task
}

func TestExecuteTransition_ForbiddenMove(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := pipeline.NewEngine(db)
	p, task := seedSimplePipeline(t, db)

	result, err := engine.ExecuteTransition(context.Background(), p, task, "done", pipeline.TransitionContext{Trigger: store.TriggerManual})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no transition from in_progress to done")

	var reloaded store.Task
	require.NoError(t, db.First(&reloaded, "id = ?", task.ID).Error)
	assert.Equal(t, "in_progress", reloaded.Status)
}

func TestExecuteTransition_GuardDenialLeavesNoSideEffects(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := pipeline.NewEngine(db)
	p, task := seedSimplePipeline(t, db)

	engine.RegisterGuard("has_pr", func(ctx context.Context, task *store.Task, params map[string]any) (pipeline.GuardOutcome, error) {
		if task.PRLink == "" {
			return pipeline.GuardOutcome{Allowed: false, Reason: "Task must have a PR link"}, nil
		}
		return pipeline.GuardOutcome{Allowed: true}, nil
	})

	result, err := engine.ExecuteTransition(context.Background(), p, task, "in_review", pipeline.TransitionContext{Trigger: store.TriggerManual})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.GuardFailures, 1)
	assert.Equal(t, "has_pr", result.GuardFailures[0].Guard)
	assert.Equal(t, "Task must have a PR link", result.GuardFailures[0].Reason)

	var reloaded store.Task
	require.NoError(t, db.First(&reloaded, "id = ?", task.ID).Error)
	assert.Equal(t, "in_progress", reloaded.Status, "status must be unchanged on guard denial")

	var historyCount int64
	db.Model(&store.TransitionHistory{}).Where("task_id = ?", task.ID).Count(&historyCount)
	assert.Zero(t, historyCount)

	var eventCount int64
	db.Model(&store.TaskEvent{}).Where("task_id = ? AND category = ?", task.ID, store.EventCategoryStatusChange).Count(&eventCount)
	assert.Zero(t, eventCount)
}

func TestExecuteTransition_SuccessIsAtomic(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := pipeline.NewEngine(db)
	p, task := seedSimplePipeline(t, db)
	// Start from open so the open -> in_progress transition applies.
	task.Status = "open"
	require.NoError(t, db.Model(task).Update("status", "open").Error)

	result, err := engine.ExecuteTransition(context.Background(), p, task, "in_progress", pipeline.TransitionContext{Trigger: store.TriggerManual})
	require.NoError(t, err)
	require.True(t, result.Success)

	var reloaded store.Task
	require.NoError(t, db.First(&reloaded, "id = ?", task.ID).Error)
	assert.Equal(t, "in_progress", reloaded.Status)

	var history []store.TransitionHistory
	require.NoError(t, db.Where("task_id = ?", task.ID).Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, "open", history[0].FromStatus)
	assert.Equal(t, "in_progress", history[0].ToStatus)

	var events []store.TaskEvent
	require.NoError(t, db.Where("task_id = ? AND category = ?", task.ID, store.EventCategoryStatusChange).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventSeverityInfo, events[0].Severity)
}

func TestExecuteTransition_BestEffortHookFailureSurfacesButSucceeds(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := pipeline.NewEngine(db)
	p, task := seedSimplePipeline(t, db)
	// Start from open so the open -> in_progress transition applies.
	task.Status = "open"
	require.NoError(t, db.Model(task).Update("status", "open").Error)

	// Add a hook to the already-seeded transition.
	for i := range p.Transitions.Value {
		if p.Transitions.Value[i].From == "open" && p.Transitions.Value[i].To == "in_progress" {
			p.Transitions.Value[i].Hooks = []store.HookRef{{Name: "explode", Policy: store.HookPolicyBestEffort}}
		}
	}

	engine.RegisterHook("explode", func(ctx context.Context, task *store.Task, transition *store.Transition, tctx pipeline.TransitionContext) (pipeline.HookOutcome, error) {
		return pipeline.HookOutcome{}, fmt.Errorf("boom")
	})

	result, err := engine.ExecuteTransition(context.Background(), p, task, "in_progress", pipeline.TransitionContext{Trigger: store.TriggerManual})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.HookFailures, 1)
	assert.Equal(t, "explode", result.HookFailures[0].Hook)
	assert.Equal(t, store.HookPolicyBestEffort, result.HookFailures[0].Policy)

	var reloaded store.Task
	require.NoError(t, db.First(&reloaded, "id = ?", task.ID).Error)
	assert.Equal(t, "in_progress", reloaded.Status, "hook failure must not roll back the committed transition")

	var events []store.TaskEvent
	require.NoError(t, db.Where("task_id = ? AND category = ?", task.ID, store.EventCategorySystem).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventSeverityWarning, events[0].Severity)
}

func TestExecuteTransition_FireAndForgetHookNeverBlocksOrFails(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := pipeline.NewEngine(db)
	p, task := seedSimplePipeline(t, db)
	// Start from open so the open -> in_progress transition applies.
	task.Status = "open"
	require.NoError(t, db.Model(task).Update("status", "open").Error)

	done := make(chan struct{})
	for i := range p.Transitions.Value {
		if p.Transitions.Value[i].From == "open" && p.Transitions.Value[i].To == "in_progress" {
			p.Transitions.Value[i].Hooks = []store.HookRef{{Name: "async", Policy: store.HookPolicyFireAndForget}}
		}
	}
	engine.RegisterHook("async", func(ctx context.Context, task *store.Task, transition *store.Transition, tctx pipeline.TransitionContext) (pipeline.HookOutcome, error) {
		close(done)
		return pipeline.HookOutcome{}, fmt.Errorf("this must never surface")
	})

	result, err := engine.ExecuteTransition(context.Background(), p, task, "in_progress", pipeline.TransitionContext{Trigger: store.TriggerManual})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.HookFailures)
	<-done
}

func TestExecuteTransition_AgentOutcomeSelectsFirstMatchingTransition(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := pipeline.NewEngine(db)

	p := &store.Pipeline{Name: "Agent", TaskType: "agent-select-test"}
	p.Statuses.Value = []store.PipelineStatus{
		{Name: "needs_info"}, {Name: "planning"}, {Name: "implementing"},
	}
	p.Transitions.Value = []store.Transition{
		{From: "needs_info", To: "planning", Trigger: store.TriggerAgent, AgentOutcome: "info_provided"},
		{From: "needs_info", To: "implementing", Trigger: store.TriggerAgent, AgentOutcome: "info_provided"},
	}
	require.NoError(t, db.Create(p).Error)
	project := &store.Project{Name: "proj", Path: "/tmp/proj2"}
	require.NoError(t, db.Create(project).Error)
	task := &store.Task{ProjectID: project.ID, PipelineID: p.ID, Title: "t", Status: "needs_info"}
	require.NoError(t, db.Create(task).Error)

	result, err := engine.ExecuteTransition(context.Background(), p, task, "planning", pipeline.TransitionContext{
		Trigger: store.TriggerAgent, Data: map[string]any{"outcome": "info_provided"},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "planning", result.Task.Status)
}

func TestRegisterGuard_ReplacesPriorRegistration(t *testing.T) {
	db := testutil.OpenDB(t)
	engine := pipeline.NewEngine(db)

	calls := 0
	engine.RegisterGuard("has_pr", func(ctx context.Context, task *store.Task, params map[string]any) (pipeline.GuardOutcome, error) {
		calls++
		return pipeline.GuardOutcome{Allowed: false, Reason: "first"}, nil
	})
	engine.RegisterGuard("has_pr", func(ctx context.Context, task *store.Task, params map[string]any) (pipeline.GuardOutcome, error) {
		calls++
		return pipeline.GuardOutcome{Allowed: true}, nil
	})

	p, task := seedSimplePipeline(t, db)
	result, err := engine.ExecuteTransition(context.Background(), p, task, "in_review",
		pipeline.TransitionContext{Trigger: store.TriggerManual, Data: map[string]any{"note": "unused"}})
	require.NoError(t, err)
	// selectTransition requires trigger=manual without an outcome key set for manual transitions;
	// passing Data with an unrelated key still counts as "no outcome" since ctx.Data["outcome"] isn't present.
	require.NotNil(t, result)
	assert.Equal(t, 1, calls, "only the replacement guard should run")
}

func TestGetValidTransitions_FiltersByFromAndTrigger(t *testing.T) {
	db := testutil.OpenDB(t)
	p, task := seedSimplePipeline(t, db)

	all := pipeline.GetValidTransitions(p, task, "")
	require.Len(t, all, 1)
	assert.Equal(t, "in_review", all[0].To)

	manual := pipeline.GetValidTransitions(p, task, store.TriggerManual)
	assert.Len(t, manual, 1)

	agent := pipeline.GetValidTransitions(p, task, store.TriggerAgent)
	assert.Empty(t, agent)
}
