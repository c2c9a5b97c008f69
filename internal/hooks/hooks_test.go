// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentyard/agentyard/internal/hooks"
	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/testutil"
)

type fakeAgentStarter struct {
	calledMode, calledAgentType string
	run                         *store.AgentRun
	err                         error
}

func (f *fakeAgentStarter) Execute(ctx context.Context, taskID, mode, agentType string, onOutput func(string)) (*store.AgentRun, error) {
	f.calledMode = mode
	f.calledAgentType = agentType
	return f.run, f.err
}

func TestStartAgent_PassesModeAndAgentTypeParams(t *testing.T) {
	starter := &fakeAgentStarter{run: &store.AgentRun{ID: "run-1"}}
	hook := hooks.StartAgent(starter)

	transition := &store.Transition{Hooks: []store.HookRef{{Name: "start_agent", Params: map[string]any{
		"mode": "plan", "agentType": "claude",
	}}}}

	outcome, err := hook(context.Background(), &store.Task{ID: "t1"}, transition, pipeline.TransitionContext{})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "plan", starter.calledMode)
	assert.Equal(t, "claude", starter.calledAgentType)
}

func TestStartAgent_DefaultsToImplementMode(t *testing.T) {
	starter := &fakeAgentStarter{run: &store.AgentRun{ID: "run-1"}}
	hook := hooks.StartAgent(starter)

	transition := &store.Transition{Hooks: []store.HookRef{{Name: "start_agent"}}}

	_, err := hook(context.Background(), &store.Task{ID: "t1"}, transition, pipeline.TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, "implement", starter.calledMode)
}

type fakeNotifier struct {
	title, body string
}

func (f *fakeNotifier) Notify(ctx context.Context, title, body string) error {
	f.title, f.body = title, body
	return nil
}

func TestNotify_RendersDefaultTemplates(t *testing.T) {
	notifier := &fakeNotifier{}
	hook := hooks.Notify(notifier)

	task := &store.Task{Title: "Fix the bug"}
	transition := &store.Transition{From: "in_progress", To: "in_review", Hooks: []store.HookRef{{Name: "notify"}}}

	outcome, err := hook(context.Background(), task, transition, pipeline.TransitionContext{})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "Fix the bug: in_progress -> in_review", notifier.title)
	assert.Contains(t, notifier.body, "Fix the bug")
	assert.Contains(t, notifier.body, "in_progress")
	assert.Contains(t, notifier.body, "in_review")
}

func TestNotify_RendersCustomTemplates(t *testing.T) {
	notifier := &fakeNotifier{}
	hook := hooks.Notify(notifier)

	task := &store.Task{Title: "Ship it"}
	transition := &store.Transition{
		From: "in_review", To: "done",
		Hooks: []store.HookRef{{Name: "notify", Params: map[string]any{
			"titleTemplate": "done: {{.Task.Title}}",
			"bodyTemplate":  "{{.AgentOutcome}}",
		}}},
	}
	transition.AgentOutcome = "merged"

	outcome, err := hook(context.Background(), task, transition, pipeline.TransitionContext{})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "done: Ship it", notifier.title)
	assert.Equal(t, "merged", notifier.body)
}

func TestCreatePrompt_PersistsPendingPrompt(t *testing.T) {
	db := testutil.OpenDB(t)
	project := mustProject(t, db)
	pipe := mustPipeline(t, db, "done")
	task := mustTask(t, db, project.ID, pipe.ID, "needs_info")

	hook := hooks.CreatePrompt(db)
	transition := &store.Transition{
		From: "open", To: "needs_info",
		Hooks: []store.HookRef{{Name: "create_prompt", Params: map[string]any{
			"promptType": "clarification", "resumeOutcome": "info_provided", "message": "what branch?",
		}}},
	}

	outcome, err := hook(context.Background(), task, transition, pipeline.TransitionContext{})
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	var prompts []store.PendingPrompt
	require.NoError(t, db.Where("task_id = ?", task.ID).Find(&prompts).Error)
	require.Len(t, prompts, 1)
	assert.Equal(t, "clarification", prompts[0].PromptType)
	assert.Equal(t, store.PromptPending, prompts[0].Status)
	assert.Equal(t, "info_provided", prompts[0].ResumeOutcome)
	assert.Equal(t, "what branch?", prompts[0].Payload.Value["message"])
}
