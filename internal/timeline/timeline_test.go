// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package timeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/testutil"
	"github.com/agentyard/agentyard/internal/timeline"
)

func seedTask(t *testing.T, db *gorm.DB) *store.Task {
	t.Helper()
	project := &store.Project{Name: "proj", Path: t.TempDir()}
	require.NoError(t, db.Create(project).Error)
	pipe := &store.Pipeline{Name: "p", TaskType: store.NewID()}
	pipe.Statuses.Value = []store.PipelineStatus{{Name: "open"}}
	require.NoError(t, db.Create(pipe).Error)
	task := &store.Task{ProjectID: project.ID, PipelineID: pipe.ID, Title: "t", Status: "open"}
	require.NoError(t, db.Create(task).Error)
	return task
}

func TestQuery_MergesSourcesInDescendingTimeOrder(t *testing.T) {
	db := testutil.OpenDB(t)
	task := seedTask(t, db)
	now := time.Now()

	event := &store.TaskEvent{TaskID: task.ID, Category: store.EventCategorySystem, Severity: store.EventSeverityInfo, Message: "oldest"}
	require.NoError(t, db.Create(event).Error)
	require.NoError(t, db.Model(event).Update("created_at", now.Add(-3*time.Hour)).Error)

	history := &store.TransitionHistory{TaskID: task.ID, FromStatus: "open", ToStatus: "done", Trigger: store.TriggerManual}
	require.NoError(t, db.Create(history).Error)
	require.NoError(t, db.Model(history).Update("created_at", now.Add(-2*time.Hour)).Error)

	run := &store.AgentRun{TaskID: task.ID, AgentType: "claude", Mode: "implement", Status: store.AgentRunCompleted, StartedAt: now.Add(-1 * time.Hour)}
	require.NoError(t, db.Create(run).Error)

	svc := timeline.New(db)
	page, err := svc.Query(context.Background(), task.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	assert.False(t, page.HasMore)

	assert.Equal(t, "agent_runs", page.Entries[0].Source)
	assert.Equal(t, "transition_history", page.Entries[1].Source)
	assert.Equal(t, "task_events", page.Entries[2].Source)

	for i := 0; i+1 < len(page.Entries); i++ {
		assert.GreaterOrEqual(t, page.Entries[i].Timestamp, page.Entries[i+1].Timestamp)
	}
}

func TestQuery_PaginatesWithCursor(t *testing.T) {
	db := testutil.OpenDB(t)
	task := seedTask(t, db)
	now := time.Now()

	for i := 0; i < 5; i++ {
		e := &store.TaskEvent{TaskID: task.ID, Category: store.EventCategorySystem, Severity: store.EventSeverityInfo, Message: "e"}
		require.NoError(t, db.Create(e).Error)
		require.NoError(t, db.Model(e).Update("created_at", now.Add(-time.Duration(i)*time.Hour)).Error)
	}

	svc := timeline.New(db)
	first, err := svc.Query(context.Background(), task.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.True(t, first.HasMore)

	second, err := svc.Query(context.Background(), task.ID, first.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.True(t, second.HasMore)

	for _, e := range second.Entries {
		assert.Less(t, e.Timestamp, first.NextCursor)
	}

	third, err := svc.Query(context.Background(), task.ID, second.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, third.Entries, 1)
	assert.False(t, third.HasMore)
}

func TestQuery_GitAndGitHubEventsRemappedToTheirOwnSource(t *testing.T) {
	db := testutil.OpenDB(t)
	task := seedTask(t, db)

	require.NoError(t, db.Create(&store.TaskEvent{TaskID: task.ID, Category: store.EventCategoryGit, Severity: store.EventSeverityInfo, Message: "pushed"}).Error)
	require.NoError(t, db.Create(&store.TaskEvent{TaskID: task.ID, Category: store.EventCategoryGitHub, Severity: store.EventSeverityInfo, Message: "opened PR"}).Error)

	svc := timeline.New(db)
	page, err := svc.Query(context.Background(), task.ID, 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)

	sources := map[string]bool{}
	for _, e := range page.Entries {
		sources[e.Source] = true
	}
	assert.True(t, sources["git"])
	assert.True(t, sources["github"])
}

func TestQuery_EmptyTimelineReturnsEmptyPage(t *testing.T) {
	db := testutil.OpenDB(t)
	task := seedTask(t, db)

	svc := timeline.New(db)
	page, err := svc.Query(context.Background(), task.ID, 0, 50)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.False(t, page.HasMore)
	assert.Zero(t, page.NextCursor)
}
