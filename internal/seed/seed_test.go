// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentyard/agentyard/internal/seed"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/testutil"
)

func TestAll_FourBuiltinPipelinesWithUniqueTaskTypes(t *testing.T) {
	pipelines := seed.All()
	require.Len(t, pipelines, 4)

	seen := map[string]bool{}
	for _, p := range pipelines {
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Statuses.Value, "%s must declare statuses", p.TaskType)
		assert.NotEmpty(t, p.Transitions.Value, "%s must declare transitions", p.TaskType)
		assert.False(t, seen[p.TaskType], "duplicate taskType %s", p.TaskType)
		seen[p.TaskType] = true

		statusNames := map[string]bool{}
		for _, s := range p.Statuses.Value {
			statusNames[s.Name] = true
		}
		for _, tr := range p.Transitions.Value {
			assert.True(t, statusNames[tr.From], "%s: transition references unknown from-status %q", p.TaskType, tr.From)
			assert.True(t, statusNames[tr.To], "%s: transition references unknown to-status %q", p.TaskType, tr.To)
		}
		assert.NotEmpty(t, p.FinalStatuses(), "%s must reach at least one final status", p.TaskType)
	}
}

func TestLoad_IsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()

	require.NoError(t, seed.Load(ctx, db))

	var count int64
	require.NoError(t, db.Model(&store.Pipeline{}).Count(&count).Error)
	assert.EqualValues(t, 4, count)

	require.NoError(t, seed.Load(ctx, db))
	require.NoError(t, db.Model(&store.Pipeline{}).Count(&count).Error)
	assert.EqualValues(t, 4, count, "reloading must not duplicate rows")
}

func TestLoad_DoesNotOverwriteCustomizedPipeline(t *testing.T) {
	db := testutil.OpenDB(t)
	ctx := context.Background()

	require.NoError(t, seed.Load(ctx, db))

	require.NoError(t, db.Model(&store.Pipeline{}).Where("task_type = ?", "simple").Update("name", "Customized Simple").Error)

	require.NoError(t, seed.Load(ctx, db))

	var p store.Pipeline
	require.NoError(t, db.Where("task_type = ?", "simple").First(&p).Error)
	assert.Equal(t, "Customized Simple", p.Name, "Load must not revert a customized row")
}

func TestAgentPipeline_MaxRetriesGuardOnFailureSelfLoop(t *testing.T) {
	var p *store.Pipeline
	for _, candidate := range seed.All() {
		if candidate.TaskType == "agent" {
			p = candidate
		}
	}
	require.NotNil(t, p)

	found := false
	for _, tr := range p.Transitions.Value {
		if tr.From == "implementing" && tr.To == "implementing" && tr.AgentOutcome == "failed" {
			found = true
			require.Len(t, tr.Guards, 1)
			assert.Equal(t, "max_retries", tr.Guards[0].Name)
			assert.EqualValues(t, 3, tr.Guards[0].Params["max"])
		}
	}
	assert.True(t, found, "agent pipeline must guard its implementing retry loop with max_retries")
}
