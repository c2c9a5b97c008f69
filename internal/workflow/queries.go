// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package workflow

import (
	"context"

	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/apperr"
	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/store"
)

// ListTasksFilter narrows ListTasks to a project and/or status.
type ListTasksFilter struct {
	ProjectID string
	Status    string
}

// ListTasks returns tasks matching filter, newest first.
func (s *Service) ListTasks(ctx context.Context, filter ListTasksFilter) ([]store.Task, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if filter.ProjectID != "" {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var tasks []store.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, apperr.Storage("workflow.listTasks", err)
	}
	return tasks, nil
}

// GetTask loads a task by ID.
func (s *Service) GetTask(ctx context.Context, taskID string) (*store.Task, error) {
	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.getTask", "task %s not found", taskID)
	}
	return &task, nil
}

// TaskHistory returns a task's committed transitions, oldest first.
func (s *Service) TaskHistory(ctx context.Context, taskID string) ([]store.TransitionHistory, error) {
	var history []store.TransitionHistory
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at").Find(&history).Error; err != nil {
		return nil, apperr.Storage("workflow.taskHistory", err)
	}
	return history, nil
}

// ListValidTransitions returns the transitions a task may currently take
// for trigger (empty means any trigger).
func (s *Service) ListValidTransitions(ctx context.Context, taskID string, trigger store.TriggerKind) ([]store.Transition, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var p store.Pipeline
	if err := s.db.WithContext(ctx).First(&p, "id = ?", task.PipelineID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.listValidTransitions", "pipeline %s not found", task.PipelineID)
	}
	return pipeline.GetValidTransitions(&p, task, trigger), nil
}

// ListAgentRuns returns a task's agent runs, newest first.
func (s *Service) ListAgentRuns(ctx context.Context, taskID string) ([]store.AgentRun, error) {
	var runs []store.AgentRun
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("started_at DESC").Find(&runs).Error; err != nil {
		return nil, apperr.Storage("workflow.listAgentRuns", err)
	}
	return runs, nil
}

// GetAgentRun loads an agent run by ID.
func (s *Service) GetAgentRun(ctx context.Context, runID string) (*store.AgentRun, error) {
	var run store.AgentRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.getAgentRun", "agent run %s not found", runID)
	}
	return &run, nil
}

// AgentCost sums token costs across a task's agent runs.
type AgentCost struct {
	InputTokens  int
	OutputTokens int
}

// TaskAgentCost sums every agent run's token costs for a task.
func (s *Service) TaskAgentCost(ctx context.Context, taskID string) (*AgentCost, error) {
	runs, err := s.ListAgentRuns(ctx, taskID)
	if err != nil {
		return nil, err
	}
	cost := &AgentCost{}
	for _, r := range runs {
		cost.InputTokens += r.CostInputTokens
		cost.OutputTokens += r.CostOutputTokens
	}
	return cost, nil
}

// ListPrompts returns pending prompts, optionally narrowed to one task.
func (s *Service) ListPrompts(ctx context.Context, taskID string) ([]store.PendingPrompt, error) {
	q := s.db.WithContext(ctx).Where("status = ?", store.PromptPending).Order("created_at")
	if taskID != "" {
		q = q.Where("task_id = ?", taskID)
	}
	var prompts []store.PendingPrompt
	if err := q.Find(&prompts).Error; err != nil {
		return nil, apperr.Storage("workflow.listPrompts", err)
	}
	return prompts, nil
}

// GetPrompt loads a pending prompt by ID.
func (s *Service) GetPrompt(ctx context.Context, promptID string) (*store.PendingPrompt, error) {
	var prompt store.PendingPrompt
	if err := s.db.WithContext(ctx).First(&prompt, "id = ?", promptID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.getPrompt", "prompt %s not found", promptID)
	}
	return &prompt, nil
}

// ListEvents returns a task's event log, oldest first.
func (s *Service) ListEvents(ctx context.Context, taskID string) ([]store.TaskEvent, error) {
	var events []store.TaskEvent
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("created_at").Find(&events).Error; err != nil {
		return nil, apperr.Storage("workflow.listEvents", err)
	}
	return events, nil
}

// ListPipelines returns every registered pipeline.
func (s *Service) ListPipelines(ctx context.Context) ([]store.Pipeline, error) {
	var pipelines []store.Pipeline
	if err := s.db.WithContext(ctx).Order("task_type").Find(&pipelines).Error; err != nil {
		return nil, apperr.Storage("workflow.listPipelines", err)
	}
	return pipelines, nil
}

// GetPipeline loads a pipeline by ID or taskType.
func (s *Service) GetPipeline(ctx context.Context, idOrTaskType string) (*store.Pipeline, error) {
	var p store.Pipeline
	err := s.db.WithContext(ctx).Where("id = ? OR task_type = ?", idOrTaskType, idOrTaskType).First(&p).Error
	if err != nil {
		return nil, apperr.NotFoundf("workflow.getPipeline", "pipeline %s not found", idOrTaskType)
	}
	return &p, nil
}

// ImportPipeline upserts a pipeline document keyed by its unique
// taskType, for the `pipelines import` CLI surface of spec.md §6.
// Re-importing the same document (export -> import round trip, spec.md
// §8) is idempotent: the existing row's ID and taskType are preserved.
func (s *Service) ImportPipeline(ctx context.Context, doc *store.Pipeline) (*store.Pipeline, error) {
	var existing store.Pipeline
	err := s.db.WithContext(ctx).Where("task_type = ?", doc.TaskType).First(&existing).Error
	switch {
	case err == nil:
		existing.Name = doc.Name
		existing.Statuses = doc.Statuses
		existing.Transitions = doc.Transitions
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, apperr.Storage("workflow.importPipeline", err)
		}
		return &existing, nil
	case err == gorm.ErrRecordNotFound:
		doc.ID = ""
		if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
			return nil, apperr.Storage("workflow.importPipeline", err)
		}
		return doc, nil
	default:
		return nil, apperr.Storage("workflow.importPipeline", err)
	}
}
