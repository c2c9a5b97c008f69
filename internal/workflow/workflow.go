// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workflow is the single entry point for all external callers
// (spec.md §4.3): it delegates CRUD to the store, transitions to the
// pipeline engine, and agent lifecycle to the agent service, appending
// activity entries for every user-visible action.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/agent"
	"github.com/agentyard/agentyard/internal/apperr"
	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/gitops"
	"github.com/agentyard/agentyard/internal/logger"
	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/worktree"
)

// tracer spans the workflow service's user-facing operations. The
// composition root (internal/app) decides whether a real exporter is
// registered; with no provider configured these are no-op spans.
var tracer = otel.Tracer("github.com/agentyard/agentyard/internal/workflow")

// endSpan records err on span (if non-nil) and closes it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Service is the workflow façade. It owns no business rules of its own
// beyond orchestration order; guards/hooks live in the pipeline engine
// and internal/hooks, agent lifecycle in internal/agent.
type Service struct {
	db     *gorm.DB
	engine *pipeline.Engine
	agents *agent.Service
	cfg    *config.AppConfig
	log    zerolog.Logger
}

// New wires a Service from its dependencies. Agent-service and
// pipeline-engine construction happen in the composition root
// (internal/app), which this package never imports, breaking the
// cyclic-ownership risk of spec.md §9.
func New(db *gorm.DB, engine *pipeline.Engine, agents *agent.Service, cfg *config.AppConfig) *Service {
	return &Service{db: db, engine: engine, agents: agents, cfg: cfg, log: logger.GetWorkflowLogger()}
}

func (s *Service) logActivity(ctx context.Context, action, entityType, entityID, summary string, data map[string]any) {
	a := &store.ActivityLog{Action: action, EntityType: entityType, EntityID: entityID, Summary: summary}
	a.Data.Value = data
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("failed to persist activity log entry")
	}
}

func (s *Service) logEvent(ctx context.Context, taskID string, category store.EventCategory, severity store.EventSeverity, message string, data map[string]any) {
	e := &store.TaskEvent{TaskID: taskID, Category: category, Severity: severity, Message: message}
	e.Data.Value = data
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("failed to persist task event")
	}
}

// CreateTaskInput is the set of fields a caller supplies to create a task.
type CreateTaskInput struct {
	ProjectID    string
	PipelineID   string
	Title        string
	Description  string
	Priority     int
	Tags         []string
	ParentTaskID *string
	Assignee     string
	Metadata     map[string]any
}

// CreateTask inserts a task at its pipeline's initial status.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*store.Task, error) {
	if in.Title == "" {
		return nil, apperr.InvalidArgsf("workflow.createTask", "title is required")
	}

	var p store.Pipeline
	if err := s.db.WithContext(ctx).First(&p, "id = ?", in.PipelineID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.createTask", "pipeline %s not found", in.PipelineID)
	}

	task := &store.Task{
		ProjectID: in.ProjectID, PipelineID: in.PipelineID, Title: in.Title,
		Description: in.Description, Status: p.InitialStatus(), Priority: in.Priority,
		ParentTaskID: in.ParentTaskID, Assignee: in.Assignee,
	}
	task.Tags.Value = in.Tags
	task.Metadata.Value = in.Metadata

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, apperr.Storage("workflow.createTask", err)
	}

	s.logActivity(ctx, "create", "task", task.ID, fmt.Sprintf("created task %q", task.Title), nil)
	return task, nil
}

// UpdateTaskInput carries the mutable subset of a task's fields; nil
// pointers mean "leave unchanged".
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Priority    *int
	Assignee    *string
	PRLink      *string
	BranchName  *string
	Tags        []string
}

// UpdateTask applies a partial update to a task.
func (s *Service) UpdateTask(ctx context.Context, taskID string, in UpdateTaskInput) (*store.Task, error) {
	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.updateTask", "task %s not found", taskID)
	}

	if in.Title != nil {
		task.Title = *in.Title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}
	if in.Assignee != nil {
		task.Assignee = *in.Assignee
	}
	if in.PRLink != nil {
		task.PRLink = *in.PRLink
	}
	if in.BranchName != nil {
		task.BranchName = *in.BranchName
	}
	if in.Tags != nil {
		task.Tags.Value = in.Tags
	}

	if err := s.db.WithContext(ctx).Save(&task).Error; err != nil {
		return nil, apperr.Storage("workflow.updateTask", err)
	}
	s.logActivity(ctx, "update", "task", task.ID, fmt.Sprintf("updated task %q", task.Title), nil)
	return &task, nil
}

func (s *Service) projectAndWorktrees(ctx context.Context, task *store.Task) (*store.Project, *worktree.Manager, error) {
	var project store.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", task.ProjectID).Error; err != nil {
		return nil, nil, fmt.Errorf("loading project %s: %w", task.ProjectID, err)
	}
	dir := project.Config.Value.WorktreesPath
	if dir == "" {
		dir = s.cfg.WorktreesPath
	}
	return &project, worktree.New(project.Path, dir), nil
}

// cleanupWorktree is best-effort: unlock if locked, then delete.
// Failures are swallowed per spec.md §4.3.
func (s *Service) cleanupWorktree(ctx context.Context, task *store.Task) {
	_, wm, err := s.projectAndWorktrees(ctx, task)
	if err != nil {
		return
	}
	_ = wm.Unlock(ctx, task.ID)
	if err := wm.Delete(ctx, task.ID); err != nil {
		s.log.Warn().Err(err).Str("task_id", task.ID).Msg("worktree cleanup failed, ignoring")
	}
}

// DeleteTask removes a task after best-effort worktree cleanup; DB
// deletion cascades to dependents via foreign keys.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return apperr.NotFoundf("workflow.deleteTask", "task %s not found", taskID)
	}

	s.cleanupWorktree(ctx, &task)

	if err := s.db.WithContext(ctx).Delete(&task).Error; err != nil {
		return apperr.Storage("workflow.deleteTask", err)
	}
	s.logActivity(ctx, "delete", "task", taskID, fmt.Sprintf("deleted task %q", task.Title), nil)
	return nil
}

// ResetTask returns a task to its pipeline's initial status and cleans
// up its worktree, without deleting its history.
func (s *Service) ResetTask(ctx context.Context, taskID string) (*store.Task, error) {
	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.resetTask", "task %s not found", taskID)
	}
	var p store.Pipeline
	if err := s.db.WithContext(ctx).First(&p, "id = ?", task.PipelineID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.resetTask", "pipeline %s not found", task.PipelineID)
	}

	s.cleanupWorktree(ctx, &task)

	task.Status = p.InitialStatus()
	task.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&task).Error; err != nil {
		return nil, apperr.Storage("workflow.resetTask", err)
	}
	s.logActivity(ctx, "reset", "task", taskID, "task reset", nil)
	return &task, nil
}

// TransitionTask moves taskID to toStatus via a manual (or actor-supplied
// trigger) transition. A forbidden transition or guard denial is a
// non-error, unsuccessful TransitionResult per spec.md §7.
func (s *Service) TransitionTask(ctx context.Context, taskID, toStatus, actor string) (result *pipeline.TransitionResult, err error) {
	ctx, span := tracer.Start(ctx, "workflow.TransitionTask", trace.WithAttributes(
		attribute.String("task.id", taskID), attribute.String("transition.to", toStatus),
	))
	defer func() { endSpan(span, err) }()

	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.transitionTask", "task %s not found", taskID)
	}
	var p store.Pipeline
	if err := s.db.WithContext(ctx).First(&p, "id = ?", task.PipelineID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.transitionTask", "pipeline %s not found", task.PipelineID)
	}

	from := task.Status
	result, err = s.engine.ExecuteTransition(ctx, &p, &task, toStatus, pipeline.TransitionContext{
		Trigger: store.TriggerManual, Actor: actor,
	})
	if err != nil {
		return nil, apperr.Storage("workflow.transitionTask", err)
	}

	if !result.Success {
		return result, nil
	}

	s.logActivity(ctx, "transition", "task", taskID, fmt.Sprintf("%s → %s", from, toStatus), map[string]any{"actor": actor})

	for _, final := range p.FinalStatuses() {
		if toStatus == final {
			s.cleanupWorktree(ctx, result.Task)
			break
		}
	}

	return result, nil
}

// StartAgent starts an agent run for a task and logs the activity.
func (s *Service) StartAgent(ctx context.Context, taskID, mode, agentType string, onOutput func(string)) (run *store.AgentRun, err error) {
	ctx, span := tracer.Start(ctx, "workflow.StartAgent", trace.WithAttributes(
		attribute.String("task.id", taskID), attribute.String("agent.type", agentType), attribute.String("agent.mode", mode),
	))
	defer func() { endSpan(span, err) }()

	run, err = s.agents.Execute(ctx, taskID, mode, agentType, onOutput)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "workflow.startAgent", err)
	}
	s.logActivity(ctx, "agent_start", "task", taskID, fmt.Sprintf("started %s agent (%s)", agentType, mode), map[string]any{"runId": run.ID})
	return run, nil
}

// StopAgent cancels a running agent run.
func (s *Service) StopAgent(ctx context.Context, runID string) error {
	if err := s.agents.Stop(runID); err != nil {
		return apperr.InvalidArgs("workflow.stopAgent", err)
	}
	return nil
}

// RespondToPrompt answers a pending prompt and, if it carries a
// resumeOutcome, dispatches the matching agent-triggered transition
// (mirrors the agent service's own auto-transition logic).
func (s *Service) RespondToPrompt(ctx context.Context, promptID string, response map[string]any) (*store.PendingPrompt, error) {
	var prompt store.PendingPrompt
	if err := s.db.WithContext(ctx).First(&prompt, "id = ?", promptID).Error; err != nil {
		return nil, apperr.NotFoundf("workflow.respondToPrompt", "prompt %s not found", promptID)
	}
	if prompt.Status != store.PromptPending {
		return nil, apperr.InvalidArgsf("workflow.respondToPrompt", "prompt %s is not pending", promptID)
	}

	now := time.Now()
	prompt.Status = store.PromptAnswered
	prompt.AnsweredAt = &now
	prompt.Response.Value = response
	if err := s.db.WithContext(ctx).Save(&prompt).Error; err != nil {
		return nil, apperr.Storage("workflow.respondToPrompt", err)
	}

	s.logActivity(ctx, "prompt_response", "task", prompt.TaskID, "responded to prompt", map[string]any{"promptId": promptID})
	s.logEvent(ctx, prompt.TaskID, store.EventCategorySystem, store.EventSeverityInfo, "prompt answered", map[string]any{"promptId": promptID})

	if prompt.ResumeOutcome == "" {
		return &prompt, nil
	}

	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", prompt.TaskID).Error; err != nil {
		return &prompt, nil
	}
	var p store.Pipeline
	if err := s.db.WithContext(ctx).First(&p, "id = ?", task.PipelineID).Error; err != nil {
		return &prompt, nil
	}

	for _, t := range pipeline.GetValidTransitions(&p, &task, store.TriggerAgent) {
		if t.AgentOutcome != prompt.ResumeOutcome {
			continue
		}
		if _, err := s.engine.ExecuteTransition(ctx, &p, &task, t.To, pipeline.TransitionContext{
			Trigger: store.TriggerAgent, Data: map[string]any{"outcome": prompt.ResumeOutcome},
		}); err != nil {
			return &prompt, apperr.Storage("workflow.respondToPrompt", err)
		}
		break
	}

	return &prompt, nil
}

// DashboardStats summarizes task counts for a project, by status.
type DashboardStats struct {
	TotalTasks    int64
	ByStatus      map[string]int64
	RunningAgents int64
}

// GetDashboardStats summarizes tasks and running agents for a project.
func (s *Service) GetDashboardStats(ctx context.Context, projectID string) (*DashboardStats, error) {
	var tasks []store.Task
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&tasks).Error; err != nil {
		return nil, apperr.Storage("workflow.getDashboardStats", err)
	}

	stats := &DashboardStats{ByStatus: make(map[string]int64)}
	stats.TotalTasks = int64(len(tasks))
	taskIDs := make([]string, len(tasks))
	for i, t := range tasks {
		stats.ByStatus[t.Status]++
		taskIDs[i] = t.ID
	}

	if len(taskIDs) > 0 {
		if err := s.db.WithContext(ctx).Model(&store.AgentRun{}).
			Where("task_id IN ? AND status = ?", taskIDs, store.AgentRunRunning).
			Count(&stats.RunningAgents).Error; err != nil {
			return nil, apperr.Storage("workflow.getDashboardStats", err)
		}
	}

	return stats, nil
}

// MergePR locates the task's latest PR artifact, removes its worktree so
// the platform can delete the local branch, merges the PR, optionally
// pulls the default branch, then attempts to auto-transition the task to
// its pipeline's first final status.
func (s *Service) MergePR(ctx context.Context, taskID string) (err error) {
	ctx, span := tracer.Start(ctx, "workflow.MergePR", trace.WithAttributes(attribute.String("task.id", taskID)))
	defer func() { endSpan(span, err) }()

	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return apperr.NotFoundf("workflow.mergePR", "task %s not found", taskID)
	}

	var artifact store.TaskArtifact
	if err := s.db.WithContext(ctx).Where("task_id = ? AND type = ?", taskID, store.ArtifactPR).
		Order("created_at DESC").First(&artifact).Error; err != nil {
		return apperr.NotFoundf("workflow.mergePR", "no PR artifact for task %s", taskID)
	}
	url, _ := artifact.Data.Value["url"].(string)
	if url == "" {
		return apperr.InvalidArgsf("workflow.mergePR", "PR artifact for task %s has no url", taskID)
	}

	project, wm, err := s.projectAndWorktrees(ctx, &task)
	if err != nil {
		return apperr.Storage("workflow.mergePR", err)
	}

	_ = wm.Unlock(ctx, task.ID)
	if err := wm.Delete(ctx, task.ID); err != nil {
		s.log.Warn().Err(err).Str("task_id", taskID).Msg("failed to remove worktree before merge")
	}

	scm := gitops.NewSCM(project.Path)
	if err := scm.MergePR(ctx, url); err != nil {
		return fmt.Errorf("merging PR for task %s: %w", taskID, err)
	}

	if project.Config.Value.PullMainAfterMerge {
		ops := gitops.New(project.Path)
		if err := ops.Pull(ctx); err != nil {
			s.log.Warn().Err(err).Str("project_id", project.ID).Msg("failed to pull default branch after merge")
		}
	}

	s.logActivity(ctx, "merge", "task", taskID, "merged pull request", map[string]any{"url": url})

	var p store.Pipeline
	if err := s.db.WithContext(ctx).First(&p, "id = ?", task.PipelineID).Error; err != nil {
		return nil
	}
	finals := p.FinalStatuses()
	if len(finals) == 0 {
		return nil
	}
	for _, t := range pipeline.GetValidTransitions(&p, &task, store.TriggerManual) {
		if t.To == finals[0] {
			_, _ = s.engine.ExecuteTransition(ctx, &p, &task, finals[0], pipeline.TransitionContext{Trigger: store.TriggerManual})
			break
		}
	}
	return nil
}
