// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/logger"
	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/worktree"
)

// runHandle tracks one in-flight run's cancellation function, guarded by
// Service.mu. It is the in-memory "cancellation-handle map" of spec.md §5.
type runHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service drives the lifecycle of external agent subprocesses (spec.md
// §4.2). It depends on the pipeline engine directly (not the workflow
// façade) so the cyclic-ownership risk of spec.md §9 never materializes:
// workflow -> agent -> pipeline -> hooks -> workflow, never agent -> workflow.
type Service struct {
	db       *gorm.DB
	engine   *pipeline.Engine
	registry *Registry
	cfg      *config.AppConfig

	mu      sync.Mutex
	running map[string]*runHandle

	log zerolog.Logger
}

// NewService wires a Service from its dependencies.
func NewService(db *gorm.DB, engine *pipeline.Engine, registry *Registry, cfg *config.AppConfig) *Service {
	return &Service{
		db:       db,
		engine:   engine,
		registry: registry,
		cfg:      cfg,
		running:  make(map[string]*runHandle),
		log:      logger.GetAgentLogger(),
	}
}

// resolveRunConfig applies the precedence of spec.md §4.2 step 1: globals
// < project.config < agent-definition overrides. Project config doesn't
// currently carry per-agent overrides beyond DefaultAgentType, so the
// project tier only affects which agent type is selected upstream; here
// it's globals then the agents[type] map.
func (s *Service) resolveRunConfig(agentType string) RunConfig {
	cfg := RunConfig{
		Model:    s.cfg.Agent.Model,
		MaxTurns: s.cfg.Agent.MaxTurns,
		Timeout:  s.cfg.AgentTimeout,
	}
	if override, ok := s.cfg.Agents[agentType]; ok {
		if override.Model != "" {
			cfg.Model = override.Model
		}
		if override.MaxTurns != 0 {
			cfg.MaxTurns = override.MaxTurns
		}
		if override.Timeout != 0 {
			cfg.Timeout = override.Timeout
		}
	}
	return cfg
}

// branchFor returns the branch a task's worktree should be created on:
// the task's own BranchName if set, else "<prefix>/<taskId>".
func branchFor(task *store.Task, prefix string) string {
	if task.BranchName != "" {
		return task.BranchName
	}
	if prefix == "" {
		prefix = "task"
	}
	return fmt.Sprintf("%s/%s", prefix, task.ID)
}

// Execute starts an agent run for taskID and returns immediately with the
// "running" AgentRun record, once startup (steps 1-6 of spec.md §4.2) has
// completed synchronously. The run itself proceeds asynchronously.
func (s *Service) Execute(ctx context.Context, taskID, mode, agentType string, onOutput func(string)) (*store.AgentRun, error) {
	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return nil, fmt.Errorf("loading task %s: %w", taskID, err)
	}
	var project store.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", task.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("loading project %s: %w", task.ProjectID, err)
	}

	if agentType == "" {
		agentType = project.Config.Value.DefaultAgentType
	}
	if agentType == "" {
		agentType = s.cfg.DefaultAgentType
	}
	impl, err := s.registry.Get(agentType)
	if err != nil {
		return nil, err
	}

	worktreesDir := project.Config.Value.WorktreesPath
	if worktreesDir == "" {
		worktreesDir = s.cfg.WorktreesPath
	}
	wm := worktree.New(project.Path, worktreesDir)

	branch := branchFor(&task, s.cfg.Git.BranchPrefix)
	wt, err := wm.Create(ctx, task.ID, branch)
	if err != nil {
		return nil, fmt.Errorf("provisioning worktree for task %s: %w", task.ID, err)
	}

	actx := Context{
		Task: &task, Project: &project, Mode: mode, Workdir: wt.Path,
		TaskContext: map[string]any{},
	}

	run := &store.AgentRun{
		TaskID: task.ID, AgentType: agentType, Mode: mode,
		Status: store.AgentRunRunning, StartedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("creating agent run: %w", err)
	}

	phase := &store.TaskPhase{
		TaskID: task.ID, Phase: mode, Status: "active",
		AgentRunID: run.ID, StartedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(phase).Error; err != nil {
		return nil, fmt.Errorf("creating task phase: %w", err)
	}

	runCfg := s.resolveRunConfig(agentType)
	runCtx, cancel := context.WithCancel(context.Background())
	if runCfg.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, runCfg.Timeout)
		originalCancel := cancel
		cancel = func() { timeoutCancel(); originalCancel() }
	}

	handle := &runHandle{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.running[run.ID] = handle
	s.mu.Unlock()

	go s.runAndComplete(runCtx, handle, impl, actx, runCfg, run.ID, onOutput)

	return run, nil
}

func (s *Service) runAndComplete(ctx context.Context, handle *runHandle, impl Implementation, actx Context, cfg RunConfig, runID string, onOutput func(string)) {
	defer close(handle.done)

	prompt, err := impl.BuildPrompt(actx)
	var result *Result
	if err == nil {
		result, err = impl.Execute(ctx, actx, cfg, prompt, onOutput)
	}

	status := store.AgentRunCompleted
	switch {
	case err != nil:
		status = store.AgentRunFailed
		result = &Result{ExitCode: -1, Outcome: "failed", Prompt: prompt}
	case ctx.Err() == context.DeadlineExceeded:
		status = store.AgentRunTimedOut
	case ctx.Err() == context.Canceled:
		status = store.AgentRunCancelled
	case result.ExitCode != 0:
		status = store.AgentRunFailed
	}

	if err := s.complete(context.Background(), runID, actx.Task.ID, status, result); err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("failed to persist agent run completion")
	}

	s.mu.Lock()
	delete(s.running, runID)
	s.mu.Unlock()
}

// complete runs the post-completion sequence of spec.md §4.2: persist the
// run, close its phase, validate and persist/prompt on the outcome
// payload, then dispatch the outcome-driven auto-transition.
func (s *Service) complete(ctx context.Context, runID, taskID string, status store.AgentRunStatus, result *Result) error {
	now := time.Now()

	ok, verr := ValidatePayload(result.Outcome, result.Payload)
	payload := result.Payload
	if !ok {
		s.logWarning(ctx, taskID, fmt.Sprintf("dropping invalid payload for outcome %s: %v", result.Outcome, verr))
		payload = nil
	}

	updates := map[string]any{
		"status":             status,
		"completed_at":       now,
		"output":             result.Output,
		"outcome":            result.Outcome,
		"exit_code":          result.ExitCode,
		"cost_input_tokens":  result.CostInputTokens,
		"cost_output_tokens": result.CostOutputTokens,
		"prompt":             result.Prompt,
		"payload":            store.JSONColumn[map[string]any]{Value: payload},
	}
	if err := s.db.WithContext(ctx).Model(&store.AgentRun{}).Where("id = ?", runID).Updates(updates).Error; err != nil {
		return fmt.Errorf("updating agent run: %w", err)
	}

	phaseStatus := "completed"
	if status != store.AgentRunCompleted {
		phaseStatus = "failed"
	}
	if err := s.db.WithContext(ctx).Model(&store.TaskPhase{}).
		Where("agent_run_id = ?", runID).
		Updates(map[string]any{"status": phaseStatus, "completed_at": now}).Error; err != nil {
		return fmt.Errorf("updating task phase: %w", err)
	}

	if payload != nil && result.Outcome == "needs_info" {
		prompt := &store.PendingPrompt{
			TaskID: taskID, AgentRunID: runID, PromptType: "needs_info",
			Status: store.PromptPending, ResumeOutcome: "info_provided",
		}
		prompt.Payload.Value = payload
		if err := s.db.WithContext(ctx).Create(prompt).Error; err != nil {
			return fmt.Errorf("creating pending prompt: %w", err)
		}
	}

	return s.dispatchAutoTransition(ctx, taskID, result.Outcome)
}

// dispatchAutoTransition loads the fresh task and its pipeline and, if a
// trigger='agent' transition matches outcome from the task's current
// status, executes it. No match leaves the task where it is.
func (s *Service) dispatchAutoTransition(ctx context.Context, taskID, outcome string) error {
	var task store.Task
	if err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error; err != nil {
		return fmt.Errorf("loading task for auto-transition: %w", err)
	}
	var p store.Pipeline
	if err := s.db.WithContext(ctx).First(&p, "id = ?", task.PipelineID).Error; err != nil {
		return fmt.Errorf("loading pipeline for auto-transition: %w", err)
	}

	candidates := pipeline.GetValidTransitions(&p, &task, store.TriggerAgent)
	for _, t := range candidates {
		if t.AgentOutcome != outcome {
			continue
		}
		_, err := s.engine.ExecuteTransition(ctx, &p, &task, t.To, pipeline.TransitionContext{
			Trigger: store.TriggerAgent, Data: map[string]any{"outcome": outcome},
		})
		return err
	}
	return nil
}

func (s *Service) logWarning(ctx context.Context, taskID, message string) {
	event := &store.TaskEvent{TaskID: taskID, Category: store.EventCategoryAgent, Severity: store.EventSeverityWarning, Message: message}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		s.log.Error().Err(err).Msg("failed to persist warning event")
	}
}

// Stop cancels a running run's context; the run settles to "cancelled"
// through the normal post-completion path.
func (s *Service) Stop(runID string) error {
	s.mu.Lock()
	handle, ok := s.running[runID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running agent run %s", runID)
	}
	handle.cancel()
	return nil
}

// WaitForCompletion blocks until runID reaches a terminal status or ctx
// is cancelled, then returns the final AgentRun row.
func (s *Service) WaitForCompletion(ctx context.Context, runID string) (*store.AgentRun, error) {
	s.mu.Lock()
	handle, ok := s.running[runID]
	s.mu.Unlock()
	if ok {
		select {
		case <-handle.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var run store.AgentRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		return nil, fmt.Errorf("loading agent run %s: %w", runID, err)
	}
	return &run, nil
}

// Shutdown trips every in-flight run's cancellation handle and marks it
// interrupted (spec.md §4.2 "Interruption"): runs mid-flight at shutdown
// are preserved for inspection, never auto-resumed.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.running))
	for id, h := range s.running {
		ids = append(ids, id)
		h.cancel()
	}
	s.mu.Unlock()

	for _, id := range ids {
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(&store.AgentRun{}).Where("id = ? AND status = ?", id, store.AgentRunRunning).
			Updates(map[string]any{"status": store.AgentRunInterrupted, "completed_at": now}).Error; err != nil {
			s.log.Error().Err(err).Str("run_id", id).Msg("failed to mark run interrupted")
		}
	}
}
