// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline implements the guarded state machine of spec.md §4.1:
// trigger-dispatched transitions, atomic state updates, and post-commit
// hooks with three execution policies.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/logger"
	"github.com/agentyard/agentyard/internal/store"
)

// GuardOutcome is what a guard returns: whether the transition may
// proceed and, if not, why.
type GuardOutcome struct {
	Allowed bool
	Reason  string
}

// GuardFunc is a named predicate evaluated before a transition commits.
// params are the transition's declared guard parameters (e.g. max_retries'
// "max").
type GuardFunc func(ctx context.Context, task *store.Task, params map[string]any) (GuardOutcome, error)

// HookOutcome is what a hook returns: success, or a failure reason.
type HookOutcome struct {
	Success bool
	Reason  string
}

// TransitionContext is the caller-supplied context for a transition
// attempt: the trigger kind, an optional actor, and trigger-specific
// data (e.g. {"outcome": "plan_complete"} for an agent trigger).
type TransitionContext struct {
	Trigger store.TriggerKind
	Actor   string
	Data    map[string]any
}

// Outcome extracts ctx.Data["outcome"] as a string, if present.
func (c TransitionContext) Outcome() (string, bool) {
	if c.Data == nil {
		return "", false
	}
	v, ok := c.Data["outcome"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// HookFunc is a named side effect scheduled after a transition commits.
type HookFunc func(ctx context.Context, task *store.Task, transition *store.Transition, tctx TransitionContext) (HookOutcome, error)

// GuardFailure is one denied guard, as reported on a blocked transition.
type GuardFailure struct {
	Guard  string `json:"guard"`
	Reason string `json:"reason"`
}

// HookFailure is one hook whose execution failed, as reported on an
// otherwise-successful transition.
type HookFailure struct {
	Hook   string           `json:"hook"`
	Error  string           `json:"error"`
	Policy store.HookPolicy `json:"policy"`
}

// TransitionResult is the outcome of a call to ExecuteTransition.
type TransitionResult struct {
	Success       bool
	Task          *store.Task
	Error         string
	GuardFailures []GuardFailure
	HookFailures  []HookFailure
}

// Engine evaluates guards, commits transitions atomically, and schedules
// hooks by declaration order and policy.
type Engine struct {
	db *gorm.DB

	mu     sync.RWMutex
	guards map[string]GuardFunc
	hooks  map[string]HookFunc

	log zerolog.Logger
}

// NewEngine returns an Engine backed by db. Guards and hooks are empty
// until RegisterGuard/RegisterHook populate them (normally done once by
// the composition root).
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{
		db:     db,
		guards: make(map[string]GuardFunc),
		hooks:  make(map[string]HookFunc),
		log:    logger.GetPipelineLogger(),
	}
}

// RegisterGuard adds or replaces the guard registered under name. A
// second registration of the same name replaces the first; there is no
// duplicate execution.
func (e *Engine) RegisterGuard(name string, fn GuardFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guards[name] = fn
}

// RegisterHook adds or replaces the hook registered under name.
func (e *Engine) RegisterHook(name string, fn HookFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[name] = fn
}

// GetValidTransitions returns every transition of pipeline whose `from`
// equals task.Status and, if trigger is non-empty, whose `trigger`
// equals it.
func GetValidTransitions(p *store.Pipeline, task *store.Task, trigger store.TriggerKind) []store.Transition {
	var out []store.Transition
	for _, t := range p.Transitions.Value {
		if t.From != task.Status {
			continue
		}
		if trigger != "" && t.Trigger != trigger {
			continue
		}
		out = append(out, t)
	}
	return out
}

// selectTransition applies the spec's selection rule: among transitions
// matching from/to/trigger, pick the first (declaration order) whose
// AgentOutcome matches ctx's outcome (or is absent when ctx carries none).
func selectTransition(p *store.Pipeline, fromStatus, toStatus string, tctx TransitionContext) (*store.Transition, error) {
	outcome, hasOutcome := tctx.Outcome()

	for i := range p.Transitions.Value {
		t := p.Transitions.Value[i]
		if t.From != fromStatus || t.To != toStatus || t.Trigger != tctx.Trigger {
			continue
		}
		if t.AgentOutcome == "" {
			if !hasOutcome {
				return &t, nil
			}
			continue
		}
		if hasOutcome && t.AgentOutcome == outcome {
			return &t, nil
		}
	}

	return nil, fmt.Errorf("no transition from %s to %s for trigger %s", fromStatus, toStatus, tctx.Trigger)
}

func (e *Engine) guard(name string) (GuardFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.guards[name]
	return fn, ok
}

func (e *Engine) hook(name string) (HookFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn, ok := e.hooks[name]
	return fn, ok
}

// ExecuteTransition moves task from its current status to toStatus along
// the transition selected by tctx, in a single DB transaction, then
// schedules the transition's hooks per their declared policy.
func (e *Engine) ExecuteTransition(ctx context.Context, p *store.Pipeline, task *store.Task, toStatus string, tctx TransitionContext) (*TransitionResult, error) {
	transition, err := selectTransition(p, task.Status, toStatus, tctx)
	if err != nil {
		return &TransitionResult{Success: false, Error: err.Error()}, nil
	}

	guardResults, failures, err := e.evaluateGuards(ctx, transition, task)
	if err != nil {
		return nil, fmt.Errorf("evaluating guards: %w", err)
	}
	if len(failures) > 0 {
		return &TransitionResult{Success: false, GuardFailures: failures}, nil
	}

	fromStatus := task.Status
	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&store.Task{}).Where("id = ?", task.ID).Updates(map[string]any{
			"status":     toStatus,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}

		history := &store.TransitionHistory{
			TaskID:     task.ID,
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			Trigger:    tctx.Trigger,
			Actor:      tctx.Actor,
		}
		history.GuardResults.Value = guardResults
		if err := tx.Create(history).Error; err != nil {
			return err
		}

		eventData := map[string]any{"fromStatus": fromStatus, "toStatus": toStatus, "trigger": tctx.Trigger}
		if tctx.Actor != "" {
			eventData["actor"] = tctx.Actor
		}
		event := &store.TaskEvent{
			TaskID:   task.ID,
			Category: store.EventCategoryStatusChange,
			Severity: store.EventSeverityInfo,
			Message:  fmt.Sprintf("%s → %s", fromStatus, toStatus),
		}
		event.Data.Value = eventData
		return tx.Create(event).Error
	})
	if txErr != nil {
		return nil, fmt.Errorf("committing transition: %w", txErr)
	}

	task.Status = toStatus
	task.UpdatedAt = time.Now()

	result := &TransitionResult{Success: true, Task: task}
	result.HookFailures = e.runHooks(ctx, task, transition, tctx)
	return result, nil
}

func (e *Engine) evaluateGuards(ctx context.Context, transition *store.Transition, task *store.Task) ([]store.GuardResult, []GuardFailure, error) {
	var results []store.GuardResult
	var failures []GuardFailure

	for _, ref := range transition.Guards {
		fn, ok := e.guard(ref.Name)
		if !ok {
			reason := fmt.Sprintf("unknown guard: %s", ref.Name)
			results = append(results, store.GuardResult{Guard: ref.Name, Allowed: false, Reason: reason})
			failures = append(failures, GuardFailure{Guard: ref.Name, Reason: reason})
			break
		}

		outcome, err := fn(ctx, task, ref.Params)
		if err != nil {
			return nil, nil, fmt.Errorf("guard %s: %w", ref.Name, err)
		}
		results = append(results, store.GuardResult{Guard: ref.Name, Allowed: outcome.Allowed, Reason: outcome.Reason})
		if !outcome.Allowed {
			failures = append(failures, GuardFailure{Guard: ref.Name, Reason: outcome.Reason})
			break
		}
	}

	return results, failures, nil
}

// runHooks executes transition.Hooks in declaration order, honoring each
// hook's policy. fire_and_forget hooks are scheduled detached and never
// appear in the returned failures. best_effort and required hooks are
// awaited and their failures both end up in the returned slice; a
// transition's hooks running post-commit can never roll back task state,
// so "required" only changes log severity, not control flow.
func (e *Engine) runHooks(ctx context.Context, task *store.Task, transition *store.Transition, tctx TransitionContext) []HookFailure {
	var failures []HookFailure

	for _, ref := range transition.Hooks {
		fn, ok := e.hook(ref.Name)
		if !ok {
			continue // unknown hook names are silently ignored (forward compatibility)
		}

		policy := ref.Policy
		if policy == "" {
			policy = store.HookPolicyBestEffort
		}
		params := ref.Params

		hookTransition := &store.Transition{
			From: transition.From, To: transition.To, Trigger: transition.Trigger,
			AgentOutcome: transition.AgentOutcome, Label: transition.Label,
			Guards: transition.Guards, Hooks: []store.HookRef{{Name: ref.Name, Params: params, Policy: policy}},
		}

		if policy == store.HookPolicyFireAndForget {
			taskCopy := *task
			go func(name string) {
				detachedCtx := context.Background()
				if _, err := fn(detachedCtx, &taskCopy, hookTransition, tctx); err != nil {
					e.logHookEvent(detachedCtx, taskCopy.ID, name, store.EventSeverityError, err.Error())
				}
			}(ref.Name)
			continue
		}

		outcome, err := fn(ctx, task, hookTransition, tctx)
		failureReason := ""
		switch {
		case err != nil:
			failureReason = err.Error()
		case !outcome.Success:
			failureReason = outcome.Reason
			if failureReason == "" {
				failureReason = "hook reported failure"
			}
		}

		if failureReason == "" {
			continue
		}

		failures = append(failures, HookFailure{Hook: ref.Name, Error: failureReason, Policy: policy})
		severity := store.EventSeverityWarning
		if policy == store.HookPolicyRequired {
			severity = store.EventSeverityError
		}
		e.logHookEvent(ctx, task.ID, ref.Name, severity, failureReason)
	}

	return failures
}

func (e *Engine) logHookEvent(ctx context.Context, taskID, hookName string, severity store.EventSeverity, reason string) {
	event := &store.TaskEvent{
		TaskID:   taskID,
		Category: store.EventCategorySystem,
		Severity: severity,
		Message:  fmt.Sprintf("hook %s failed", hookName),
	}
	event.Data.Value = map[string]any{"hook": hookName, "error": reason}
	if err := e.db.WithContext(ctx).Create(event).Error; err != nil {
		e.log.Error().Err(err).Str("hook", hookName).Msg("failed to persist hook failure event")
	}
}
