// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package timeline presents a merged, time-ordered, keyset-paginated feed
// of everything that happened to a task (spec.md §4.6). Each source reads
// its own table directly; no join is needed.
package timeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/store"
)

// Entry is one uniform timeline item, regardless of its source table.
type Entry struct {
	ID        string
	Timestamp int64 // epoch milliseconds
	Source    string
	Severity  string
	Title     string
	Data      map[string]any
}

// dedupeKey returns the identity used to deduplicate entries: the
// entry's own ID when set, else a deterministic hash of
// (timestamp, source, title) — stable across runs, per spec.md §9.
func (e Entry) dedupeKey() string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	return fmt.Sprintf("hash:%d:%s:%s", e.Timestamp, e.Source, e.Title)
}

// Source is a read-only adapter turning one data table into uniform
// timeline entries for a single task.
type Source interface {
	Name() string
	Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error)
}

// Service aggregates every registered Source, deduplicates, and paginates.
type Service struct {
	db      *gorm.DB
	sources []Source
}

// New returns a Service with the built-in sources of spec.md §4.6
// registered: task_events, activity_log, transition_history, agent_runs,
// task_phases, task_artifacts, pending_prompts. git/github sub-logs are
// synthesized from task_events by the taskEventSource itself (it carries
// every category, including git/github).
func New(db *gorm.DB) *Service {
	return &Service{
		db: db,
		sources: []Source{
			taskEventSource{}, activityLogSource{}, transitionHistorySource{},
			agentRunSource{}, taskPhaseSource{}, taskArtifactSource{}, pendingPromptSource{},
		},
	}
}

// Page is one keyset-paginated slice of a task's timeline, strictly
// time-descending, with a cursor to fetch the next page.
type Page struct {
	Entries    []Entry
	NextCursor int64
	HasMore    bool
}

// Query returns taskID's timeline, newest first, filtered to entries
// strictly before cursor (0 means "from the most recent"), truncated to
// limit.
func (s *Service) Query(ctx context.Context, taskID string, cursor int64, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 50
	}

	var all []Entry
	for _, src := range s.sources {
		entries, err := src.Fetch(ctx, s.db, taskID)
		if err != nil {
			return nil, fmt.Errorf("timeline source %s: %w", src.Name(), err)
		}
		all = append(all, entries...)
	}

	deduped := lo.UniqBy(all, func(e Entry) string { return e.dedupeKey() })

	if cursor > 0 {
		deduped = lo.Filter(deduped, func(e Entry, _ int) bool { return e.Timestamp < cursor })
	}

	sort.Slice(deduped, func(i, j int) bool { return deduped[i].Timestamp > deduped[j].Timestamp })

	hasMore := len(deduped) > limit
	if hasMore {
		deduped = deduped[:limit]
	}

	page := &Page{Entries: deduped, HasMore: hasMore}
	if len(deduped) > 0 {
		page.NextCursor = deduped[len(deduped)-1].Timestamp
	}
	return page, nil
}

func millis(t interface{ UnixMilli() int64 }) int64 { return t.UnixMilli() }

type taskEventSource struct{}

func (taskEventSource) Name() string { return "task_events" }
func (taskEventSource) Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error) {
	var rows []store.TaskEvent
	if err := db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		source := "task_events"
		switch r.Category {
		case store.EventCategoryGit:
			source = "git"
		case store.EventCategoryGitHub:
			source = "github"
		}
		out[i] = Entry{ID: r.ID, Timestamp: millis(r.CreatedAt), Source: source, Severity: string(r.Severity), Title: r.Message, Data: r.Data.Value}
	}
	return out, nil
}

type activityLogSource struct{}

func (activityLogSource) Name() string { return "activity_log" }
func (activityLogSource) Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error) {
	var rows []store.ActivityLog
	if err := db.WithContext(ctx).Where("entity_type = ? AND entity_id = ?", "task", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{ID: r.ID, Timestamp: millis(r.CreatedAt), Source: "activity_log", Severity: "info", Title: r.Summary, Data: r.Data.Value}
	}
	return out, nil
}

type transitionHistorySource struct{}

func (transitionHistorySource) Name() string { return "transition_history" }
func (transitionHistorySource) Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error) {
	var rows []store.TransitionHistory
	if err := db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{
			ID: r.ID, Timestamp: millis(r.CreatedAt), Source: "transition_history", Severity: "info",
			Title: fmt.Sprintf("%s → %s", r.FromStatus, r.ToStatus),
			Data:  map[string]any{"trigger": r.Trigger, "actor": r.Actor, "guardResults": r.GuardResults.Value},
		}
	}
	return out, nil
}

type agentRunSource struct{}

func (agentRunSource) Name() string { return "agent_runs" }
func (agentRunSource) Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error) {
	var rows []store.AgentRun
	if err := db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		ts := r.StartedAt
		severity := "info"
		if r.Status == store.AgentRunFailed || r.Status == store.AgentRunTimedOut {
			severity = "error"
		}
		out[i] = Entry{
			ID: r.ID, Timestamp: millis(ts), Source: "agent_runs", Severity: severity,
			Title: fmt.Sprintf("%s agent run (%s): %s", r.AgentType, r.Mode, r.Status),
			Data:  map[string]any{"status": r.Status, "outcome": r.Outcome, "exitCode": r.ExitCode},
		}
	}
	return out, nil
}

type taskPhaseSource struct{}

func (taskPhaseSource) Name() string { return "task_phases" }
func (taskPhaseSource) Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error) {
	var rows []store.TaskPhase
	if err := db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{ID: r.ID, Timestamp: millis(r.StartedAt), Source: "task_phases", Severity: "info", Title: fmt.Sprintf("phase %s: %s", r.Phase, r.Status)}
	}
	return out, nil
}

type taskArtifactSource struct{}

func (taskArtifactSource) Name() string { return "task_artifacts" }
func (taskArtifactSource) Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error) {
	var rows []store.TaskArtifact
	if err := db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{ID: r.ID, Timestamp: millis(r.CreatedAt), Source: "task_artifacts", Severity: "info", Title: fmt.Sprintf("artifact: %s", r.Type), Data: r.Data.Value}
	}
	return out, nil
}

type pendingPromptSource struct{}

func (pendingPromptSource) Name() string { return "pending_prompts" }
func (pendingPromptSource) Fetch(ctx context.Context, db *gorm.DB, taskID string) ([]Entry, error) {
	var rows []store.PendingPrompt
	if err := db.WithContext(ctx).Where("task_id = ?", taskID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = Entry{ID: r.ID, Timestamp: millis(r.CreatedAt), Source: "pending_prompts", Severity: "info", Title: fmt.Sprintf("prompt (%s): %s", r.PromptType, r.Status)}
	}
	return out, nil
}
