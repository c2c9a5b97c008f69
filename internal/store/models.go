// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewID returns a new opaque identifier for any entity in the data model.
func NewID() string {
	return uuid.NewString()
}

// PipelineStatus is one status a task can occupy within a pipeline.
type PipelineStatus struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Color   string `json:"color,omitempty"`
	IsFinal bool   `json:"isFinal,omitempty"`
}

// GuardRef names a registered guard and its parameters, as declared on a
// transition.
type GuardRef struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// HookPolicy controls how a hook's failure is surfaced after a transition
// commits.
type HookPolicy string

const (
	HookPolicyBestEffort    HookPolicy = "best_effort"
	HookPolicyRequired      HookPolicy = "required"
	HookPolicyFireAndForget HookPolicy = "fire_and_forget"
)

// HookRef names a registered hook, its parameters, and its execution
// policy, as declared on a transition.
type HookRef struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
	Policy HookPolicy     `json:"policy,omitempty"`
}

// TriggerKind is how a transition is dispatched.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerAgent     TriggerKind = "agent"
	TriggerAutomatic TriggerKind = "automatic"
)

// Transition is one edge of a pipeline's state machine.
type Transition struct {
	From         string      `json:"from"`
	To           string      `json:"to"`
	Trigger      TriggerKind `json:"trigger"`
	AgentOutcome string      `json:"agentOutcome,omitempty"`
	Label        string      `json:"label,omitempty"`
	Guards       []GuardRef  `json:"guards,omitempty"`
	Hooks        []HookRef   `json:"hooks,omitempty"`
}

// Pipeline is a named state machine: ordered statuses plus a transition
// table. TaskType is unique; the first declared status is the initial
// status for new tasks.
type Pipeline struct {
	ID         string                          `gorm:"primaryKey;type:text" json:"id"`
	Name       string                          `gorm:"not null;type:text" json:"name"`
	TaskType   string                          `gorm:"not null;type:text;uniqueIndex" json:"taskType"`
	Statuses   JSONColumn[[]PipelineStatus]    `gorm:"type:text" json:"statuses"`
	Transitions JSONColumn[[]Transition]       `gorm:"type:text" json:"transitions"`
	CreatedAt  time.Time                       `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time                       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Pipeline) TableName() string { return "pipelines" }

// InitialStatus returns the first declared status, the status assigned to
// new tasks on this pipeline.
func (p *Pipeline) InitialStatus() string {
	statuses := p.Statuses.Value
	if len(statuses) == 0 {
		return ""
	}
	return statuses[0].Name
}

// FinalStatuses returns every status flagged isFinal, in declaration order.
func (p *Pipeline) FinalStatuses() []string {
	var out []string
	for _, s := range p.Statuses.Value {
		if s.IsFinal {
			out = append(out, s.Name)
		}
	}
	return out
}

// HasStatus reports whether name is a declared status of this pipeline.
func (p *Pipeline) HasStatus(name string) bool {
	for _, s := range p.Statuses.Value {
		if s.Name == name {
			return true
		}
	}
	return false
}

// ProjectConfig is the recognized subset of a project's config mapping.
type ProjectConfig struct {
	DefaultBranch      string `json:"defaultBranch,omitempty"`
	WorktreesPath      string `json:"worktreesPath,omitempty"`
	DefaultAgentType   string `json:"defaultAgentType,omitempty"`
	PullMainAfterMerge bool   `json:"pullMainAfterMerge,omitempty"`
}

// Project owns tasks and a worktree root directory, rooted at a local git
// repository path.
type Project struct {
	ID          string                      `gorm:"primaryKey;type:text" json:"id"`
	Name        string                      `gorm:"not null;type:text" json:"name"`
	Path        string                      `gorm:"not null;type:text;uniqueIndex" json:"path"`
	Description string                      `gorm:"type:text" json:"description"`
	Config      JSONColumn[ProjectConfig]   `gorm:"type:text" json:"config"`
	CreatedAt   time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`

	Tasks []Task `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

func (Project) TableName() string { return "projects" }

// Task is the central unit of work, driven through its pipeline's states.
type Task struct {
	ID            string                    `gorm:"primaryKey;type:text" json:"id"`
	ProjectID     string                    `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"projectId"`
	PipelineID    string                    `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"pipelineId"`
	Title         string                    `gorm:"not null;type:text" json:"title"`
	Description   string                    `gorm:"type:text" json:"description"`
	Status        string                    `gorm:"not null;type:text;index" json:"status"`
	Priority      int                       `gorm:"type:integer;default:0" json:"priority"`
	Tags          JSONColumn[[]string]      `gorm:"type:text" json:"tags"`
	ParentTaskID  *string                   `gorm:"type:text;index" json:"parentTaskId,omitempty"`
	Assignee      string                    `gorm:"type:text" json:"assignee,omitempty"`
	PRLink        string                    `gorm:"type:text" json:"prLink,omitempty"`
	BranchName    string                    `gorm:"type:text" json:"branchName,omitempty"`
	Metadata      JSONColumn[map[string]any] `gorm:"type:text" json:"metadata"`
	CreatedAt     time.Time                 `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time                 `gorm:"autoUpdateTime" json:"updatedAt"`

	Phases []TaskPhase `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"phases,omitempty"`
}

func (Task) TableName() string { return "tasks" }

// TaskDependency is an edge (taskId, dependsOnTaskId); no self-loops.
type TaskDependency struct {
	TaskID        string    `gorm:"primaryKey;type:text;index;constraint:OnDelete:CASCADE" json:"taskId"`
	DependsOnTaskID string  `gorm:"primaryKey;type:text;index;constraint:OnDelete:CASCADE" json:"dependsOnTaskId"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (TaskDependency) TableName() string { return "task_dependencies" }

// AgentRunStatus is the lifecycle state of a single agent subprocess run.
type AgentRunStatus string

const (
	AgentRunRunning     AgentRunStatus = "running"
	AgentRunCompleted   AgentRunStatus = "completed"
	AgentRunFailed      AgentRunStatus = "failed"
	AgentRunTimedOut    AgentRunStatus = "timed_out"
	AgentRunCancelled   AgentRunStatus = "cancelled"
	AgentRunInterrupted AgentRunStatus = "interrupted"
)

// AgentRun is a single spawn of an external agent process.
type AgentRun struct {
	ID               string          `gorm:"primaryKey;type:text" json:"id"`
	TaskID           string          `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"taskId"`
	AgentType        string          `gorm:"type:text" json:"agentType"`
	Mode             string          `gorm:"type:text" json:"mode"`
	Status           AgentRunStatus  `gorm:"type:text;index" json:"status"`
	Output           string          `gorm:"type:text" json:"output"`
	Outcome          string          `gorm:"type:text" json:"outcome"`
	Payload          JSONColumn[map[string]any] `gorm:"type:text" json:"payload"`
	ExitCode         int             `gorm:"type:integer" json:"exitCode"`
	StartedAt        time.Time       `gorm:"index" json:"startedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	CostInputTokens  int             `gorm:"type:integer" json:"costInputTokens,omitempty"`
	CostOutputTokens int             `gorm:"type:integer" json:"costOutputTokens,omitempty"`
	Prompt           string          `gorm:"type:text" json:"prompt,omitempty"`
}

func (AgentRun) TableName() string { return "agent_runs" }

// TaskPhase records one phase (mode) of agent activity against a task.
// Supplements the data model spec.md's Task.phases[] field references but
// does not itself define a row shape for.
type TaskPhase struct {
	ID          string     `gorm:"primaryKey;type:text" json:"id"`
	TaskID      string     `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"taskId"`
	Phase       string     `gorm:"type:text" json:"phase"`
	Status      string     `gorm:"type:text" json:"status"`
	AgentRunID  string     `gorm:"type:text;index" json:"agentRunId"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (TaskPhase) TableName() string { return "task_phases" }

// TransitionHistory is an append-only log of every committed transition.
type TransitionHistory struct {
	ID           string                  `gorm:"primaryKey;type:text" json:"id"`
	TaskID       string                  `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"taskId"`
	FromStatus   string                  `gorm:"type:text" json:"fromStatus"`
	ToStatus     string                  `gorm:"type:text" json:"toStatus"`
	Trigger      TriggerKind             `gorm:"type:text" json:"trigger"`
	Actor        string                  `gorm:"type:text" json:"actor,omitempty"`
	GuardResults JSONColumn[[]GuardResult] `gorm:"type:text" json:"guardResults"`
	CreatedAt    time.Time               `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (TransitionHistory) TableName() string { return "transition_history" }

// GuardResult is the outcome of evaluating a single guard.
type GuardResult struct {
	Guard   string `json:"guard"`
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// EventCategory classifies a task event.
type EventCategory string

const (
	EventCategorySystem       EventCategory = "system"
	EventCategoryStatusChange EventCategory = "status_change"
	EventCategoryAgent        EventCategory = "agent"
	EventCategoryGit          EventCategory = "git"
	EventCategoryGitHub       EventCategory = "github"
)

// EventSeverity is the severity of a task event.
type EventSeverity string

const (
	EventSeverityDebug   EventSeverity = "debug"
	EventSeverityInfo    EventSeverity = "info"
	EventSeverityWarning EventSeverity = "warning"
	EventSeverityError   EventSeverity = "error"
)

// TaskEvent is an append-only entry in a task's event log.
type TaskEvent struct {
	ID        string                     `gorm:"primaryKey;type:text" json:"id"`
	TaskID    string                     `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"taskId"`
	Category  EventCategory              `gorm:"type:text" json:"category"`
	Severity  EventSeverity              `gorm:"type:text" json:"severity"`
	Message   string                     `gorm:"type:text" json:"message"`
	Data      JSONColumn[map[string]any] `gorm:"type:text" json:"data"`
	CreatedAt time.Time                  `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (TaskEvent) TableName() string { return "task_events" }

// ActivityLog is a higher-level stream than task events; it crosses
// entities (e.g. project-level actions).
type ActivityLog struct {
	ID         string                     `gorm:"primaryKey;type:text" json:"id"`
	Action     string                     `gorm:"type:text" json:"action"`
	EntityType string                     `gorm:"type:text;index" json:"entityType"`
	EntityID   string                     `gorm:"type:text;index" json:"entityId"`
	Summary    string                     `gorm:"type:text" json:"summary"`
	Data       JSONColumn[map[string]any] `gorm:"type:text" json:"data"`
	CreatedAt  time.Time                  `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (ActivityLog) TableName() string { return "activity_log" }

// TaskArtifactType classifies a task artifact.
type TaskArtifactType string

const (
	ArtifactBranch   TaskArtifactType = "branch"
	ArtifactPR       TaskArtifactType = "pr"
	ArtifactCommit   TaskArtifactType = "commit"
	ArtifactDiff     TaskArtifactType = "diff"
	ArtifactDocument TaskArtifactType = "document"
)

// TaskArtifact is a persisted output of task processing (a diff, a PR
// link, a commit hash, a generated document).
type TaskArtifact struct {
	ID        string                     `gorm:"primaryKey;type:text" json:"id"`
	TaskID    string                     `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"taskId"`
	Type      TaskArtifactType           `gorm:"type:text;index" json:"type"`
	Data      JSONColumn[map[string]any] `gorm:"type:text" json:"data"`
	CreatedAt time.Time                  `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (TaskArtifact) TableName() string { return "task_artifacts" }

// PendingPromptStatus is monotonic: pending -> answered or pending -> expired.
type PendingPromptStatus string

const (
	PromptPending  PendingPromptStatus = "pending"
	PromptAnswered PendingPromptStatus = "answered"
	PromptExpired  PendingPromptStatus = "expired"
)

// PendingPrompt is a human-in-the-loop question raised by an agent run,
// awaiting a response that resumes the pipeline.
type PendingPrompt struct {
	ID            string                     `gorm:"primaryKey;type:text" json:"id"`
	TaskID        string                     `gorm:"not null;type:text;index;constraint:OnDelete:CASCADE" json:"taskId"`
	AgentRunID    string                     `gorm:"type:text;index" json:"agentRunId"`
	PromptType    string                     `gorm:"type:text" json:"promptType"`
	Payload       JSONColumn[map[string]any] `gorm:"type:text" json:"payload"`
	Response      JSONColumn[map[string]any] `gorm:"type:text" json:"response"`
	Status        PendingPromptStatus        `gorm:"type:text;index" json:"status"`
	ResumeOutcome string                     `gorm:"type:text" json:"resumeOutcome,omitempty"`
	CreatedAt     time.Time                  `gorm:"autoCreateTime" json:"createdAt"`
	AnsweredAt    *time.Time                 `json:"answeredAt,omitempty"`
}

func (PendingPrompt) TableName() string { return "pending_prompts" }

// BeforeCreate stamps an ID on any model above that doesn't have one yet.
// GORM calls this once per row; it keeps ID generation out of every call
// site while still letting callers pre-assign an ID (e.g. in tests).
func stampID(id *string) {
	if *id == "" {
		*id = NewID()
	}
}

func (p *Project) BeforeCreate(tx *gorm.DB) error          { stampID(&p.ID); return nil }
func (p *Pipeline) BeforeCreate(tx *gorm.DB) error          { stampID(&p.ID); return nil }
func (t *Task) BeforeCreate(tx *gorm.DB) error              { stampID(&t.ID); return nil }
func (a *AgentRun) BeforeCreate(tx *gorm.DB) error          { stampID(&a.ID); return nil }
func (p *TaskPhase) BeforeCreate(tx *gorm.DB) error         { stampID(&p.ID); return nil }
func (h *TransitionHistory) BeforeCreate(tx *gorm.DB) error { stampID(&h.ID); return nil }
func (e *TaskEvent) BeforeCreate(tx *gorm.DB) error         { stampID(&e.ID); return nil }
func (a *ActivityLog) BeforeCreate(tx *gorm.DB) error       { stampID(&a.ID); return nil }
func (a *TaskArtifact) BeforeCreate(tx *gorm.DB) error      { stampID(&a.ID); return nil }
func (p *PendingPrompt) BeforeCreate(tx *gorm.DB) error     { stampID(&p.ID); return nil }
