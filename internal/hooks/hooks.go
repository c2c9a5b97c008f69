// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package hooks

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/gitops"
	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/worktree"
)

// AgentStarter is the narrow slice of internal/agent.Service the
// start_agent hook needs. Declaring it here, rather than importing
// internal/agent, keeps this package out of the workflow -> agent ->
// pipeline -> hooks -> workflow cycle noted in spec.md §9.
type AgentStarter interface {
	Execute(ctx context.Context, taskID, mode, agentType string, onOutput func(string)) (*store.AgentRun, error)
}

// Notifier delivers a human-facing message. The default implementation
// only logs; a real transport (email, chat) can be substituted at the
// composition root without this package changing.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// RegisterHooks registers every built-in hook on engine.
func RegisterHooks(engine *pipeline.Engine, db *gorm.DB, cfg *config.AppConfig, agents AgentStarter, notifier Notifier) {
	engine.RegisterHook("start_agent", StartAgent(agents))
	engine.RegisterHook("push_and_create_pr", PushAndCreatePR(db, cfg))
	engine.RegisterHook("merge_pr", MergePR(db, cfg))
	engine.RegisterHook("notify", Notify(notifier))
	engine.RegisterHook("create_prompt", CreatePrompt(db))
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// StartAgent starts an agent run for the task in its new status; the
// mode defaults to "implement", overridable via the hook's params.
func StartAgent(agents AgentStarter) pipeline.HookFunc {
	return func(ctx context.Context, task *store.Task, transition *store.Transition, tctx pipeline.TransitionContext) (pipeline.HookOutcome, error) {
		params := transition.Hooks[0].Params
		mode := stringParam(params, "mode", "implement")
		agentType := stringParam(params, "agentType", "")
		if _, err := agents.Execute(ctx, task.ID, mode, agentType, nil); err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("starting agent: %w", err)
		}
		return pipeline.HookOutcome{Success: true}, nil
	}
}

func loadProject(ctx context.Context, db *gorm.DB, task *store.Task) (*store.Project, error) {
	var project store.Project
	if err := db.WithContext(ctx).First(&project, "id = ?", task.ProjectID).Error; err != nil {
		return nil, fmt.Errorf("loading project %s: %w", task.ProjectID, err)
	}
	return &project, nil
}

func worktreesDir(project *store.Project, cfg *config.AppConfig) string {
	if project.Config.Value.WorktreesPath != "" {
		return project.Config.Value.WorktreesPath
	}
	return cfg.WorktreesPath
}

func defaultBranch(project *store.Project, cfg *config.AppConfig) string {
	if project.Config.Value.DefaultBranch != "" {
		return project.Config.Value.DefaultBranch
	}
	if cfg.DefaultBranch != "" {
		return cfg.DefaultBranch
	}
	return "main"
}

func createArtifact(ctx context.Context, db *gorm.DB, taskID string, typ store.TaskArtifactType, data map[string]any) error {
	artifact := &store.TaskArtifact{TaskID: taskID, Type: typ}
	artifact.Data.Value = data
	return db.WithContext(ctx).Create(artifact).Error
}

func logGitEvent(ctx context.Context, db *gorm.DB, taskID string, category store.EventCategory, message string, data map[string]any) {
	e := &store.TaskEvent{TaskID: taskID, Category: category, Severity: store.EventSeverityInfo, Message: message}
	e.Data.Value = data
	_ = db.WithContext(ctx).Create(e).Error
}

// PushAndCreatePR rebases the task's worktree onto the project's default
// branch, pushes, and opens a pull request, recording a diff artifact and
// (on success) a pr artifact. A clean diff against the default branch is
// not an error: the hook succeeds without opening a PR.
func PushAndCreatePR(db *gorm.DB, cfg *config.AppConfig) pipeline.HookFunc {
	return func(ctx context.Context, task *store.Task, transition *store.Transition, tctx pipeline.TransitionContext) (pipeline.HookOutcome, error) {
		project, err := loadProject(ctx, db, task)
		if err != nil {
			return pipeline.HookOutcome{}, err
		}

		wm := worktree.New(project.Path, worktreesDir(project, cfg))
		wt, err := wm.Get(ctx, task.ID)
		if err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("looking up worktree for task %s: %w", task.ID, err)
		}
		if wt == nil {
			return pipeline.HookOutcome{Success: false, Reason: "no worktree for task"}, nil
		}

		base := defaultBranch(project, cfg)
		ops := gitops.New(wt.Path)

		if err := ops.Fetch(ctx, "origin"); err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("fetching origin: %w", err)
		}
		if err := ops.Rebase(ctx, "origin/"+base); err != nil {
			return pipeline.HookOutcome{Success: false, Reason: fmt.Sprintf("rebase onto origin/%s failed: %v", base, err)}, nil
		}

		diff, err := ops.Diff(ctx, "origin/"+base, "HEAD")
		if err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("diffing against origin/%s: %w", base, err)
		}
		if err := createArtifact(ctx, db, task.ID, store.ArtifactDiff, map[string]any{"diff": diff}); err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("recording diff artifact: %w", err)
		}
		if diff == "" {
			logGitEvent(ctx, db, task.ID, store.EventCategoryGit, "no changes against "+base+", skipping PR", nil)
			return pipeline.HookOutcome{Success: true}, nil
		}

		if err := ops.Push(ctx, wt.Branch, true); err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("pushing branch %s: %w", wt.Branch, err)
		}
		logGitEvent(ctx, db, task.ID, store.EventCategoryGit, "pushed branch "+wt.Branch, map[string]any{"branch": wt.Branch})

		scm := gitops.NewSCM(wt.Path)
		result, err := scm.CreatePR(ctx, gitops.PRRequest{
			Title: task.Title, Body: task.Description, Head: wt.Branch, Base: base,
		})
		if err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("creating pull request: %w", err)
		}

		if err := createArtifact(ctx, db, task.ID, store.ArtifactPR, map[string]any{"url": result.URL, "number": result.Number}); err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("recording pr artifact: %w", err)
		}
		if err := db.WithContext(ctx).Model(&store.Task{}).Where("id = ?", task.ID).
			Updates(map[string]any{"pr_link": result.URL, "branch_name": wt.Branch}).Error; err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("updating task pr link: %w", err)
		}
		logGitEvent(ctx, db, task.ID, store.EventCategoryGitHub, "opened pull request "+result.URL, map[string]any{"url": result.URL})

		return pipeline.HookOutcome{Success: true}, nil
	}
}

// MergePR merges the task's most recent pr artifact through the
// project's SCM and removes its worktree. Unlike workflow.Service's
// MergePR (an explicit user action), this variant is meant for
// pipelines that merge automatically on an automatic transition.
func MergePR(db *gorm.DB, cfg *config.AppConfig) pipeline.HookFunc {
	return func(ctx context.Context, task *store.Task, transition *store.Transition, tctx pipeline.TransitionContext) (pipeline.HookOutcome, error) {
		var artifact store.TaskArtifact
		if err := db.WithContext(ctx).Where("task_id = ? AND type = ?", task.ID, store.ArtifactPR).
			Order("created_at DESC").First(&artifact).Error; err != nil {
			return pipeline.HookOutcome{Success: false, Reason: "no PR artifact for task"}, nil
		}
		url, _ := artifact.Data.Value["url"].(string)
		if url == "" {
			return pipeline.HookOutcome{Success: false, Reason: "PR artifact has no url"}, nil
		}

		project, err := loadProject(ctx, db, task)
		if err != nil {
			return pipeline.HookOutcome{}, err
		}

		wm := worktree.New(project.Path, worktreesDir(project, cfg))
		_ = wm.Unlock(ctx, task.ID)
		if err := wm.Delete(ctx, task.ID); err != nil {
			logGitEvent(ctx, db, task.ID, store.EventCategoryGit, "worktree removal before merge failed, continuing", map[string]any{"error": err.Error()})
		}

		scm := gitops.NewSCM(project.Path)
		if err := scm.MergePR(ctx, url); err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("merging pull request %s: %w", url, err)
		}

		if project.Config.Value.PullMainAfterMerge {
			ops := gitops.New(project.Path)
			if err := ops.Pull(ctx); err != nil {
				logGitEvent(ctx, db, task.ID, store.EventCategoryGit, "pull after merge failed", map[string]any{"error": err.Error()})
			}
		}

		logGitEvent(ctx, db, task.ID, store.EventCategoryGitHub, "merged pull request "+url, map[string]any{"url": url})
		return pipeline.HookOutcome{Success: true}, nil
	}
}

// notifyData is the template context available to a notify hook's
// titleTemplate/bodyTemplate params.
type notifyData struct {
	Task         *store.Task
	From         string
	To           string
	AgentOutcome string
}

// Notify renders the hook's titleTemplate/bodyTemplate (text/template,
// evaluated against the task and transition) and delivers them through
// notifier.
func Notify(notifier Notifier) pipeline.HookFunc {
	return func(ctx context.Context, task *store.Task, transition *store.Transition, tctx pipeline.TransitionContext) (pipeline.HookOutcome, error) {
		params := transition.Hooks[0].Params
		titleTpl := stringParam(params, "titleTemplate", "{{.Task.Title}}: {{.From}} -> {{.To}}")
		bodyTpl := stringParam(params, "bodyTemplate", "Task {{.Task.Title}} moved from {{.From}} to {{.To}}.")

		data := notifyData{Task: task, From: transition.From, To: transition.To, AgentOutcome: transition.AgentOutcome}

		title, err := renderTemplate(titleTpl, data)
		if err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("rendering notify title: %w", err)
		}
		body, err := renderTemplate(bodyTpl, data)
		if err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("rendering notify body: %w", err)
		}

		if err := notifier.Notify(ctx, title, body); err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("sending notification: %w", err)
		}
		return pipeline.HookOutcome{Success: true}, nil
	}
}

func renderTemplate(tpl string, data notifyData) (string, error) {
	t, err := template.New("notify").Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CreatePrompt raises a pending prompt against the task, pausing the
// pipeline for a human response. promptType and resumeOutcome come from
// the hook's params; resumeOutcome (if set) is the agent-trigger outcome
// dispatched once the prompt is answered (internal/workflow's
// RespondToPrompt does the dispatch).
func CreatePrompt(db *gorm.DB) pipeline.HookFunc {
	return func(ctx context.Context, task *store.Task, transition *store.Transition, tctx pipeline.TransitionContext) (pipeline.HookOutcome, error) {
		params := transition.Hooks[0].Params
		promptType := stringParam(params, "promptType", "confirmation")
		resumeOutcome := stringParam(params, "resumeOutcome", "")

		prompt := &store.PendingPrompt{
			TaskID: task.ID, PromptType: promptType,
			Status: store.PromptPending, ResumeOutcome: resumeOutcome,
		}
		prompt.Payload.Value = map[string]any{
			"fromStatus": transition.From, "toStatus": transition.To, "message": stringParam(params, "message", ""),
		}
		if err := db.WithContext(ctx).Create(prompt).Error; err != nil {
			return pipeline.HookOutcome{}, fmt.Errorf("creating pending prompt: %w", err)
		}
		return pipeline.HookOutcome{Success: true}, nil
	}
}
