// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentyard/agentyard/internal/apperr"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/workflow"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage tasks and drive them through their pipeline",
	}
	cmd.AddCommand(
		newTasksListCmd(), newTasksGetCmd(), newTasksCreateCmd(), newTasksUpdateCmd(),
		newTasksDeleteCmd(), newTasksTransitionCmd(), newTasksTransitionsCmd(), newTasksHistoryCmd(),
	)
	return cmd
}

func newTasksListCmd() *cobra.Command {
	var projectID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			tasks, err := a.Workflow.ListTasks(cmd.Context(), workflow.ListTasksFilter{ProjectID: projectID, Status: status})
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
				return nil
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s  %-14s  %-20s  %s\n", "ID", "STATUS", "PR LINK", "TITLE")
			for _, t := range tasks {
				fmt.Fprintf(w, "%-36s  %-14s  %-20s  %s\n", t.ID, t.Status, truncate(t.PRLink, 20), t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "Filter to one project")
	cmd.Flags().StringVar(&status, "status", "", "Filter to one status")
	return cmd
}

func newTasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			t, err := a.Workflow.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTask(cmd, t)
			return nil
		},
	}
}

func newTasksCreateCmd() *cobra.Command {
	var projectID, pipelineID, title, description, assignee string
	var priority int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task at its pipeline's initial status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			t, err := a.Workflow.CreateTask(cmd.Context(), workflow.CreateTaskInput{
				ProjectID: projectID, PipelineID: pipelineID, Title: title,
				Description: description, Priority: priority, Assignee: assignee,
			})
			if err != nil {
				return err
			}
			printTask(cmd, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "Owning project ID (required)")
	cmd.Flags().StringVar(&pipelineID, "pipeline-id", "", "Pipeline ID or taskType (required)")
	cmd.Flags().StringVar(&title, "title", "", "Task title (required)")
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "Assignee")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority")
	_ = cmd.MarkFlagRequired("project-id")
	_ = cmd.MarkFlagRequired("pipeline-id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksUpdateCmd() *cobra.Command {
	var title, description, assignee, prLink, branchName string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update a task's mutable fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			in := workflow.UpdateTaskInput{}
			if cmd.Flags().Changed("title") {
				in.Title = &title
			}
			if cmd.Flags().Changed("description") {
				in.Description = &description
			}
			if cmd.Flags().Changed("assignee") {
				in.Assignee = &assignee
			}
			if cmd.Flags().Changed("pr-link") {
				in.PRLink = &prLink
			}
			if cmd.Flags().Changed("branch") {
				in.BranchName = &branchName
			}
			t, err := a.Workflow.UpdateTask(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			printTask(cmd, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&assignee, "assignee", "", "New assignee")
	cmd.Flags().StringVar(&prLink, "pr-link", "", "New PR link")
	cmd.Flags().StringVar(&branchName, "branch", "", "New branch name")
	return cmd
}

func newTasksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task and clean up its worktree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if err := a.Workflow.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted task %s\n", args[0])
			return nil
		},
	}
}

func newTasksTransitionCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "transition <task-id> <to-status>",
		Short: "Attempt a manual transition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			result, err := a.Workflow.TransitionTask(cmd.Context(), args[0], args[1], actor)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !result.Success {
				fmt.Fprintf(w, "blocked: %s\n", result.Error)
				for _, gf := range result.GuardFailures {
					fmt.Fprintf(w, "  guard %s: %s\n", gf.Guard, gf.Reason)
				}
				return apperr.GuardBlocked("cli.tasks.transition", fmt.Errorf("%s", result.Error))
			}
			fmt.Fprintf(w, "task %s is now %s\n", result.Task.ID, result.Task.Status)
			for _, hf := range result.HookFailures {
				fmt.Fprintf(w, "  hook %s (%s) failed: %s\n", hf.Hook, hf.Policy, hf.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Actor performing the transition")
	return cmd
}

func newTasksTransitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions <task-id>",
		Short: "List the transitions a task may currently take",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			transitions, err := a.Workflow.ListValidTransitions(cmd.Context(), args[0], "")
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(transitions) == 0 {
				fmt.Fprintln(w, "No transitions available from the task's current status.")
				return nil
			}
			for _, t := range transitions {
				fmt.Fprintf(w, "%s -> %s  (trigger=%s", t.From, t.To, t.Trigger)
				if t.AgentOutcome != "" {
					fmt.Fprintf(w, " outcome=%s", t.AgentOutcome)
				}
				fmt.Fprintln(w, ")")
			}
			return nil
		},
	}
}

func newTasksHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show a task's committed transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			history, err := a.Workflow.TaskHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, h := range history {
				fmt.Fprintf(w, "%s  %s -> %s  (%s)\n", h.CreatedAt.Format("2006-01-02T15:04:05"), h.FromStatus, h.ToStatus, h.Trigger)
			}
			return nil
		},
	}
}

func printTask(cmd *cobra.Command, t *store.Task) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "ID:          %s\n", t.ID)
	fmt.Fprintf(w, "Title:       %s\n", t.Title)
	fmt.Fprintf(w, "Status:      %s\n", t.Status)
	fmt.Fprintf(w, "Priority:    %d\n", t.Priority)
	if t.PRLink != "" {
		fmt.Fprintf(w, "PR Link:     %s\n", t.PRLink)
	}
	if t.BranchName != "" {
		fmt.Fprintf(w, "Branch:      %s\n", t.BranchName)
	}
}

func init() {
	rootCmd.AddCommand(newTasksCmd())
}
