// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentyard/agentyard/internal/apperr"
)

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "List, inspect, and respond to pending human-in-the-loop prompts",
	}
	cmd.AddCommand(newPromptsListCmd(), newPromptsGetCmd(), newPromptsRespondCmd())
	return cmd
}

func newPromptsListCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending prompts, optionally narrowed to one task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			prompts, err := a.Workflow.ListPrompts(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(prompts) == 0 {
				fmt.Fprintln(w, "No pending prompts.")
				return nil
			}
			fmt.Fprintf(w, "%-36s  %-36s  %-14s  %s\n", "ID", "TASK", "TYPE", "CREATED")
			for _, p := range prompts {
				fmt.Fprintf(w, "%-36s  %-36s  %-14s  %s\n", p.ID, p.TaskID, p.PromptType, p.CreatedAt.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Filter to one task")
	return cmd
}

func newPromptsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <prompt-id>",
		Short: "Show a prompt's payload and (if answered) response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			p, err := a.Workflow.GetPrompt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:     %s\n", p.ID)
			fmt.Fprintf(w, "Task:   %s\n", p.TaskID)
			fmt.Fprintf(w, "Type:   %s\n", p.PromptType)
			fmt.Fprintf(w, "Status: %s\n", p.Status)
			payload, _ := json.MarshalIndent(p.Payload.Value, "", "  ")
			fmt.Fprintf(w, "Payload:\n%s\n", payload)
			if p.Status == "answered" {
				response, _ := json.MarshalIndent(p.Response.Value, "", "  ")
				fmt.Fprintf(w, "Response:\n%s\n", response)
			}
			return nil
		},
	}
}

func newPromptsRespondCmd() *cobra.Command {
	var responseJSON string
	cmd := &cobra.Command{
		Use:   "respond <prompt-id>",
		Short: "Answer a pending prompt with a JSON response object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var response map[string]any
			if responseJSON != "" {
				if err := json.Unmarshal([]byte(responseJSON), &response); err != nil {
					return apperr.InvalidArgsf("cli.prompts.respond", "invalid --response JSON: %v", err)
				}
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			p, err := a.Workflow.RespondToPrompt(cmd.Context(), args[0], response)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "prompt %s is now %s\n", p.ID, p.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&responseJSON, "response", "{}", "Response payload as a JSON object")
	return cmd
}

func init() {
	rootCmd.AddCommand(newPromptsCmd())
}
