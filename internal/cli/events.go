// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect a task's append-only event log",
	}
	cmd.AddCommand(newEventsListCmd())
	return cmd
}

func newEventsListCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a task's events, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			events, err := a.Workflow.ListEvents(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(w, "No events found.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(w, "%s  [%s/%s]  %s\n", e.CreatedAt.Format("2006-01-02T15:04:05"), e.Category, e.Severity, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task ID (required)")
	_ = cmd.MarkFlagRequired("task-id")
	return cmd
}

func init() {
	rootCmd.AddCommand(newEventsCmd())
}
