// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dashboard stats for a project: task counts by status and running agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			stats, err := a.Workflow.GetDashboardStats(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Total tasks:    %d\n", stats.TotalTasks)
			fmt.Fprintf(w, "Running agents: %d\n", stats.RunningAgents)
			if len(stats.ByStatus) == 0 {
				return nil
			}
			fmt.Fprintln(w, "By status:")
			statuses := make([]string, 0, len(stats.ByStatus))
			for s := range stats.ByStatus {
				statuses = append(statuses, s)
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(w, "  %-16s %d\n", s, stats.ByStatus[s])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID (required)")
	_ = cmd.MarkFlagRequired("project-id")
	return cmd
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}
