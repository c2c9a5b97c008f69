// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start, stop, and inspect agent runs",
	}
	cmd.AddCommand(newAgentStartCmd(), newAgentStopCmd(), newAgentRunsCmd(), newAgentGetCmd(), newAgentCostCmd())
	return cmd
}

func newAgentStartCmd() *cobra.Command {
	var mode, agentType string
	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Start an agent run for a task, streaming its output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			w := cmd.OutOrStdout()
			run, err := a.Workflow.StartAgent(cmd.Context(), args[0], mode, agentType, func(line string) {
				fmt.Fprintln(w, line)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "run %s finished: status=%s outcome=%s exit=%d\n", run.ID, run.Status, run.Outcome, run.ExitCode)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "implement", "Agent mode (e.g. plan, implement)")
	cmd.Flags().StringVar(&agentType, "type", "", "Agent type; defaults to the project's configured agent")
	return cmd
}

func newAgentStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <run-id>",
		Short: "Cancel a running agent run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if err := a.Workflow.StopAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped run %s\n", args[0])
			return nil
		},
	}
}

func newAgentRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs <task-id>",
		Short: "List a task's agent runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			runs, err := a.Workflow.ListAgentRuns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No agent runs found.")
				return nil
			}
			fmt.Fprintf(w, "%-36s  %-10s  %-12s  %-20s  %s\n", "ID", "MODE", "STATUS", "OUTCOME", "STARTED")
			for _, r := range runs {
				fmt.Fprintf(w, "%-36s  %-10s  %-12s  %-20s  %s\n", r.ID, r.Mode, r.Status, r.Outcome, r.StartedAt.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}
}

func newAgentGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show an agent run's details, including captured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			run, err := a.Workflow.GetAgentRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:       %s\n", run.ID)
			fmt.Fprintf(w, "Task:     %s\n", run.TaskID)
			fmt.Fprintf(w, "Mode:     %s\n", run.Mode)
			fmt.Fprintf(w, "Status:   %s\n", run.Status)
			fmt.Fprintf(w, "Outcome:  %s\n", run.Outcome)
			fmt.Fprintf(w, "ExitCode: %d\n", run.ExitCode)
			fmt.Fprintf(w, "Tokens:   in=%d out=%d\n", run.CostInputTokens, run.CostOutputTokens)
			if run.Output != "" {
				fmt.Fprintf(w, "--- output ---\n%s\n", run.Output)
			}
			return nil
		},
	}
}

func newAgentCostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cost <task-id>",
		Short: "Sum token costs across a task's agent runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			cost, err := a.Workflow.TaskAgentCost(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "input tokens:  %d\noutput tokens: %d\n", cost.InputTokens, cost.OutputTokens)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newAgentCmd())
}
