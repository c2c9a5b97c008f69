// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the thin cobra surface over internal/app's composition
// root (spec.md §6): every subcommand loads an *app.App for the current
// directory, delegates to the workflow or timeline service, and maps
// apperr kinds to process exit codes.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentyard/agentyard/internal/app"
	"github.com/agentyard/agentyard/internal/apperr"
)

const appName = "agentyard"

var flagProjectPath string

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Local orchestrator for AI coding agents operating on git repositories",
	Long: `agentyard drives tasks through configurable pipeline state machines,
spawns AI coding agents in isolated git worktrees, and coordinates the
post-completion git/SCM work (rebase, push, PR creation, merge).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProjectPath, "project", "", "Project directory (defaults to the current directory)")
}

// Execute runs the root command and returns the process exit code of
// spec.md §6: 0 success, 2 invalid args, 3 not found, 4 guard/validation
// blocked, 5 DB error, 1 anything else.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return apperr.ExitCodeFor(err)
	}
	return 0
}

// newApp builds the composition root for one command invocation, using
// the --project flag (if set) as the project-config overlay tier.
// Task and agent state live in the single global store regardless: a
// project's local path is resolved from its own database row, not from
// the process's current working directory.
func newApp() (*app.App, error) {
	return app.New(flagProjectPath)
}
