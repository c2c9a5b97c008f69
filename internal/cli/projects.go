// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/workflow"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage registered projects",
	}
	cmd.AddCommand(newProjectsListCmd(), newProjectsGetCmd(), newProjectsCreateCmd(), newProjectsUpdateCmd(), newProjectsDeleteCmd())
	return cmd
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			projects, err := a.Workflow.ListProjects(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects registered.")
				return nil
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-24s  %-36s  %s\n", "NAME", "ID", "PATH")
			for _, p := range projects {
				fmt.Fprintf(w, "%-24s  %-36s  %s\n", truncate(p.Name, 24), p.ID, p.Path)
			}
			return nil
		},
	}
}

func newProjectsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <project-id>",
		Short: "Show a project's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			p, err := a.Workflow.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printProject(cmd, p)
			return nil
		},
	}
}

func newProjectsCreateCmd() *cobra.Command {
	var name, path, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a local git repository as a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			p, err := a.Workflow.CreateProject(cmd.Context(), workflow.CreateProjectInput{
				Name: name, Path: path, Description: description,
			})
			if err != nil {
				return err
			}
			printProject(cmd, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Project name (required)")
	cmd.Flags().StringVar(&path, "path", "", "Path to the local git repository (required)")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func newProjectsUpdateCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update a project's name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			in := workflow.UpdateProjectInput{}
			if cmd.Flags().Changed("name") {
				in.Name = &name
			}
			if cmd.Flags().Changed("description") {
				in.Description = &description
			}
			p, err := a.Workflow.UpdateProject(cmd.Context(), args[0], in)
			if err != nil {
				return err
			}
			printProject(cmd, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New project name")
	cmd.Flags().StringVar(&description, "description", "", "New project description")
	return cmd
}

func newProjectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if err := a.Workflow.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted project %s\n", args[0])
			return nil
		},
	}
}

func printProject(cmd *cobra.Command, p *store.Project) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "ID:          %s\n", p.ID)
	fmt.Fprintf(w, "Name:        %s\n", p.Name)
	fmt.Fprintf(w, "Path:        %s\n", p.Path)
	fmt.Fprintf(w, "Description: %s\n", p.Description)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func init() {
	rootCmd.AddCommand(newProjectsCmd())
}
