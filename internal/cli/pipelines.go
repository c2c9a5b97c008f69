// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentyard/agentyard/internal/apperr"
	"github.com/agentyard/agentyard/internal/store"
)

func newPipelinesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines",
		Short: "Inspect and exchange pipeline definitions",
	}
	cmd.AddCommand(
		newPipelinesListCmd(), newPipelinesGetCmd(), newPipelinesGraphCmd(),
		newPipelinesExportCmd(), newPipelinesImportCmd(),
	)
	return cmd
}

func newPipelinesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			pipelines, err := a.Workflow.ListPipelines(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-36s  %-14s  %s\n", "ID", "TASK TYPE", "NAME")
			for _, p := range pipelines {
				fmt.Fprintf(w, "%-36s  %-14s  %s\n", p.ID, p.TaskType, p.Name)
			}
			return nil
		},
	}
}

func newPipelinesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id-or-task-type>",
		Short: "Show a pipeline's statuses and transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			p, err := a.Workflow.GetPipeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPipelineGraph(cmd, p)
			return nil
		},
	}
}

func newPipelinesGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph <id-or-task-type>",
		Short: "Print a pipeline's transition graph as from -> to edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			p, err := a.Workflow.GetPipeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, t := range p.Transitions.Value {
				label := t.Label
				if label == "" {
					label = string(t.Trigger)
				}
				fmt.Fprintf(w, "%s -> %s  [%s]\n", t.From, t.To, label)
			}
			return nil
		},
	}
}

func newPipelinesExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <id-or-task-type>",
		Short: "Print a pipeline as portable JSON (spec.md §6)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			p, err := a.Workflow.GetPipeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			doc, err := json.MarshalIndent(pipelineDocument(p), "", "  ")
			if err != nil {
				return apperr.New(apperr.KindInternal, "cli.pipelines.export", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return nil
		},
	}
}

func newPipelinesImportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create or update a pipeline from a JSON document (spec.md §6)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(path)
			if err != nil {
				return apperr.InvalidArgsf("cli.pipelines.import", "reading %s: %v", path, err)
			}
			var doc pipelineJSON
			if err := json.Unmarshal(raw, &doc); err != nil {
				return apperr.InvalidArgsf("cli.pipelines.import", "parsing %s: %v", path, err)
			}
			if doc.TaskType == "" {
				return apperr.InvalidArgsf("cli.pipelines.import", "document is missing taskType")
			}

			p := &store.Pipeline{ID: doc.ID, Name: doc.Name, TaskType: doc.TaskType}
			p.Statuses.Value = doc.Statuses
			p.Transitions.Value = doc.Transitions

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			saved, err := a.Workflow.ImportPipeline(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported pipeline %s (taskType=%s)\n", saved.ID, saved.TaskType)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Path to the pipeline JSON document (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// pipelineJSON mirrors the portable pipeline document of spec.md §6,
// used for both export and import.
type pipelineJSON struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	TaskType    string                 `json:"taskType"`
	Statuses    []store.PipelineStatus `json:"statuses"`
	Transitions []store.Transition     `json:"transitions"`
}

func pipelineDocument(p *store.Pipeline) pipelineJSON {
	return pipelineJSON{
		ID: p.ID, Name: p.Name, TaskType: p.TaskType,
		Statuses: p.Statuses.Value, Transitions: p.Transitions.Value,
	}
}

func printPipelineGraph(cmd *cobra.Command, p *store.Pipeline) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "ID:       %s\n", p.ID)
	fmt.Fprintf(w, "Name:     %s\n", p.Name)
	fmt.Fprintf(w, "TaskType: %s\n", p.TaskType)
	fmt.Fprintln(w, "Statuses:")
	for _, s := range p.Statuses.Value {
		final := ""
		if s.IsFinal {
			final = " (final)"
		}
		fmt.Fprintf(w, "  %s — %s%s\n", s.Name, s.Label, final)
	}
	fmt.Fprintln(w, "Transitions:")
	for _, t := range p.Transitions.Value {
		fmt.Fprintf(w, "  %s -> %s  trigger=%s", t.From, t.To, t.Trigger)
		if t.AgentOutcome != "" {
			fmt.Fprintf(w, " outcome=%s", t.AgentOutcome)
		}
		fmt.Fprintln(w)
	}
}

func init() {
	rootCmd.AddCommand(newPipelinesCmd())
}
