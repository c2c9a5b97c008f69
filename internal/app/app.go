// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the composition root: it wires the store, pipeline
// engine, agent service, built-in guards/hooks, workflow façade, and
// timeline service into a single App.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/agentyard/agentyard/internal/agent"
	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/hooks"
	"github.com/agentyard/agentyard/internal/logger"
	"github.com/agentyard/agentyard/internal/pipeline"
	"github.com/agentyard/agentyard/internal/seed"
	"github.com/agentyard/agentyard/internal/store"
	"github.com/agentyard/agentyard/internal/timeline"
	"github.com/agentyard/agentyard/internal/workflow"
)

// setupTracing wires an OTLP/HTTP exporter when OTEL_EXPORTER_OTLP_ENDPOINT
// is set, the same environment-driven activation the teacher leaves to its
// own (unused) otel dependency; a local CLI run with no endpoint configured
// gets the no-op global tracer and pays nothing for the spans workflow.Service
// emits. Returns a shutdown func that is always safe to call.
func setupTracing(ctx context.Context) (func(context.Context) error, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// logNotifier is the default Notifier: it writes every notify hook
// invocation to the cli logger. A real transport (Telegram, etc.) can
// be substituted by passing a different hooks.Notifier to
// hooks.RegisterHooks in New.
type logNotifier struct {
	log zerolog.Logger
}

func (n logNotifier) Notify(ctx context.Context, title, body string) error {
	n.log.Info().Str("title", title).Msg(body)
	return nil
}

// App owns every long-lived service and the database connection backing
// them. Callers obtain one per process (CLI invocation or server) via New.
type App struct {
	Config   *config.AppConfig
	Store    *store.Store
	Engine   *pipeline.Engine
	Agents   *agent.Service
	Workflow *workflow.Service
	Timeline *timeline.Service

	shutdownTracing func(context.Context) error
}

// New loads configuration for projectPath, opens the store, migrates the
// schema, seeds the built-in pipelines, and wires every service. Pass ""
// for projectPath to use only the global configuration tier.
func New(projectPath string) (*App, error) {
	cfg, err := config.NewConfig(projectPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	shutdownTracing, err := setupTracing(context.Background())
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	st, err := store.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if err := st.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	if err := seed.Load(context.Background(), st.DB()); err != nil {
		return nil, fmt.Errorf("seeding pipelines: %w", err)
	}

	db := st.DB()
	engine := pipeline.NewEngine(db)
	registry := agent.NewRegistry()
	agents := agent.NewService(db, engine, registry, cfg)

	hooks.RegisterGuards(engine, db)
	hooks.RegisterHooks(engine, db, cfg, agents, logNotifier{log: logger.GetCLILogger()})

	wf := workflow.New(db, engine, agents, cfg)
	tl := timeline.New(db)

	return &App{
		Config: cfg, Store: st, Engine: engine,
		Agents: agents, Workflow: wf, Timeline: tl,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases every in-flight agent run, flushes any pending trace
// spans, and closes the database.
func (a *App) Close(ctx context.Context) error {
	a.Agents.Shutdown(ctx)
	if a.shutdownTracing != nil {
		_ = a.shutdownTracing(ctx)
	}
	return a.Store.Close()
}
