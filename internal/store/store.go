// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/logger"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetStoreLogger()
		log = &l
	})
	return log
}

// Store wraps the GORM database connection for every entity in the data
// model.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured sqlite database and returns a Store
// ready for AutoMigrate.
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	if cfg.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(sqlite.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying *gorm.DB for callers that need direct query
// access (pipeline engine transactions, timeline sources).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// AutoMigrate creates or updates every table in the data model and the
// indexes named in the external-interfaces schema.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(
		&Project{},
		&Pipeline{},
		&Task{},
		&TaskDependency{},
		&AgentRun{},
		&TaskPhase{},
		&TransitionHistory{},
		&TaskEvent{},
		&ActivityLog{},
		&TaskArtifact{},
		&PendingPrompt{},
	); err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	indexes := []struct {
		model any
		name  string
		cols  []string
	}{
		{&Task{}, "idx_tasks_project_id", []string{"project_id"}},
		{&Task{}, "idx_tasks_status", []string{"status"}},
		{&Task{}, "idx_tasks_pipeline_id", []string{"pipeline_id"}},
		{&Task{}, "idx_tasks_parent_task_id", []string{"parent_task_id"}},
		{&TaskEvent{}, "idx_task_events_task_created", []string{"task_id", "created_at"}},
		{&TransitionHistory{}, "idx_transition_history_task_created", []string{"task_id", "created_at"}},
		{&AgentRun{}, "idx_agent_runs_task_started", []string{"task_id", "started_at"}},
		{&AgentRun{}, "idx_agent_runs_status", []string{"status"}},
		{&ActivityLog{}, "idx_activity_log_entity", []string{"entity_type", "entity_id"}},
		{&PendingPrompt{}, "idx_pending_prompts_task_status", []string{"task_id", "status"}},
	}

	migrator := s.db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.model, idx.name) {
			continue
		}
		if err := s.db.Exec(buildCreateIndexSQL(idx.name, tableNameOf(idx.model), idx.cols)).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
		getLog().Debug().Str("index", idx.name).Msg("created index")
	}

	return nil
}

func tableNameOf(model any) string {
	type tabler interface{ TableName() string }
	if t, ok := model.(tabler); ok {
		return t.TableName()
	}
	return ""
}

func buildCreateIndexSQL(name, table string, cols []string) string {
	colList := ""
	for i, c := range cols {
		if i > 0 {
			colList += ", "
		}
		colList += c
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", name, table, colList)
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
