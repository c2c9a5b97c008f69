// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package logger

import (
	"github.com/rs/zerolog"
)

// Static logger getters that map directly to the log.levels config keys
// These ensure consistent logger names across the codebase

// GetWorkflowLogger returns a logger for the workflow service
func GetWorkflowLogger() zerolog.Logger {
	return GetLogger("workflow")
}

// GetPipelineLogger returns a logger for the pipeline engine
func GetPipelineLogger() zerolog.Logger {
	return GetLogger("pipeline")
}

// GetAgentLogger returns a logger for the agent service
func GetAgentLogger() zerolog.Logger {
	return GetLogger("agent")
}

// GetStoreLogger returns a logger for database operations
func GetStoreLogger() zerolog.Logger {
	return GetLogger("store")
}

// GetGitLogger returns a logger for git operations
func GetGitLogger() zerolog.Logger {
	return GetLogger("git")
}

// GetWorktreeLogger returns a logger for worktree management
func GetWorktreeLogger() zerolog.Logger {
	return GetLogger("worktree")
}

// GetTimelineLogger returns a logger for the timeline service
func GetTimelineLogger() zerolog.Logger {
	return GetLogger("timeline")
}

// GetHooksLogger returns a logger for built-in hooks and guards
func GetHooksLogger() zerolog.Logger {
	return GetLogger("hooks")
}

// GetCLILogger returns a logger for the CLI front-end
func GetCLILogger() zerolog.Logger {
	return GetLogger("cli")
}
