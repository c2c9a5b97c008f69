// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// configDirName is searched for both globally under the user's home
// directory and per-project, each holding a config.json overlay.
const configDirName = ".agentyard"

// AppConfig holds all application configuration.
// It is instantiated by NewConfig() and passed to components that need it (dependency injection).
type AppConfig struct {
	Database            DatabaseConfig         `mapstructure:"database"`
	Log                 LogConfig              `mapstructure:"log"`
	Git                 GitConfig              `mapstructure:"git"`
	Agent               AgentDefaultsConfig    `mapstructure:"agent_defaults"`
	Agents              map[string]AgentConfig `mapstructure:"agents"`
	AutoRun             map[string]bool        `mapstructure:"auto_run"`
	Checks              ChecksConfig           `mapstructure:"checks"`
	Telegram            TelegramConfig         `mapstructure:"telegram"`
	DefaultPipeline     string                 `mapstructure:"default_pipeline"`
	AgentTimeout        time.Duration          `mapstructure:"agent_timeout"`
	MaxConcurrentAgents int                    `mapstructure:"max_concurrent_agents"`
	DefaultBranch       string                 `mapstructure:"default_branch"`
	WorktreesPath       string                 `mapstructure:"worktrees_path"`
	DefaultAgentType    string                 `mapstructure:"default_agent_type"`
	PullMainAfterMerge  bool                   `mapstructure:"pull_main_after_merge"`
}

// DatabaseConfig holds database configuration. The spec requires an
// embedded relational store, so sqlite is the only supported driver.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	WAL    bool   `mapstructure:"wal"`
}

// LogConfig holds comprehensive logging configuration.
type LogConfig struct {
	Level    string            `mapstructure:"level"`
	Format   string            `mapstructure:"format"`
	Dir      string            `mapstructure:"dir"` // Deprecated, kept for backward compatibility
	Output   []LogOutputConfig `mapstructure:"output"`
	Levels   map[string]string `mapstructure:"levels"`
	Context  LogContextConfig  `mapstructure:"context"`
	Sampling LogSamplingConfig `mapstructure:"sampling"`
}

// LogOutputConfig defines where logs are written.
type LogOutputConfig struct {
	Type    string          `mapstructure:"type"` // "file", "console"
	Enabled bool            `mapstructure:"enabled"`
	Path    string          `mapstructure:"path"`   // For file output
	Rotate  LogRotateConfig `mapstructure:"rotate"` // For file output
}

// LogRotateConfig defines log rotation settings.
type LogRotateConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// LogContextConfig defines what context to include in logs.
type LogContextConfig struct {
	IncludeCaller     bool   `mapstructure:"include_caller"`
	IncludeTimestamp  bool   `mapstructure:"include_timestamp"`
	IncludeLevel      bool   `mapstructure:"include_level"`
	IncludeStackTrace string `mapstructure:"include_stack_trace"` // Level at which to include stack trace
}

// LogSamplingConfig defines log sampling settings.
type LogSamplingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Initial    uint32        `mapstructure:"initial"`
	Thereafter uint32        `mapstructure:"thereafter"`
	Tick       time.Duration `mapstructure:"tick"`
}

// GitConfig holds git/SCM-related configuration.
type GitConfig struct {
	BranchPrefix string `mapstructure:"branch_prefix"`
	PRDraft      bool   `mapstructure:"pr_draft"`
	PRTemplate   string `mapstructure:"pr_template"`
}

// AgentDefaultsConfig holds default AI agent configuration for task processing.
// Resolved by precedence globals < project.config < agent-definition overrides.
type AgentDefaultsConfig struct {
	Model   string        `mapstructure:"model"`
	MaxTurns int          `mapstructure:"max_turns"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AgentConfig holds per-agent-type overrides keyed by agent type
// (e.g. "claude-code", "scripted").
type AgentConfig struct {
	Model    string        `mapstructure:"model"`
	MaxTurns int           `mapstructure:"max_turns"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ChecksConfig names post-agent verification commands (build, lint,
// test). It is decoded from configuration only; nothing in this module
// runs these commands.
type ChecksConfig struct {
	Build string `mapstructure:"build"`
	Lint  string `mapstructure:"lint"`
	Test  string `mapstructure:"test"`
}

// TelegramConfig holds the optional notify-hook transport settings.
// Non-goal: the actual OS/Telegram notification transport is out of
// scope; this struct only carries the settings. The notify hook does not
// read them: it hands title and body to whatever Notifier is registered.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// NewConfig builds an AppConfig from built-in defaults overlaid by the
// global config at ~/.agentyard/config.json and then the project config
// at <projectPath>/.agentyard/config.json, in that precedence order
// (later wins).
func NewConfig(projectPath string) (*AppConfig, error) {
	cfg := defaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}

	merged := viper.New()
	merged.SetConfigType("json")

	if home != "" {
		if err := mergeConfigFile(merged, filepath.Join(home, configDirName, "config.json")); err != nil {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(merged, filepath.Join(projectPath, configDirName, "config.json")); err != nil {
			return nil, fmt.Errorf("failed to read project config: %w", err)
		}
	}

	if err := merged.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.expandPaths()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// mergeConfigFile merges path into v if it exists; a missing file is not
// an error since both tiers are optional overlays on the built-in defaults.
func mergeConfigFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	tier := viper.New()
	tier.SetConfigFile(path)
	tier.SetConfigType("json")
	if err := tier.ReadInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	return v.MergeConfigMap(tier.AllSettings())
}

// defaultConfig returns an AppConfig with default values.
// This is more type-safe than using viper.SetDefault().
func defaultConfig() AppConfig {
	return AppConfig{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./agentyard.db",
			WAL:    true,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "console",
			Dir:    "./logs", // Backward compatibility
			Output: []LogOutputConfig{
				{
					Type:    "file",
					Enabled: true,
					Path:    "./logs/agentyard.log",
					Rotate: LogRotateConfig{
						MaxSizeMB:  100,
						MaxBackups: 7,
						MaxAgeDays: 30,
						Compress:   true,
					},
				},
				{
					Type:    "console",
					Enabled: false,
				},
			},
			Levels: map[string]string{
				"workflow": "INFO",
				"pipeline": "INFO",
				"agent":    "INFO",
				"store":    "INFO",
				"git":      "INFO",
				"worktree": "INFO",
				"timeline": "INFO",
				"hooks":    "INFO",
				"cli":      "INFO",
			},
			Context: LogContextConfig{
				IncludeCaller:     true,
				IncludeTimestamp:  true,
				IncludeLevel:      true,
				IncludeStackTrace: "ERROR",
			},
			Sampling: LogSamplingConfig{
				Enabled:    false,
				Initial:    100,
				Thereafter: 100,
				Tick:       time.Second,
			},
		},
		Git: GitConfig{
			BranchPrefix: "task",
			PRDraft:      false,
			PRTemplate:   "",
		},
		Agent: AgentDefaultsConfig{
			Model:    "claude-sonnet-4-5",
			MaxTurns: 0,
			Timeout:  30 * time.Minute,
		},
		Agents: map[string]AgentConfig{},
		AutoRun: map[string]bool{
			"queued": true,
		},
		Checks: ChecksConfig{},
		Telegram: TelegramConfig{},

		DefaultPipeline:     "simple",
		AgentTimeout:        30 * time.Minute,
		MaxConcurrentAgents: 0, // 0 = unbounded
		DefaultBranch:       "main",
		WorktreesPath:       ".agent-worktrees",
		DefaultAgentType:    "claude-code",
		PullMainAfterMerge:  false,
	}
}

// expandPaths expands ~ and environment variables in path configuration values.
func (c *AppConfig) expandPaths() {
	if c.Database.Path != "" {
		c.Database.Path = expandPath(c.Database.Path)
	}
	if c.WorktreesPath != "" {
		c.WorktreesPath = expandPath(c.WorktreesPath)
	}
}

// expandPath expands ~ to home directory and environment variables.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// validate checks if the configuration is valid.
func (c *AppConfig) validate() error {
	if c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	validLogLevels := map[string]bool{
		"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true, "PANIC": true,
	}
	if !validLogLevels[strings.ToUpper(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	if c.MaxConcurrentAgents < 0 {
		return errors.New("max_concurrent_agents must be >= 0")
	}

	if c.DefaultAgentType == "" {
		return errors.New("default_agent_type is required")
	}

	if c.WorktreesPath == "" {
		return errors.New("worktrees_path is required")
	}

	return nil
}

// GetDSN returns the sqlite connection string, special-casing in-memory
// databases used by tests.
func (dc *DatabaseConfig) GetDSN() string {
	dsn := dc.Path
	if dsn == ":memory:" {
		return "file::memory:?cache=shared"
	}
	if dc.WAL {
		return dsn + "?_journal_mode=WAL&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}
