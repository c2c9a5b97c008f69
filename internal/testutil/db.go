// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package testutil provides the in-memory store used across this
// module's package tests, mirroring the teacher's convention of a
// special-cased ":memory:" DSN for fast, isolated test databases.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/store"
)

// OpenDB returns a fresh, migrated in-memory sqlite database for a
// single test. Each call gets its own isolated schema.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	st, err := store.Open(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:", WAL: false})
	require.NoError(t, err)
	require.NoError(t, st.AutoMigrate())
	t.Cleanup(func() { _ = st.Close() })
	return st.DB()
}
