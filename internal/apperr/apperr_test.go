// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentyard/agentyard/internal/apperr"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"internal", apperr.New(apperr.KindInternal, "op", errors.New("x")), 1},
		{"plain error defaults to internal", errors.New("unwrapped"), 1},
		{"invalid args", apperr.InvalidArgsf("op", "bad: %s", "x"), 2},
		{"not found", apperr.NotFoundf("op", "missing %s", "x"), 3},
		{"guard blocked", apperr.GuardBlocked("op", errors.New("x")), 4},
		{"storage", apperr.Storage("op", errors.New("x")), 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, apperr.ExitCodeFor(c.err))
		})
	}
}

func TestNew_NilErrPassesThrough(t *testing.T) {
	assert.Nil(t, apperr.New(apperr.KindStorage, "op", nil))
}

func TestError_UnwrapAndFormat(t *testing.T) {
	inner := errors.New("db is locked")
	err := apperr.Storage("store.open", inner)

	assert.Equal(t, "store.open: db is locked", err.Error())
	assert.True(t, errors.Is(err, inner))

	var wrapped *apperr.Error
	assert.True(t, errors.As(err, &wrapped))
	assert.Equal(t, apperr.KindStorage, wrapped.Kind)
}

func TestError_NoOpOmitsPrefix(t *testing.T) {
	err := apperr.New(apperr.KindInternal, "", fmt.Errorf("bare"))
	assert.Equal(t, "bare", err.Error())
}

func TestKindOf_DefaultsToInternalForForeignErrors(t *testing.T) {
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(errors.New("not ours")))
}
