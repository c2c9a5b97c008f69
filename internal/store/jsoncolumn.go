// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSONColumn stores an arbitrary JSON-serializable value in a text column.
// It generalizes the exec-history Scan/Value idiom to any payload shape so
// every JSON-valued column (config, statuses, transitions, tags, phases,
// metadata, guardResults, data, payload) shares one implementation.
type JSONColumn[T any] struct {
	Value T
}

// NewJSONColumn wraps v for storage.
func NewJSONColumn[T any](v T) JSONColumn[T] {
	return JSONColumn[T]{Value: v}
}

// Scan implements the sql.Scanner interface.
func (c *JSONColumn[T]) Scan(value any) error {
	if value == nil {
		var zero T
		c.Value = zero
		return nil
	}

	switch v := value.(type) {
	case []byte:
		if len(v) == 0 {
			var zero T
			c.Value = zero
			return nil
		}
		return json.Unmarshal(v, &c.Value)
	case string:
		if v == "" {
			var zero T
			c.Value = zero
			return nil
		}
		return json.Unmarshal([]byte(v), &c.Value)
	default:
		return errors.New("store: cannot scan JSONColumn from non-string/[]byte value")
	}
}

// Value implements the driver.Valuer interface.
func (c JSONColumn[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(c.Value)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// MarshalJSON delegates to the wrapped value so JSONColumn is transparent
// to API-layer encoding.
func (c JSONColumn[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value)
}

// UnmarshalJSON delegates to the wrapped value.
func (c *JSONColumn[T]) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &c.Value)
}
