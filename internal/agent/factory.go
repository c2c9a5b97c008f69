// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import "fmt"

// Registry resolves an agent type string to its Implementation.
type Registry struct {
	impls map[string]Implementation
}

// NewRegistry returns a Registry seeded with the built-in implementations.
func NewRegistry() *Registry {
	r := &Registry{impls: make(map[string]Implementation)}
	r.Register(NewClaudeImplementation())
	r.Register(NewScriptedImplementation())
	return r
}

// Register adds or replaces the implementation for its own Type().
func (r *Registry) Register(impl Implementation) {
	r.impls[impl.Type()] = impl
}

// Get resolves agentType to its Implementation.
func (r *Registry) Get(agentType string) (Implementation, error) {
	impl, ok := r.impls[agentType]
	if !ok {
		return nil, fmt.Errorf("unsupported agent type: %s (registered: %v)", agentType, r.types())
	}
	return impl, nil
}

func (r *Registry) types() []string {
	out := make([]string, 0, len(r.impls))
	for t := range r.impls {
		out = append(out, t)
	}
	return out
}
