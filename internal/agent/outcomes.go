// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package agent

import "fmt"

// schemaValidators holds the required-payload outcomes of spec.md §6's
// outcome catalog.
var schemaValidators = map[string]func(map[string]any) error{
	"needs_info":        validateNeedsInfo,
	"options_proposed":  validateOptionsProposed,
	"changes_requested": validateChangesRequested,
}

// SignalOnlyOutcomes is the no-payload half of the outcome catalog.
// Unknown outcomes are treated the same way: signal-only, never blocking.
var SignalOnlyOutcomes = map[string]bool{
	"failed": true, "interrupted": true, "no_changes": true,
	"conflicts_detected": true, "plan_complete": true,
	"investigation_complete": true, "pr_ready": true, "approved": true,
	"design_ready": true, "reproduced": true, "cannot_reproduce": true,
}

func validateNeedsInfo(p map[string]any) error {
	v, ok := p["questions"]
	if !ok {
		return fmt.Errorf("needs_info payload requires \"questions\"")
	}
	if _, ok := v.([]any); !ok {
		return fmt.Errorf("needs_info \"questions\" must be an array")
	}
	return nil
}

func validateOptionsProposed(p map[string]any) error {
	if _, ok := p["summary"].(string); !ok {
		return fmt.Errorf("options_proposed payload requires string \"summary\"")
	}
	if _, ok := p["options"]; !ok {
		return fmt.Errorf("options_proposed payload requires \"options\"")
	}
	return nil
}

func validateChangesRequested(p map[string]any) error {
	if _, ok := p["summary"].(string); !ok {
		return fmt.Errorf("changes_requested payload requires string \"summary\"")
	}
	if _, ok := p["comments"].([]any); !ok {
		return fmt.Errorf("changes_requested payload requires array \"comments\"")
	}
	return nil
}

// ValidatePayload checks payload against outcome's schema, if any.
// Unknown and signal-only outcomes always pass (ok=true, payload
// returned as given). A failed validation returns ok=false; callers
// should log a warning event and drop the payload while keeping the
// outcome string itself.
func ValidatePayload(outcome string, payload map[string]any) (ok bool, err error) {
	validate, hasSchema := schemaValidators[outcome]
	if !hasSchema {
		return true, nil
	}
	if verr := validate(payload); verr != nil {
		return false, verr
	}
	return true, nil
}
