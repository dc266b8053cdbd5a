package domain

import (
	"fmt"
	"strings"
)

// MissingCodesError reports every requested test code absent from the price
// catalog, not just the first. Pricing never returns a partial breakdown.
type MissingCodesError struct {
	Codes []string
}

func (e *MissingCodesError) Error() string {
	return fmt.Sprintf("codes not found in catalog: %s", strings.Join(e.Codes, ", "))
}

// InvalidTransitionError means a lifecycle guard rejected the action. The
// order keeps its prior status.
type InvalidTransitionError struct {
	From   Status
	Action Action
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s order in status %q: %s", e.Action, e.From, e.Reason)
	}
	return fmt.Sprintf("cannot %s order in status %q", e.Action, e.From)
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries per-field failures for malformed order details.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid order details: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}
