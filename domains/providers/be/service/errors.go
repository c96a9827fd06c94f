package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by registry lookups for unknown unique names.
var ErrNotFound = errors.New("provider not found")

// ValidationError reports a missing or malformed request field. It is raised
// before any side effect, so callers can safely retry with corrected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// ConflictError reports that a provider with the same unique name already
// exists in the registry. The registry raises it atomically on insert, which
// closes the race left open by the advisory exists check.
type ConflictError struct {
	UniqueName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("provider %q already exists", e.UniqueName)
}
