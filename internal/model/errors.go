package model

import (
	"errors"
	"fmt"
)

// ErrNotImplemented marks an operation reserved as a future extension point.
var ErrNotImplemented = errors.New("not implemented")

// ErrNoRoleResolver is returned by User.GetRoles when no RBAC backend has
// been attached to the record.
var ErrNoRoleResolver = errors.New("no rbac backend configured")

// ValidationError reports a missing required field or a malformed enumerated
// value, detected at construction time. Invalid input is never coerced or
// dropped silently.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Reason)
}

func missingField(name string) *ValidationError {
	return &ValidationError{Field: name, Reason: "required field is missing or empty"}
}
