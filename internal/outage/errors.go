package outage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ioms/backend/internal/model"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrSoleApproverConflict   = errors.New("creator is the only key user of the application and cannot approve their own outage")
	ErrConflictDetected       = errors.New("outage window conflicts with existing outages")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrConcurrentModification = errors.New("outage was modified concurrently")
)

// ValidationError lists invalid fields by name.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports an event that is not allowed from the current status.
type TransitionError struct {
	From  model.OutageStatus
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s outage in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidStateTransition }

// ConflictError is returned under the blocking policy and carries the full check result.
type ConflictError struct {
	Result *ConflictResult
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (%d conflicts)", ErrConflictDetected, len(e.Result.Conflicts))
}

func (e *ConflictError) Unwrap() error { return ErrConflictDetected }
