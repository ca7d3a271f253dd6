package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Handlers map kinds to status codes.
type ErrorKind string

const (
	KindMalformedPayload   ErrorKind = "malformed_payload"
	KindSchemaViolation    ErrorKind = "schema_violation"
	KindInvalidGeometry    ErrorKind = "invalid_geometry"
	KindPersistenceFailure ErrorKind = "persistence_failure"
	KindDispatchFailure    ErrorKind = "dispatch_failure"
)

// Permanent reports whether redelivering the same payload can never succeed.
func (k ErrorKind) Permanent() bool {
	switch k {
	case KindMalformedPayload, KindSchemaViolation, KindInvalidGeometry:
		return true
	}
	return false
}

// PipelineError carries the kind of failure and, for validation errors, the
// offending field path (e.g. "event.location.coordinates").
type PipelineError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *PipelineError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	return string(e.Kind)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Detail is the human readable reason returned to the caller.
func (e *PipelineError) Detail() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Field
}

// NewError builds a PipelineError.
func NewError(kind ErrorKind, field string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Field: field, Err: err}
}

// KindOf returns the kind of the first PipelineError in err's chain, or ""
// when there is none.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
