package analysis

import (
	"errors"
	"fmt"

	"github.com/jengzang/respatch/internal/logging"
)

// ErrEmptyResult marks a stage that had too few rows to compute its output.
// Stages report it through their result instead of failing.
var ErrEmptyResult = errors.New("insufficient rows for result")

// SchemaError is a fatal input problem detected before any computation
type SchemaError struct {
	Stage  string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: schema error: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("%s: schema error on %s: %s", e.Stage, e.Field, e.Reason)
}

// NewSchemaError builds a SchemaError
func NewSchemaError(stage, field, reason string) *SchemaError {
	return &SchemaError{Stage: stage, Field: field, Reason: reason}
}

// InvariantViolation is a failed post-stage assertion. It signals a bug in
// the pipeline, not bad input.
type InvariantViolation struct {
	Stage  string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Stage, e.Detail)
}

// IsSchemaError reports whether err wraps a SchemaError
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsInvariantViolation reports whether err wraps an InvariantViolation
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// WarnOrdering logs the recoverable condition of unsorted input. The
// caller re-sorts and carries on.
func WarnOrdering(stage string, rows int) {
	logger := logging.With(stage)
	logger.Warn().Int("rows", rows).Msg("input not ordered by time, re-sorting")
}
