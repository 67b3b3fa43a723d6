package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors
	ErrUnknownFunction  = errors.New("unknown function")
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidSpec      = errors.New("invalid specification")

	// Resolution errors
	ErrMissingColumns = errors.New("required columns not found")

	// Reference condition errors
	ErrReferenceCondition = errors.New("reference condition unavailable")

	// Soft: partitions with too few rows are dropped, never returned to callers
	ErrInsufficientData = errors.New("insufficient data for analysis")
)

// MissingColumnsError reports the complete set of columns no layer could provide.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumns, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

// NewMissingColumnsError builds a MissingColumnsError with sorted column names.
func NewMissingColumnsError(columns []string) error {
	cols := append([]string(nil), columns...)
	sort.Strings(cols)
	return &MissingColumnsError{Columns: cols}
}

// UnknownFunctionError is returned when a function identifier is not registered.
type UnknownFunctionError struct {
	Kind string // "redundant" or "computed"
	Name string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("%s: %s function %q is not registered", ErrUnknownFunction, e.Kind, e.Name)
}

func (e *UnknownFunctionError) Unwrap() error { return ErrUnknownFunction }

// MissingParameterError names the input columns and float parameters a
// transformation needed but did not receive.
type MissingParameterError struct {
	Function string
	Columns  []string
	Params   []string
}

func (e *MissingParameterError) Error() string {
	var parts []string
	if len(e.Columns) > 0 {
		parts = append(parts, "columns ["+strings.Join(e.Columns, ", ")+"]")
	}
	if len(e.Params) > 0 {
		parts = append(parts, "parameters ["+strings.Join(e.Params, ", ")+"]")
	}
	return fmt.Sprintf("%s: %s requires %s", ErrMissingParameter, e.Function, strings.Join(parts, " and "))
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// Error constructors with context
func NewReferenceConditionError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrReferenceCondition, fmt.Sprintf(format, args...))
}

func NewInvalidSpecError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidSpec, field, reason)
}

// Error checking helpers

// IsConfigurationError reports errors caused by a defective study configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownFunction) ||
		errors.Is(err, ErrMissingParameter) ||
		errors.Is(err, ErrInvalidSpec)
}

func IsResolutionError(err error) bool {
	return errors.Is(err, ErrMissingColumns)
}

func IsReferenceConditionError(err error) bool {
	return errors.Is(err, ErrReferenceCondition)
}
