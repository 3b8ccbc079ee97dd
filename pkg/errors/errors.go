// Package errors provides the structured error types used across grove.
// Every constructor attaches a stack trace via cockroachdb/errors, and the
// concrete types implement zerolog's ObjectMarshaler so callers get
// structured fields for free when logging.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// UnsupportedModelError reports a model or configuration that cannot be
// represented by the requested forest encoding or parameter combination.
// It is raised before any work has been done; nothing is partially built.
type UnsupportedModelError struct {
	Op     string
	Reason string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("grove: %s: unsupported model: %s", e.Op, e.Reason)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *UnsupportedModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("reason", e.Reason).
		Str("type", "UnsupportedModelError")
}

// NewUnsupportedModelError creates an UnsupportedModelError with a stack trace.
func NewUnsupportedModelError(op, reason string) error {
	err := &UnsupportedModelError{Op: op, Reason: reason}
	return errors.WithStack(err)
}

// NewUnsupportedModelErrorf is the formatted variant of NewUnsupportedModelError.
func NewUnsupportedModelErrorf(op, format string, args ...any) error {
	err := &UnsupportedModelError{Op: op, Reason: fmt.Sprintf(format, args...)}
	return errors.WithStack(err)
}

// DimensionError reports input data whose shape does not match the model.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("grove: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError reports a parameter whose value failed validation.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("grove: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace.
func NewValidationError(param, reason string, value any) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// NotTrainedError reports use of a builder or forest before it was trained
// or constructed.
type NotTrainedError struct {
	Component string
	Method    string
}

func (e *NotTrainedError) Error() string {
	return fmt.Sprintf("grove: %s: not trained yet. Call Fit() before using %s()", e.Component, e.Method)
}

// MarshalZerologObject adds structured error information to a zerolog event.
func (e *NotTrainedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("component", e.Component).
		Str("method", e.Method).
		Str("type", "NotTrainedError")
}

// NewNotTrainedError creates a NotTrainedError with a stack trace.
func NewNotTrainedError(component, method string) error {
	err := &NotTrainedError{Component: component, Method: method}
	return errors.WithStack(err)
}

// cockroachdb/errors wrappers, so callers only import this package.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a format string.
func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error with a stack trace.
func Newf(format string, args ...any) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}
