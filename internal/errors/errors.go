// Package errors provides sentinel errors and structured error types for the
// meteorcrawler CLI.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for known conditions.
var (
	// ErrConfig indicates missing or invalid configuration.
	ErrConfig = errors.New("configuration error")

	// ErrValidation indicates a configuration value failed schema validation.
	ErrValidation = errors.New("validation error")

	// ErrConnectivity indicates an upstream or registry service could not be reached.
	ErrConnectivity = errors.New("connectivity error")

	// ErrNotWritable indicates that durable state cannot be written.
	ErrNotWritable = errors.New("not writable")

	// ErrNotFound indicates a repository, branch, or file was not found.
	ErrNotFound = errors.New("not found")
)

// DetailError captures structured error information for terminal display.
type DetailError struct {
	// Type is the error category (required).
	Type string

	// Message is the specific description (required).
	Message string

	// Location is a file path, when the error relates to one (optional).
	Location string

	// Context contains additional key-value context (optional).
	Context map[string]string

	// Hint provides actionable guidance (optional).
	Hint string

	// Cause is the underlying error (optional).
	Cause error
}

// Error implements the error interface.
func (e *DetailError) Error() string {
	var b strings.Builder

	b.WriteString("Error: ")
	b.WriteString(e.Type)
	b.WriteString("\n")

	if e.Location != "" {
		b.WriteString("  Location: ")
		b.WriteString(e.Location)
		b.WriteString("\n")
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("  ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(e.Context[k])
		b.WriteString("\n")
	}

	b.WriteString("\n  ")
	b.WriteString(e.Message)
	b.WriteString("\n")

	if e.Hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(e.Hint)
		b.WriteString("\n")
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *DetailError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a configuration error listing the offending fields.
func NewConfigError(message string, fields []string, hint string) error {
	ctx := map[string]string{}
	if len(fields) > 0 {
		ctx["Fields"] = strings.Join(fields, ", ")
	}
	return &DetailError{
		Type:    "configuration invalid",
		Message: message,
		Context: ctx,
		Hint:    hint,
		Cause:   ErrConfig,
	}
}

// NewValidationError creates a schema validation error with details.
func NewValidationError(message, location, hint string) error {
	return &DetailError{
		Type:     "validation failed",
		Message:  message,
		Location: location,
		Hint:     hint,
		Cause:    ErrValidation,
	}
}

// NewConnectivityError creates a connectivity error with details.
func NewConnectivityError(message string, context map[string]string, cause error) error {
	return &DetailError{
		Type:    "connectivity failed",
		Message: message,
		Context: context,
		Cause:   errors.Join(ErrConnectivity, cause),
	}
}

// NewNotWritableError creates an error for a state directory that cannot be written.
func NewNotWritableError(location string, cause error) error {
	return &DetailError{
		Type:     "state directory not writable",
		Message:  cause.Error(),
		Location: location,
		Hint:     "Set queue.dir (env: METEORCRAWLER_DIR) to a writable directory.",
		Cause:    ErrNotWritable,
	}
}

// Wrap wraps an error with a sentinel error type.
func Wrap(sentinel error, message string) error {
	return fmt.Errorf("%s: %w", message, sentinel)
}

// ExitError wraps an error with a process exit code.
type ExitError struct {
	// Code is the exit code to use.
	Code int

	// Err is the underlying error.
	Err error

	// Printed indicates the error has already been reported to the user.
	Printed bool
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}
