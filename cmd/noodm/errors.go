package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/noodm/noodm"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "insert", "find")
	Cause       string   // The underlying cause (e.g., "collection not found")
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		fmt.Fprintf(&msg, "Failed to %s", e.Operation)
	} else {
		msg.WriteString("Operation failed")
	}
	if e.Cause != "" {
		fmt.Fprintf(&msg, ": %s", e.Cause)
	}
	if e.Details != "" {
		fmt.Fprintf(&msg, " (%s)", e.Details)
	}

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			fmt.Fprintf(&msg, "\n  %d. %s", i+1, suggestion)
		}
	}

	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewValidationError creates an error for invalid arguments
func NewValidationError(operation, field, value string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("invalid %s: %q", field, value),
		Suggestions: suggestions,
	}
}

// NewNotFoundError creates an error for missing resources
func NewNotFoundError(operation, resource, name string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("%s %q not found", resource, name),
		Suggestions: suggestions,
	}
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// NewStoreError creates an error for database failures, describing the
// sentinel the error wraps
func NewStoreError(operation string, underlying error, suggestions ...string) *CLIError {
	cause := "database operation failed"
	details := ""
	var extra []string

	if underlying != nil {
		details = underlying.Error()

		switch {
		case errors.Is(underlying, noodm.ErrCollectionNotFound):
			cause = "collection not found"
			extra = append(extra, CommonSuggestions.ListCollections)
		case errors.Is(underlying, noodm.ErrUniquenessViolation):
			cause = "a unique field value is already taken"
			extra = append(extra, CommonSuggestions.CheckUnique)
		case errors.Is(underlying, noodm.ErrConstraintViolation):
			cause = "a document breaks the collection rules"
			extra = append(extra, CommonSuggestions.CheckSchema)
		case errors.Is(underlying, noodm.ErrDuplicateID):
			cause = "a document with this id already exists"
		case errors.Is(underlying, noodm.ErrInvalidSchema):
			cause = "invalid schema"
			extra = append(extra, CommonSuggestions.CheckSchema)
		case errors.Is(underlying, noodm.ErrAdapter):
			cause = "the database could not be read or written"
			extra = append(extra, CommonSuggestions.CheckDB, CommonSuggestions.CheckPerms)
		case errors.Is(underlying, noodm.ErrClosed):
			cause = "database closed"
		}

		var opErr *noodm.OpError
		if errors.As(underlying, &opErr) && opErr.Field != "" {
			cause = fmt.Sprintf("%s (field %s)", cause, opErr.Field)
		}
	}

	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     details,
		Suggestions: append(suggestions, extra...),
		Underlying:  underlying,
	}
}

// WrapError wraps an existing error with CLI-friendly context
func WrapError(operation string, err error, suggestions ...string) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		if cliErr.Operation == "" {
			cliErr.Operation = operation
		}
		return cliErr
	}

	return NewStoreError(operation, err, suggestions...)
}

// CommonSuggestions are the hints shared by several commands
var CommonSuggestions = struct {
	CheckDB         string
	CheckConfig     string
	CheckPerms      string
	CheckSchema     string
	CheckUnique     string
	CheckWhere      string
	ListCollections string
	TryDryRun       string
}{
	CheckDB:         "Verify --db points to a valid database and --backend matches it",
	CheckConfig:     "Check noodm.yaml or the NOODM_* environment variables",
	CheckPerms:      "Check file permissions and that no other process holds the database lock",
	CheckSchema:     "Check the field rules in the file passed with --schema",
	CheckUnique:     "Find the document holding the value with 'noodm find <collection> --where field=value'",
	CheckWhere:      "Use field=value, field!=value, field>value, field>=value, field<value or field<=value",
	ListCollections: "Run 'noodm collections' to list existing collections",
	TryDryRun:       "Use --dry-run to preview the operation",
}
