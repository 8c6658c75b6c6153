package noodm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/noodm/types"
)

// Sentinel errors. Operations wrap them; match with errors.Is.
var (
	// ErrDuplicateID is returned when an inserted _id already exists
	ErrDuplicateID = errors.New("duplicate id")

	// ErrConstraintViolation is returned when a validator rejects a field
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrUniquenessViolation is returned when a unique field value is already taken
	ErrUniquenessViolation = errors.New("uniqueness violation")

	// ErrAdapter wraps failures of the persistence adapter. The in-memory
	// state keeps the mutation that preceded the failure.
	ErrAdapter = errors.New("adapter failure")

	// ErrClosed is returned by operations on a closed database
	ErrClosed = errors.New("database closed")

	// ErrCollectionNotFound is returned for dropped or unknown collections
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidSchema is returned when a schema fails validation
	ErrInvalidSchema = errors.New("invalid schema")
)

// Operation names used in OpError
const (
	OpInsert = "insert"
	OpFind   = "find"
	OpUpdate = "update"
	OpDelete = "delete"
	OpSave   = "save"
	OpRename = "rename"
	OpDrop   = "drop"
)

// OpError describes a failed or prevented operation
type OpError struct {
	Op         string           // insert, find, update, delete
	Collection string           // Collection name
	Field      string           // Offending field, when known
	Payload    []types.Document // Documents the operation was handling
	Err        error            // Underlying cause, usually wrapping a sentinel
}

// Error implements the error interface
func (e *OpError) Error() string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "%s %s", e.Op, e.Collection)
	if e.Field != "" {
		fmt.Fprintf(&msg, " field %s", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&msg, ": %v", e.Err)
	}
	return msg.String()
}

// Unwrap allows error unwrapping
func (e *OpError) Unwrap() error {
	return e.Err
}
