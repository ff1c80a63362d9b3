// Package core provides the Engram client, configuration, and error taxonomy.
package core

import (
	"errors"
	"fmt"
)

// Sentinel base errors. Config.Validate and NewClient return ErrInvalidConfig
// (wrapped with %w); the storage backends report the storage package's own
// sentinels instead. Either way the cause sits inside EngramError so callers
// can still errors.Is/errors.As past the Op/Kind wrapper down to it.
var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("engram: not found")

	// ErrVersionConflict indicates a PatchWorkingState call's expectedVersion
	// did not match the current stored version.
	ErrVersionConflict = errors.New("engram: working state version conflict")

	// ErrDuplicateEvent indicates an AppendEvent call collided on event_id.
	ErrDuplicateEvent = errors.New("engram: duplicate event")

	// ErrInvalidConfig indicates Config.Validate rejected the configuration
	// before any I/O was attempted.
	ErrInvalidConfig = errors.New("engram: invalid configuration")
)

// Kind classifies an EngramError per spec §7's taxonomy, so callers can
// branch on failure category without string-matching Error().
type Kind string

const (
	KindStorageConnection            Kind = "storage_connection"
	KindStorageQuery                 Kind = "storage_query"
	KindStorageDuplicate             Kind = "storage_duplicate"
	KindStorageNotFound              Kind = "storage_not_found"
	KindStorageVersionConflict       Kind = "storage_version_conflict"
	KindPolicyInvalidBudget          Kind = "policy_invalid_budget"
	KindPolicyUnknownOption          Kind = "policy_unknown_option"
	KindBuildDeadline                Kind = "build_deadline"
	KindBuildOverflowUnresolvable    Kind = "build_overflow_unresolvable"
	KindIntegrityDuplicateActiveFact Kind = "integrity_duplicate_active_fact"
	KindIntegrityOrphanEvidence      Kind = "integrity_orphan_evidence"
)

// EngramError wraps every error Engram returns with the operation that
// produced it and its taxonomy Kind, following the teacher's MemoryError{Op,
// Err} pattern generalized with Kind.
//
// Example:
//
//	err := &EngramError{Op: "BuildMemoryPacket", Kind: KindBuildDeadline, Err: context.DeadlineExceeded}
//	// Error() returns: "engram: BuildMemoryPacket: build_deadline: context deadline exceeded"
type EngramError struct {
	// Op is the name of the operation that failed.
	Op string

	// Kind is the taxonomy category from spec §7.
	Kind Kind

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message: "engram: <Op>: <Kind>: <Err>".
func (e *EngramError) Error() string {
	return fmt.Sprintf("engram: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *EngramError) Unwrap() error {
	return e.Err
}

// NewEngramError wraps err with op and kind. Returns nil if err is nil, so
// call sites can write `return NewEngramError(op, kind, err)` unconditionally.
func NewEngramError(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &EngramError{Op: op, Kind: kind, Err: err}
}
