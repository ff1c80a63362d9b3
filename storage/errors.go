package storage

import "errors"

var (
	// ErrDuplicateEvent is returned by AppendEvent when event_id already
	// exists within scope (Storage{kind:Duplicate}, spec §7).
	ErrDuplicateEvent = errors.New("storage: duplicate event_id")

	// ErrVersionConflict is returned by PatchWorkingState when the caller's
	// expectedVersion does not match the row's current state_version
	// (Storage{kind:VersionConflict}, spec §7).
	ErrVersionConflict = errors.New("storage: working state version conflict")

	// ErrNotFound is returned by backends when a lookup by id finds no row.
	ErrNotFound = errors.New("storage: not found")
)
