package datastore

import "errors"

var (
	// ErrInvalidKey reports an empty or malformed logical key.
	ErrInvalidKey = errors.New("datastore: invalid key")

	// ErrKeyNotFound reports a delete (or engine-level read) targeting an
	// absent key. Store read operations return the caller's default instead.
	ErrKeyNotFound = errors.New("datastore: key not found")

	// ErrShardMismatch reports an engine supplied at construction bound to a
	// different path than the store expects.
	ErrShardMismatch = errors.New("datastore: engine path mismatch")

	// ErrPathConflict reports a migration target bound to a different path
	// than the store or the migration source.
	ErrPathConflict = errors.New("datastore: migration path conflict")

	// ErrTimeout reports that an engine operation could not acquire its
	// shard within the configured per-operation bound.
	ErrTimeout = errors.New("datastore: operation timed out")
)
