package datastore

import (
	"context"
	"time"
)

// Entry is one stored record: the value plus the expiration and tag
// metadata the engine keeps alongside it. A zero ExpiresAt means the entry
// never expires; an empty Tag means untagged.
type Entry struct {
	Value     []byte    `json:"v"`
	ExpiresAt time.Time `json:"x"`
	Tag       string    `json:"t,omitempty"`
}

// Expired reports whether the entry's expiration has passed at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Engine is the sharded key-value storage collaborator a Store drives.
// Implementations bind to a directory path and a shard count at open time
// and must be safe for concurrent use.
//
// A Store opens and closes its engine around every operation, so engines
// must tolerate use after Close without corruption; Close is a flush/release
// hint, not a terminal state.
type Engine interface {
	// Path returns the directory path the engine is bound to.
	Path() string

	// Shards returns the shard count baked into the engine's layout.
	Shards() int

	// Get returns the full entry for key, or ErrKeyNotFound when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (Entry, error)

	// Set stores the entry unconditionally.
	Set(ctx context.Context, key string, e Entry) error

	// Add stores the entry only when the key is absent, reporting whether it
	// was inserted. A present key is left untouched and is not an error.
	Add(ctx context.Context, key string, e Entry) (bool, error)

	// Delete removes the entry, or returns ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key holds a live entry.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys lists every live key in the engine. Order is unspecified.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every entry and returns the number removed.
	Clear(ctx context.Context) (int, error)

	// Evict removes every entry carrying tag and returns the number removed.
	Evict(ctx context.Context, tag string) (int, error)

	// Cull purges expired entries and returns the number removed.
	Cull(ctx context.Context) (int, error)

	// Check verifies storage integrity and returns a warning per problem
	// found. When fix is set, repairable problems are corrected in place.
	Check(ctx context.Context, fix bool) ([]string, error)

	// Volume returns the on-disk byte size of the engine's layout.
	Volume(ctx context.Context) (int64, error)

	// Close releases resources held between operations.
	Close() error
}

// Opener constructs an Engine bound to path with the given shard count,
// per-operation timeout bound, and tag-index preference.
type Opener func(path string, shards int, timeout time.Duration, tagIndex bool) (Engine, error)

func expiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
