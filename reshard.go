package datastore

import (
	"context"
	"errors"
	"fmt"
)

// Reshard reopens the store's path with a new shard count, migrating every
// entry from the live engine into the new layout. With an unchanged count it
// simply swaps in a fresh handle.
//
// Migration is a full copy, O(total entries): the shard count is baked into
// the engine's on-disk layout, so changing it rewrites every entry's
// physical location. It is not transactional against failure mid-copy: the
// old engine stays live and untouched, the new layout is partially
// populated, and a retry restarts from scratch (the destination is cleared
// first, so retries are idempotent). It is also not safe against concurrent
// writers to the same path; the caller owns the path for the duration.
func (s *Store) Reshard(ctx context.Context, shards int) error {
	if shards <= 0 {
		shards = s.Shards()
	}
	next, err := s.opener(s.path, shards, s.timeout, s.tagIndex)
	if err != nil {
		return err
	}
	return s.adopt(ctx, next)
}

// ReplaceEngine swaps in a caller-supplied engine, migrating entries when
// its shard count differs from the live engine's. Engines bound to a
// different path are refused with ErrPathConflict.
func (s *Store) ReplaceEngine(ctx context.Context, eng Engine) error {
	if eng == nil {
		return fmt.Errorf("%w: nil engine", ErrPathConflict)
	}
	if eng.Path() != s.path {
		return fmt.Errorf("%w: engine bound to %q, store bound to %q",
			ErrPathConflict, eng.Path(), s.path)
	}
	return s.adopt(ctx, eng)
}

func (s *Store) adopt(ctx context.Context, next Engine) error {
	old := s.current()
	if next.Shards() != old.Shards() {
		s.logf("info", ctx, "resharding %s: %d -> %d shards", s.path, old.Shards(), next.Shards())
		if err := migrate(ctx, old, next); err != nil {
			next.Close()
			s.logf("error", ctx, "reshard %s failed: %v", s.path, err)
			return err
		}
	}

	s.mu.Lock()
	s.engine = next
	s.shards = next.Shards()
	s.mu.Unlock()

	return old.Close()
}

// migrate copies every live entry of src into dst, preserving each entry's
// value, expiration and tag. The destination is cleared first so leftovers
// from a prior partial migration never merge in silently.
func migrate(ctx context.Context, src, dst Engine) error {
	if src.Path() != dst.Path() {
		return fmt.Errorf("%w: source at %q, destination at %q",
			ErrPathConflict, src.Path(), dst.Path())
	}
	if _, err := dst.Clear(ctx); err != nil {
		return err
	}
	keys, err := src.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		e, err := src.Get(ctx, k)
		if errors.Is(err, ErrKeyNotFound) {
			// Expired since listing.
			continue
		}
		if err != nil {
			return err
		}
		if err := dst.Set(ctx, k, e); err != nil {
			return err
		}
	}
	return nil
}
