// Package datastore provides a namespacing and lifecycle layer over a
// sharded, disk-persisted key-value engine.
//
// # Overview
//
// datastore layers hierarchical, delimiter-joined keys with an optional
// namespace name over one physical storage path, so multiple logical stores
// can share one engine. It adds prefix-based range queries and bulk
// deletion over those keys, plus safe online resharding that migrates every
// entry (including expiration and tag metadata) into a new shard layout.
//
// # Architecture
//
// The package consists of three main abstractions:
//
// 1. Store: the namespace-scoped façade applications instantiate
// 2. Codec: pure key building, parsing and prefix matching
// 3. Engine: the sharded storage backend interface
//
// Every Store operation acquires the engine handle, performs its work, and
// closes the handle before returning. This is a scoped-resource pattern,
// not a long-lived connection: operations are safe to call repeatedly
// without explicit handle management, at the cost of per-call open/close
// overhead.
//
// # Quick Start
//
//	store, err := datastore.New("cache/data",
//	    datastore.WithName("cfg"),
//	    datastore.WithShards(8))
//	if err != nil {
//	    // handle error
//	}
//	ctx := context.Background()
//
//	// Keys are sequences of elements, joined and prefixed for you:
//	// this stores under "cfg:Job.Foo:key1".
//	store.Set(ctx, datastore.Seq("Job.Foo", "key1"), []byte("v"), time.Hour, "")
//
//	// Prefix queries stop at namespace boundaries by default.
//	items, _ := store.FindByPrefix(ctx, datastore.Seq("Job.Foo"), datastore.FindOptions{})
//
// # Resharding
//
//	// Rewrites every entry into a 16-shard layout at the same path.
//	err = store.Reshard(ctx, 16)
//
// Resharding is a full copy and is not safe against concurrent writers to
// the same path; the caller owns the path for the duration.
//
// # Custom Engines
//
// Implement the Engine interface to support custom storage backends, or use
// WithOpener/WithEngine to swap in the bundled Memory engine:
//
//	store, err := datastore.New("scratch", datastore.WithOpener(datastore.OpenMemory))
//
// # Concurrency
//
// Every operation runs to completion on the caller's goroutine; there are
// no background tasks. Prefix scans iterate live state, so concurrent
// writers can produce a result set reflecting an interleaving of reads and
// writes rather than a point-in-time snapshot. Cross-process coordination
// is the engine's job, bounded per operation by the configured timeout.
//
// # Error Handling
//
// The package defines sentinel errors for common cases:
//
//	err := store.Delete(ctx, datastore.Seq("missing"))
//	if errors.Is(err, datastore.ErrKeyNotFound) {
//	    // Handle missing key
//	}
//
// Available errors: ErrInvalidKey, ErrKeyNotFound, ErrShardMismatch,
// ErrPathConflict, ErrTimeout. Reads never fail for absence: Get returns
// the caller-supplied default instead.
package datastore
