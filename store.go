package datastore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultShards is the shard count used when none is configured.
	DefaultShards = 8

	// DefaultTimeout bounds each engine operation's wait for its shard.
	DefaultTimeout = 10 * time.Millisecond
)

// Option customizes Store behavior.
type Option func(*Store)

// WithName sets the namespace name prepended to every encoded key.
// An empty name (the default) stores keys unprefixed.
func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// WithDelim sets the delimiter joining key elements. Default ":".
func WithDelim(delim string) Option {
	return func(s *Store) {
		if delim != "" {
			s.delim = delim
		}
	}
}

// WithShards sets the engine shard count. Default DefaultShards.
func WithShards(shards int) Option {
	return func(s *Store) {
		if shards > 0 {
			s.shards = shards
		}
	}
}

// WithTimeout sets the per-operation bound passed to the engine.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithDefaultTTL sets the expiration applied by Set and Add when the caller
// passes a zero TTL. Default: entries never expire.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithTagIndex asks the engine to index entries by tag at open time, making
// Evict proportional to the tag's entries instead of a full scan.
func WithTagIndex() Option {
	return func(s *Store) {
		s.tagIndex = true
	}
}

// WithOpener specifies the engine constructor. Default OpenFanout.
func WithOpener(open Opener) Option {
	return func(s *Store) {
		if open != nil {
			s.opener = open
		}
	}
}

// WithEngine supplies an already-open engine instead of opening one.
// New fails with ErrShardMismatch if its path differs from the store's.
func WithEngine(eng Engine) Option {
	return func(s *Store) {
		if eng != nil {
			s.engine = eng
		}
	}
}

// WithLogger specifies a logger for operation logging.
// If not provided, a no-op logger is used (no logging).
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLogTag sets a tag prefix for all log messages.
// Useful for identifying the source of logs in multi-store scenarios.
func WithLogTag(tag string) Option {
	return func(s *Store) {
		s.logTag = tag
	}
}

// Store is the namespacing façade over one storage engine. It owns exactly
// one engine handle at a time, encodes caller keys through its codec, and
// closes the handle after every operation, so operations are safe to call
// repeatedly without explicit handle management.
//
// Several stores with distinct names may share a physical path; operations
// documented as namespace-unaware (Items, Clear, Evict, Cull) then act on
// all of them.
type Store struct {
	path     string
	name     string
	delim    string
	shards   int
	timeout  time.Duration
	ttl      time.Duration
	tagIndex bool

	codec  Codec
	opener Opener
	logger Logger
	logTag string

	// mu guards engine swaps only; operations run outside it.
	mu     sync.Mutex
	engine Engine
}

// New opens a Store over the engine at path.
func New(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:    path,
		delim:   DefaultDelim,
		shards:  DefaultShards,
		timeout: DefaultTimeout,
		opener:  OpenFanout,
		logger:  defaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codec = Codec{Name: s.name, Delim: s.delim}

	if s.engine != nil {
		if s.engine.Path() != s.path {
			return nil, fmt.Errorf("%w: engine bound to %q, store bound to %q",
				ErrShardMismatch, s.engine.Path(), s.path)
		}
		s.shards = s.engine.Shards()
		return s, nil
	}

	eng, err := s.opener(s.path, s.shards, s.timeout, s.tagIndex)
	if err != nil {
		return nil, err
	}
	s.engine = eng
	return s, nil
}

// Path returns the physical path the store is bound to.
func (s *Store) Path() string { return s.path }

// Shards returns the shard count of the live engine.
func (s *Store) Shards() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shards
}

// Codec returns the store's key codec configuration.
func (s *Store) Codec() Codec { return s.codec }

func (s *Store) current() Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Store) logf(level string, ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.logTag != "" {
		msg = s.logTag + " " + msg
	}
	switch level {
	case "info":
		s.logger.Info(ctx, msg)
	case "warn":
		s.logger.Warn(ctx, msg)
	case "error":
		s.logger.Error(ctx, msg)
	case "debug":
		s.logger.Debug(ctx, msg)
	}
}

// Get returns the value stored under key, or def when the key is absent or
// expired. Absence is never an error; engine failures propagate unwrapped.
func (s *Store) Get(ctx context.Context, key Key, def []byte) ([]byte, error) {
	k, err := s.codec.Encode(key)
	if err != nil {
		return nil, err
	}
	eng := s.current()
	defer eng.Close()

	e, err := eng.Get(ctx, k)
	if errors.Is(err, ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		s.logf("error", ctx, "Get %s failed: %v", k, err)
		return nil, err
	}
	return e.Value, nil
}

// GetEntry returns the full value+expiration+tag triple for key and whether
// the key was present.
func (s *Store) GetEntry(ctx context.Context, key Key) (Entry, bool, error) {
	k, err := s.codec.Encode(key)
	if err != nil {
		return Entry{}, false, err
	}
	eng := s.current()
	defer eng.Close()

	e, err := eng.Get(ctx, k)
	if errors.Is(err, ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		s.logf("error", ctx, "GetEntry %s failed: %v", k, err)
		return Entry{}, false, err
	}
	return e, true, nil
}

// Set stores value under key, overwriting any present entry. A zero ttl
// applies the store's default TTL; an empty tag stores the entry untagged.
func (s *Store) Set(ctx context.Context, key Key, value []byte, ttl time.Duration, tag string) error {
	k, err := s.codec.Encode(key)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = s.ttl
	}
	eng := s.current()
	defer eng.Close()

	if err := eng.Set(ctx, k, Entry{Value: value, ExpiresAt: expiresAt(ttl), Tag: tag}); err != nil {
		s.logf("error", ctx, "Set %s failed: %v", k, err)
		return err
	}
	return nil
}

// Add stores value under key only when the key is absent, reporting whether
// it was inserted. A present key is left untouched and is not an error.
func (s *Store) Add(ctx context.Context, key Key, value []byte, ttl time.Duration, tag string) (bool, error) {
	k, err := s.codec.Encode(key)
	if err != nil {
		return false, err
	}
	if ttl == 0 {
		ttl = s.ttl
	}
	eng := s.current()
	defer eng.Close()

	inserted, err := eng.Add(ctx, k, Entry{Value: value, ExpiresAt: expiresAt(ttl), Tag: tag})
	if err != nil {
		s.logf("error", ctx, "Add %s failed: %v", k, err)
		return false, err
	}
	return inserted, nil
}

// SetMap flat-loads every pair of m, skipping keys listed in exclude.
// When add is set, present keys are left untouched instead of overwritten.
func (s *Store) SetMap(ctx context.Context, m map[string][]byte, add bool, exclude ...string) error {
	skip := make(map[string]struct{}, len(exclude))
	for _, k := range exclude {
		skip[k] = struct{}{}
	}
	eng := s.current()
	defer eng.Close()

	for key, value := range m {
		if _, ok := skip[key]; ok {
			continue
		}
		k, err := s.codec.Encode(K(key))
		if err != nil {
			return err
		}
		e := Entry{Value: value, ExpiresAt: expiresAt(s.ttl)}
		if add {
			_, err = eng.Add(ctx, k, e)
		} else {
			err = eng.Set(ctx, k, e)
		}
		if err != nil {
			s.logf("error", ctx, "SetMap %s failed: %v", k, err)
			return err
		}
	}
	return nil
}

// Delete removes the entry under key, or fails with ErrKeyNotFound.
func (s *Store) Delete(ctx context.Context, key Key) error {
	k, err := s.codec.Encode(key)
	if err != nil {
		return err
	}
	eng := s.current()
	defer eng.Close()

	if err := eng.Delete(ctx, k); err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			s.logf("error", ctx, "Delete %s failed: %v", k, err)
		}
		return err
	}
	return nil
}

// Item is one key-value pair produced by Items or FindByPrefix.
type Item struct {
	Key   string
	Value []byte
}

// Items is an ordered collection of pairs.
type Items []Item

// Map converts the collection to a map. Later duplicates win.
func (it Items) Map() map[string][]byte {
	m := make(map[string][]byte, len(it))
	for _, i := range it {
		m[i.Key] = i.Value
	}
	return m
}

// Items returns every live pair in the engine, not just this namespace's:
// a handle shared across namespaces yields all of them. Order follows the
// engine's key iteration.
func (s *Store) Items(ctx context.Context) (Items, error) {
	eng := s.current()
	defer eng.Close()

	keys, err := eng.Keys(ctx)
	if err != nil {
		s.logf("error", ctx, "Items failed: %v", err)
		return nil, err
	}
	items := make(Items, 0, len(keys))
	for _, k := range keys {
		e, err := eng.Get(ctx, k)
		if errors.Is(err, ErrKeyNotFound) {
			// Expired or deleted since listing.
			continue
		}
		if err != nil {
			s.logf("error", ctx, "Items %s failed: %v", k, err)
			return nil, err
		}
		items = append(items, Item{Key: k, Value: e.Value})
	}
	return items, nil
}

// FindOptions controls prefix matching. The zero value matches at an exact
// namespace boundary and returns absolute keys.
type FindOptions struct {
	// Partial matches the raw string prefix instead of appending the
	// delimiter first, so "cfg:Job." matches both "cfg:Job.Foo:a" and
	// "cfg:Job.FooBar:b".
	Partial bool

	// RelativeKeys strips the matched prefix (including the appended
	// delimiter for boundary matches) from returned keys.
	RelativeKeys bool
}

// FindByPrefix returns the pairs whose physical key starts with the encoded
// prefix. The scan walks every key in the engine; result order follows the
// engine's iteration and is not sorted.
func (s *Store) FindByPrefix(ctx context.Context, prefix Key, opt FindOptions) (Items, error) {
	p, err := s.codec.Encode(prefix)
	if err != nil {
		return nil, err
	}
	eng := s.current()
	defer eng.Close()

	keys, err := eng.Keys(ctx)
	if err != nil {
		s.logf("error", ctx, "FindByPrefix %s failed: %v", p, err)
		return nil, err
	}
	var items Items
	for _, k := range keys {
		if !s.codec.MatchesPrefix(k, p, opt.Partial) {
			continue
		}
		e, err := eng.Get(ctx, k)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			s.logf("error", ctx, "FindByPrefix %s failed: %v", k, err)
			return nil, err
		}
		name := k
		if opt.RelativeKeys {
			name = s.codec.SuffixAfter(k, p, opt.Partial)
		}
		items = append(items, Item{Key: name, Value: e.Value})
	}
	return items, nil
}

// KeysByPrefix returns only the matching keys of FindByPrefix.
func (s *Store) KeysByPrefix(ctx context.Context, prefix Key, opt FindOptions) ([]string, error) {
	p, err := s.codec.Encode(prefix)
	if err != nil {
		return nil, err
	}
	eng := s.current()
	defer eng.Close()

	return s.keysByPrefix(ctx, eng, p, opt)
}

func (s *Store) keysByPrefix(ctx context.Context, eng Engine, prefix string, opt FindOptions) ([]string, error) {
	keys, err := eng.Keys(ctx)
	if err != nil {
		s.logf("error", ctx, "KeysByPrefix %s failed: %v", prefix, err)
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if !s.codec.MatchesPrefix(k, prefix, opt.Partial) {
			continue
		}
		if opt.RelativeKeys {
			k = s.codec.SuffixAfter(k, prefix, opt.Partial)
		}
		out = append(out, k)
	}
	return out, nil
}

// ClearByPrefix deletes every key matching the encoded prefix at an exact
// namespace boundary and returns the number deleted. The scan and the
// deletes are not atomic against concurrent writers.
func (s *Store) ClearByPrefix(ctx context.Context, prefix Key) (int, error) {
	p, err := s.codec.Encode(prefix)
	if err != nil {
		return 0, err
	}
	eng := s.current()
	defer eng.Close()

	keys, err := s.keysByPrefix(ctx, eng, p, FindOptions{})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		if err := eng.Delete(ctx, k); err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				// Removed or expired since listing.
				continue
			}
			s.logf("error", ctx, "ClearByPrefix %s failed: %v", k, err)
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clear removes every entry in the engine, namespace-unaware, and returns
// the number removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	eng := s.current()
	defer eng.Close()

	n, err := eng.Clear(ctx)
	if err != nil {
		s.logf("error", ctx, "Clear failed: %v", err)
	}
	return n, err
}

// Evict removes every entry carrying tag and returns the number removed.
func (s *Store) Evict(ctx context.Context, tag string) (int, error) {
	eng := s.current()
	defer eng.Close()

	n, err := eng.Evict(ctx, tag)
	if err != nil {
		s.logf("error", ctx, "Evict %s failed: %v", tag, err)
	}
	return n, err
}

// Cull purges expired entries and returns the number removed.
func (s *Store) Cull(ctx context.Context) (int, error) {
	eng := s.current()
	defer eng.Close()

	n, err := eng.Cull(ctx)
	if err != nil {
		s.logf("error", ctx, "Cull failed: %v", err)
	}
	return n, err
}

// Check verifies engine integrity, optionally fixing repairable problems,
// and returns one warning per problem found.
func (s *Store) Check(ctx context.Context, fix bool) ([]string, error) {
	eng := s.current()
	defer eng.Close()

	warnings, err := eng.Check(ctx, fix)
	if err != nil {
		s.logf("error", ctx, "Check failed: %v", err)
	}
	return warnings, err
}

// Volume returns the on-disk byte size of the engine's layout.
func (s *Store) Volume(ctx context.Context) (int64, error) {
	eng := s.current()
	defer eng.Close()

	v, err := eng.Volume(ctx)
	if err != nil {
		s.logf("error", ctx, "Volume failed: %v", err)
	}
	return v, err
}

// Close releases the live engine handle.
func (s *Store) Close() error {
	return s.current().Close()
}
