package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	retry "github.com/sethvargo/go-retry"
)

const (
	shardDataFile = "data.json"
	shardLockFile = "lock"

	// lockPoll is the backoff between shard lock attempts.
	lockPoll = time.Millisecond

	// staleLockAge is how old an abandoned lock file must be before another
	// opener may break it.
	staleLockAge = 30 * time.Second
)

// Fanout implements Engine with sharded, disk-persisted storage. Keys hash
// onto one of N shard directories under the bound path; each shard keeps its
// entries in a single JSON file rewritten atomically on mutation, guarded by
// a lock file so concurrent processes serialize per shard.
//
// Shard directories are named "<index>-of-<count>", so layouts for different
// shard counts under the same path never overlap. A migration destination
// can therefore clear itself without touching the source layout it is
// copying from.
//
// Fanout holds no state between operations: Close is a no-op and a closed
// engine keeps working, which is what the store's open/close-per-call
// pattern requires.
type Fanout struct {
	path     string
	shards   int
	timeout  time.Duration
	tagIndex bool

	// owner identifies this engine in lock files for diagnostics.
	owner string
}

type shardFile struct {
	Entries map[string]Entry    `json:"entries"`
	Tags    map[string][]string `json:"tags,omitempty"`
}

// OpenFanout constructs a Fanout engine at path, creating the shard layout
// directories if needed. It is the default Opener.
func OpenFanout(path string, shards int, timeout time.Duration, tagIndex bool) (Engine, error) {
	if shards <= 0 {
		shards = DefaultShards
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fanout{
		path:     path,
		shards:   shards,
		timeout:  timeout,
		tagIndex: tagIndex,
		owner:    uuid.NewString(),
	}
	for i := 0; i < shards; i++ {
		if err := os.MkdirAll(f.shardDir(i), 0o755); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Fanout) Path() string { return f.path }

func (f *Fanout) Shards() int { return f.shards }

func (f *Fanout) shardDir(i int) string {
	return filepath.Join(f.path, fmt.Sprintf("%03d-of-%03d", i, f.shards))
}

func (f *Fanout) shardFor(key string) int {
	return int(xxhash.Sum64String(key) % uint64(f.shards))
}

// lockShard acquires the shard's lock file, polling until the engine's
// per-operation timeout elapses. Locks older than staleLockAge are treated
// as abandoned and broken.
func (f *Fanout) lockShard(ctx context.Context, i int) (func(), error) {
	lockPath := filepath.Join(f.shardDir(i), shardLockFile)
	b := retry.NewConstant(lockPoll)
	err := retry.Do(ctx, retry.WithMaxDuration(f.timeout, b), func(ctx context.Context) error {
		fh, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fh.WriteString(f.owner)
			return fh.Close()
		}
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		if fi, statErr := os.Stat(lockPath); statErr == nil && time.Since(fi.ModTime()) > staleLockAge {
			os.Remove(lockPath)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: shard %d busy after %s", ErrTimeout, i, f.timeout)
		}
		return nil, err
	}
	return func() { os.Remove(lockPath) }, nil
}

func (f *Fanout) readShard(i int) (*shardFile, error) {
	data, err := os.ReadFile(filepath.Join(f.shardDir(i), shardDataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &shardFile{Entries: make(map[string]Entry)}, nil
	}
	if err != nil {
		return nil, err
	}
	var sf shardFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("shard %d: %w", i, err)
	}
	if sf.Entries == nil {
		sf.Entries = make(map[string]Entry)
	}
	return &sf, nil
}

func (f *Fanout) writeShard(i int, sf *shardFile) error {
	data, err := json.Marshal(sf)
	if err != nil {
		return err
	}
	target := filepath.Join(f.shardDir(i), shardDataFile)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

// update runs fn against shard i's decoded file under its lock, rewriting
// the file when fn reports a mutation.
func (f *Fanout) update(ctx context.Context, i int, fn func(sf *shardFile) (bool, error)) error {
	unlock, err := f.lockShard(ctx, i)
	if err != nil {
		return err
	}
	defer unlock()

	sf, err := f.readShard(i)
	if err != nil {
		return err
	}
	dirty, fnErr := fn(sf)
	if dirty {
		if err := f.writeShard(i, sf); err != nil {
			return err
		}
	}
	return fnErr
}

func (f *Fanout) Get(ctx context.Context, key string) (Entry, error) {
	var out Entry
	err := f.update(ctx, f.shardFor(key), func(sf *shardFile) (bool, error) {
		e, ok := sf.Entries[key]
		if !ok {
			return false, ErrKeyNotFound
		}
		if e.Expired(time.Now()) {
			sf.remove(key)
			return true, ErrKeyNotFound
		}
		out = e
		return false, nil
	})
	return out, err
}

func (f *Fanout) Set(ctx context.Context, key string, e Entry) error {
	return f.update(ctx, f.shardFor(key), func(sf *shardFile) (bool, error) {
		sf.put(key, e, f.tagIndex)
		return true, nil
	})
}

func (f *Fanout) Add(ctx context.Context, key string, e Entry) (bool, error) {
	inserted := false
	err := f.update(ctx, f.shardFor(key), func(sf *shardFile) (bool, error) {
		if old, ok := sf.Entries[key]; ok && !old.Expired(time.Now()) {
			return false, nil
		}
		sf.put(key, e, f.tagIndex)
		inserted = true
		return true, nil
	})
	return inserted, err
}

func (f *Fanout) Delete(ctx context.Context, key string) error {
	return f.update(ctx, f.shardFor(key), func(sf *shardFile) (bool, error) {
		e, ok := sf.Entries[key]
		if !ok {
			return false, ErrKeyNotFound
		}
		if e.Expired(time.Now()) {
			sf.remove(key)
			return true, ErrKeyNotFound
		}
		sf.remove(key)
		return true, nil
	})
}

func (f *Fanout) Exists(ctx context.Context, key string) (bool, error) {
	exists := false
	err := f.update(ctx, f.shardFor(key), func(sf *shardFile) (bool, error) {
		e, ok := sf.Entries[key]
		exists = ok && !e.Expired(time.Now())
		return false, nil
	})
	return exists, err
}

func (f *Fanout) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	now := time.Now()
	for i := 0; i < f.shards; i++ {
		err := f.update(ctx, i, func(sf *shardFile) (bool, error) {
			for k, e := range sf.Entries {
				if e.Expired(now) {
					continue
				}
				keys = append(keys, k)
			}
			return false, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func (f *Fanout) Clear(ctx context.Context) (int, error) {
	removed := 0
	for i := 0; i < f.shards; i++ {
		err := f.update(ctx, i, func(sf *shardFile) (bool, error) {
			if len(sf.Entries) == 0 && len(sf.Tags) == 0 {
				return false, nil
			}
			removed += len(sf.Entries)
			sf.Entries = make(map[string]Entry)
			sf.Tags = nil
			return true, nil
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (f *Fanout) Evict(ctx context.Context, tag string) (int, error) {
	if tag == "" {
		return 0, nil
	}
	removed := 0
	for i := 0; i < f.shards; i++ {
		err := f.update(ctx, i, func(sf *shardFile) (bool, error) {
			var victims []string
			if sf.Tags != nil {
				victims = append(victims, sf.Tags[tag]...)
			} else {
				for k, e := range sf.Entries {
					if e.Tag == tag {
						victims = append(victims, k)
					}
				}
			}
			for _, k := range victims {
				if _, ok := sf.Entries[k]; ok {
					sf.remove(k)
					removed++
				}
			}
			return len(victims) > 0, nil
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (f *Fanout) Cull(ctx context.Context) (int, error) {
	removed := 0
	now := time.Now()
	for i := 0; i < f.shards; i++ {
		err := f.update(ctx, i, func(sf *shardFile) (bool, error) {
			dirty := false
			for k, e := range sf.Entries {
				if e.Expired(now) {
					sf.remove(k)
					removed++
					dirty = true
				}
			}
			return dirty, nil
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Check verifies the shard layout: directories present, data files
// decodable, no abandoned locks, tag index consistent with the entries.
// With fix set, missing directories are recreated, corrupt data files
// reset (their entries are lost), stale locks removed, and the tag index
// rebuilt.
func (f *Fanout) Check(ctx context.Context, fix bool) ([]string, error) {
	var warnings []string
	for i := 0; i < f.shards; i++ {
		dir := f.shardDir(i)
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			warnings = append(warnings, fmt.Sprintf("shard %d: directory missing", i))
			if fix {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return warnings, err
				}
			}
			continue
		}

		lockPath := filepath.Join(dir, shardLockFile)
		if fi, err := os.Stat(lockPath); err == nil && time.Since(fi.ModTime()) > staleLockAge {
			warnings = append(warnings, fmt.Sprintf("shard %d: stale lock", i))
			if fix {
				os.Remove(lockPath)
			}
		}

		unlock, err := f.lockShard(ctx, i)
		if err != nil {
			return warnings, err
		}
		sf, err := f.readShard(i)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("shard %d: corrupt data file: %v", i, err))
			if fix {
				if err := f.writeShard(i, &shardFile{Entries: make(map[string]Entry)}); err != nil {
					unlock()
					return warnings, err
				}
			}
			unlock()
			continue
		}

		if sf.Tags != nil {
			stale := false
			for tag, keys := range sf.Tags {
				for _, k := range keys {
					if e, ok := sf.Entries[k]; !ok || e.Tag != tag {
						warnings = append(warnings, fmt.Sprintf("shard %d: tag index entry %q/%q has no matching entry", i, tag, k))
						stale = true
					}
				}
			}
			if stale && fix {
				sf.rebuildTags()
				if err := f.writeShard(i, sf); err != nil {
					unlock()
					return warnings, err
				}
			}
		}
		unlock()
	}
	return warnings, nil
}

func (f *Fanout) Volume(ctx context.Context) (int64, error) {
	var size int64
	for i := 0; i < f.shards; i++ {
		err := filepath.WalkDir(f.shardDir(i), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			size += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return size, nil
}

// Close is a no-op; Fanout holds nothing open between operations.
func (f *Fanout) Close() error { return nil }

func (sf *shardFile) put(key string, e Entry, tagIndex bool) {
	if old, ok := sf.Entries[key]; ok && old.Tag != "" {
		sf.dropTag(old.Tag, key)
	}
	sf.Entries[key] = e
	if tagIndex && e.Tag != "" {
		if sf.Tags == nil {
			sf.Tags = make(map[string][]string)
		}
		sf.Tags[e.Tag] = append(sf.Tags[e.Tag], key)
	}
}

func (sf *shardFile) remove(key string) {
	if e, ok := sf.Entries[key]; ok && e.Tag != "" {
		sf.dropTag(e.Tag, key)
	}
	delete(sf.Entries, key)
}

func (sf *shardFile) dropTag(tag, key string) {
	keys := sf.Tags[tag]
	for j, k := range keys {
		if k == key {
			sf.Tags[tag] = append(keys[:j], keys[j+1:]...)
			break
		}
	}
	if len(sf.Tags[tag]) == 0 {
		delete(sf.Tags, tag)
	}
}

func (sf *shardFile) rebuildTags() {
	sf.Tags = make(map[string][]string)
	for k, e := range sf.Entries {
		if e.Tag != "" {
			sf.Tags[e.Tag] = append(sf.Tags[e.Tag], k)
		}
	}
	if len(sf.Tags) == 0 {
		sf.Tags = nil
	}
}
