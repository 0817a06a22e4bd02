// Package store is the public facade: a Redis-like key/value and list
// surface backed by the bucket store, wired to the sync coordinator and
// scheduler so every live mutation debounces into a background Git sync.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bobboyms/git-storage/pkg/bucket"
	"github.com/bobboyms/git-storage/pkg/gitrepo"
	"github.com/bobboyms/git-storage/pkg/glob"
	"github.com/bobboyms/git-storage/pkg/record"
	"github.com/bobboyms/git-storage/pkg/syncer"
	"github.com/bobboyms/git-storage/pkg/valuecodec"
)

// Store is the single entry point a caller embeds. One Store owns one
// dataDir exclusively; every data-access method and Sync serialize on one
// mutex (GetStatus, SetConfig, Close and On do not take it), mirroring the single-threaded cooperative model the sync pipeline
// assumes (a background-fired sync and a foreground Set never interleave
// mid-bucket).
type Store struct {
	mu sync.Mutex

	cfg     Config
	buckets *bucket.Store
	repo    gitrepo.Repo
	coord   *syncer.Coordinator
	sched   *syncer.Scheduler
}

// New wires a Store from cfg. It does not touch the filesystem beyond
// what bucket.New/gitrepo.New do (neither creates dataDir eagerly); the
// first write or Sync call does that.
func New(cfg Config) (*Store, error) {
	cfg = withFallbacks(cfg)

	buckets := bucket.New(cfg.DataDir, cfg.Logger)
	repo := gitrepo.New(cfg.DataDir, cfg.Logger)
	coord := syncer.New(repo, buckets, syncer.Options{
		Branch:          cfg.Branch,
		RemoteURL:       cfg.RepoURL,
		Username:        cfg.Username,
		Token:           cfg.Token,
		HistoryEnabled:  cfg.History.Enabled,
		WriteCountLimit: cfg.History.WriteCountThreshold,
		WriteByteLimit:  cfg.History.WriteBytesThreshold,
	}, cfg.Logger)

	s := &Store{cfg: cfg, buckets: buckets, repo: repo, coord: coord}
	s.sched = syncer.NewScheduler(s.lockedSync)
	s.sched.Configure(syncer.SchedulerOptions{
		AutoSync:            cfg.AutoSync,
		SyncOnChange:        cfg.SyncOnChange,
		SyncIntervalMinutes: cfg.SyncIntervalMinutes,
	})
	return s, nil
}

func (s *Store) now() int64 { return time.Now().UnixMilli() }

// lockedSync is what the scheduler calls in the background; it takes the
// same store-wide lock a foreground Set/Del would, so a sync round never
// reads a bucket file mid-write.
func (s *Store) lockedSync(reason string) syncer.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coord.Sync(reason)
}

// scheduleChange must be called with s.mu already held, after a live
// mutation, immediately before the lock is released. It only arms a
// timer; it never blocks on or triggers the sync itself.
func (s *Store) scheduleChange(reason string) {
	s.sched.OnChange(reason)
}

// --- Scalars ---------------------------------------------------------

// Get returns key's decoded value and whether it is present and live.
func (s *Store) Get(key string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.readRecord(key)
	if !rec.Live() {
		return nil, false, nil
	}
	v, err := valuecodec.DecodeStorable(rec.Type, rec.Value)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set creates or overwrites key with v.
func (s *Store) Set(key string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucketID := bucket.Of(key)
	recs := s.buckets.Read(bucketID)
	now := s.now()
	if rec, ok := recs[key]; ok {
		rec.ApplyWrite(v, now)
	} else {
		recs[key] = record.NewScalar(record.NewID(), key, v, now)
	}
	if err := s.buckets.Write(bucketID, recs); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	s.scheduleChange("set")
	return nil
}

// Has reports whether key exists and is live.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(key).Live()
}

// Del tombstones key if it is live. A delete of an already-absent or
// already-deleted key is a no-op.
func (s *Store) Del(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucketID := bucket.Of(key)
	recs := s.buckets.Read(bucketID)
	rec, ok := recs[key]
	if !ok || !rec.Live() {
		return nil
	}
	rec.ApplyDelete(s.now())
	if err := s.buckets.Write(bucketID, recs); err != nil {
		return fmt.Errorf("del %q: %w", key, err)
	}
	s.scheduleChange("del")
	return nil
}

// Type returns key's value type, or ok=false if key is absent or deleted.
func (s *Store) Type(key string) (valuecodec.Type, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.readRecord(key)
	if !rec.Live() {
		return "", false
	}
	return rec.Type, true
}

// Meta returns the raw record for key, tombstoned or not, nil if the key
// was never written. Intended for debugging and tests, not application
// logic.
func (s *Store) Meta(key string) *record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(key)
}

// readRecord must be called with s.mu held. It returns nil if key was
// never written to its bucket.
func (s *Store) readRecord(key string) *record.Record {
	recs := s.buckets.Read(bucket.Of(key))
	return recs[key]
}

// --- Batch -------------------------------------------------------------

// MGet returns one decoded value (nil if absent/deleted) per key, in order.
func (s *Store) MGet(keys []string) ([]any, error) {
	out := make([]any, len(keys))
	for i, k := range keys {
		v, ok, err := s.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

// MSet writes every key/value pair in values.
func (s *Store) MSet(values map[string]any) error {
	for k, v := range values {
		if err := s.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// --- Enumeration ---------------------------------------------------------

// isUserVisible excludes list-item keys, which are an internal encoding
// detail: keys()/scan()/list() surface list meta keys (type "list") the
// same way they surface any other key, but never the items underneath.
func isUserVisible(key string) bool {
	return !record.IsListItem(key)
}

// liveUserKeys must be called with s.mu held. It reads every bucket file,
// bounded to 256 entries, and returns every live, user-visible key sorted
// lexicographically.
func (s *Store) liveUserKeys() ([]string, error) {
	ids, err := s.buckets.ListBuckets()
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, id := range ids {
		for key, rec := range s.buckets.Read(id) {
			if rec.Live() && isUserVisible(key) {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Keys returns every live key matching pattern ("*" if pattern is empty).
func (s *Store) Keys(pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern == "" {
		pattern = "*"
	}
	all, err := s.liveUserKeys()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, key := range all {
		ok, err := glob.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, key)
		}
	}
	return out, nil
}

// Scan returns up to count keys starting at cursor, matching pattern. The
// returned cursor is 0 once the scan has covered every matching key.
func (s *Store) Scan(cursor int, pattern string, count int) (nextCursor int, keys []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern == "" {
		pattern = "*"
	}
	if count <= 0 {
		count = 100
	}
	if cursor < 0 {
		cursor = 0
	}

	all, err := s.liveUserKeys()
	if err != nil {
		return 0, nil, err
	}
	var matching []string
	for _, key := range all {
		ok, matchErr := glob.Match(pattern, key)
		if matchErr != nil {
			return 0, nil, matchErr
		}
		if ok {
			matching = append(matching, key)
		}
	}

	if cursor >= len(matching) {
		return 0, nil, nil
	}
	end := cursor + count
	if end > len(matching) {
		end = len(matching)
	}
	page := matching[cursor:end]
	if end >= len(matching) {
		return 0, page, nil
	}
	return end, page, nil
}

// List returns up to limit live keys with the given prefix, starting at
// offset, sorted lexicographically.
func (s *Store) List(prefix string, limit, offset int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	all, err := s.liveUserKeys()
	if err != nil {
		return nil, err
	}
	var matching []string
	for _, key := range all {
		if strings.HasPrefix(key, prefix) {
			matching = append(matching, key)
		}
	}
	if offset >= len(matching) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	return matching[offset:end], nil
}

// --- Sync ---------------------------------------------------------------

// Sync runs one foreground pipeline round. reason defaults to "manual".
func (s *Store) Sync(reason string) syncer.Result {
	if reason == "" {
		reason = "manual"
	}
	return s.lockedSync(reason)
}

// GetStatus snapshots the coordinator's state machine.
func (s *Store) GetStatus() syncer.Status {
	return s.coord.GetStatus()
}

// SetConfig applies a new scheduler configuration (auto-sync, on-change
// sync, interval). It does not touch the remote URL, branch, or history
// thresholds, which are fixed at construction.
func (s *Store) SetConfig(opts syncer.SchedulerOptions) {
	s.sched.Configure(opts)
}

// Close cancels pending timers and waits for any in-flight background
// sync before returning.
func (s *Store) Close() error {
	return s.sched.Close()
}

// On subscribes to a sync lifecycle event.
func (s *Store) On(name syncer.EventName, handler syncer.Handler) syncer.Unsubscribe {
	return s.coord.On(name, handler)
}
