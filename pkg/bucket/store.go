// Package bucket implements the sharded record store: 256 JSON files under
// data/, each holding the complete record set for one SHA-1 prefix. Writes
// rewrite a bucket file in full, atomically (temp file + rename), in the
// same idiom the teacher uses for checkpoint files.
package bucket

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bobboyms/git-storage/pkg/kverrors"
	"github.com/bobboyms/git-storage/pkg/record"
	"github.com/rs/zerolog"
)

const dataDirName = "data"

// Of returns the bucket id (two lowercase hex digits) for key.
func Of(key string) string {
	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:1])
}

// Store reads and writes the per-bucket JSON files rooted at dataDir/data.
type Store struct {
	root string
	log  zerolog.Logger

	mu         sync.Mutex
	writeCount uint64
	writeBytes uint64
}

// New creates a Store rooted at dataDir. The data/ directory is created on
// first write, not here.
func New(dataDir string, log zerolog.Logger) *Store {
	return &Store{root: filepath.Join(dataDir, dataDirName), log: log}
}

func (s *Store) path(bucketID string) string {
	return filepath.Join(s.root, bucketID+".json")
}

// Read loads the record map for bucketID. A missing file is an empty map.
// A file that fails to parse is also treated as an empty map: the error is
// logged but the caller is not interrupted, per the store's tolerance for
// single-shard corruption.
func (s *Store) Read(bucketID string) map[string]*record.Record {
	data, err := os.ReadFile(s.path(bucketID))
	if err != nil {
		return map[string]*record.Record{}
	}
	out := map[string]*record.Record{}
	if err := json.Unmarshal(data, &out); err != nil {
		corrupt := &kverrors.CorruptBucketError{Bucket: bucketID, Cause: err}
		s.log.Warn().Err(corrupt).Msg("bucket file is corrupt, treating as empty")
		return map[string]*record.Record{}
	}
	if out == nil {
		out = map[string]*record.Record{}
	}
	return out
}

// Write serializes recs as pretty-printed JSON and rewrites bucketID's file
// in full. The write is atomic: a temp file is written and renamed over the
// destination so a crash mid-write cannot corrupt the previous contents.
func (s *Store) Write(bucketID string, recs map[string]*record.Record) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	dst := s.path(bucketID)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}

	s.mu.Lock()
	s.writeCount++
	s.writeBytes += uint64(len(data))
	s.mu.Unlock()

	s.log.Debug().Str("bucket", bucketID).Int("bytes", len(data)).Msg("wrote bucket")
	return nil
}

// ListBuckets enumerates data/*.json file names with the extension
// stripped. The directory is flat and bounded to 256 entries, so a plain
// ReadDir is always enough.
func (s *Store) ListBuckets() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// WriteCounters returns the accumulated write count and byte total since
// the last Reset, used by the compactor's thresholds.
func (s *Store) WriteCounters() (count, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCount, s.writeBytes
}

// ResetCounters zeroes the write counters, called after a compaction.
func (s *Store) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCount = 0
	s.writeBytes = 0
}

// Root returns the data directory (dataDir/data) this store manages.
func (s *Store) Root() string { return s.root }
