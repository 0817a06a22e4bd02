package store

import (
	"fmt"

	"github.com/bobboyms/git-storage/pkg/bucket"
	"github.com/bobboyms/git-storage/pkg/kverrors"
	"github.com/bobboyms/git-storage/pkg/record"
	"github.com/bobboyms/git-storage/pkg/valuecodec"
)

// loadMeta must be called with s.mu held. It returns the list's meta
// record, nil if the list has never been pushed to.
func (s *Store) loadMeta(name string) *record.Record {
	metaKey := record.ListMetaKey(name)
	recs := s.buckets.Read(bucket.Of(metaKey))
	return recs[metaKey]
}

// writeMeta must be called with s.mu held. Like writeItem, it re-reads
// the meta's bucket immediately before writing rather than reusing an
// earlier snapshot: an item belonging to the same list can land in the
// same bucket as its meta record (bucket placement is per-key, not
// per-list), so writing back a stale snapshot taken before item writes
// in this same call would silently erase or revert them.
func (s *Store) writeMeta(name string, meta *record.Record) error {
	metaKey := record.ListMetaKey(name)
	bucketID := bucket.Of(metaKey)
	recs := s.buckets.Read(bucketID)
	recs[metaKey] = meta
	return s.buckets.Write(bucketID, recs)
}

// checkListType returns WrongTypeError if meta exists, is live, and its
// type is not list. A missing or tombstoned meta is not an error: the
// caller is about to create or has nothing to read.
func checkListType(key string, meta *record.Record) error {
	if meta != nil && meta.Live() && meta.Type != valuecodec.TypeList {
		return &kverrors.WrongTypeError{Key: key, Expected: string(valuecodec.TypeList), Actual: string(meta.Type)}
	}
	return nil
}

// readItem must be called with s.mu held.
func (s *Store) readItem(name, id string) *record.Record {
	itemKey := record.ListItemKey(name, id)
	recs := s.buckets.Read(bucket.Of(itemKey))
	return recs[itemKey]
}

// writeItem must be called with s.mu held.
func (s *Store) writeItem(name string, rec *record.Record) error {
	// rec.Key is already the item key for items minted by push and for
	// records read back from a bucket. A conflict loser keeps its original
	// record id under a fresh item id, so the key is derived from rec.ID
	// only when rec.Key does not already name an item of this list.
	itemKey := rec.Key
	if n, _, ok := record.ParseListItemKey(itemKey); !ok || n != name {
		itemKey = record.ListItemKey(name, rec.ID)
		rec.Key = itemKey
	}
	bucketID := bucket.Of(itemKey)
	recs := s.buckets.Read(bucketID)
	recs[itemKey] = rec
	return s.buckets.Write(bucketID, recs)
}

// liveOrder must be called with s.mu held. It returns the ids from
// meta.Order whose item record is still live, along with those records,
// skipping anything tombstoned or missing (the same filter Phase B of
// the normalizer applies on the merge path).
func (s *Store) liveOrder(name string, meta *record.Record) ([]string, map[string]*record.Record) {
	if meta == nil {
		return nil, nil
	}
	items := make(map[string]*record.Record, len(meta.Order))
	ids := make([]string, 0, len(meta.Order))
	for _, id := range meta.Order {
		rec := s.readItem(name, id)
		if rec.Live() {
			ids = append(ids, id)
			items[id] = rec
		}
	}
	return ids, items
}

func resolveIndex(i, n int) (int, bool) {
	if i < 0 {
		i = n + i
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func clampRange(start, stop, n int) (int, int) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return 0, -1
	}
	return start, stop
}

func (s *Store) decodeItem(rec *record.Record) (any, error) {
	return valuecodec.DecodeStorable(rec.Type, rec.Value)
}

// push is the shared implementation of LPush/RPush: mint one record per
// value, write each into its own bucket, then splice the new ids into the
// meta's order (left-to-right for LPush, matching how repeated single
// pushes to the head would leave the last-pushed value closest to it).
func (s *Store) push(name string, values []any, left bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.loadMeta(name)
	if err := checkListType(name, meta); err != nil {
		return 0, err
	}
	now := s.now()
	metaKey := record.ListMetaKey(name)
	if meta == nil || !meta.Live() {
		meta = &record.Record{
			ID:        record.NewID(),
			Key:       metaKey,
			Type:      valuecodec.TypeList,
			CreatedAt: now,
			UpdatedAt: now,
			Order:     []string{},
		}
	} else {
		meta.UpdatedAt = now
	}

	for _, v := range values {
		id := record.NewID()
		item := record.NewScalar(id, record.ListItemKey(name, id), v, now)
		if err := s.writeItem(name, item); err != nil {
			return 0, fmt.Errorf("push %q: %w", name, err)
		}
		if left {
			meta.Order = append([]string{id}, meta.Order...)
		} else {
			meta.Order = append(meta.Order, id)
		}
	}

	if err := s.writeMeta(name, meta); err != nil {
		return 0, fmt.Errorf("push %q: %w", name, err)
	}
	s.scheduleChange("lpush")
	return len(meta.Order), nil
}

// LPush inserts values at the head of list name, one at a time (so the
// last value in values ends up closest to the head), and returns the new
// length.
func (s *Store) LPush(name string, values ...any) (int, error) {
	return s.push(name, values, true)
}

// RPush inserts values at the tail of list name, in order, and returns
// the new length.
func (s *Store) RPush(name string, values ...any) (int, error) {
	return s.push(name, values, false)
}

// pop is the shared implementation of LPop/RPop.
func (s *Store) pop(name string, count int, left bool) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.loadMeta(name)
	if err := checkListType(name, meta); err != nil {
		return nil, err
	}
	if meta == nil || !meta.Live() {
		if count > 1 {
			return []any{}, nil
		}
		return nil, nil
	}

	ids, items := s.liveOrder(name, meta)
	if len(ids) == 0 {
		if count > 1 {
			return []any{}, nil
		}
		return nil, nil
	}
	if count <= 0 {
		count = 1
	}
	if count > len(ids) {
		count = len(ids)
	}

	var popped []string
	if left {
		popped = append([]string{}, ids[:count]...)
	} else {
		popped = append([]string{}, ids[len(ids)-count:]...)
	}

	now := s.now()
	poppedSet := make(map[string]bool, len(popped))
	var values []any
	for _, id := range popped {
		poppedSet[id] = true
		item := items[id]
		item.ApplyDelete(now)
		if err := s.writeItem(name, item); err != nil {
			return nil, fmt.Errorf("pop %q: %w", name, err)
		}
		v, err := s.decodeItem(item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	newOrder := make([]string, 0, len(meta.Order)-count)
	for _, id := range meta.Order {
		if !poppedSet[id] {
			newOrder = append(newOrder, id)
		}
	}
	meta.Order = newOrder
	meta.UpdatedAt = now
	if err := s.writeMeta(name, meta); err != nil {
		return nil, fmt.Errorf("pop %q: %w", name, err)
	}
	s.scheduleChange("lpop")

	if count <= 1 {
		if len(values) == 0 {
			return nil, nil
		}
		return values[0], nil
	}
	return values, nil
}

// LPop removes and returns up to count elements from the head of name.
func (s *Store) LPop(name string, count int) (any, error) {
	return s.pop(name, count, true)
}

// RPop removes and returns up to count elements from the tail of name.
func (s *Store) RPop(name string, count int) (any, error) {
	return s.pop(name, count, false)
}

// LLen returns the number of live elements in name.
func (s *Store) LLen(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.loadMeta(name)
	if err := checkListType(name, meta); err != nil {
		return 0, err
	}
	ids, _ := s.liveOrder(name, meta)
	return len(ids), nil
}

// LRange returns the decoded values at [start, stop] (inclusive,
// negative indices count from the end, out-of-range bounds clamp).
func (s *Store) LRange(name string, start, stop int) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.loadMeta(name)
	if err := checkListType(name, meta); err != nil {
		return nil, err
	}
	ids, items := s.liveOrder(name, meta)
	from, to := clampRange(start, stop, len(ids))
	if len(ids) == 0 {
		return []any{}, nil
	}
	out := make([]any, 0, to-from+1)
	for _, id := range ids[from : to+1] {
		v, err := s.decodeItem(items[id])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// LIndex returns the decoded value at position i (negative counts from
// the end), and false if i is out of range.
func (s *Store) LIndex(name string, i int) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.loadMeta(name)
	if err := checkListType(name, meta); err != nil {
		return nil, false, err
	}
	ids, items := s.liveOrder(name, meta)
	idx, ok := resolveIndex(i, len(ids))
	if !ok {
		return nil, false, nil
	}
	v, err := s.decodeItem(items[ids[idx]])
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// LSet overwrites the value at position i (negative counts from the
// end). An out-of-range index returns kverrors.ErrIndexOutOfRange.
func (s *Store) LSet(name string, i int, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.loadMeta(name)
	if err := checkListType(name, meta); err != nil {
		return err
	}
	ids, items := s.liveOrder(name, meta)
	idx, ok := resolveIndex(i, len(ids))
	if !ok {
		return kverrors.ErrIndexOutOfRange
	}
	item := items[ids[idx]]
	item.ApplyWrite(v, s.now())
	if err := s.writeItem(name, item); err != nil {
		return fmt.Errorf("lset %q: %w", name, err)
	}
	s.scheduleChange("lset")
	return nil
}

// LItems returns the live item records of name in order, for debugging.
func (s *Store) LItems(name string) ([]*record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.loadMeta(name)
	if err := checkListType(name, meta); err != nil {
		return nil, err
	}
	ids, items := s.liveOrder(name, meta)
	out := make([]*record.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, items[id])
	}
	return out, nil
}

// LMeta returns the raw list meta record, or nil if name has never been
// pushed to.
func (s *Store) LMeta(name string) *record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := s.loadMeta(name)
	return meta
}
