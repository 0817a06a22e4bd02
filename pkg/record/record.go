// Package record defines the single record type every user key, list meta
// key, and list item key is stored as, plus the key-router helpers that
// encode and decode the list-internal key forms.
package record

import (
	"regexp"
	"strings"

	"github.com/bobboyms/git-storage/pkg/valuecodec"
	"github.com/google/uuid"
)

// ConflictLoser marks a list item record that lost a per-item merge and
// was re-added as a new item under a fresh id.
type ConflictLoser struct {
	WinnerID string `json:"winnerId"`
}

// Record is the universal persisted unit: one per user key, one per list
// meta key, one per list item key.
type Record struct {
	ID            string         `json:"id"`
	Key           string         `json:"key"`
	Type          valuecodec.Type `json:"type"`
	CreatedAt     int64          `json:"createdAt"`
	UpdatedAt     int64          `json:"updatedAt"`
	DeletedAt     *int64         `json:"deletedAt"`
	ConflictLoser *ConflictLoser `json:"conflictLoser,omitempty"`
	Value         any            `json:"value"`

	// Order only populated on list meta records (Type == valuecodec.TypeList).
	Order []string `json:"order,omitempty"`
}

// Live reports whether r is not a tombstone. nil is considered not live.
func (r *Record) Live() bool {
	return r != nil && r.DeletedAt == nil
}

// NewScalar creates a fresh record for a first write to key at time now.
func NewScalar(id, key string, v any, now int64) *Record {
	t := valuecodec.Infer(v)
	return &Record{
		ID:        id,
		Key:       key,
		Type:      t,
		CreatedAt: now,
		UpdatedAt: now,
		Value:     valuecodec.EncodeStorable(t, v),
	}
}

// ApplyWrite mutates r in place to reflect a new value at time now,
// preserving ID and CreatedAt and clearing any prior tombstone.
func (r *Record) ApplyWrite(v any, now int64) {
	t := valuecodec.Infer(v)
	r.Type = t
	r.Value = valuecodec.EncodeStorable(t, v)
	r.UpdatedAt = now
	r.DeletedAt = nil
}

// ApplyDelete marks r as a tombstone at time now. The value is retained
// so it remains visible to the merger.
func (r *Record) ApplyDelete(now int64) {
	r.UpdatedAt = now
	r.DeletedAt = &now
}

// NewID mints a fresh record/list-item id.
func NewID() string {
	return uuid.NewString()
}

const (
	listPrefix = "list:"
	itemMarker = ":item:"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ListMetaKey builds the meta key for list name.
func ListMetaKey(name string) string {
	return listPrefix + name
}

// ListItemKey builds the derived key for item itemID belonging to list name.
func ListItemKey(name, itemID string) string {
	return listPrefix + name + itemMarker + itemID
}

// IsListMetaKey reports whether key is a list meta key and returns the
// list name.
func IsListMetaKey(key string) (name string, ok bool) {
	if !strings.HasPrefix(key, listPrefix) {
		return "", false
	}
	rest := key[len(listPrefix):]
	if strings.Contains(rest, itemMarker) {
		return "", false
	}
	return rest, true
}

// ParseListItemKey decodes a list-item key, splitting on the LAST
// occurrence of the item marker so list names containing colons (or even
// the marker substring itself) disambiguate to the final segment. The
// trailing segment must be a UUID; otherwise the key is treated as an
// ordinary user key.
func ParseListItemKey(key string) (listName, itemID string, ok bool) {
	if !strings.HasPrefix(key, listPrefix) {
		return "", "", false
	}
	rest := key[len(listPrefix):]
	idx := strings.LastIndex(rest, itemMarker)
	if idx < 0 {
		return "", "", false
	}
	name := rest[:idx]
	id := rest[idx+len(itemMarker):]
	if !uuidPattern.MatchString(id) {
		return "", "", false
	}
	return name, id, true
}

// IsListItem reports whether key parses as a list item key at all.
func IsListItem(key string) bool {
	_, _, ok := ParseListItemKey(key)
	return ok
}
