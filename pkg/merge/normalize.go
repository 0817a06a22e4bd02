package merge

import (
	"sort"

	"github.com/bobboyms/git-storage/pkg/record"
)

// PendingLoser is a list item emitted by ListItem that must be reinserted
// into its list by the normalizer, under a fresh item id.
type PendingLoser struct {
	ListName     string
	WinnerItemID string
	Loser        *record.Record
}

// newIDFunc lets callers (and tests) control id minting deterministically.
type newIDFunc func() string

// ApplyLosers runs normalizer Phase A over all, the complete merged record
// set keyed by full key (spanning every bucket, since a list's meta and
// item keys can land in different buckets). Losers sharing a winner are
// applied in reverse (updatedAt, id) order so that, once inserted
// immediately after the winner, they read back in ascending order.
func ApplyLosers(all map[string]*record.Record, pending []PendingLoser, newID newIDFunc) {
	sort.SliceStable(pending, func(i, j int) bool {
		a, b := pending[i].Loser, pending[j].Loser
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return a.ID > b.ID
	})

	for _, p := range pending {
		newItemID := newID()
		newKey := record.ListItemKey(p.ListName, newItemID)

		loserCopy := *p.Loser
		loserCopy.Key = newKey
		loserCopy.ConflictLoser = &record.ConflictLoser{WinnerID: p.WinnerItemID}
		markValueAsConflictLoser(&loserCopy)

		all[newKey] = &loserCopy

		metaKey := record.ListMetaKey(p.ListName)
		meta, ok := all[metaKey]
		if !ok || !meta.Live() {
			continue
		}
		meta.Order = insertAfter(meta.Order, p.WinnerItemID, newItemID)
	}
}

// markValueAsConflictLoser stamps __conflictLoser:true onto an object
// value, so a consumer reading only the value (not the record metadata)
// can still notice.
func markValueAsConflictLoser(r *record.Record) {
	if r.Type != "object" {
		return
	}
	obj, ok := r.Value.(map[string]any)
	if !ok {
		return
	}
	cloned := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		cloned[k] = v
	}
	cloned["__conflictLoser"] = true
	r.Value = cloned
}

// insertAfter inserts id immediately after anchor in order, or appends if
// anchor is not present.
func insertAfter(order []string, anchor, id string) []string {
	for i, v := range order {
		if v == anchor {
			out := make([]string, 0, len(order)+1)
			out = append(out, order[:i+1]...)
			out = append(out, id)
			out = append(out, order[i+1:]...)
			return out
		}
	}
	return append(append([]string{}, order...), id)
}

// NormalizeOrder runs normalizer Phase B for one list: it reconciles the
// meta's order array against the actual surviving item records, healing
// drift from tombstoned or missing items and appending anything live that
// fell out of order. It returns true if the order changed, so the caller
// knows whether to persist the meta record.
func NormalizeOrder(all map[string]*record.Record, listName string) bool {
	metaKey := record.ListMetaKey(listName)
	meta, ok := all[metaKey]
	if !ok || !meta.Live() {
		return false
	}

	liveItems := map[string]*record.Record{}
	for key, r := range all {
		name, itemID, isItem := record.ParseListItemKey(key)
		if !isItem || name != listName || !r.Live() {
			continue
		}
		liveItems[itemID] = r
	}

	inOrder := map[string]bool{}
	filtered := make([]string, 0, len(meta.Order))
	for _, id := range meta.Order {
		if _, ok := liveItems[id]; ok {
			filtered = append(filtered, id)
			inOrder[id] = true
		}
	}

	var losers, others []string
	for id, r := range liveItems {
		if inOrder[id] {
			continue
		}
		if r.ConflictLoser != nil {
			losers = append(losers, id)
		} else {
			others = append(others, id)
		}
	}

	sortByUpdatedThenID(losers, liveItems)
	sortByUpdatedThenID(others, liveItems)

	for _, id := range losers {
		winnerID := liveItems[id].ConflictLoser.WinnerID
		filtered = insertAfterOrAppendIfAbsent(filtered, winnerID, id)
	}
	filtered = append(filtered, others...)

	if equalOrder(meta.Order, filtered) {
		return false
	}
	meta.Order = filtered
	return true
}

func sortByUpdatedThenID(ids []string, items map[string]*record.Record) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := items[ids[i]], items[ids[j]]
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt < b.UpdatedAt
		}
		return a.ID < b.ID
	})
}

func insertAfterOrAppendIfAbsent(order []string, anchor, id string) []string {
	for i, v := range order {
		if v == anchor {
			out := make([]string, 0, len(order)+1)
			out = append(out, order[:i+1]...)
			out = append(out, id)
			out = append(out, order[i+1:]...)
			return out
		}
	}
	return append(order, id)
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
