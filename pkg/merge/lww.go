// Package merge implements the deterministic conflict resolution rules
// that make the sync coordinator's repeated merges converge: plain
// last-write-wins for scalar records, and a tombstone-aware variant for
// list items that preserves losers instead of discarding them.
package merge

import "github.com/bobboyms/git-storage/pkg/record"

// updatedAt treats a nil/non-finite timestamp as 0, matching spec's LWW rule.
func updatedAt(r *record.Record) int64 {
	if r == nil {
		return 0
	}
	return r.UpdatedAt
}

// winsOver reports whether candidate wins over current under LWW:
// strictly newer updatedAt wins; ties break on lexicographically
// greater-or-equal id (stable, deterministic), so an equal id also wins.
func winsOver(candidate, current *record.Record) bool {
	ca, cu := updatedAt(candidate), updatedAt(current)
	if ca != cu {
		return ca > cu
	}
	return candidate.ID >= current.ID
}

// LWW merges a pair of records for the same key. Absent records are
// represented as nil. It returns nil only if both inputs are nil.
func LWW(local, remote *record.Record) *record.Record {
	switch {
	case local == nil && remote == nil:
		return nil
	case local == nil:
		return remote
	case remote == nil:
		return local
	}
	if winsOver(remote, local) {
		return remote
	}
	return local
}
