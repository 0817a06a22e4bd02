package merge

import "github.com/bobboyms/git-storage/pkg/record"

// ListItemResult is the outcome of merging one list item record pair: the
// record that occupies the key afterwards, and optionally a loser that
// must be reinserted elsewhere in the list by the normalizer.
type ListItemResult struct {
	Winner *record.Record
	Loser  *record.Record
}

// ListItem merges a pair of list-item records for the same derived key,
// applying the delete-vs-update exception: a live record always beats a
// tombstone regardless of timestamps, since an update is assumed to
// supersede an earlier, possibly stale, delete.
func ListItem(local, remote *record.Record) ListItemResult {
	switch {
	case local == nil && remote == nil:
		return ListItemResult{}
	case local == nil:
		return ListItemResult{Winner: remote}
	case remote == nil:
		return ListItemResult{Winner: local}
	}

	localLive, remoteLive := local.Live(), remote.Live()

	switch {
	case !localLive && !remoteLive:
		// Both tombstoned: ordinary LWW, no loser surfaces from a dead item.
		return ListItemResult{Winner: LWW(local, remote)}
	case localLive != remoteLive:
		// One tombstoned, one live: the live record wins regardless of
		// timestamp. No loser, since a delete that lost carries no value
		// worth preserving.
		if localLive {
			return ListItemResult{Winner: local}
		}
		return ListItemResult{Winner: remote}
	}

	// Both live: LWW picks the winner; if the records actually differ, the
	// loser is queued for reinsertion by the normalizer.
	winner := LWW(local, remote)
	loser := local
	if winner == local {
		loser = remote
	}
	if winner.UpdatedAt == loser.UpdatedAt && winner.ID == loser.ID {
		return ListItemResult{Winner: winner}
	}
	return ListItemResult{Winner: winner, Loser: loser}
}
