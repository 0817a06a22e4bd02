// Package syncer implements the sync coordinator, the debounce/interval
// scheduler, and the history compactor described in spec.md §4.6-4.8: the
// single-flight pipeline that fetches the remote, merges it against the
// local working tree bucket by bucket, normalizes any affected lists, and
// commits + force-pushes the result.
package syncer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobboyms/git-storage/pkg/bucket"
	"github.com/bobboyms/git-storage/pkg/gitrepo"
	"github.com/bobboyms/git-storage/pkg/kverrors"
	"github.com/bobboyms/git-storage/pkg/merge"
	"github.com/bobboyms/git-storage/pkg/record"
	"github.com/rs/zerolog"
)

// State is the coordinator's three-state machine.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Result is what Sync returns to its caller.
type Result struct {
	Success bool
	Error   string
}

// Status is the snapshot GetStatus exposes.
type Status struct {
	State     State
	InFlight  bool
	LastAt    int64
	LastError string
}

// Clock lets tests control "now" deterministically; production code uses
// realClock.
type Clock func() int64

func realClock() int64 { return time.Now().UnixMilli() }

// Options configures one Coordinator instance.
type Options struct {
	Branch          string
	RemoteURL       string
	Username        string
	Token           string
	HistoryEnabled  bool
	WriteCountLimit uint64
	WriteByteLimit  uint64
}

// Coordinator owns the sync pipeline for one working directory.
type Coordinator struct {
	repo    gitrepo.Repo
	buckets *bucket.Store
	opts    Options
	log     zerolog.Logger
	clock   Clock
	bus     *bus

	mu    sync.Mutex
	state State
	inFlight  bool
	lastAt    int64
	lastError string
}

// New builds a Coordinator. repo must already be constructed against the
// same dataDir as buckets.
func New(repo gitrepo.Repo, buckets *bucket.Store, opts Options, log zerolog.Logger) *Coordinator {
	if opts.Username == "" {
		opts.Username = "git"
	}
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	repo.SetAuth(opts.Username, opts.Token)
	return &Coordinator{repo: repo, buckets: buckets, opts: opts, log: log, clock: realClock, bus: newBus()}
}

// On subscribes handler to a lifecycle event and returns an unsubscribe func.
func (c *Coordinator) On(name EventName, handler Handler) Unsubscribe {
	return c.bus.On(name, handler)
}

// GetStatus returns a snapshot of the coordinator's state machine.
func (c *Coordinator) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state,
		InFlight:  c.inFlight,
		LastAt:    c.lastAt,
		LastError: c.lastError,
	}
}

// start attempts to claim the single-flight slot. It returns false without
// any side effect if a round is already in progress.
func (c *Coordinator) start(reason string) bool {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return false
	}
	c.inFlight = true
	c.state = StateSyncing
	c.mu.Unlock()

	c.bus.emit(EventSyncStart, Event{At: c.clock(), Reason: reason, Status: StateSyncing})
	return true
}

func (c *Coordinator) finish(reason string, err error) Result {
	now := c.clock()

	c.mu.Lock()
	c.inFlight = false
	c.lastAt = now
	if err != nil {
		c.state = StateError
		c.lastError = err.Error()
	} else {
		c.state = StateIdle
		c.lastError = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.bus.emit(EventSyncError, Event{At: now, Reason: reason, Status: StateError})
		return Result{Success: false, Error: err.Error()}
	}
	c.bus.emit(EventSyncFinish, Event{At: now, Reason: reason, Status: StateIdle})
	return Result{Success: true}
}

// Sync runs one pipeline round. It is single-flight: a call observing a
// round already in progress returns immediately without mutating state or
// emitting events.
func (c *Coordinator) Sync(reason string) Result {
	if !c.start(reason) {
		return Result{Success: false, Error: kverrors.ErrSyncInFlight.Error()}
	}

	err := c.runPipeline(reason)
	if err != nil && gitrepo.IsRemoteBranchAbsent(err) {
		c.log.Debug().Err(err).Msg("remote branch absent, bootstrapping instead")
		err = c.bootstrap(reason)
	}

	result := c.finish(reason, err)
	if result.Success {
		if compactErr := runCompaction(c.repo, c.buckets, c.opts, c.log); compactErr != nil {
			c.log.Warn().Err(compactErr).Msg("history compaction failed")
		}
	}
	return result
}

func (c *Coordinator) runPipeline(reason string) error {
	if err := c.repo.EnsureInitialized(c.opts.Branch); err != nil {
		return fmt.Errorf("ensure repo: %w", err)
	}
	if err := c.repo.EnsureRemote(c.opts.RemoteURL); err != nil {
		return fmt.Errorf("ensure remote: %w", err)
	}
	if err := c.repo.EnsureBranch(c.opts.Branch); err != nil {
		return fmt.Errorf("ensure branch: %w", err)
	}
	if c.repo.HasRemote() {
		if err := c.repo.Fetch(c.opts.Branch); err != nil {
			if gitrepo.IsRemoteBranchAbsent(err) {
				return err
			}
			return fmt.Errorf("fetch: %w", err)
		}
	}

	if err := c.mergeAll(); err != nil {
		return fmt.Errorf("merge: %w", err)
	}

	changed, err := c.repo.StageAll()
	if err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	if changed {
		if err := c.repo.Commit("sync: " + reason); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	if c.repo.HasRemote() {
		if err := c.repo.Push(c.opts.Branch, true); err != nil {
			return fmt.Errorf("push: %w", err)
		}
	}
	return nil
}

// bootstrap is the fallback when the remote branch doesn't exist yet: skip
// merge entirely and push the local state to create the branch.
func (c *Coordinator) bootstrap(reason string) error {
	changed, err := c.repo.StageAll()
	if err != nil {
		return fmt.Errorf("bootstrap stage: %w", err)
	}
	if changed {
		if err := c.repo.Commit("sync: " + reason); err != nil {
			return fmt.Errorf("bootstrap commit: %w", err)
		}
	}
	if c.repo.HasRemote() {
		if err := c.repo.Push(c.opts.Branch, true); err != nil {
			return fmt.Errorf("bootstrap push: %w", err)
		}
	}
	return nil
}

// mergeAll implements pipeline steps 4-7: enumerate buckets from both
// sides, merge record-by-record, apply pending list-item losers, normalize
// every touched list's order, and write merged buckets back.
func (c *Coordinator) mergeAll() error {
	localBuckets, err := c.buckets.ListBuckets()
	if err != nil {
		return err
	}
	var remoteBuckets []string
	if c.repo.HasRemote() {
		remoteBuckets, err = c.repo.ListRemoteBucketFiles(c.opts.Branch)
		if err != nil {
			return err
		}
	}

	bucketIDs := unionBucketIDs(localBuckets, remoteBuckets)

	all := map[string]*record.Record{}
	bucketOf := map[string]string{}
	var pending []merge.PendingLoser
	touchedLists := map[string]bool{}

	for _, id := range bucketIDs {
		localRecs := c.buckets.Read(id)
		remoteRecs := c.readRemoteBucket(id)

		keys := unionKeys(localRecs, remoteRecs)
		for _, key := range keys {
			local, remote := localRecs[key], remoteRecs[key]

			if listName, itemID, isItem := record.ParseListItemKey(key); isItem {
				res := merge.ListItem(local, remote)
				if res.Winner != nil {
					all[key] = res.Winner
					bucketOf[key] = id
				}
				if res.Loser != nil {
					pending = append(pending, merge.PendingLoser{
						ListName:     listName,
						WinnerItemID: itemID,
						Loser:        res.Loser,
					})
				}
				touchedLists[listName] = true
				continue
			}

			winner := merge.LWW(local, remote)
			if winner != nil {
				all[key] = winner
				bucketOf[key] = id
				if name, ok := record.IsListMetaKey(key); ok {
					touchedLists[name] = true
				}
			}
		}
	}

	merge.ApplyLosers(all, pending, record.NewID)
	for key := range all {
		if _, ok := bucketOf[key]; !ok {
			// Losers were just minted under a fresh item key, so they
			// don't have a bucket assignment from the merge loop above.
			bucketOf[key] = bucket.Of(key)
		}
	}
	for name := range touchedLists {
		merge.NormalizeOrder(all, name)
	}

	return c.writeBack(all, bucketOf)
}

func (c *Coordinator) readRemoteBucket(id string) map[string]*record.Record {
	if !c.repo.HasRemote() {
		return map[string]*record.Record{}
	}
	data, err := c.repo.ReadRemoteFile(c.opts.Branch, "data/"+id+".json")
	if err != nil {
		return map[string]*record.Record{}
	}
	out := map[string]*record.Record{}
	if err := unmarshalBucket(data, &out); err != nil {
		c.log.Warn().Err(err).Str("bucket", id).Msg("remote bucket is corrupt, treating as empty")
		return map[string]*record.Record{}
	}
	return out
}

func (c *Coordinator) writeBack(all map[string]*record.Record, bucketOf map[string]string) error {
	grouped := map[string]map[string]*record.Record{}
	for key, rec := range all {
		id := bucketOf[key]
		if grouped[id] == nil {
			grouped[id] = map[string]*record.Record{}
		}
		grouped[id][key] = rec
	}
	for id, recs := range grouped {
		if err := c.buckets.Write(id, recs); err != nil {
			return fmt.Errorf("write bucket %s: %w", id, err)
		}
	}
	return nil
}

func unionBucketIDs(a, b []string) []string {
	set := map[string]bool{}
	for _, id := range a {
		set[id] = true
	}
	for _, f := range b {
		id := f
		if len(id) > 5 && id[:5] == "data/" {
			id = id[5:]
		}
		if len(id) > 5 && id[len(id)-5:] == ".json" {
			id = id[:len(id)-5]
		}
		set[id] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func unionKeys(a, b map[string]*record.Record) []string {
	set := map[string]bool{}
	for k := range a {
		set[k] = true
	}
	for k := range b {
		set[k] = true
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
