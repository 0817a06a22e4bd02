package syncer

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is the hard-coded on-change debounce window from
// spec.md §4.7. spec.md §9 flags this as a candidate to expose; Scheduler
// accepts a Debounce override for exactly that reason (see DESIGN.md).
const DefaultDebounce = 10 * time.Second

// SchedulerOptions configures the two automatic triggers.
type SchedulerOptions struct {
	AutoSync            bool
	SyncOnChange        bool
	SyncIntervalMinutes int
	// Interval overrides SyncIntervalMinutes when non-zero, accepting any
	// duration instead of whole minutes. Production callers leave this
	// zero and use SyncIntervalMinutes; it exists so tests can exercise
	// the periodic trigger itself without waiting a full minute.
	Interval time.Duration
	Debounce time.Duration
}

// Scheduler owns the debounce and interval timers that fire background
// Sync calls. It never blocks a caller: OnChange only (re)arms a timer,
// and the fired goroutines are tracked through an errgroup so Close can
// wait for the last one to land.
type Scheduler struct {
	syncFn func(reason string) Result

	mu       sync.Mutex
	opts     SchedulerOptions
	debounce *time.Timer
	ticker   *time.Ticker
	tickerStop chan struct{}
	group    errgroup.Group
	closed   bool
}

// NewScheduler builds a Scheduler that fires syncFn in the background.
// Passing a Coordinator's Sync method works directly: NewScheduler(c.Sync).
// Call Configure to apply the initial options and arm the interval timer.
func NewScheduler(syncFn func(reason string) Result) *Scheduler {
	return &Scheduler{syncFn: syncFn}
}

// Configure replaces the scheduler's options, rebuilding the interval
// timer (canceling any previous one) to match. The debounce timer, if
// armed, is left running: reconfiguration doesn't forget a pending change.
func (s *Scheduler) Configure(opts SchedulerOptions) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.opts = opts
	s.rebuildIntervalLocked()
}

func (s *Scheduler) rebuildIntervalLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.tickerStop)
		s.ticker = nil
		s.tickerStop = nil
	}
	if !s.opts.AutoSync {
		return
	}
	interval := s.opts.Interval
	if interval <= 0 {
		if s.opts.SyncIntervalMinutes <= 0 {
			return
		}
		interval = time.Duration(s.opts.SyncIntervalMinutes) * time.Minute
	}

	ticker := time.NewTicker(interval)
	stop := make(chan struct{})
	s.ticker = ticker
	s.tickerStop = stop

	s.group.Go(func() error {
		for {
			select {
			case <-ticker.C:
				s.fire("interval")
			case <-stop:
				return nil
			}
		}
	})
}

// OnChange is called after every live mutation. If autoSync and
// syncOnChange are both enabled it (re)arms the debounce timer; rapid
// mutations coalesce into a single background Sync call.
func (s *Scheduler) OnChange(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.opts.AutoSync || !s.opts.SyncOnChange {
		return
	}

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.opts.Debounce, func() {
		s.fire(reason)
	})
}

// fire launches a background Sync call tracked by the errgroup so Close
// can wait for it. The result is discarded; the coordinator's own events
// and GetStatus are how a caller observes the outcome.
func (s *Scheduler) fire(reason string) {
	s.group.Go(func() error {
		s.syncFn(reason)
		return nil
	})
}

// Manual triggers an immediate foreground Sync call; it funnels through
// the same single-flight gate as the automatic triggers.
func (s *Scheduler) Manual(reason string) Result {
	return s.syncFn(reason)
}

// Close cancels any pending timers and waits for in-flight background
// syncs to finish.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.debounce != nil {
		s.debounce.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.tickerStop)
		s.ticker = nil
		s.tickerStop = nil
	}
	s.mu.Unlock()

	return s.group.Wait()
}
