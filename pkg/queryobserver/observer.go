package queryobserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/resyncio/querysync/pkg/netstatus"
	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/querykey"
)

// Status is the observer's coarse lifecycle state, derived from its data
// and error fields rather than tracked independently.
type Status int

const (
	// Pending means no data and no error have ever been published.
	Pending Status = iota
	// Success means data has been published (placeholder data counts).
	Success
	// Error means the most recent attempt failed and takes precedence
	// over Success even when prior data is still held.
	Error
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent, immutable view of an observer's published
// state at one point in time, the payload handed to OnChange and
// returned by Observer.Snapshot.
type Snapshot struct {
	Data              any
	Err               error
	Status            Status
	FetchStatus       querycache.FetchStatus
	FailureCount      int
	FailureReason     error
	IsPlaceholderData bool
	IsRefetchError    bool
	DataUpdatedAt     time.Time
	ErrorUpdatedAt    time.Time
}

// IsPending reports Status == Pending.
func (s Snapshot) IsPending() bool { return s.Status == Pending }

// IsSuccess reports Status == Success.
func (s Snapshot) IsSuccess() bool { return s.Status == Success }

// IsError reports Status == Error.
func (s Snapshot) IsError() bool { return s.Status == Error }

// IsFetching reports the observer currently owns or awaits a fetch.
func (s Snapshot) IsFetching() bool { return s.FetchStatus == querycache.Fetching }

// IsPaused reports the observer is withholding a fetch for network
// reasons.
func (s Snapshot) IsPaused() bool { return s.FetchStatus == querycache.Paused }

// IsLoading reports a first-ever fetch is in flight or paused.
func (s Snapshot) IsLoading() bool {
	return s.IsPending() && (s.IsFetching() || s.IsPaused())
}

// IsFetchingBackground reports a refetch is in flight while prior data
// is still displayed.
func (s Snapshot) IsFetchingBackground() bool {
	return s.IsFetching() && s.Data != nil
}

// Observer drives fetches of a single key against a querycache.Client:
// freshness checks, network-mode gating, retry with backoff, and
// focus/reconnect/interval-triggered background refetch.
type Observer struct {
	client *querycache.Client
	online netstatus.Manager
	focus  netstatus.Manager
	opts   Options

	mu   sync.Mutex
	snap Snapshot

	// generation increments on Reset/Dispose; a running Execute checks
	// it after every suspension point and abandons itself if stale,
	// so a disposed or reset observer never clobbers fresher state.
	generation int
	disposed   bool

	execMu sync.Mutex // serializes concurrent Execute calls on this observer

	stopInterval  func()
	cleanupOnline func()
	cleanupFocus  func()
}

// New constructs an Observer for opts.Key, applying initial/placeholder
// data per the initialization rules, and registers it as an active
// observer with client. online and focus may be nil, in which case
// netstatus.AlwaysOnline()/AlwaysFocused() are used.
func New(client *querycache.Client, online, focus netstatus.Manager, opts Options) *Observer {
	if online == nil {
		online = netstatus.AlwaysOnline()
	}
	if focus == nil {
		focus = netstatus.AlwaysFocused()
	}
	opts = opts.withFallbacks()

	o := &Observer{client: client, online: online, focus: focus, opts: opts}
	o.initialize()

	client.RegisterActiveObserver(opts.Key, o)

	if opts.RefetchOnReconnect {
		o.cleanupOnline = online.OnChange(func(v bool) {
			if v {
				o.onReconnect()
			}
		})
	}
	if opts.RefetchOnWindowFocus {
		o.cleanupFocus = focus.OnChange(func(v bool) {
			if v {
				o.onFocus()
			}
		})
	}
	if opts.RefetchInterval > 0 {
		o.startInterval()
	}

	return o
}

func (o *Observer) initialize() {
	initial := o.opts.InitialData
	if initial == nil && o.opts.InitialDataFn != nil {
		initial = o.opts.InitialDataFn()
	}

	if initial != nil {
		ts := o.opts.InitialDataUpdatedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		o.client.SeedEntry(o.opts.Key, initial, ts)
		o.mu.Lock()
		o.snap = Snapshot{Data: initial, Status: Success, DataUpdatedAt: ts}
		o.mu.Unlock()
		return
	}

	placeholder := o.opts.PlaceholderData
	if placeholder == nil && o.opts.PlaceholderFn != nil {
		placeholder = o.opts.PlaceholderFn(nil, nil)
	}
	if placeholder != nil {
		o.mu.Lock()
		o.snap = Snapshot{Data: placeholder, Status: Success, IsPlaceholderData: true}
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	o.snap = Snapshot{Status: Pending}
	o.mu.Unlock()
}

// Snapshot returns the observer's current published state.
func (o *Observer) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// mutateSnapshot applies mutate under lock and returns the resulting
// snapshot without notifying OnChange, used where a transition must stay
// invisible to consumers (CancelOptions.Silent).
func (o *Observer) mutateSnapshot(mutate func(*Snapshot)) Snapshot {
	o.mu.Lock()
	mutate(&o.snap)
	snap := o.snap
	o.mu.Unlock()
	return snap
}

func (o *Observer) publish(mutate func(*Snapshot)) {
	snap := o.mutateSnapshot(mutate)
	if o.opts.OnChange != nil {
		o.opts.OnChange(snap)
	}
}

func (o *Observer) setFetchStatus(fs querycache.FetchStatus) {
	o.publish(func(s *Snapshot) { s.FetchStatus = fs })
}

// ActiveObserver implementation, so the client's filter algebra and
// lifecycle operations (invalidate/refetch/reset) can reach this
// observer through its cache entry registration.

// FetchStatus implements querycache.ActiveObserver.
func (o *Observer) FetchStatus() querycache.FetchStatus { return o.Snapshot().FetchStatus }

// StaleWindow implements querycache.ActiveObserver.
func (o *Observer) StaleWindow() time.Duration { return o.opts.StaleWindow }

// Enabled implements querycache.ActiveObserver.
func (o *Observer) Enabled() bool { return o.opts.Enabled }

// Refetch implements querycache.ActiveObserver. It runs Execute
// synchronously on the calling goroutine; errors are only visible via the
// observer's own published Err field, matching the fire-and-forget nature
// of a triggered refetch. Client.InvalidateQueries/RefetchQueries call it
// from a worker pool goroutine rather than spawning one of their own, so
// Refetch itself must not add another layer of concurrency.
func (o *Observer) Refetch(ctx context.Context, background bool) {
	_ = o.Execute(ctx)
}

// Reset implements querycache.ActiveObserver: drop back to the
// initial/placeholder view computed at construction time.
func (o *Observer) Reset() {
	o.mu.Lock()
	o.generation++
	o.mu.Unlock()
	o.initialize()
}

func (o *Observer) onReconnect() {
	if !o.opts.Enabled {
		return
	}
	go func() { _ = o.Execute(context.Background()) }()
}

func (o *Observer) onFocus() {
	if !o.opts.Enabled || o.Snapshot().IsFetching() {
		return
	}
	snap := o.client.GetEntry(o.opts.Key).Snapshot()
	if o.isFresh(snap) {
		return
	}
	go func() { _ = o.Execute(context.Background()) }()
}

func (o *Observer) startInterval() {
	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(o.opts.RefetchInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				if o.opts.Enabled && !o.Snapshot().IsFetching() {
					_ = o.Execute(context.Background())
				}
			}
		}
	}()
	o.stopInterval = func() { close(stop) }
}

// Dispose unregisters the observer from its client and tears down its
// focus/reconnect/interval subscriptions. It must be called exactly
// once; a disposed observer's in-flight Execute abandons its result
// without publishing it.
func (o *Observer) Dispose() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	o.generation++
	o.mu.Unlock()

	o.client.UnregisterActiveObserver(o.opts.Key, o)
	if o.cleanupOnline != nil {
		o.cleanupOnline()
	}
	if o.cleanupFocus != nil {
		o.cleanupFocus()
	}
	if o.stopInterval != nil {
		o.stopInterval()
	}
}

func (o *Observer) isFresh(snap querycache.Snapshot) bool {
	return snap.HasData && snap.Err == nil && o.opts.StaleWindow > 0 &&
		time.Since(snap.FetchTime) <= o.opts.StaleWindow
}

func (o *Observer) currentGeneration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

func (o *Observer) stale(gen int) bool {
	return o.currentGeneration() != gen
}

// Execute runs the observer's fetch protocol once: the enabled gate, the
// freshness check, the network-mode gate, and (if a fetch is actually
// needed) the retry loop. It is safe to call concurrently. Concurrent
// calls on one observer serialize on execMu: a second Execute arriving
// mid-fetch waits for the first to return and then runs the protocol
// again, fetching a second time unless the entry is fresh by then.
// Different observers sharing a key share the entry's inFlight through
// the querycache-level deduplication.
func (o *Observer) Execute(ctx context.Context) error {
	o.execMu.Lock()
	defer o.execMu.Unlock()

	gen := o.currentGeneration()

	if !o.opts.Enabled {
		o.setFetchStatus(querycache.Idle)
		return nil
	}

	entrySnap := o.client.GetEntry(o.opts.Key).Snapshot()
	if o.isFresh(entrySnap) {
		o.publish(func(s *Snapshot) {
			s.Data = entrySnap.Data
			s.Err = nil
			s.Status = Success
			s.IsPlaceholderData = false
			s.DataUpdatedAt = entrySnap.FetchTime
		})
		return nil
	}

	switch o.opts.NetworkMode {
	case Online, OfflineFirst:
		if !o.online.Value() {
			if entrySnap.HasData {
				o.publish(func(s *Snapshot) {
					s.Data = entrySnap.Data
					if s.Err == nil {
						s.Status = Success
					}
					s.FetchStatus = querycache.Paused
				})
			} else {
				o.setFetchStatus(querycache.Paused)
			}
			if o.opts.NetworkMode == Online {
				return nil
			}
			if entrySnap.HasData {
				return nil
			}
		}
	case Always:
		// proceeds unconditionally
	}

	return o.retryLoop(ctx, gen)
}

func (o *Observer) retryLoop(ctx context.Context, gen int) error {
	attemptIndex := -1

	for {
		if o.stale(gen) {
			return nil
		}

		if !o.online.Value() && o.opts.NetworkMode != Always {
			o.setFetchStatus(querycache.Paused)
			if err := o.awaitOnline(ctx); err != nil {
				return o.handleCancellation(err)
			}
		}

		o.setFetchStatus(querycache.Fetching)

		result, err := o.client.Fetch(ctx, o.opts.Key, o.opts.Meta, o.opts.FetchFn, o.opts.StaleWindow)

		if o.stale(gen) {
			return nil
		}

		if err == nil {
			o.publish(func(s *Snapshot) {
				s.Data = result
				s.Err = nil
				s.Status = Success
				s.IsPlaceholderData = false
				s.IsRefetchError = false
				s.DataUpdatedAt = time.Now()
				s.FetchStatus = querycache.Idle
			})
			return nil
		}

		if errors.Is(err, context.Canceled) {
			return o.handleCancellation(err)
		}

		attemptIndex++
		hadData := o.Snapshot().Data != nil

		o.publish(func(s *Snapshot) {
			s.FailureCount++
			s.FailureReason = err
		})

		if !o.shouldRetry(attemptIndex, err) {
			o.publish(func(s *Snapshot) {
				s.Err = err
				s.Status = Error
				s.IsRefetchError = hadData
				s.ErrorUpdatedAt = time.Now()
				s.FetchStatus = querycache.Idle
			})
			return err
		}

		delay := o.opts.RetryDelay(attemptIndex)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return o.handleCancellation(ctx.Err())
		}
	}
}

func (o *Observer) shouldRetry(attemptIndex int, err error) bool {
	if o.opts.RetryPredicate != nil {
		return o.opts.RetryPredicate(attemptIndex, err)
	}
	if o.opts.Retry == Unlimited {
		return true
	}
	return attemptIndex < o.opts.Retry
}

// awaitOnline blocks until the online manager reports true or ctx is
// cancelled.
func (o *Observer) awaitOnline(ctx context.Context) error {
	if o.online.Value() {
		return nil
	}
	done := make(chan struct{})
	cleanup := o.online.OnChange(func(v bool) {
		if v {
			close(done)
		}
	})
	defer cleanup()

	if o.online.Value() {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleCancellation interprets a cancellation reaching retryLoop. A plain
// context.Canceled (the caller's own ctx, not a CancelQueries call) always
// reverts: fetchStatus goes idle, prior data is kept, and the error is
// swallowed. A *querycache.CancelSignal carries the CancelOptions a
// CancelQueries call specified: Revert behaves like the plain case;
// Revert=false surfaces the cancellation as the observer's error state
// instead. Silent additionally suppresses the OnChange notification for
// this transition (fetchStatus still returns to idle internally, so
// filter queries see it correctly).
func (o *Observer) handleCancellation(err error) error {
	var sig *querycache.CancelSignal
	if errors.As(err, &sig) {
		mutate := func(s *Snapshot) {
			s.FetchStatus = querycache.Idle
			if !sig.Revert {
				s.Err = sig.Err
				s.Status = Error
				s.ErrorUpdatedAt = time.Now()
			}
		}
		if sig.Silent {
			o.mutateSnapshot(mutate)
		} else {
			o.publish(mutate)
		}
		if sig.Revert {
			return nil
		}
		return sig.Err
	}

	o.publish(func(s *Snapshot) { s.FetchStatus = querycache.Idle })
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Key returns the observer's configured key, for hosts that need to
// correlate an observer back to it (e.g. a QueriesObserver).
func (o *Observer) Key() querykey.Key { return o.opts.Key }
