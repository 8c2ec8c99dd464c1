package querycache

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/resyncio/querysync/internal/telemetry"
	"github.com/resyncio/querysync/internal/workerpool"
	"github.com/resyncio/querysync/pkg/querykey"
)

// CacheMetrics is the optional instrumentation seam a host plugs a
// concrete backend (Prometheus, OpenTelemetry, or anything else) into
// without the cache package importing any metrics library directly.
type CacheMetrics interface {
	// FetchStarted is called when a fetch begins, distinguishing a
	// dedup-joined wait from a call that actually owns the fetchFn
	// invocation.
	FetchStarted(key querykey.Key, deduped bool)
	// FetchCompleted is called when a fetch finishes, reporting how
	// long the call that owned it took and whether it failed.
	FetchCompleted(key querykey.Key, duration time.Duration, err error)
	// FetchingCountChanged is called on every edge transition of the
	// global in-flight counter (0 -> N and N -> 0).
	FetchingCountChanged(count int64)
}

type noopMetrics struct{}

func (noopMetrics) FetchStarted(querykey.Key, bool)                 {}
func (noopMetrics) FetchCompleted(querykey.Key, time.Duration, error) {}
func (noopMetrics) FetchingCountChanged(int64)                       {}

// Client is the shared entry point observers and direct callers use to
// reach the cache: deduplicated fetch-or-wait, direct get/set, default
// fetch functions keyed by the requested element type, and the
// invalidate/remove/reset/cancel/refetch lifecycle operations (see
// filter.go).
type Client struct {
	cache   *Cache
	metrics CacheMetrics
	pool    *workerpool.Pool

	fetching atomic.Int64

	defaultFetchFnsMu sync.RWMutex
	defaultFetchFns   map[reflect.Type]FetchFn

	listenersMu         sync.Mutex
	fetchingListeners   map[int]func(int64)
	invalidatedListeners map[int]func([]querykey.Key)
	refetchedListeners  map[int]func([]querykey.Key)
	cancelledListeners  map[int]func([]querykey.Key)
	nextListenerID      int
}

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithMetrics installs a CacheMetrics implementation. Without this
// option, or with a nil m, the client uses a no-op implementation.
func WithMetrics(m CacheMetrics) ClientOption {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithWorkerPool overrides the bounded pool InvalidateQueries/
// RefetchQueries use to fan background refetches out across a fixed
// number of worker goroutines. Without this option, NewClient starts one
// with workerpool.DefaultConfig().
func WithWorkerPool(p *workerpool.Pool) ClientOption {
	return func(c *Client) { c.pool = p }
}

// NewClient creates a Client backed by a fresh, empty Cache.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		cache:                NewCache(),
		metrics:              noopMetrics{},
		defaultFetchFns:      make(map[reflect.Type]FetchFn),
		fetchingListeners:    make(map[int]func(int64)),
		invalidatedListeners: make(map[int]func([]querykey.Key)),
		refetchedListeners:   make(map[int]func([]querykey.Key)),
		cancelledListeners:   make(map[int]func([]querykey.Key)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = workerpool.New(workerpool.DefaultConfig())
	}
	c.pool.Start(context.Background())
	return c
}

// Close stops the client's background worker pool, waiting up to timeout
// for queued refetches to drain before returning.
func (c *Client) Close(timeout time.Duration) {
	c.pool.Stop(timeout)
}

// RegisterDefaultFetchFn installs fn as the default fetcher for values of
// type T, used by observers constructed without an explicit fetchFn.
func RegisterDefaultFetchFn[T any](c *Client, fn func(ctx context.Context, fc FetchContext) (T, error)) {
	var zero T
	t := reflect.TypeOf(zero)
	wrapped := FetchFn(func(ctx context.Context, fc FetchContext) (any, error) {
		return fn(ctx, fc)
	})
	c.defaultFetchFnsMu.Lock()
	defer c.defaultFetchFnsMu.Unlock()
	c.defaultFetchFns[t] = wrapped
}

// defaultFetchFnFor looks up a previously registered default fetch
// function for t. The zero reflect.Type (an untyped nil) never matches.
func (c *Client) defaultFetchFnFor(t reflect.Type) (FetchFn, bool) {
	c.defaultFetchFnsMu.RLock()
	defer c.defaultFetchFnsMu.RUnlock()
	fn, ok := c.defaultFetchFns[t]
	return fn, ok
}

// GetEntry returns the cache entry for key, creating one if it doesn't
// exist yet. The entry starts out empty (no data, no error).
func (c *Client) GetEntry(key querykey.Key) *CacheEntry {
	return c.cache.GetOrCreate(key)
}

// Get returns the currently cached data and error for key without
// triggering a fetch. ok is false if the key has never been populated.
func (c *Client) Get(key querykey.Key) (data any, err error, ok bool) {
	e, found := c.cache.Get(key)
	if !found {
		return nil, nil, false
	}
	snap := e.Snapshot()
	return snap.Data, snap.Err, snap.HasData || snap.Err != nil
}

// RegisterActiveObserver records obs as an active subscriber of key's
// cache entry, creating the entry if it doesn't exist yet. A key counts
// as Active for filter purposes as long as at least one observer remains
// registered.
func (c *Client) RegisterActiveObserver(key querykey.Key, obs ActiveObserver) {
	e := c.cache.GetOrCreate(key)
	e.mu.Lock()
	e.regs[obs] = struct{}{}
	e.mu.Unlock()
}

// UnregisterActiveObserver removes obs from key's active set, if present.
func (c *Client) UnregisterActiveObserver(key querykey.Key, obs ActiveObserver) {
	e, ok := c.cache.Get(key)
	if !ok {
		return
	}
	e.mu.Lock()
	delete(e.regs, obs)
	e.mu.Unlock()
}

// Set writes data directly into the cache for key, bypassing any fetch.
// Any observer registered for key is notified via a background refetch
// is NOT triggered — Set is a pure write, matching direct cache seeding
// use (e.g. after a mutation's onSuccess).
func (c *Client) Set(key querykey.Key, data any) {
	e := c.cache.GetOrCreate(key)
	e.mu.Lock()
	e.data = data
	e.err = nil
	e.fetchTime = now()
	e.version++
	e.mu.Unlock()
}

// SeedEntry writes data into key's entry with an explicit fetchTime,
// used by QueryObserver to persist configured initial data into the
// cache at construction time (initialDataUpdatedAt).
func (c *Client) SeedEntry(key querykey.Key, data any, fetchTime time.Time) {
	e := c.cache.GetOrCreate(key)
	e.mu.Lock()
	e.data = data
	e.err = nil
	e.fetchTime = fetchTime
	e.version++
	e.mu.Unlock()
}

// now is the single time source used for fetchTime stamps, isolated here
// so tests can substitute a deterministic clock if ever needed; today it
// is always time.Now.
var now = time.Now

// Fetch runs the cache's deduplicated fetch-or-wait protocol for key:
//
//  1. If an inFlight call already exists for the entry, every caller
//     (including the one that started it) awaits the same call.
//  2. Otherwise, if the cached data is still fresh (now - fetchTime <
//     staleWindow), HasData, and the entry holds no error, it's returned
//     immediately with no call.
//  3. Otherwise, this caller becomes the owner: it installs a new
//     inFlightCall, invokes fn, commits the result, and wakes every
//     waiter.
//
// A failed fetch never clears previously held data: only err is
// updated (fetchTime keeps the time of the last success), so the data
// field always reflects the last
// successful fetch (or the initial/placeholder value an observer seeded
// it with).
func (c *Client) Fetch(ctx context.Context, key querykey.Key, meta any, fn FetchFn, staleWindow time.Duration) (any, error) {
	if fn == nil {
		if def, ok := c.defaultFetchFnFor(reflect.TypeOf(meta)); ok {
			fn = def
		} else {
			return nil, fmt.Errorf("fetch %s: %w", key, ErrNoDefaultFetchFn)
		}
	}

	e := c.cache.GetOrCreate(key)

	e.mu.Lock()
	if e.inFlight != nil {
		call := e.inFlight
		e.mu.Unlock()
		c.metrics.FetchStarted(key, true)
		return call.wait(ctx)
	}

	if e.data != nil && e.err == nil && staleWindow > 0 && now().Sub(e.fetchTime) < staleWindow {
		data := e.data
		e.mu.Unlock()
		return data, nil
	}

	callCtx, cancel := context.WithCancel(ctx)
	call := newInFlightCall(cancel)
	e.inFlight = call
	e.mu.Unlock()

	c.metrics.FetchStarted(key, false)
	c.incFetching()
	start := now()

	spanCtx, span := telemetry.StartFetchSpan(callCtx, key.String(), false)
	result, err := fn(spanCtx, FetchContext{Key: key, Meta: meta})
	if err != nil {
		telemetry.RecordError(spanCtx, err)
	}
	span.End()

	c.decFetching()
	c.metrics.FetchCompleted(key, now().Sub(start), err)

	e.mu.Lock()
	e.inFlight = nil
	if err == nil {
		e.data = result
		e.err = nil
		e.fetchTime = now()
	} else {
		e.err = err
	}
	e.version++
	e.mu.Unlock()

	finalErr := err
	if errors.Is(err, context.Canceled) {
		if opts := call.cancelOpts.Load(); opts != nil {
			finalErr = &CancelSignal{Err: err, Revert: opts.Revert, Silent: opts.Silent}
		}
	}

	call.finish(result, finalErr)

	if finalErr != nil {
		return nil, finalErr
	}
	return result, nil
}

func (c *Client) incFetching() {
	if c.fetching.Add(1) == 1 {
		c.emitFetchingCount(1)
	}
}

func (c *Client) decFetching() {
	if c.fetching.Add(-1) == 0 {
		c.emitFetchingCount(0)
	}
}

// GlobalFetchingCount reports how many fetches are currently in flight
// across the whole client.
func (c *Client) GlobalFetchingCount() int64 {
	return c.fetching.Load()
}

// EntryCount reports how many distinct keys currently have a cache entry,
// regardless of whether any observer is still registered against them.
func (c *Client) EntryCount() int {
	return c.cache.Len()
}

func (c *Client) emitFetchingCount(count int64) {
	c.metrics.FetchingCountChanged(count)
	c.listenersMu.Lock()
	listeners := make([]func(int64), 0, len(c.fetchingListeners))
	for _, l := range c.fetchingListeners {
		listeners = append(listeners, l)
	}
	c.listenersMu.Unlock()
	for _, l := range listeners {
		l(count)
	}
}

// OnFetchingCountChange registers a listener fired every time the global
// in-flight count transitions between zero and non-zero (edge-triggered,
// not on every increment/decrement).
func (c *Client) OnFetchingCountChange(fn func(count int64)) (cleanup func()) {
	c.listenersMu.Lock()
	id := c.nextListenerID
	c.nextListenerID++
	c.fetchingListeners[id] = fn
	c.listenersMu.Unlock()
	return func() {
		c.listenersMu.Lock()
		delete(c.fetchingListeners, id)
		c.listenersMu.Unlock()
	}
}

// OnQueriesInvalidated registers a listener fired with the keys affected
// by each InvalidateQueries call.
func (c *Client) OnQueriesInvalidated(fn func(keys []querykey.Key)) (cleanup func()) {
	return registerKeysListener(&c.listenersMu, c.invalidatedListeners, fn, &c.nextListenerID)
}

// OnQueriesRefetched registers a listener fired with the keys affected by
// each RefetchQueries call.
func (c *Client) OnQueriesRefetched(fn func(keys []querykey.Key)) (cleanup func()) {
	return registerKeysListener(&c.listenersMu, c.refetchedListeners, fn, &c.nextListenerID)
}

// OnQueriesCancelled registers a listener fired with the keys affected by
// each CancelQueries call.
func (c *Client) OnQueriesCancelled(fn func(keys []querykey.Key)) (cleanup func()) {
	return registerKeysListener(&c.listenersMu, c.cancelledListeners, fn, &c.nextListenerID)
}

func registerKeysListener(mu *sync.Mutex, m map[int]func([]querykey.Key), fn func([]querykey.Key), nextID *int) func() {
	mu.Lock()
	id := *nextID
	*nextID++
	m[id] = fn
	mu.Unlock()
	return func() {
		mu.Lock()
		delete(m, id)
		mu.Unlock()
	}
}

func (c *Client) emitKeys(m map[int]func([]querykey.Key), keys []querykey.Key) {
	if len(keys) == 0 {
		return
	}
	c.listenersMu.Lock()
	listeners := make([]func([]querykey.Key), 0, len(m))
	for _, l := range m {
		listeners = append(listeners, l)
	}
	c.listenersMu.Unlock()
	for _, l := range listeners {
		l(keys)
	}
}
