package querycache

import (
	"context"
	"time"

	"github.com/resyncio/querysync/pkg/querykey"
)

// ObserverType narrows a Filter to entries with or without active
// observer registrations.
type ObserverType int

const (
	// All matches regardless of active registration count.
	All ObserverType = iota
	// Active matches only entries with at least one registered observer.
	Active
	// Inactive matches only entries with zero registered observers.
	Inactive
)

// StaleFilter narrows a Filter by the entry's freshness.
type StaleFilter int

const (
	// AnyStaleness ignores freshness entirely.
	AnyStaleness StaleFilter = iota
	// OnlyStale matches entries considered stale.
	OnlyStale
	// OnlyFresh matches entries considered fresh.
	OnlyFresh
)

// Filter is the conjunction of conditions the lifecycle operations
// (Invalidate/Remove/Reset/Cancel/Refetch) use to select which cache
// entries to act on. A zero-value Filter with no Key matches every entry
// in the cache.
type Filter struct {
	// Key, if HasKey is true, restricts matches to entries whose key
	// equals Key (Exact) or has Key as a prefix (otherwise).
	Key      querykey.Key
	HasKey   bool
	Exact    bool // when HasKey: require exact equality rather than prefix
	Type     ObserverType
	Stale    StaleFilter
	// FetchStatus, if HasFetchStatus, requires at least one registered
	// observer to currently report this status.
	FetchStatus    FetchStatus
	HasFetchStatus bool
	// Predicate, if non-nil, is an arbitrary final gate evaluated after
	// every other condition matches.
	Predicate func(key querykey.Key, snap Snapshot) bool
}

func (f Filter) matchesKey(key querykey.Key) bool {
	if !f.HasKey {
		return true
	}
	if f.Exact {
		return key.Equal(f.Key)
	}
	return key.HasPrefix(f.Key)
}

func (f Filter) matchesType(e *CacheEntry) bool {
	switch f.Type {
	case Active:
		return e.ActiveCount() > 0
	case Inactive:
		return e.ActiveCount() == 0
	default:
		return true
	}
}

// matchesStale applies the Stale condition. An entry with no registered
// observers is always considered stale — there is no observer-configured
// staleWindow to measure freshness against, and a quiescent entry should
// never be treated as authoritatively fresh. With one or more
// registrations, the entry counts as stale if ANY registered observer's
// own staleWindow has elapsed since the entry's fetchTime; this matches
// the intuition that a key is "due for a refetch" the moment any one of
// its consumers would consider its view outdated.
func (f Filter) matchesStale(e *CacheEntry) bool {
	if f.Stale == AnyStaleness {
		return true
	}

	snap := e.Snapshot()
	var regs []ActiveObserver
	e.forEachObserver(func(o ActiveObserver) { regs = append(regs, o) })

	stale := true
	if len(regs) > 0 {
		stale = false
		for _, o := range regs {
			window := o.StaleWindow()
			if window <= 0 || now().Sub(snap.FetchTime) >= window {
				stale = true
				break
			}
		}
	}

	if f.Stale == OnlyStale {
		return stale
	}
	return !stale
}

// matchesFetchStatus applies the FetchStatus condition: it matches if
// ANY registered observer currently reports the requested status. An
// entry with no registered observers never matches a FetchStatus
// condition, since there is no observer activity to test.
func (f Filter) matchesFetchStatus(e *CacheEntry) bool {
	if !f.HasFetchStatus {
		return true
	}
	matched := false
	e.forEachObserver(func(o ActiveObserver) {
		if o.FetchStatus() == f.FetchStatus {
			matched = true
		}
	})
	return matched
}

func (f Filter) matches(key querykey.Key, e *CacheEntry) bool {
	if !f.matchesKey(key) {
		return false
	}
	if !f.matchesType(e) {
		return false
	}
	if !f.matchesStale(e) {
		return false
	}
	if !f.matchesFetchStatus(e) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(key, e.Snapshot()) {
		return false
	}
	return true
}

func (c *Client) matchingEntries(f Filter) []entryRef {
	var matched []entryRef
	c.cache.forEach(func(r entryRef) {
		if f.matches(r.Key, r.Entry) {
			matched = append(matched, r)
		}
	})
	return matched
}

func keysOf(refs []entryRef) []querykey.Key {
	keys := make([]querykey.Key, len(refs))
	for i, r := range refs {
		keys[i] = r.Key
	}
	return keys
}

// InvalidateQueries marks every matching entry stale (by clearing its
// fetchTime) and asks each of its registered observers to refetch in the
// background. Entries with no registered observers are simply marked
// stale; they'll refetch the next time an observer subscribes.
//
// Refetches are fanned out through the client's bounded worker pool
// rather than one goroutine per observer, so a broad filter invalidating
// many keys at once can't spike outbound fetch concurrency past the
// pool's worker count.
func (c *Client) InvalidateQueries(ctx context.Context, f Filter) []querykey.Key {
	refs := c.matchingEntries(f)
	for _, r := range refs {
		r.Entry.mu.Lock()
		r.Entry.fetchTime = time.Time{}
		r.Entry.mu.Unlock()
		r.Entry.forEachObserver(func(o ActiveObserver) {
			if o.Enabled() {
				c.pool.Submit(func(context.Context) { o.Refetch(ctx, true) })
			}
		})
	}
	keys := keysOf(refs)
	c.emitKeys(c.invalidatedListeners, keys)
	return keys
}

// RefetchQueries asks every matching entry's registered observers to
// refetch immediately, regardless of current freshness. Unlike
// InvalidateQueries, it does not touch entries with no active observers
// (there is nothing to ask to refetch). Like InvalidateQueries, the
// refetches themselves run on the client's bounded worker pool.
func (c *Client) RefetchQueries(ctx context.Context, f Filter) []querykey.Key {
	refs := c.matchingEntries(f)
	var affected []querykey.Key
	for _, r := range refs {
		count := 0
		r.Entry.forEachObserver(func(o ActiveObserver) {
			count++
			c.pool.Submit(func(context.Context) { o.Refetch(ctx, false) })
		})
		if count > 0 {
			affected = append(affected, r.Key)
		}
	}
	c.emitKeys(c.refetchedListeners, affected)
	return affected
}

// ResetQueries asks every matching entry's registered observers to drop
// back to their initial view, then removes the entry's cached data
// entirely (as though it had never been fetched).
func (c *Client) ResetQueries(f Filter) []querykey.Key {
	refs := c.matchingEntries(f)
	for _, r := range refs {
		r.Entry.forEachObserver(func(o ActiveObserver) { o.Reset() })
		r.Entry.mu.Lock()
		r.Entry.data = nil
		r.Entry.err = nil
		r.Entry.fetchTime = time.Time{}
		r.Entry.mu.Unlock()
	}
	return keysOf(refs)
}

// RemoveQueries deletes every matching entry from the cache outright.
// Any in-flight fetch for a removed entry is left to complete on its own
// (its result simply has nowhere to land); use CancelQueries first if the
// in-flight request itself should be aborted.
func (c *Client) RemoveQueries(f Filter) []querykey.Key {
	refs := c.matchingEntries(f)
	for _, r := range refs {
		c.cache.Delete(r.Key)
	}
	return keysOf(refs)
}

// CancelOptions configures CancelQueries.
type CancelOptions struct {
	// Revert, if true, asks observers to roll their visible data back to
	// its pre-fetch value rather than surfacing the cancellation error.
	// The zero value surfaces the cancellation as the observer's error
	// state, matching Go's "explicit opt-in" convention for a field whose
	// unset value would otherwise silently hide a failed fetch.
	Revert bool
	// Silent, if true, asks observers to suppress any state transition
	// visible to their consumers (no OnChange call) as a result of the
	// cancellation; the observer's internal fetchStatus still returns to
	// idle so filter queries see it correctly.
	Silent bool
}

// CancelQueries cancels the in-flight fetch (if any) for every matching
// entry, via the context.CancelFunc captured when the fetch began. opts is
// stashed on the inFlightCall before cancel is invoked, so Client.Fetch can
// wrap the resulting context.Canceled in a CancelSignal carrying it; each
// QueryObserver sharing the call then interprets Revert/Silent for itself
// in handleCancellation, which is why ActiveObserver itself carries no
// cancel method.
func (c *Client) CancelQueries(f Filter, opts CancelOptions) []querykey.Key {
	refs := c.matchingEntries(f)
	var affected []querykey.Key
	for _, r := range refs {
		r.Entry.mu.Lock()
		call := r.Entry.inFlight
		r.Entry.mu.Unlock()
		if call == nil {
			continue
		}
		o := opts
		call.cancelOpts.Store(&o)
		call.cancel()
		affected = append(affected, r.Key)
	}
	c.emitKeys(c.cancelledListeners, affected)
	return affected
}
