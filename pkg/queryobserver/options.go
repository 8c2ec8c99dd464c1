// Package queryobserver implements the state machine that drives
// repeated, retried, network- and focus-aware fetches of a single key
// against a querycache.Client.
package queryobserver

import (
	"time"

	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/querykey"
)

// NetworkMode controls how an observer reacts to OnlineManager state when
// deciding whether to proceed with a fetch.
type NetworkMode int

const (
	// Online only fetches while online; offline with no cached data
	// pauses, offline with cached data publishes the cache and pauses.
	Online NetworkMode = iota
	// Always fetches regardless of connectivity, leaving it to fetchFn
	// to fail if the network is actually required.
	Always
	// OfflineFirst serves fresh cached data without fetching. Offline
	// with cached data it publishes the cache and pauses; offline with
	// no cached data it pauses until the network is back, then fetches.
	OfflineFirst
)

// Unlimited marks Retry as "retry forever" rather than a fixed count.
const Unlimited = -1

// defaultMaxRetryDelay is the cap applied to the default exponential
// backoff curve, and the default value of Options.MaxRetryDelay.
const defaultMaxRetryDelay = 30 * time.Second

// RetryPredicate overrides the default retry-count decision. attemptIndex
// is zero-based and counts retries (not counting the initial attempt).
type RetryPredicate func(attemptIndex int, err error) bool

// RetryDelayFn computes the delay before retry attemptIndex (zero-based).
type RetryDelayFn func(attemptIndex int) time.Duration

// PlaceholderFn computes transient placeholder data from whatever the
// observer previously displayed.
type PlaceholderFn func(prevData any, prevMeta any) any

// Options configures a QueryObserver at construction time. Only Key is
// required. The documented defaults below are the values DefaultOptions
// sets; New itself only fills in MaxRetryDelay and RetryDelay when unset.
type Options struct {
	Key querykey.Key

	// FetchFn produces this observer's data. If nil, the observer falls
	// back to the client's type-registered default, selected by the
	// Go type of Meta; a nil Meta matches no registered default.
	FetchFn querycache.FetchFn

	// Enabled gates whether Execute does anything at all. Default true.
	Enabled bool

	// StaleWindow is how long data is considered fresh after a
	// successful fetch. Default 0 (immediately stale).
	StaleWindow time.Duration

	// NetworkMode governs offline behavior. Default Online.
	NetworkMode NetworkMode

	// RefetchOnReconnect triggers a refetch when OnlineManager
	// transitions to online. Default true.
	RefetchOnReconnect bool
	// RefetchOnWindowFocus triggers a background refetch of stale data
	// when FocusManager transitions to focused. Default true.
	RefetchOnWindowFocus bool
	// RefetchInterval, if positive, schedules a periodic background
	// refetch while the observer is live.
	RefetchInterval time.Duration

	// Retry is the number of retries after the initial attempt (so
	// Retry=3 means up to 4 total attempts), or Unlimited. Default 3.
	Retry int
	// RetryPredicate overrides the Retry-count decision when non-nil.
	RetryPredicate RetryPredicate
	// RetryDelay computes the delay before a retry. Default:
	// min(1000ms * 2^attemptIndex, MaxRetryDelay).
	RetryDelay RetryDelayFn
	// MaxRetryDelay caps the default retry delay curve. Default 30s.
	MaxRetryDelay time.Duration

	// Meta is an opaque bag forwarded to FetchFn and used to select a
	// client-registered default fetch function when FetchFn is nil.
	Meta any

	// InitialData seeds both the observer's data and the cache entry
	// (persisted) at construction time.
	InitialData any
	// InitialDataFn computes InitialData lazily at construction time.
	// Ignored if InitialData is already set.
	InitialDataFn func() any
	// InitialDataUpdatedAt stamps the seeded cache entry's fetchTime.
	// Defaults to now when initial data is present.
	InitialDataUpdatedAt time.Time

	// PlaceholderData is shown locally (isPlaceholderData=true) before
	// any real data exists. Never written to the cache.
	PlaceholderData any
	// PlaceholderFn computes PlaceholderData lazily. Ignored if
	// PlaceholderData is already set.
	PlaceholderFn PlaceholderFn

	// OnChange is called after every observable state transition. It
	// must not block; callers needing ordered delivery should hand off
	// to their own queue.
	OnChange func(Snapshot)
}

// DefaultOptions returns an Options for key with every documented
// default applied. Callers build on top of it rather than a bare struct
// literal, since several defaults (Enabled=true, Retry=3, ...) are not
// the Go zero value:
//
//	opts := queryobserver.DefaultOptions(key)
//	opts.FetchFn = fetchTodos
//	opts.StaleWindow = 30 * time.Second
func DefaultOptions(key querykey.Key) Options {
	return Options{
		Key:                  key,
		Enabled:              true,
		NetworkMode:          Online,
		RefetchOnReconnect:   true,
		RefetchOnWindowFocus: true,
		Retry:                3,
		MaxRetryDelay:        defaultMaxRetryDelay,
	}
}

// withFallbacks returns a copy of o with the zero-value-unsafe
// computed fields (MaxRetryDelay, RetryDelay) filled in, for callers
// that constructed Options directly rather than via DefaultOptions.
func (o Options) withFallbacks() Options {
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = defaultMaxRetryDelay
	}
	if o.RetryDelay == nil {
		maxDelay := o.MaxRetryDelay
		o.RetryDelay = func(attemptIndex int) time.Duration {
			d := time.Duration(1000) * time.Millisecond
			for i := 0; i < attemptIndex; i++ {
				d *= 2
				if d >= maxDelay {
					return maxDelay
				}
			}
			return d
		}
	}
	return o
}
