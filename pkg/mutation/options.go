package mutation

import (
	"context"
	"time"

	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/queryobserver"
)

// NetworkMode reuses the observer package's gating semantics: the same
// three modes mean the same thing for a write as for a read.
type NetworkMode = queryobserver.NetworkMode

const (
	Online       = queryobserver.Online
	Always       = queryobserver.Always
	OfflineFirst = queryobserver.OfflineFirst
)

// Scope, when set, serializes every mutation sharing its ID across all
// MutationObservers built against the same client, in call-arrival
// order.
type Scope struct {
	ID string
}

// Context is forwarded to every lifecycle callback, giving them a way
// back into the cache (e.g. to seed data in onSuccess).
type Context struct {
	Client *querycache.Client
}

// MutationFn performs the write itself.
type MutationFn func(ctx context.Context, vars any) (any, error)

// OnMutateFn runs before the (possibly retried) mutation attempt begins.
// Its return value is forwarded to OnSuccess/OnError/OnSettled as
// onMutateResult — the conventional slot for an optimistic-update
// rollback snapshot.
type OnMutateFn func(ctx context.Context, vars any, mctx Context) (onMutateResult any, err error)

// OnSuccessFn runs after a successful mutation.
type OnSuccessFn func(ctx context.Context, data any, vars any, onMutateResult any, mctx Context)

// OnErrorFn runs after a mutation exhausts its retries and fails.
type OnErrorFn func(ctx context.Context, err error, vars any, onMutateResult any, mctx Context)

// OnSettledFn runs after either outcome. Exactly one of data/err is set.
type OnSettledFn func(ctx context.Context, data any, err error, vars any, onMutateResult any, mctx Context)

// RetryDelayFn computes the delay before retry attemptIndex (zero-based).
type RetryDelayFn func(attemptIndex int) time.Duration

// Options configures a MutationObserver at construction time.
type Options struct {
	MutationFn MutationFn

	// MutationKey optionally labels this mutation for logging/metrics;
	// it plays no role in scoped serialization (use Scope for that).
	MutationKey string

	// Retry is the number of retries after the initial attempt.
	// Default 0 — mutations do not retry unless asked to.
	Retry int
	// RetryDelay computes the delay before a retry. Default: the same
	// exponential curve as queryobserver, capped at MaxRetryDelay.
	RetryDelay RetryDelayFn
	// MaxRetryDelay caps the default retry delay curve. Default 30s.
	MaxRetryDelay time.Duration

	// NetworkMode governs offline behavior. Default Online.
	NetworkMode NetworkMode

	// Scope, if set, serializes this mutation against every other
	// mutation sharing the same scope ID on the same client.
	Scope *Scope

	OnMutate  OnMutateFn
	OnSuccess OnSuccessFn
	OnError   OnErrorFn
	OnSettled OnSettledFn
}

const defaultMaxRetryDelay = 30 * time.Second

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
