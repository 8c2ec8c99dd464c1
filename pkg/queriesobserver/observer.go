// Package queriesobserver implements the parallel aggregator over a
// dynamic set of QueryObservers sharing one element type.
package queriesobserver

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/resyncio/querysync/pkg/netstatus"
	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/queryobserver"
)

// Observer holds an ordered set of inner QueryObservers and runs them as
// a unit: ExecuteAll/RefetchAll fan out concurrently via errgroup and
// resolve once every inner observer has settled, regardless of whether
// any individual one failed — a single slow or failing query must never
// stall or abort its siblings.
type Observer struct {
	client *querycache.Client
	online netstatus.Manager
	focus  netstatus.Manager

	onChange func([]queryobserver.Snapshot)

	mu       sync.Mutex
	inner    []*queryobserver.Observer
	cleanups []func()
}

// New constructs an empty QueriesObserver. Call SetQueries to populate
// it.
func New(client *querycache.Client, online, focus netstatus.Manager, onChange func([]queryobserver.Snapshot)) *Observer {
	return &Observer{client: client, online: online, focus: focus, onChange: onChange}
}

// SetQueries disposes any existing inner observers and instantiates one
// per element of opts, wiring each one's OnChange into a single
// aggregated callback that republishes the full Queries() snapshot.
func (o *Observer) SetQueries(opts []queryobserver.Options) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, obs := range o.inner {
		obs.Dispose()
	}

	inner := make([]*queryobserver.Observer, len(opts))
	for i := range opts {
		local := opts[i]
		local.OnChange = func(queryobserver.Snapshot) { o.emit() }
		inner[i] = queryobserver.New(o.client, o.online, o.focus, local)
	}
	o.inner = inner
}

func (o *Observer) emit() {
	if o.onChange == nil {
		return
	}
	o.onChange(o.snapshotsLocked())
}

func (o *Observer) snapshotsLocked() []queryobserver.Snapshot {
	snaps := make([]queryobserver.Snapshot, len(o.inner))
	for i, obs := range o.inner {
		snaps[i] = obs.Snapshot()
	}
	return snaps
}

// Queries returns the current ordered inner observer list. The returned
// slice must not be mutated.
func (o *Observer) Queries() []*queryobserver.Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inner
}

// ExecuteAll runs Execute on every inner observer concurrently and
// returns once all have settled. Individual errors are captured per
// observer rather than propagated or short-circuiting the group — a
// caller that needs to know which ones failed should inspect each
// observer's Snapshot().Err afterward.
func (o *Observer) ExecuteAll(ctx context.Context) error {
	return o.runAll(ctx, func(obs *queryobserver.Observer) error { return obs.Execute(ctx) })
}

// RefetchAll is the analogous operation for an explicit refetch; in this
// observer's design Execute already re-runs the full protocol, so
// RefetchAll is currently synonymous with ExecuteAll.
func (o *Observer) RefetchAll(ctx context.Context) error {
	return o.runAll(ctx, func(obs *queryobserver.Observer) error { return obs.Execute(ctx) })
}

func (o *Observer) runAll(ctx context.Context, fn func(*queryobserver.Observer) error) error {
	inner := o.Queries()

	g, _ := errgroup.WithContext(ctx)
	for _, obs := range inner {
		obs := obs
		g.Go(func() error {
			// Captured, not returned: an individual query's failure must
			// not cancel its siblings via errgroup's derived context.
			_ = fn(obs)
			return nil
		})
	}
	return g.Wait()
}

// Dispose releases every inner observer's registration and event wiring.
func (o *Observer) Dispose() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, obs := range o.inner {
		obs.Dispose()
	}
	o.inner = nil
}
