// Package infinitequery implements the paginated observer: an ordered
// sequence of pages fetched one pageParam at a time against a
// querycache.Client, with forward/backward growth and an optional cap
// on how many pages are retained.
package infinitequery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/querykey"
)

// GetPageParamFn derives the next (or previous) page's param from the
// page sequence fetched so far. ok=false means there is no further page
// in that direction.
type GetPageParamFn func(lastPage any, allPages []any, lastPageParam any) (param any, ok bool)

// Options configures an InfiniteQueryObserver.
type Options struct {
	Key querykey.Key

	// FetchFn fetches one page. fc.Meta carries the pageParam of the
	// page being fetched.
	FetchFn querycache.FetchFn

	InitialPageParam    any
	GetNextPageParam    GetPageParamFn
	GetPreviousPageParam GetPageParamFn

	// MaxPages caps how many pages are retained; fetching beyond it
	// drops the oldest page from the opposite end. Zero means no cap.
	MaxPages int

	StaleWindow time.Duration
	Enabled     bool
	// Meta is not forwarded to FetchFn: fc.Meta is always the page's
	// pageParam.
	Meta any
}

// Data is the paginated payload: two sequences kept in lockstep,
// |Pages| == |PageParams|.
type Data struct {
	Pages      []any
	PageParams []any
}

// Snapshot is a consistent view of the observer's published state.
type Snapshot struct {
	Data                   Data
	Err                    error
	HasNextPage            bool
	HasPreviousPage        bool
	IsFetchingNextPage     bool
	IsFetchingPreviousPage bool
}

// Observer is the paginated (infinite-scroll-style) query state machine.
type Observer struct {
	client *querycache.Client
	opts   Options

	mu   sync.Mutex
	snap Snapshot

	// executeMu serializes Execute against itself: a full-sequence
	// refetch always runs start to finish before another one begins.
	executeMu sync.Mutex

	// next and previous each track at most one in-flight directional
	// fetch, so FetchNextPage/FetchPreviousPage can honor cancelRefetch
	// instead of unconditionally serializing on a shared mutex.
	next, previous pageFetchState

	onChange func(Snapshot)
}

// pageFetchState tracks at most one cancelRefetch-tracked in-flight
// FetchNextPage/FetchPreviousPage call in one direction. With
// cancelRefetch true (the usual case), only one fetch in a direction
// ever runs: a new call cancels whatever is already running and takes
// its place. With cancelRefetch false, a new call is let run alongside
// whatever's in flight instead of canceling it — untracked here, since
// tracking a single cancel func can't represent more than one fetch.
type pageFetchState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// begin derives a cancelable context for one fetch. When cancelRefetch
// is true it cancels any tracked in-flight fetch first and registers
// the new one in its place; when false it returns an independent
// context without touching or registering anything, so this fetch runs
// concurrently with whatever else is already in flight.
func (s *pageFetchState) begin(ctx context.Context, cancelRefetch bool) (fetchCtx context.Context, token uint64, tracked bool) {
	if !cancelRefetch {
		return ctx, 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	s.gen++
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return fetchCtx, s.gen, true
}

// end clears the in-flight cancel func, but only if token is still the
// current generation — a later begin may have already replaced it. A
// no-op when tracked is false (the cancelRefetch=false, overlap case).
func (s *pageFetchState) end(token uint64, tracked bool) {
	if !tracked {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == token {
		s.cancel = nil
	}
}

// New constructs an InfiniteQueryObserver. It does not fetch anything;
// call Execute to run the initial fetch.
func New(client *querycache.Client, opts Options, onChange func(Snapshot)) *Observer {
	return &Observer{client: client, opts: opts, onChange: onChange}
}

// Snapshot returns the observer's current published state.
func (o *Observer) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

func (o *Observer) publish(mutate func(*Snapshot)) {
	o.mu.Lock()
	mutate(&o.snap)
	snap := o.snap
	o.mu.Unlock()
	if o.onChange != nil {
		o.onChange(snap)
	}
}

// pageKey addresses one page's cache entry: the observer's base key
// with the page param appended as a trailing record field, so each page
// is its own cache entry deduplicated and invalidated independently of
// its siblings.
func pageKey(base querykey.Key, param any) querykey.Key {
	args := make([]any, 0, base.Len()+1)
	for _, p := range base.Parts() {
		args = append(args, p)
	}
	args = append(args, querykey.Rec(querykey.Record{"pageParam": param}))
	return querykey.New(args...)
}

func (o *Observer) fetchPage(ctx context.Context, param any) (any, error) {
	key := pageKey(o.opts.Key, param)
	return o.client.Fetch(ctx, key, param, o.opts.FetchFn, o.opts.StaleWindow)
}

// Execute fetches the first page (at InitialPageParam) if no pages are
// held yet, or re-fetches every currently held page param in order and
// replaces both sequences atomically.
func (o *Observer) Execute(ctx context.Context) error {
	o.executeMu.Lock()
	defer o.executeMu.Unlock()

	current := o.Snapshot().Data
	params := current.PageParams
	if len(params) == 0 {
		params = []any{o.opts.InitialPageParam}
	}

	pages := make([]any, len(params))
	for i, p := range params {
		page, err := o.fetchPage(ctx, p)
		if err != nil {
			o.publish(func(s *Snapshot) { s.Err = err })
			return err
		}
		pages[i] = page
	}

	o.commit(pages, params)
	return nil
}

func (o *Observer) commit(pages, params []any) {
	data := Data{Pages: pages, PageParams: params}
	o.publish(func(s *Snapshot) {
		s.Data = data
		s.Err = nil
		s.HasNextPage = o.hasNext(data)
		s.HasPreviousPage = o.hasPrevious(data)
	})
}

func (o *Observer) hasNext(d Data) bool {
	if o.opts.GetNextPageParam == nil || len(d.Pages) == 0 {
		return false
	}
	_, ok := o.opts.GetNextPageParam(d.Pages[len(d.Pages)-1], d.Pages, d.PageParams[len(d.PageParams)-1])
	return ok
}

func (o *Observer) hasPrevious(d Data) bool {
	if o.opts.GetPreviousPageParam == nil || len(d.Pages) == 0 {
		return false
	}
	_, ok := o.opts.GetPreviousPageParam(d.Pages[0], d.Pages, d.PageParams[0])
	return ok
}

// ErrNoFurtherPage is returned by FetchNextPage/FetchPreviousPage when
// there is no further page in the requested direction.
var ErrNoFurtherPage = errors.New("infinitequery: no further page in that direction")

// FetchNextPage computes the next page param from the current last page
// and appends the fetched result. If MaxPages is set and exceeded, the
// oldest page is dropped to stay at the cap.
//
// cancelRefetch controls what happens when a next-page fetch is already
// in flight: true (the usual choice) cancels it and starts this one in
// its place, so only one next-fetch ever runs at a time; false leaves
// the in-flight fetch running and lets this one proceed alongside it,
// allowing both to overlap. Whichever commits last wins the page at
// that slot.
func (o *Observer) FetchNextPage(ctx context.Context, cancelRefetch bool) error {
	d := o.Snapshot().Data
	if o.opts.GetNextPageParam == nil || len(d.Pages) == 0 {
		return ErrNoFurtherPage
	}
	param, ok := o.opts.GetNextPageParam(d.Pages[len(d.Pages)-1], d.Pages, d.PageParams[len(d.PageParams)-1])
	if !ok {
		return ErrNoFurtherPage
	}

	fetchCtx, token, tracked := o.next.begin(ctx, cancelRefetch)
	defer o.next.end(token, tracked)

	o.publish(func(s *Snapshot) { s.IsFetchingNextPage = true })
	page, err := o.fetchPage(fetchCtx, param)
	o.publish(func(s *Snapshot) { s.IsFetchingNextPage = false })
	if err != nil {
		o.publish(func(s *Snapshot) { s.Err = err })
		return err
	}

	pages := append(append([]any{}, d.Pages...), page)
	params := append(append([]any{}, d.PageParams...), param)
	if o.opts.MaxPages > 0 && len(pages) > o.opts.MaxPages {
		drop := len(pages) - o.opts.MaxPages
		pages = pages[drop:]
		params = params[drop:]
	}
	o.commit(pages, params)
	return nil
}

// FetchPreviousPage is the symmetric operation for the front of the
// sequence, using GetPreviousPageParam and prepending. See
// FetchNextPage for what cancelRefetch controls.
func (o *Observer) FetchPreviousPage(ctx context.Context, cancelRefetch bool) error {
	d := o.Snapshot().Data
	if o.opts.GetPreviousPageParam == nil || len(d.Pages) == 0 {
		return ErrNoFurtherPage
	}
	param, ok := o.opts.GetPreviousPageParam(d.Pages[0], d.Pages, d.PageParams[0])
	if !ok {
		return ErrNoFurtherPage
	}

	fetchCtx, token, tracked := o.previous.begin(ctx, cancelRefetch)
	defer o.previous.end(token, tracked)

	o.publish(func(s *Snapshot) { s.IsFetchingPreviousPage = true })
	page, err := o.fetchPage(fetchCtx, param)
	o.publish(func(s *Snapshot) { s.IsFetchingPreviousPage = false })
	if err != nil {
		o.publish(func(s *Snapshot) { s.Err = err })
		return err
	}

	pages := append([]any{page}, d.Pages...)
	params := append([]any{param}, d.PageParams...)
	if o.opts.MaxPages > 0 && len(pages) > o.opts.MaxPages {
		pages = pages[:o.opts.MaxPages]
		params = params[:o.opts.MaxPages]
	}
	o.commit(pages, params)
	return nil
}
