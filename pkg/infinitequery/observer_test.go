package infinitequery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/querykey"
)

func fetchPageN(ctx context.Context, fc querycache.FetchContext) (any, error) {
	return fc.Meta, nil
}

func nextParam(lastPage any, allPages []any, lastPageParam any) (any, bool) {
	n := lastPageParam.(int)
	if n >= 5 {
		return nil, false
	}
	return n + 1, true
}

func TestInfiniteQuery_FetchNextPageAppends(t *testing.T) {
	client := querycache.NewClient()
	opts := Options{
		Key:              querykey.New("feed"),
		FetchFn:          fetchPageN,
		InitialPageParam: 1,
		GetNextPageParam: nextParam,
	}
	obs := New(client, opts, nil)

	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := obs.Snapshot()
	if len(snap.Data.Pages) != 1 || snap.Data.PageParams[0] != 1 {
		t.Fatalf("expected a single page at param 1, got %+v", snap.Data)
	}
	if !snap.HasNextPage {
		t.Fatalf("expected HasNextPage after first page")
	}

	if err := obs.FetchNextPage(context.Background(), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap = obs.Snapshot()
	if len(snap.Data.Pages) != 2 || snap.Data.PageParams[1] != 2 {
		t.Fatalf("expected page 2 appended, got %+v", snap.Data)
	}
}

func TestInfiniteQuery_MaxPagesEvictsOldest(t *testing.T) {
	client := querycache.NewClient()
	opts := Options{
		Key:              querykey.New("feed"),
		FetchFn:          fetchPageN,
		InitialPageParam: 1,
		GetNextPageParam: nextParam,
		MaxPages:         2,
	}
	obs := New(client, opts, nil)

	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := obs.FetchNextPage(context.Background(), true); err != nil {
			t.Fatalf("unexpected error on page %d: %v", i, err)
		}
	}

	snap := obs.Snapshot()
	if len(snap.Data.Pages) != 2 {
		t.Fatalf("expected MaxPages=2 to cap retained pages, got %d", len(snap.Data.Pages))
	}
	if snap.Data.PageParams[0] != 3 || snap.Data.PageParams[1] != 4 {
		t.Fatalf("expected oldest pages evicted, got params %v", snap.Data.PageParams)
	}
}

func TestInfiniteQuery_NoNextPageIsNoOp(t *testing.T) {
	client := querycache.NewClient()
	opts := Options{
		Key:              querykey.New("feed"),
		FetchFn:          fetchPageN,
		InitialPageParam: 5,
		GetNextPageParam: nextParam,
	}
	obs := New(client, opts, nil)
	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Snapshot().HasNextPage {
		t.Fatalf("expected no next page at the configured boundary")
	}
	if err := obs.FetchNextPage(context.Background(), true); err != ErrNoFurtherPage {
		t.Fatalf("expected ErrNoFurtherPage, got %v", err)
	}
}

func TestInfiniteQuery_CancelRefetchTrueCancelsInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	fn := querycache.FetchFn(func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		if fc.Meta.(int) == 2 {
			started <- struct{}{}
			<-ctx.Done()
			return nil, ctx.Err()
		}
		<-release
		return fc.Meta, nil
	})

	client := querycache.NewClient()
	opts := Options{
		Key:              querykey.New("feed"),
		FetchFn:          fn,
		InitialPageParam: 1,
		GetNextPageParam: nextParam,
	}
	obs := New(client, opts, nil)
	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)

	firstErr := make(chan error, 1)
	go func() { firstErr <- obs.FetchNextPage(context.Background(), true) }()
	<-started

	if err := obs.FetchNextPage(context.Background(), true); err != nil {
		t.Fatalf("second FetchNextPage: %v", err)
	}

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the superseded fetch to observe cancellation, got %v", err)
	}
}

func TestInfiniteQuery_CancelRefetchFalseAllowsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fn := querycache.FetchFn(func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		if fc.Meta.(int) == 2 {
			close(started)
			<-release
		}
		return fc.Meta, nil
	})

	client := querycache.NewClient()
	opts := Options{
		Key:              querykey.New("feed"),
		FetchFn:          fn,
		InitialPageParam: 1,
		GetNextPageParam: nextParam,
	}
	obs := New(client, opts, nil)
	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	firstErr := make(chan error, 1)
	go func() { firstErr <- obs.FetchNextPage(context.Background(), true) }()
	<-started

	secondErr := make(chan error, 1)
	go func() { secondErr <- obs.FetchNextPage(context.Background(), false) }()

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("unexpected error from the first fetch: %v", err)
	}
	if err := <-secondErr; err != nil {
		t.Fatalf("unexpected error from the overlapping fetch: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	snap := obs.Snapshot()
	if len(snap.Data.Pages) != 2 {
		t.Fatalf("expected both overlapping fetches to land the same page, got %+v", snap.Data)
	}
}
