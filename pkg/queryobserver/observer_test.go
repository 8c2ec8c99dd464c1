package queryobserver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/resyncio/querysync/pkg/netstatus"
	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/querykey"
)

func TestObserver_RetriesWithBackoffThenSucceeds(t *testing.T) {
	client := querycache.NewClient()
	key := querykey.New("todos")

	var attempts int32
	opts := DefaultOptions(key)
	opts.Retry = 2
	opts.RetryDelay = func(int) time.Duration { return time.Millisecond }
	opts.FetchFn = func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}

	obs := New(client, nil, nil, opts)
	defer obs.Dispose()

	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts (1 initial + 2 retries), got %d", got)
	}
	snap := obs.Snapshot()
	if !snap.IsSuccess() || snap.Data != "ok" {
		t.Fatalf("expected success snapshot with data %q, got %+v", "ok", snap)
	}
	if snap.FailureCount != 2 {
		t.Fatalf("expected failureCount=2, got %d", snap.FailureCount)
	}
}

func TestObserver_ExhaustsRetriesAndSurfacesError(t *testing.T) {
	client := querycache.NewClient()
	key := querykey.New("todos")

	wantErr := errors.New("permanent")
	opts := DefaultOptions(key)
	opts.Retry = 1
	opts.RetryDelay = func(int) time.Duration { return time.Millisecond }
	opts.FetchFn = func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		return nil, wantErr
	}

	obs := New(client, nil, nil, opts)
	defer obs.Dispose()

	err := obs.Execute(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	snap := obs.Snapshot()
	if !snap.IsError() {
		t.Fatalf("expected Error status, got %v", snap.Status)
	}
	if snap.FailureCount != 2 {
		t.Fatalf("expected failureCount=2 (initial + 1 retry), got %d", snap.FailureCount)
	}
}

func TestObserver_OfflinePausesAndResumesOnReconnect(t *testing.T) {
	client := querycache.NewClient()
	key := querykey.New("todos")
	online := netstatus.NewManual(false)

	var calls int32
	opts := DefaultOptions(key)
	opts.FetchFn = func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	}

	obs := New(client, online, nil, opts)
	defer obs.Dispose()

	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !obs.Snapshot().IsPaused() {
		t.Fatalf("expected observer to be Paused while offline")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no fetch attempt while offline, got %d", calls)
	}

	online.Set(true)
	time.Sleep(20 * time.Millisecond) // onReconnect fires Execute in a goroutine

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one fetch after reconnect, got %d", calls)
	}
	if !obs.Snapshot().IsSuccess() {
		t.Fatalf("expected success after reconnect fetch")
	}
}

func TestObserver_BackgroundRefetchKeepsDataVisible(t *testing.T) {
	client := querycache.NewClient()
	key := querykey.New("todos")

	opts := DefaultOptions(key)
	opts.StaleWindow = time.Hour
	call := 0
	opts.FetchFn = func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		call++
		if call == 1 {
			return "first", nil
		}
		return nil, errors.New("refetch failed")
	}
	opts.Retry = 0

	obs := New(client, nil, nil, opts)
	defer obs.Dispose()

	if err := obs.Execute(context.Background()); err != nil {
		t.Fatalf("unexpected error on first fetch: %v", err)
	}
	if obs.Snapshot().Data != "first" {
		t.Fatalf("expected first fetch to publish data")
	}

	// force staleness so the second Execute actually refetches
	client.Set(key, "first")
	entry := client.GetEntry(key)
	_ = entry

	opts2 := obs.opts
	opts2.StaleWindow = 0
	obs.opts = opts2

	err := obs.Execute(context.Background())
	if err == nil {
		t.Fatalf("expected the second fetch to fail")
	}
	snap := obs.Snapshot()
	if snap.Data != "first" {
		t.Fatalf("expected prior data to remain visible after a failed refetch, got %v", snap.Data)
	}
	if !snap.IsRefetchError {
		t.Fatalf("expected isRefetchError to be set")
	}
	if !snap.IsError() {
		t.Fatalf("expected Error status even though data persists")
	}
}

func TestObserver_CancelQueriesRevertKeepsDataAndSwallowsError(t *testing.T) {
	client := querycache.NewClient()
	key := querykey.New("todos")

	started := make(chan struct{})
	opts := DefaultOptions(key)
	opts.Retry = 0
	opts.FetchFn = func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	obs := New(client, nil, nil, opts)
	defer obs.Dispose()

	errCh := make(chan error, 1)
	go func() { errCh <- obs.Execute(context.Background()) }()

	<-started
	time.Sleep(10 * time.Millisecond) // ensure inFlight is installed
	client.CancelQueries(querycache.Filter{Key: key, HasKey: true, Exact: true}, querycache.CancelOptions{Revert: true})

	if err := <-errCh; err != nil {
		t.Fatalf("expected Revert to swallow the cancellation error, got %v", err)
	}
	if snap := obs.Snapshot(); snap.IsError() {
		t.Fatalf("expected no Error status after a reverted cancellation, got %+v", snap)
	}
}

func TestObserver_CancelQueriesWithoutRevertSurfacesError(t *testing.T) {
	client := querycache.NewClient()
	key := querykey.New("todos")

	started := make(chan struct{})
	opts := DefaultOptions(key)
	opts.Retry = 0
	opts.FetchFn = func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var changes int32
	opts.OnChange = func(Snapshot) { atomic.AddInt32(&changes, 1) }

	obs := New(client, nil, nil, opts)
	defer obs.Dispose()

	errCh := make(chan error, 1)
	go func() { errCh <- obs.Execute(context.Background()) }()

	<-started
	time.Sleep(10 * time.Millisecond)
	client.CancelQueries(querycache.Filter{Key: key, HasKey: true, Exact: true}, querycache.CancelOptions{Revert: false})

	err := <-errCh
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancellation error to surface, got %v", err)
	}
	snap := obs.Snapshot()
	if !snap.IsError() {
		t.Fatalf("expected Error status when Revert is false")
	}
	if atomic.LoadInt32(&changes) == 0 {
		t.Fatalf("expected at least one OnChange notification for a non-silent cancellation")
	}
}

func TestObserver_CancelQueriesSilentSuppressesOnChange(t *testing.T) {
	client := querycache.NewClient()
	key := querykey.New("todos")

	started := make(chan struct{})
	opts := DefaultOptions(key)
	opts.Retry = 0
	opts.FetchFn = func(ctx context.Context, fc querycache.FetchContext) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var changes int32
	opts.OnChange = func(Snapshot) { atomic.AddInt32(&changes, 1) }

	obs := New(client, nil, nil, opts)
	defer obs.Dispose()

	errCh := make(chan error, 1)
	go func() { errCh <- obs.Execute(context.Background()) }()

	<-started
	time.Sleep(10 * time.Millisecond)
	baseline := atomic.LoadInt32(&changes)
	client.CancelQueries(querycache.Filter{Key: key, HasKey: true, Exact: true}, querycache.CancelOptions{Revert: false, Silent: true})

	<-errCh
	if got := atomic.LoadInt32(&changes); got != baseline {
		t.Fatalf("expected no additional OnChange calls for a silent cancellation, got %d new calls", got-baseline)
	}
	if !obs.Snapshot().IsError() {
		t.Fatalf("expected internal state to still reflect Error even though OnChange was suppressed")
	}
}
