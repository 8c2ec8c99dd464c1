package mutation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/resyncio/querysync/internal/telemetry"
	"github.com/resyncio/querysync/pkg/netstatus"
	"github.com/resyncio/querysync/pkg/querycache"
)

// Status is the mutation's coarse lifecycle state.
type Status int

const (
	Idle Status = iota
	Pending
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
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

// Snapshot is a consistent view of the observer's published state.
type Snapshot struct {
	Status       Status
	Data         any
	Err          error
	Variables    any
	SubmittedAt  time.Time
	FailureCount int
	FailureReason error
	IsPaused     bool
}

// ErrPaused is returned by a call that cannot proceed because its
// configured NetworkMode gates it and the client is offline.
var ErrPaused = errors.New("mutation: paused, no network under the configured network mode")

// PerCallCallbacks are supplied to an individual Mutate/MutateAsync call
// and fire only if that call is still the most recent one when its
// phase completes — a superseded call's per-call callbacks are skipped
// entirely, while its option-level callbacks on Options still run.
type PerCallCallbacks struct {
	OnSuccess OnSuccessFn
	OnError   OnErrorFn
	OnSettled OnSettledFn
}

// Observer is the imperative write-path state machine: retries, network
// gating, scoped serialization, and the four async lifecycle callbacks.
type Observer struct {
	client *querycache.Client
	online netstatus.Manager
	opts   Options
	mctx   Context

	mu        sync.Mutex
	snap      Snapshot
	callIndex atomic.Int64

	onChange func(Snapshot)
}

// New constructs a MutationObserver. online may be nil, in which case
// netstatus.AlwaysOnline() is used.
func New(client *querycache.Client, online netstatus.Manager, opts Options, onChange func(Snapshot)) *Observer {
	if online == nil {
		online = netstatus.AlwaysOnline()
	}
	return &Observer{
		client:   client,
		online:   online,
		opts:     opts.withFallbacks(),
		mctx:     Context{Client: client},
		snap:     Snapshot{Status: Idle},
		onChange: onChange,
	}
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

// Reset restores Idle and clears every recorded field.
func (o *Observer) Reset() {
	o.mu.Lock()
	o.snap = Snapshot{Status: Idle}
	snap := o.snap
	o.mu.Unlock()
	if o.onChange != nil {
		o.onChange(snap)
	}
}

// Mutate is fire-and-forget: it runs the full protocol in the
// background and never surfaces an error to the caller. perCall may be
// nil.
func (o *Observer) Mutate(vars any, perCall *PerCallCallbacks) {
	go func() { _, _ = o.run(context.Background(), vars, perCall) }()
}

// MutateAsync is the awaitable form: it blocks until the mutation
// settles and returns its result.
func (o *Observer) MutateAsync(ctx context.Context, vars any, perCall *PerCallCallbacks) (any, error) {
	return o.run(ctx, vars, perCall)
}

func (o *Observer) run(ctx context.Context, vars any, perCall *PerCallCallbacks) (any, error) {
	callIndex := o.callIndex.Add(1)
	isLatest := func() bool { return o.callIndex.Load() == callIndex }

	o.publish(func(s *Snapshot) {
		s.Status = Pending
		s.Variables = vars
		s.SubmittedAt = time.Now()
		s.Err = nil
		s.IsPaused = false
	})

	if o.opts.NetworkMode != Always && !o.online.Value() {
		o.publish(func(s *Snapshot) { s.IsPaused = true })
		return nil, ErrPaused
	}

	var onMutateResult any
	if o.opts.OnMutate != nil {
		res, err := o.opts.OnMutate(ctx, vars, o.mctx)
		if err != nil {
			return nil, err
		}
		onMutateResult = res
	}

	if o.opts.Scope != nil {
		lock := scopeLockFor(o.client, o.opts.Scope.ID)
		if err := lock.Lock(ctx); err != nil {
			return nil, err
		}
		defer lock.Unlock()
	}

	data, err := o.retryLoop(ctx, vars)

	if err == nil {
		o.publish(func(s *Snapshot) {
			s.Status = Success
			s.Data = data
			s.Err = nil
		})
		if o.opts.OnSuccess != nil {
			o.opts.OnSuccess(ctx, data, vars, onMutateResult, o.mctx)
		}
		if isLatest() && perCall != nil && perCall.OnSuccess != nil {
			perCall.OnSuccess(ctx, data, vars, onMutateResult, o.mctx)
		}
		if o.opts.OnSettled != nil {
			o.opts.OnSettled(ctx, data, nil, vars, onMutateResult, o.mctx)
		}
		if isLatest() && perCall != nil && perCall.OnSettled != nil {
			perCall.OnSettled(ctx, data, nil, vars, onMutateResult, o.mctx)
		}
		return data, nil
	}

	o.publish(func(s *Snapshot) {
		s.Status = Error
		s.Err = err
	})
	if o.opts.OnError != nil {
		o.opts.OnError(ctx, err, vars, onMutateResult, o.mctx)
	}
	if isLatest() && perCall != nil && perCall.OnError != nil {
		perCall.OnError(ctx, err, vars, onMutateResult, o.mctx)
	}
	if o.opts.OnSettled != nil {
		o.opts.OnSettled(ctx, nil, err, vars, onMutateResult, o.mctx)
	}
	if isLatest() && perCall != nil && perCall.OnSettled != nil {
		perCall.OnSettled(ctx, nil, err, vars, onMutateResult, o.mctx)
	}
	return nil, err
}

func (o *Observer) retryLoop(ctx context.Context, vars any) (any, error) {
	attemptIndex := -1
	for {
		spanCtx, span := telemetry.StartMutationSpan(ctx, o.opts.MutationKey, attemptIndex+1)
		result, err := o.opts.MutationFn(spanCtx, vars)
		if err != nil {
			telemetry.RecordError(spanCtx, err)
		}
		span.End()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		attemptIndex++
		o.publish(func(s *Snapshot) {
			s.FailureCount++
			s.FailureReason = err
		})

		if attemptIndex >= o.opts.Retry {
			return nil, err
		}

		delay := o.opts.RetryDelay(attemptIndex)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}
