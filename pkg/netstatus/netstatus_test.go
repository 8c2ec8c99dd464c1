package netstatus

import (
	"sync/atomic"
	"testing"
)

func TestManualManager_FiresOnlyOnTransition(t *testing.T) {
	m := NewManual(true)

	var calls int32
	var lastValue bool
	cleanup := m.OnChange(func(v bool) {
		atomic.AddInt32(&calls, 1)
		lastValue = v
	})
	defer cleanup()

	m.Set(true) // no-op, same value
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no listener call for a no-op Set, got %d", calls)
	}

	m.Set(false)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one listener call, got %d", calls)
	}
	if lastValue != false {
		t.Fatalf("expected listener to observe false, got %v", lastValue)
	}

	m.Set(false) // still a no-op
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected call count to stay at 1, got %d", calls)
	}
}

func TestManualManager_CleanupStopsNotifications(t *testing.T) {
	m := NewManual(false)

	var calls int32
	cleanup := m.OnChange(func(bool) { atomic.AddInt32(&calls, 1) })
	cleanup()

	m.Set(true)
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no calls after cleanup, got %d", calls)
	}
}

func TestAlwaysOnline_IgnoresSet(t *testing.T) {
	m := AlwaysOnline()
	if !m.Value() {
		t.Fatalf("expected AlwaysOnline to report true")
	}
	m.Set(false)
	if !m.Value() {
		t.Fatalf("expected AlwaysOnline to ignore Set")
	}
}
