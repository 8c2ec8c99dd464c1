// Package netstatus implements the two ambient-status side channels the
// query engine reacts to: network connectivity and application focus.
//
// Platform detection (browser visibility events, OS network reachability,
// …) lives outside this package entirely — netstatus only defines the
// abstract signal and a couple of manually-driven implementations useful
// for hosts, tests, and the demo CLI.
package netstatus

import "sync"

// Listener is called with the new value whenever a manager's state
// transitions. It must not block.
type Listener func(value bool)

// Manager is the shape shared by OnlineManager and FocusManager: a
// current boolean plus a way to observe and force transitions.
//
// Implementations must only fire listeners on an actual transition (old
// value != new value), never on every Set call.
type Manager interface {
	// Value reports the manager's current boolean state.
	Value() bool

	// Set forces the manager's state, firing registered listeners if the
	// value actually changed. Passing the current value is a no-op.
	Set(value bool)

	// OnChange registers a listener and returns a cleanup func that
	// removes it. The cleanup func is safe to call more than once.
	OnChange(l Listener) (cleanup func())
}

// manualManager is a Manager whose only state source is Set — suitable
// as the default "always online" / "always focused" manager, as a manual
// override for platform-specific managers, and for tests.
type manualManager struct {
	mu        sync.Mutex
	value     bool
	listeners map[int]Listener
	nextID    int
}

// NewManual creates a Manager seeded with the given initial value. Hosts
// embedding a platform-specific detector typically wrap one of these and
// call Set from their own event loop; see WithCustomSource below.
func NewManual(initial bool) Manager {
	return &manualManager{
		value:     initial,
		listeners: make(map[int]Listener),
	}
}

func (m *manualManager) Value() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

func (m *manualManager) Set(value bool) {
	m.mu.Lock()
	if m.value == value {
		m.mu.Unlock()
		return
	}
	m.value = value
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(value)
	}
}

func (m *manualManager) OnChange(l Listener) (cleanup func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// AlwaysOnline returns a Manager permanently reporting true. It ignores
// Set, matching the spec's "default implementations assume always
// online".
func AlwaysOnline() Manager { return constManager(true) }

// AlwaysFocused returns a Manager permanently reporting true, mirroring
// AlwaysOnline for the focus side channel.
func AlwaysFocused() Manager { return constManager(true) }

type constManager bool

func (c constManager) Value() bool                       { return bool(c) }
func (c constManager) Set(bool)                           {}
func (c constManager) OnChange(Listener) (cleanup func()) { return func() {} }

// CustomSource lets a host plug in a platform-specific detector: it is
// invoked once by WithCustomSource with a callback the host should call
// on every detected transition, and must return a cleanup func, which
// WithCustomSource hands back to its caller.
type CustomSource func(notify func(value bool)) (cleanup func())

// WithCustomSource wires a CustomSource into a Manual manager, so the
// manager's Value() reflects whatever the platform detector reports while
// still supporting manual overrides via Set. The returned cleanup stops
// the source.
func WithCustomSource(m Manager, initial bool, source CustomSource) (cleanup func()) {
	return source(func(value bool) { m.Set(value) })
}
