package reachability

import (
	"context"
	"sync"
	"sync/atomic"
)

// Source feeds path-change events into a Monitor.
// Implementations observe the platform's network stack (or poll it) and
// emit a new Snapshot whenever the path may have changed. Emitting
// identical consecutive snapshots is fine; the Monitor deduplicates.
type Source interface {
	// Watch returns a channel of snapshots. The channel is closed when
	// ctx is cancelled.
	Watch(ctx context.Context) <-chan Snapshot
}

// Monitor is the single source of truth for "can we talk to the network
// right now". It publishes the latest Snapshot atomically; Current never
// blocks and never fails.
type Monitor struct {
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewMonitor creates a monitor with an initial "unknown, disconnected"
// snapshot. Call Start to begin observing a Source.
func NewMonitor() *Monitor {
	m := &Monitor{
		listeners: make(map[int]func(Snapshot)),
	}
	initial := Snapshot{}
	m.current.Store(&initial)
	return m
}

// NewMonitorWithSnapshot creates a monitor pre-seeded with a snapshot.
// Useful for tests and for applications that already know the path state.
func NewMonitorWithSnapshot(snap Snapshot) *Monitor {
	m := NewMonitor()
	m.current.Store(&snap)
	return m
}

// Current returns the latest known snapshot.
func (m *Monitor) Current() Snapshot {
	return *m.current.Load()
}

// OnChange registers a listener invoked whenever Connected or Interface
// changes. Minor field flaps do not fire. The returned cancel function
// unregisters the listener.
func (m *Monitor) OnChange(fn func(Snapshot)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Start begins consuming snapshots from source on a background goroutine.
// It is a no-op if the monitor was already started.
func (m *Monitor) Start(ctx context.Context, source Source) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	ch := source.Watch(ctx)
	go func() {
		defer close(m.done)
		for snap := range ch {
			m.Publish(snap)
		}
	}()
}

// Close stops observation and waits for the background goroutine to exit.
// Safe to call without a prior Start.
func (m *Monitor) Close() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.started = false
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Publish installs a new snapshot and notifies listeners if the change is
// significant. Exposed so applications can push platform path callbacks
// straight into the monitor.
func (m *Monitor) Publish(snap Snapshot) {
	prev := *m.current.Swap(&snap)
	if !significantChange(prev, snap) {
		return
	}

	m.mu.Lock()
	listeners := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
