// Package task tracks in-flight conversation runs and mediates cooperative
// stop. A Manager is process-local: state does not survive a process
// restart, so a run abandoned by a crash must be resumed as a fresh turn
// rather than recovered in place.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/agentgraph/engine/runtime/agent/telemetry"
)

type (
	// Handle is the in-memory record of a single in-flight run. At most one
	// Handle exists per thread id at any time; Register displaces any prior
	// handle for the same thread id by cancelling it first.
	Handle struct {
		// ThreadID identifies the conversation this run is executing against.
		ThreadID string
		// StartedAt records when the handle was registered.
		StartedAt time.Time

		cancel context.CancelFunc
		stop   *atomicBool
	}

	// Manager is a process-local registry of in-flight runs keyed by thread
	// id. All operations are safe for concurrent use. Registration is
	// serialized per thread id so a displaced handle is fully cancelled
	// before its replacement begins observing state.
	Manager struct {
		mu      sync.Mutex
		handles map[string]*Handle
		metrics telemetry.Metrics
	}

	atomicBool struct {
		mu sync.RWMutex
		v  bool
	}
)

func (b *atomicBool) set(v bool) {
	b.mu.Lock()
	b.v = v
	b.mu.Unlock()
}

func (b *atomicBool) get() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.v
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{handles: make(map[string]*Handle), metrics: telemetry.NewNoopMetrics()}
}

// SetMetrics installs the Metrics recorder used to report the active-run
// gauge. Passing nil restores the no-op recorder.
func (m *Manager) SetMetrics(metrics telemetry.Metrics) {
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	m.mu.Lock()
	m.metrics = metrics
	m.mu.Unlock()
}

// Register inserts a handle for threadID, returning a context that is
// cancelled when Cancel is called for this thread id (or a later
// displacing call to Register). If a handle already exists for threadID it
// is cancelled before the new one is installed, per the displacement
// policy: only one run may observe a thread id's state at a time.
func (m *Manager) Register(ctx context.Context, threadID string) (context.Context, *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.handles[threadID]; ok {
		prev.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ThreadID:  threadID,
		StartedAt: time.Now(),
		cancel:    cancel,
		stop:      &atomicBool{},
	}
	m.handles[threadID] = h
	m.metrics.RecordGauge("task.active_runs", float64(len(m.handles)))
	return runCtx, h
}

// Unregister removes the handle for threadID if present. Idempotent: calling
// it twice, or for a thread id with no handle, is a no-op. Unregister does
// not itself cancel the context; callers cancel explicitly (or rely on the
// parent context) before or after unregistering.
func (m *Manager) Unregister(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handles, threadID)
	m.metrics.RecordGauge("task.active_runs", float64(len(m.handles)))
}

// Stop sets the cooperative stop flag on the handle for threadID and
// reports whether a handle existed. Idempotent. The stream loop observes
// this flag between events via IsStopped and exits cleanly, persisting
// whatever has been produced so far.
func (m *Manager) Stop(threadID string) bool {
	m.mu.Lock()
	h, ok := m.handles[threadID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	h.stop.set(true)
	return true
}

// Cancel triggers the cancellation token for threadID, forcing any blocking
// I/O inside the runtime to abort. Callers normally call Stop first to allow
// the stream loop a chance to exit gracefully between events, then Cancel to
// force exit of anything still blocked. Reports whether a handle existed.
func (m *Manager) Cancel(threadID string) bool {
	m.mu.Lock()
	h, ok := m.handles[threadID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// IsStopped reports whether the stop flag is set for threadID. Returns
// false, not an error, when no handle exists: an absent handle is
// indistinguishable from a thread id that was never running.
func (m *Manager) IsStopped(threadID string) bool {
	m.mu.Lock()
	h, ok := m.handles[threadID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return h.stop.get()
}

// Lookup returns the handle registered for threadID, if any.
func (m *Manager) Lookup(threadID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[threadID]
	return h, ok
}
