// Package timers provides per-visitor cancellable timers for the handoff
// orchestrator, implemented on Go's standard time package.
//
// Four timer kinds exist per visitor; at most one live timer of each kind is
// allowed, and starting a new one always cancels its predecessor. The registry
// is an explicit process-scoped object injected into the coordinator so tests
// can instantiate isolated instances.
package timers

import (
	"log/slog"
	"sync"
	"time"
)

// Kind identifies one of the per-visitor timer slots.
type Kind string

const (
	// KindHandoffTimeout reclaims a pending request nobody claimed in time.
	KindHandoffTimeout Kind = "handoff_timeout"
	// KindInactivity reclaims a connected conversation whose visitor went silent.
	KindInactivity Kind = "inactivity"
	// KindWaiting periodically refreshes the waiting-time display while a
	// request is pending.
	KindWaiting Kind = "waiting_tick"
	// KindDuration periodically refreshes the connection duration display
	// while an agent is connected.
	KindDuration Kind = "duration_tick"
)

// registryEntry tracks one scheduled timer or ticker.
type registryEntry struct {
	timer      *time.Timer
	ticker     *time.Ticker
	done       chan struct{}
	generation uint64
}

// Registry owns all per-visitor timers for one service instance.
type Registry struct {
	entries    map[string]*registryEntry
	mu         sync.Mutex
	generation uint64
	stopped    bool
}

// NewRegistry creates an empty timer registry.
func NewRegistry() *Registry {
	slog.Debug("Creating timer Registry")
	return &Registry{entries: make(map[string]*registryEntry)}
}

func key(visitorID string, kind Kind) string {
	return visitorID + "/" + string(kind)
}

// StartAfter schedules a single-shot callback for a visitor, replacing any
// live timer of the same kind.
func (r *Registry) StartAfter(visitorID string, kind Kind, delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		slog.Warn("Registry StartAfter on stopped registry", "visitorID", visitorID, "kind", kind)
		return
	}
	r.cancelLocked(visitorID, kind)

	r.generation++
	generation := r.generation
	k := key(visitorID, kind)

	entry := &registryEntry{generation: generation}
	entry.timer = time.AfterFunc(delay, func() {
		// A replacement may have been started between firing and locking;
		// only the current generation may clean up and run.
		r.mu.Lock()
		current, ok := r.entries[k]
		if !ok || current.generation != generation {
			r.mu.Unlock()
			return
		}
		delete(r.entries, k)
		r.mu.Unlock()

		slog.Debug("Registry timer fired", "visitorID", visitorID, "kind", kind)
		fn()
	})
	r.entries[k] = entry
	slog.Debug("Registry StartAfter", "visitorID", visitorID, "kind", kind, "delay", delay)
}

// StartRepeating schedules a repeating callback for a visitor, replacing any
// live timer of the same kind. The callback runs until the kind is cancelled.
func (r *Registry) StartRepeating(visitorID string, kind Kind, interval time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		slog.Warn("Registry StartRepeating on stopped registry", "visitorID", visitorID, "kind", kind)
		return
	}
	r.cancelLocked(visitorID, kind)

	r.generation++
	entry := &registryEntry{
		ticker:     time.NewTicker(interval),
		done:       make(chan struct{}),
		generation: r.generation,
	}
	r.entries[key(visitorID, kind)] = entry

	go func() {
		for {
			select {
			case <-entry.ticker.C:
				fn()
			case <-entry.done:
				return
			}
		}
	}()
	slog.Debug("Registry StartRepeating", "visitorID", visitorID, "kind", kind, "interval", interval)
}

// cancelLocked stops and removes one timer slot. Caller must hold the mutex.
func (r *Registry) cancelLocked(visitorID string, kind Kind) {
	k := key(visitorID, kind)
	entry, ok := r.entries[k]
	if !ok {
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if entry.ticker != nil {
		entry.ticker.Stop()
		close(entry.done)
	}
	delete(r.entries, k)
	slog.Debug("Registry cancelled timer", "visitorID", visitorID, "kind", kind)
}

// Cancel stops a visitor's timer of one kind, if live.
func (r *Registry) Cancel(visitorID string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(visitorID, kind)
}

// CancelAll stops every live timer for a visitor. Ending a connection or
// request by any path must call this synchronously so no cancelled-but-still-
// scheduled duplicate reclamation can fire.
func (r *Registry) CancelAll(visitorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range []Kind{KindHandoffTimeout, KindInactivity, KindWaiting, KindDuration} {
		r.cancelLocked(visitorID, kind)
	}
}

// Active reports whether a visitor has a live timer of the given kind.
func (r *Registry) Active(visitorID string, kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key(visitorID, kind)]
	return ok
}

// Stop cancels all timers and rejects further scheduling. Intended for
// service teardown and test cleanup.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	slog.Debug("Registry stopping all timers", "count", len(r.entries))
	for k, entry := range r.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		if entry.ticker != nil {
			entry.ticker.Stop()
			close(entry.done)
		}
		delete(r.entries, k)
	}
	r.stopped = true
}
