// Package sync implements the Per-Container Synchronizer and its
// facade: the periodic, coalesced connect/update protocol that
// reconciles per-object state across all peers in a container.
package sync

import (
	"sync"
	"time"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/signaling"
	"github.com/liveshare-oss/synccore/internal/telemetry"
)

// UpdateInterval is the process-global tick cadence, mutable before
// any synchronizer is constructed. Changing it after synchronizers
// exist has no effect on already-running timers.
var UpdateInterval = 5000 * time.Millisecond

// registry is the process-wide table of live synchronizers, keyed by
// container-runtime identity, guarded by a single mutex.
type registry struct {
	mu    sync.Mutex
	byID  map[domain.ContainerID]*Synchronizer
	sink  telemetry.Sink
}

var global = &registry{byID: make(map[domain.ContainerID]*Synchronizer)}

// SetTelemetrySink configures the sink new synchronizers are created
// with when acquired through Acquire. Existing synchronizers keep
// whatever sink they were built with.
func SetTelemetrySink(sink telemetry.Sink) {
	global.mu.Lock()
	global.sink = sink
	global.mu.Unlock()
}

// Acquire returns the synchronizer for runtime's container identity,
// creating it on first use and incrementing its refcount. Callers must
// call Release exactly once per successful Acquire.
func Acquire(runtime signaling.ContainerRuntimeSignaler) *Synchronizer {
	id := runtime.ID()

	global.mu.Lock()
	defer global.mu.Unlock()

	if s, ok := global.byID[id]; ok {
		s.retain()
		return s
	}

	s := newSynchronizer(runtime, global.sink)
	global.byID[id] = s
	s.retain()
	s.start()
	return s
}

// release removes s from the registry once its refcount has reached
// zero. Called by Synchronizer.Release.
func release(id domain.ContainerID) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.byID, id)
}

// Count reports how many distinct container synchronizers currently
// exist, for tests validating the "exactly one per container" invariant.
func Count() int {
	global.mu.Lock()
	defer global.mu.Unlock()
	return len(global.byID)
}
