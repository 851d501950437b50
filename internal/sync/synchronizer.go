package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/signaling"
	"github.com/liveshare-oss/synccore/internal/telemetry"
)

// ErrDuplicateRegistration is the one error the protocol lets escape
// to the caller: constructing a second facade for the same
// (container, id) is a programmer error.
var ErrDuplicateRegistration = errors.New("sync: object already registered for this id")

const (
	signalConnect = "connect"
	signalUpdate  = "update"
)

// Object is what a live object registers with a Synchronizer: a way
// to snapshot its state and a way to absorb a peer's state.
//
// GetState returns (state, false) to mean "no state to send right
// now", which is skipped rather than coalesced into the outgoing
// payload.
type Object interface {
	GetState(connecting bool) (state any, ok bool)
	ApplyRemoteState(connecting bool, state any, senderID domain.ClientID)
}

type objectState int

const (
	statePending objectState = iota
	stateConnected
)

type registration struct {
	obj   Object
	state objectState
}

// Stats is a read-only snapshot of a Synchronizer's activity, exposed
// for the telemetry sink's consumers and for tests.
type Stats struct {
	Ticks            uint64
	UpdatesSent      uint64
	ConnectsSent     uint64
	PongsSent        uint64
	ObjectsCoalesced uint64
}

// Synchronizer is the per-container protocol engine. Exactly one
// exists per container-runtime identity (enforced by the registry).
type Synchronizer struct {
	runtime signaling.ContainerRuntimeSignaler
	sink    telemetry.Sink

	mu       sync.Mutex
	objects  map[domain.ObjectID]*registration
	refCount int
	stats    Stats

	tickMu sync.Mutex

	ticker   *time.Ticker
	tickDone chan struct{}

	unsubscribeSignal    func()
	unsubscribeConnected func()
}

func newSynchronizer(runtime signaling.ContainerRuntimeSignaler, sink telemetry.Sink) *Synchronizer {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	return &Synchronizer{
		runtime: runtime,
		sink:    sink,
		objects: make(map[domain.ObjectID]*registration),
	}
}

func (s *Synchronizer) retain() {
	s.mu.Lock()
	s.refCount++
	s.mu.Unlock()
}

func (s *Synchronizer) start() {
	s.unsubscribeSignal = s.runtime.OnSignal(s.handleInbound)
	s.unsubscribeConnected = s.runtime.OnConnected(s.handleConnected)
	s.ticker = time.NewTicker(UpdateInterval)
	s.tickDone = make(chan struct{})
	go s.tickLoop(s.ticker, s.tickDone)
}

func (s *Synchronizer) tickLoop(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Release decrements the refcount; at zero it stops the timer,
// unsubscribes from the runtime, and removes itself from the process
// registry.
func (s *Synchronizer) Release() {
	s.mu.Lock()
	s.refCount--
	remaining := s.refCount
	s.mu.Unlock()

	if remaining > 0 {
		return
	}

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.tickDone)
	}
	if s.unsubscribeSignal != nil {
		s.unsubscribeSignal()
	}
	if s.unsubscribeConnected != nil {
		s.unsubscribeConnected()
	}
	release(s.runtime.ID())
}

// Close waits up to ctx's deadline for any in-flight tick to finish
// before returning; it does not itself release the synchronizer. An
// in-flight tick may still have captured state for an object that is
// disposed mid-tick, but no new tick starts after Close observes an
// idle synchronizer.
func (s *Synchronizer) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.tickMu.Lock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		s.tickMu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterObject implements the outbound half of the "on registration
// of an object id" protocol: a newly registered object is sent
// immediately as a connect if the runtime is already connected, or
// deferred to the next handleConnected coalescing pass otherwise.
func (s *Synchronizer) RegisterObject(id domain.ObjectID, obj Object) error {
	s.mu.Lock()
	if _, exists := s.objects[id]; exists {
		s.mu.Unlock()
		return ErrDuplicateRegistration
	}

	connected := s.runtime.Connected()
	reg := &registration{obj: obj}
	if connected {
		reg.state = stateConnected
	} else {
		reg.state = statePending
	}
	s.objects[id] = reg
	s.mu.Unlock()

	if !connected {
		return nil
	}

	state, ok := s.safeGetState(id, obj, true)
	if ok {
		s.runtime.SubmitSignal(signalConnect, map[domain.ObjectID]any{id: state})
		s.mu.Lock()
		s.stats.ConnectsSent++
		s.mu.Unlock()
	}
	return nil
}

// UnregisterObject removes id from the registration table. It is safe
// to call from within a tick or an inbound handler.
func (s *Synchronizer) UnregisterObject(id domain.ObjectID) {
	s.mu.Lock()
	delete(s.objects, id)
	s.mu.Unlock()
}

// handleConnected implements "On runtime.connected": coalesce every
// pending object's connect state into one signal and promote them all
// to CONNECTED.
func (s *Synchronizer) handleConnected() {
	s.mu.Lock()
	pending := make(map[domain.ObjectID]Object)
	for id, reg := range s.objects {
		if reg.state == statePending {
			pending[id] = reg.obj
		}
	}
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	payload := make(map[domain.ObjectID]any, len(pending))
	for id, obj := range pending {
		if state, ok := s.safeGetState(id, obj, true); ok {
			payload[id] = state
		}
	}

	s.mu.Lock()
	for id := range pending {
		if reg, exists := s.objects[id]; exists {
			reg.state = stateConnected
		}
	}
	s.mu.Unlock()

	if len(payload) > 0 {
		s.runtime.SubmitSignal(signalConnect, payload)
		s.mu.Lock()
		s.stats.ConnectsSent++
		s.mu.Unlock()
	}
}

// tick implements the periodic "Every updateInterval milliseconds"
// outbound burst.
func (s *Synchronizer) tick() {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	s.stats.Ticks++
	connected := make(map[domain.ObjectID]Object, len(s.objects))
	for id, reg := range s.objects {
		if reg.state == stateConnected {
			connected[id] = reg.obj
		}
	}
	s.mu.Unlock()

	payload := s.collectStates(connected, false)
	if len(payload) == 0 {
		return
	}

	s.runtime.SubmitSignal(signalUpdate, payload)
	s.mu.Lock()
	s.stats.UpdatesSent++
	s.stats.ObjectsCoalesced += uint64(len(payload))
	s.mu.Unlock()
}

func (s *Synchronizer) collectStates(objects map[domain.ObjectID]Object, connecting bool) map[domain.ObjectID]any {
	payload := make(map[domain.ObjectID]any, len(objects))
	for id, obj := range objects {
		if state, ok := s.safeGetState(id, obj, connecting); ok {
			payload[id] = state
		}
	}
	return payload
}

// safeGetState isolates a panicking getState callback to a single
// object id, reporting it to telemetry and treating it as "no state"
// so the rest of the coalesced payload is unaffected.
func (s *Synchronizer) safeGetState(id domain.ObjectID, obj Object, connecting bool) (state any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			s.sink.Report(telemetry.Event{
				Name:     telemetry.EventGetStateFailure,
				ObjectID: string(id),
				Fields:   map[string]any{"panic": r},
			})
		}
	}()
	return obj.GetState(connecting)
}

func (s *Synchronizer) safeApplyState(id domain.ObjectID, obj Object, connecting bool, state any, senderID domain.ClientID) {
	defer func() {
		if r := recover(); r != nil {
			s.sink.Report(telemetry.Event{
				Name:     telemetry.EventApplyStateFailure,
				ObjectID: string(id),
				ClientID: string(senderID),
				Fields:   map[string]any{"panic": r},
			})
		}
	}()
	obj.ApplyRemoteState(connecting, state, senderID)
}

// handleInbound demultiplexes connect/update payloads by object id
// and, for a connect, sends an immediate pong update for the ids this
// peer recognized.
func (s *Synchronizer) handleInbound(msg signaling.InboundSignalMessage) {
	if msg.Local {
		return
	}
	if msg.Type != signalConnect && msg.Type != signalUpdate {
		return
	}
	payload, ok := msg.Content.(map[domain.ObjectID]any)
	if !ok {
		return
	}

	connecting := msg.Type == signalConnect
	recognized := make(map[domain.ObjectID]Object)

	s.mu.Lock()
	for id, state := range payload {
		if state == nil {
			continue
		}
		reg, exists := s.objects[id]
		if !exists {
			continue
		}
		recognized[id] = reg.obj
	}
	s.mu.Unlock()

	for id, obj := range recognized {
		s.safeApplyState(id, obj, connecting, payload[id], msg.ClientID)
	}

	if !connecting || len(recognized) == 0 {
		return
	}

	reply := s.collectStates(recognized, false)
	s.runtime.SubmitSignal(signalUpdate, reply)
	s.mu.Lock()
	s.stats.PongsSent++
	s.mu.Unlock()
}

// Stats returns a snapshot of activity counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ConnectedKeys and UnconnectedKeys expose the current partition of
// registered object ids, for tests validating that every registered
// object is in exactly one of the two states.
func (s *Synchronizer) ConnectedKeys() []domain.ObjectID {
	return s.keysInState(stateConnected)
}

func (s *Synchronizer) UnconnectedKeys() []domain.ObjectID {
	return s.keysInState(statePending)
}

func (s *Synchronizer) keysInState(want objectState) []domain.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ObjectID, 0, len(s.objects))
	for id, reg := range s.objects {
		if reg.state == want {
			out = append(out, id)
		}
	}
	return out
}
