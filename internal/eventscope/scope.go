// Package eventscope implements the Event Scope: a typed, role-filtered
// send/receive channel for named events layered on top of a raw
// RuntimeSignaler.
package eventscope

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/roles"
	"github.com/liveshare-oss/synccore/internal/signaling"
	"github.com/liveshare-oss/synccore/internal/telemetry"
)

// Listener receives a delivered event and whether it originated at
// this client.
type Listener func(evt domain.Event, local bool)

// SubscriptionID identifies a registered listener for OffEvent.
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	listener Listener
}

// Scope is a named, role-filtered broadcast channel. It does not own
// its runtime; the runtime may be shared across many scopes.
type Scope struct {
	runtime  signaling.RuntimeSignaler
	verifier *roles.Verifier
	sink     telemetry.Sink
	now      signaling.TimestampSource

	mu           sync.RWMutex
	allowedRoles domain.RoleSet

	listenersMu sync.RWMutex
	listeners   map[string][]subscription
	nextID      uint64

	unsubscribeSignal func()
}

// New constructs a Scope bound to runtime. allowedRoles may be nil or
// empty, meaning every inbound event is allowed through the role gate.
func New(runtime signaling.RuntimeSignaler, verifier *roles.Verifier, sink telemetry.Sink, now signaling.TimestampSource, allowedRoles domain.RoleSet) *Scope {
	if sink == nil {
		sink = telemetry.NopSink{}
	}
	s := &Scope{
		runtime:      runtime,
		verifier:     verifier,
		sink:         sink,
		now:          now,
		allowedRoles: allowedRoles,
		listeners:    make(map[string][]subscription),
	}
	s.unsubscribeSignal = runtime.OnSignal(s.handleInbound)
	return s
}

// Close stops listening to the runtime. It does not touch the runtime
// itself, matching the scope's "does not own its runtime" invariant.
func (s *Scope) Close() {
	if s.unsubscribeSignal != nil {
		s.unsubscribeSignal()
	}
}

// AllowedRoles returns the current role filter.
func (s *Scope) AllowedRoles() domain.RoleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowedRoles
}

// SetAllowedRoles replaces the role filter at runtime. It governs
// inbound filtering only — outbound sends are never filtered locally.
func (s *Scope) SetAllowedRoles(roles domain.RoleSet) {
	s.mu.Lock()
	s.allowedRoles = roles
	s.mu.Unlock()
}

// SendEvent clones partial, overwrites name/timestamp/clientId, submits
// it to the signaler, and returns the completed envelope. It never
// blocks on delivery confirmation; if the runtime is disconnected the
// clientId may be absent and the submission is best-effort.
func (s *Scope) SendEvent(name string, partial map[string]any) domain.Event {
	evt := domain.Event{Name: name, Payload: partial}.Clone()
	evt.Timestamp = s.now()
	if cid, ok := s.runtime.ClientID(); ok {
		evt.ClientID = cid
	}
	s.runtime.SubmitSignal(name, evt)
	return evt
}

// OnEvent subscribes listener to events named name, returning an id
// usable with OffEvent and an unsubscribe closure for convenience.
func (s *Scope) OnEvent(name string, listener Listener) (SubscriptionID, func()) {
	s.listenersMu.Lock()
	s.nextID++
	id := SubscriptionID(s.nextID)
	s.listeners[name] = append(s.listeners[name], subscription{id: id, listener: listener})
	s.listenersMu.Unlock()
	return id, func() { s.OffEvent(name, id) }
}

// OffEvent removes a previously registered listener.
func (s *Scope) OffEvent(name string, id SubscriptionID) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	subs := s.listeners[name]
	for i, sub := range subs {
		if sub.id == id {
			s.listeners[name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (s *Scope) handleInbound(msg signaling.InboundSignalMessage) {
	// (a) drop if not connected, or the carrier gave no clientId.
	if !s.runtime.Connected() || msg.ClientID.Empty() {
		return
	}

	evt := domain.Event{Name: msg.Type}
	switch content := msg.Content.(type) {
	case map[string]any:
		// Delivered off a JSON carrier: the reserved keys are still
		// flattened into the payload, so decode them the same way the
		// wire codec does rather than stamping a fresh receive time.
		if raw, err := json.Marshal(content); err == nil {
			_ = evt.UnmarshalJSON(raw)
		}
	case domain.Event:
		evt = content
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = s.now()
	}
	// (b) sender identity is never trusted from payload; it is always
	// rewritten to the carrier-supplied clientId.
	evt.ClientID = msg.ClientID
	evt.Name = msg.Type

	allowed := s.AllowedRoles()
	if len(allowed) > 0 {
		ok, err := s.verifier.VerifyAllowed(context.Background(), msg.ClientID, allowed)
		if err != nil {
			s.sink.Report(telemetry.Event{
				Name:     telemetry.EventRoleLookupFailure,
				ClientID: string(msg.ClientID),
				Err:      err,
			})
			return
		}
		if !ok {
			s.sink.Report(telemetry.Event{
				Name:     telemetry.EventInvalidRole,
				ClientID: string(msg.ClientID),
				Fields:   map[string]any{"event": msg.Type},
			})
			return
		}
	}

	s.dispatch(msg.Type, evt, msg.Local)
}

func (s *Scope) dispatch(name string, evt domain.Event, local bool) {
	s.listenersMu.RLock()
	subs := append([]subscription(nil), s.listeners[name]...)
	s.listenersMu.RUnlock()

	for _, sub := range subs {
		s.safeInvoke(sub.listener, evt, local)
	}
}

// safeInvoke isolates a listener panic so one faulty handler cannot
// interrupt delivery to the others; the panic is reported to telemetry
// instead of propagating.
func (s *Scope) safeInvoke(listener Listener, evt domain.Event, local bool) {
	defer func() {
		if r := recover(); r != nil {
			s.sink.Report(telemetry.Event{
				Name:     telemetry.EventListenerFailure,
				ClientID: string(evt.ClientID),
				Fields:   map[string]any{"event": evt.Name, "panic": r},
			})
		}
	}()
	listener(evt, local)
}
