package sync

import (
	"context"
	"testing"
	"time"

	"github.com/liveshare-oss/synccore/internal/carrier"
	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/objects"
	"github.com/liveshare-oss/synccore/internal/signaling"
	"github.com/liveshare-oss/synccore/internal/telemetry"
)

// fakeObject is a minimal Object whose GetState/ApplyRemoteState are
// scriptable per test, including panicking ones for isolation tests.
type fakeObject struct {
	state      any
	hasState   bool
	getPanics  bool
	applyCalls []any
}

func (f *fakeObject) GetState(connecting bool) (any, bool) {
	if f.getPanics {
		panic("getState exploded")
	}
	return f.state, f.hasState
}

func (f *fakeObject) ApplyRemoteState(connecting bool, state any, senderID domain.ClientID) {
	f.applyCalls = append(f.applyCalls, state)
}

func withFastTick(t *testing.T, interval time.Duration) {
	t.Helper()
	prev := UpdateInterval
	UpdateInterval = interval
	t.Cleanup(func() { UpdateInterval = prev })
}

// onPayload subscribes to peer's inbound signals of the given type and
// forwards decoded object payloads to fn, for tests that need to
// observe what a Synchronizer under test actually broadcast.
func onPayload(peer *carrier.Peer, signalType string, fn func(map[domain.ObjectID]any)) func() {
	return peer.OnSignal(func(msg signaling.InboundSignalMessage) {
		if msg.Type != signalType {
			return
		}
		if payload, ok := msg.Content.(map[domain.ObjectID]any); ok {
			fn(payload)
		}
	})
}

func TestAcquireIsSingletonPerContainer(t *testing.T) {
	withFastTick(t, time.Hour)
	bus := carrier.NewBus("container-singleton")
	peer := bus.Join("client-A", true)

	s1 := Acquire(peer)
	s2 := Acquire(peer)
	if s1 != s2 {
		t.Fatal("expected Acquire to return the same synchronizer for the same container identity")
	}
	if got := Count(); got != 1 {
		t.Fatalf("expected exactly 1 live synchronizer, got %d", got)
	}

	s1.Release()
	s2.Release()
	if got := Count(); got != 0 {
		t.Fatalf("expected 0 live synchronizers after both releases, got %d", got)
	}
}

func TestTickCoalescesMultipleObjectsIntoOneUpdate(t *testing.T) {
	withFastTick(t, 15*time.Millisecond)
	bus := carrier.NewBus("container-coalesce")
	sender := bus.Join("sender", true)
	observer := bus.Join("observer", true)

	s := Acquire(sender)
	defer s.Release()

	objA := &fakeObject{state: "a", hasState: true}
	objB := &fakeObject{state: "b", hasState: true}
	objC := &fakeObject{state: "c", hasState: true}
	if err := s.RegisterObject("a", objA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := s.RegisterObject("b", objB); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if err := s.RegisterObject("c", objC); err != nil {
		t.Fatalf("register c: %v", err)
	}

	updates := make(chan map[domain.ObjectID]any, 8)
	unsub := onPayload(observer, "update", func(payload map[domain.ObjectID]any) { updates <- payload })
	defer unsub()

	select {
	case payload := <-updates:
		if len(payload) != 3 {
			t.Fatalf("expected a single update coalescing all 3 objects, got %d entries: %+v", len(payload), payload)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for coalesced update")
	}
}

func TestDeferredConnectFiresCoalescedConnectOnce(t *testing.T) {
	withFastTick(t, time.Hour)
	bus := carrier.NewBus("container-deferred")
	sender := bus.Join("sender", false)
	observer := bus.Join("observer", true)

	s := Acquire(sender)
	defer s.Release()

	objA := &fakeObject{state: "a", hasState: true}
	objB := &fakeObject{state: "b", hasState: true}
	if err := s.RegisterObject("a", objA); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := s.RegisterObject("b", objB); err != nil {
		t.Fatalf("register b: %v", err)
	}

	connects := make(chan map[domain.ObjectID]any, 4)
	unsub := onPayload(observer, "connect", func(payload map[domain.ObjectID]any) { connects <- payload })
	defer unsub()

	sender.Connect()

	select {
	case payload := <-connects:
		if len(payload) != 2 {
			t.Fatalf("expected connect to coalesce both pending objects, got %d entries", len(payload))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for coalesced connect")
	}

	if got := s.ConnectedKeys(); len(got) != 2 {
		t.Fatalf("expected both objects promoted to connected, got %+v", got)
	}
	if got := s.UnconnectedKeys(); len(got) != 0 {
		t.Fatalf("expected no objects left pending, got %+v", got)
	}
}

func TestConnectTriggersPongFromRecognizedPeer(t *testing.T) {
	withFastTick(t, time.Hour)
	bus := carrier.NewBus("container-pong")
	existing := bus.Join("existing", true)
	joiner := bus.Join("joiner", true)

	sExisting := Acquire(existing)
	defer sExisting.Release()
	sJoiner := Acquire(joiner)
	defer sJoiner.Release()

	existingObj := &fakeObject{state: "existing-state", hasState: true}
	if err := sExisting.RegisterObject("shared", existingObj); err != nil {
		t.Fatalf("register on existing: %v", err)
	}

	joinerObj := &fakeObject{state: "joiner-state", hasState: true}
	if err := sJoiner.RegisterObject("shared", joinerObj); err != nil {
		t.Fatalf("register on joiner: %v", err)
	}

	deadline := time.After(500 * time.Millisecond)
	for len(joinerObj.applyCalls) == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the joiner to receive the existing peer's pong reply")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if sExisting.Stats().PongsSent != 1 {
		t.Fatalf("expected the existing peer to have sent exactly one pong, got %+v", sExisting.Stats())
	}
}

// TestSettledObjectKeepsConvergingAfterItStopsChanging guards against a
// getState that only sends on the tick right after a local change: a
// real object like Presence has no such gate, and a periodic update
// several ticks after the last change must still carry its value so a
// late joiner converges on it.
func TestSettledObjectKeepsConvergingAfterItStopsChanging(t *testing.T) {
	withFastTick(t, 15*time.Millisecond)
	bus := carrier.NewBus("container-settled")
	sender := bus.Join("sender", true)
	observer := bus.Join("observer", true)

	s := Acquire(sender)
	defer s.Release()

	presence := objects.NewPresence("sender", func() int64 { return 1 })
	presence.SetStatus("active")
	if err := s.RegisterObject("presence", presence); err != nil {
		t.Fatalf("register: %v", err)
	}

	updates := make(chan map[domain.ObjectID]any, 8)
	unsub := onPayload(observer, "update", func(payload map[domain.ObjectID]any) { updates <- payload })
	defer unsub()

	// Drain a couple of ticks so the value is no longer "just set".
	for i := 0; i < 3; i++ {
		select {
		case payload := <-updates:
			if _, ok := payload["presence"]; !ok {
				t.Fatalf("expected tick %d to still carry the settled presence value", i)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timed out waiting for tick %d", i)
		}
	}
}

func TestGetStateFailureIsIsolatedPerObject(t *testing.T) {
	withFastTick(t, 15*time.Millisecond)
	bus := carrier.NewBus("container-getstate-panic")
	sender := bus.Join("sender", true)
	observer := bus.Join("observer", true)

	sink := telemetry.NewMemorySink()
	SetTelemetrySink(sink)
	defer SetTelemetrySink(telemetry.NopSink{})

	s := Acquire(sender)
	defer s.Release()

	broken := &fakeObject{getPanics: true}
	healthy := &fakeObject{state: "fine", hasState: true}
	if err := s.RegisterObject("broken", broken); err != nil {
		t.Fatalf("register broken: %v", err)
	}
	if err := s.RegisterObject("healthy", healthy); err != nil {
		t.Fatalf("register healthy: %v", err)
	}

	updates := make(chan map[domain.ObjectID]any, 4)
	unsub := onPayload(observer, "update", func(payload map[domain.ObjectID]any) { updates <- payload })
	defer unsub()

	select {
	case payload := <-updates:
		if _, ok := payload["broken"]; ok {
			t.Fatal("expected the panicking object's state to be excluded from the update")
		}
		if _, ok := payload["healthy"]; !ok {
			t.Fatal("expected the healthy object's state to still be delivered")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for update")
	}

	if sink.CountByName(telemetry.EventGetStateFailure) == 0 {
		t.Fatal("expected a getState failure telemetry event")
	}
}

func TestDuplicateRegistrationErrors(t *testing.T) {
	withFastTick(t, time.Hour)
	bus := carrier.NewBus("container-dup")
	peer := bus.Join("client-A", true)

	s := Acquire(peer)
	defer s.Release()

	if err := s.RegisterObject("a", &fakeObject{}); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if err := s.RegisterObject("a", &fakeObject{}); err != ErrDuplicateRegistration {
		t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
	}
}

func TestCloseDrainsInFlightTick(t *testing.T) {
	withFastTick(t, 10*time.Millisecond)
	bus := carrier.NewBus("container-close")
	peer := bus.Join("client-A", true)

	s := Acquire(peer)
	defer s.Release()

	if err := s.RegisterObject("a", &fakeObject{state: "x", hasState: true}); err != nil {
		t.Fatalf("register: %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("expected Close to return promptly once idle, got %v", err)
	}
}
