package objects

import "testing"

func TestStateMachineGetStateIsIdempotentAcrossTicks(t *testing.T) {
	m := NewStateMachine("client-A", func() int64 { return 0 }, "idle")

	if state, ok := m.GetState(false); !ok || state.(StateValue).Value != "idle" {
		t.Fatalf("expected the initial value to be sent on a plain tick, got %+v ok=%v", state, ok)
	}
	if state, ok := m.GetState(false); !ok || state.(StateValue).Value != "idle" {
		t.Fatalf("expected a later tick to still carry the settled value, got %+v ok=%v", state, ok)
	}

	m.Transition("active")
	if state, ok := m.GetState(false); !ok || state.(StateValue).Value != "active" {
		t.Fatalf("expected the transitioned value, got %+v ok=%v", state, ok)
	}
	if state, ok := m.GetState(true); !ok || state.(StateValue).Value != "active" {
		t.Fatalf("expected a connecting getState to return the same settled value, got %+v ok=%v", state, ok)
	}
}

func TestStateMachineConvergesOnNewerRemoteValue(t *testing.T) {
	m := NewStateMachine("client-A", func() int64 { return 1000 }, "idle")

	m.ApplyRemoteState(false, StateValue{Value: "remote-wins", Timestamp: 2000, ClientID: "client-B"}, "client-B")
	if m.Current().Value != "remote-wins" {
		t.Fatalf("expected newer remote value to win, got %q", m.Current().Value)
	}

	m.ApplyRemoteState(false, StateValue{Value: "stale", Timestamp: 500, ClientID: "client-C"}, "client-C")
	if m.Current().Value != "remote-wins" {
		t.Fatalf("expected stale remote value to be rejected, got %q", m.Current().Value)
	}
}

func TestStateMachineCoercesWireFormat(t *testing.T) {
	m := NewStateMachine("client-A", func() int64 { return 0 }, "idle")

	wire := map[string]any{"value": "from-wire", "timestamp": float64(999), "clientId": "client-B"}
	m.ApplyRemoteState(false, wire, "client-B")

	if m.Current().Value != "from-wire" {
		t.Fatalf("expected decoded wire value to apply, got %+v", m.Current())
	}
}
