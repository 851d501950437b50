package domain

import (
	"encoding/json"
	"testing"
)

func TestEventCloneDoesNotAliasPayload(t *testing.T) {
	original := Event{Name: "transport", Payload: map[string]any{"v": 1}}
	clone := original.Clone()
	clone.Payload["v"] = 2

	if original.Payload["v"] != 1 {
		t.Fatalf("mutating clone's payload leaked into original: %v", original.Payload["v"])
	}
}

func TestEventRoundTripsThroughJSON(t *testing.T) {
	original := Event{
		Name:      "cursor",
		ClientID:  "client-1",
		Timestamp: 12345,
		Payload:   map[string]any{"x": 1.0, "y": 2.0},
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Name != original.Name || decoded.ClientID != original.ClientID || decoded.Timestamp != original.Timestamp {
		t.Fatalf("reserved fields did not round-trip: got %+v", decoded)
	}
	if decoded.Payload["x"] != 1.0 || decoded.Payload["y"] != 2.0 {
		t.Fatalf("payload did not round-trip: got %+v", decoded.Payload)
	}
}

func TestEmptyClientIDDetected(t *testing.T) {
	var c ClientID
	if !c.Empty() {
		t.Fatal("zero-value ClientID must report Empty")
	}
	c = "abc"
	if c.Empty() {
		t.Fatal("non-empty ClientID must not report Empty")
	}
}
