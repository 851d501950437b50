package domain

import "encoding/json"

// Event is the live-event wire envelope: a tuple of
// {name, clientId, timestamp, ...payload}. ClientID is set by
// the trusted inbound path to the carrier's identifier and must never
// be trusted from a caller-supplied payload; Timestamp is drawn from a
// single session-shared source and is not assumed to be wall-clock
// time, only monotonic enough for freshness comparison.
type Event struct {
	Name      string
	ClientID  ClientID
	Timestamp int64
	Payload   map[string]any
}

// Clone returns a deep-enough copy of e for local mutation (overwriting
// Name/Timestamp/ClientID before submission) without aliasing the
// caller's payload map.
func (e Event) Clone() Event {
	out := Event{Name: e.Name, ClientID: e.ClientID, Timestamp: e.Timestamp}
	if e.Payload != nil {
		out.Payload = make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			out.Payload[k] = v
		}
	}
	return out
}

// MarshalJSON flattens the envelope into a single JSON object with
// name/clientId/timestamp alongside the payload fields, matching the
// wire shape a JS peer would produce for the same envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		flat[k] = v
	}
	flat["name"] = e.Name
	if !e.ClientID.Empty() {
		flat["clientId"] = e.ClientID
	}
	flat["timestamp"] = e.Timestamp
	return json.Marshal(flat)
}

// UnmarshalJSON reconstructs an Event from a flat wire object, pulling
// the three reserved keys out into their typed fields and leaving the
// rest in Payload.
func (e *Event) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if name, ok := flat["name"].(string); ok {
		e.Name = name
		delete(flat, "name")
	}
	if cid, ok := flat["clientId"].(string); ok {
		e.ClientID = ClientID(cid)
		delete(flat, "clientId")
	}
	if ts, ok := flat["timestamp"].(float64); ok {
		e.Timestamp = int64(ts)
		delete(flat, "timestamp")
	}
	e.Payload = flat
	return nil
}
