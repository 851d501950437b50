package objects

import (
	"sync"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/freshness"
)

// StateValue is a single freshness-stamped value carried by a
// StateMachine, e.g. a whiteboard tool selection or a shared cursor
// mode.
type StateValue struct {
	Value     string          `json:"value"`
	Timestamp int64           `json:"timestamp"`
	ClientID  domain.ClientID `json:"clientId"`
}

func (v StateValue) FreshnessTimestamp() int64          { return v.Timestamp }
func (v StateValue) FreshnessClientID() domain.ClientID { return v.ClientID }

// StateMachine is a generic custom-state-machine live object: any
// application value that all peers converge on via the freshness rule
// rather than a domain-specific merge (contrast with Presence, which
// merges per-client entries instead of a single shared value).
type StateMachine struct {
	self domain.ClientID
	now  func() int64

	mu      sync.RWMutex
	current StateValue
}

func NewStateMachine(self domain.ClientID, now func() int64, initial string) *StateMachine {
	return &StateMachine{
		self:    self,
		now:     now,
		current: StateValue{Value: initial, Timestamp: now(), ClientID: self},
	}
}

// Transition proposes a new local value. Whether it "wins" is decided
// by the freshness rule once peers gossip their own transitions —
// this call only stamps the local candidate.
func (m *StateMachine) Transition(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = StateValue{Value: value, Timestamp: m.now(), ClientID: m.self}
}

// Current returns the machine's present value.
func (m *StateMachine) Current() StateValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// GetState always returns the current value: the periodic update is
// idempotent and authoritative, so a joiner's connect-pong and every
// later tick must keep carrying the settled value, not just the tick
// immediately after a transition.
func (m *StateMachine) GetState(connecting bool) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, true
}

func (m *StateMachine) ApplyRemoteState(_ bool, state any, senderID domain.ClientID) {
	incoming, ok := coerceStateValue(state)
	if !ok {
		return
	}
	if incoming.ClientID == "" {
		incoming.ClientID = senderID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if freshness.Newer(incoming, m.current) {
		m.current = incoming
	}
}

func coerceStateValue(state any) (StateValue, bool) {
	switch v := state.(type) {
	case StateValue:
		return v, true
	case map[string]any:
		out := StateValue{}
		if s, ok := v["value"].(string); ok {
			out.Value = s
		}
		if ts, ok := v["timestamp"].(float64); ok {
			out.Timestamp = int64(ts)
		}
		if cid, ok := v["clientId"].(string); ok {
			out.ClientID = domain.ClientID(cid)
		}
		return out, out.Value != ""
	default:
		return StateValue{}, false
	}
}
