package objects

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/freshness"
)

// MediaState is the transient, gossiped half of a media transport's
// status: which kinds of media this participant is currently sending
// and the underlying peer connection's ICE state, for peers to render
// "connecting"/"live"/"muted" indicators without polling signaling.
// It intentionally excludes SDP offers/answers and ICE candidates —
// negotiating those is the host runtime's job, not this core's; this
// object only gossips the small summary peers actually need for
// presence-style UI.
type MediaState struct {
	AudioEnabled bool                      `json:"audioEnabled"`
	VideoEnabled bool                      `json:"videoEnabled"`
	ICEState     webrtc.ICEConnectionState `json:"iceState"`
	Timestamp    int64                     `json:"timestamp"`
	ClientID     domain.ClientID           `json:"clientId"`
}

func (s MediaState) FreshnessTimestamp() int64          { return s.Timestamp }
func (s MediaState) FreshnessClientID() domain.ClientID { return s.ClientID }

// MediaTransport is a live object that gossips a MediaState per known
// participant, similar to Presence but scoped to media-track
// visibility rather than online/away status.
type MediaTransport struct {
	self domain.ClientID
	now  func() int64

	mu     sync.RWMutex
	local  MediaState
	remote map[domain.ClientID]MediaState
}

func NewMediaTransport(self domain.ClientID, now func() int64) *MediaTransport {
	return &MediaTransport{
		self:   self,
		now:    now,
		remote: make(map[domain.ClientID]MediaState),
	}
}

// SetLocalState is called by the adapter that owns the actual
// webrtc.PeerConnection whenever its track flags or ICE state change.
func (m *MediaTransport) SetLocalState(audio, video bool, ice webrtc.ICEConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local = MediaState{
		AudioEnabled: audio,
		VideoEnabled: video,
		ICEState:     ice,
		Timestamp:    m.now(),
		ClientID:     m.self,
	}
}

// StateOf returns the last known media state for a peer, or false if
// none has ever arrived.
func (m *MediaTransport) StateOf(client domain.ClientID) (MediaState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.remote[client]
	return s, ok
}

// GetState omits sending only until a local state has ever been set;
// once set it is resent on every tick, idempotently, so a joiner's
// connect-pong and every later periodic update both carry it.
func (m *MediaTransport) GetState(connecting bool) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.local.Timestamp == 0 {
		return nil, false
	}
	return m.local, true
}

func (m *MediaTransport) ApplyRemoteState(_ bool, state any, senderID domain.ClientID) {
	incoming, ok := coerceMediaState(state)
	if !ok {
		return
	}
	if incoming.ClientID == "" {
		incoming.ClientID = senderID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, has := m.remote[incoming.ClientID]
	if !has || freshness.Newer(incoming, existing) {
		m.remote[incoming.ClientID] = incoming
	}
}

func coerceMediaState(state any) (MediaState, bool) {
	switch v := state.(type) {
	case MediaState:
		return v, true
	case map[string]any:
		out := MediaState{}
		if b, ok := v["audioEnabled"].(bool); ok {
			out.AudioEnabled = b
		}
		if b, ok := v["videoEnabled"].(bool); ok {
			out.VideoEnabled = b
		}
		if s, ok := v["iceState"].(string); ok {
			out.ICEState = iceStateFromString(s)
		}
		if ts, ok := v["timestamp"].(float64); ok {
			out.Timestamp = int64(ts)
		}
		if cid, ok := v["clientId"].(string); ok {
			out.ClientID = domain.ClientID(cid)
		}
		return out, out.Timestamp != 0
	default:
		return MediaState{}, false
	}
}

func iceStateFromString(s string) webrtc.ICEConnectionState {
	for _, st := range []webrtc.ICEConnectionState{
		webrtc.ICEConnectionStateNew,
		webrtc.ICEConnectionStateChecking,
		webrtc.ICEConnectionStateConnected,
		webrtc.ICEConnectionStateCompleted,
		webrtc.ICEConnectionStateFailed,
		webrtc.ICEConnectionStateDisconnected,
		webrtc.ICEConnectionStateClosed,
	} {
		if st.String() == s {
			return st
		}
	}
	return webrtc.ICEConnectionStateNew
}
