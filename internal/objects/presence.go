// Package objects contains example live objects: presence, a generic
// custom state machine, and a media-transport status object. Each is
// registered with a sync.Synchronizer through sync.NewFacade the same
// way an application's own live objects would be.
package objects

import (
	"sync"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/freshness"
)

// PresenceEntry is one participant's presence record: an opaque status
// string (e.g. "active", "away") stamped for freshness comparison.
type PresenceEntry struct {
	Status    string          `json:"status"`
	Timestamp int64           `json:"timestamp"`
	ClientID  domain.ClientID `json:"clientId"`
}

func (p PresenceEntry) FreshnessTimestamp() int64          { return p.Timestamp }
func (p PresenceEntry) FreshnessClientID() domain.ClientID { return p.ClientID }

// Presence is a live object mapping every known client id to its
// latest presence entry, merged across peers by the freshness rule.
type Presence struct {
	mu      sync.RWMutex
	self    domain.ClientID
	now     func() int64
	entries map[domain.ClientID]PresenceEntry
}

func NewPresence(self domain.ClientID, now func() int64) *Presence {
	return &Presence{self: self, now: now, entries: make(map[domain.ClientID]PresenceEntry)}
}

// SetStatus updates the local participant's status, to be picked up by
// the next GetState call (periodic tick or connect).
func (p *Presence) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[p.self] = PresenceEntry{Status: status, Timestamp: p.now(), ClientID: p.self}
}

// Snapshot returns the merged presence table for read-only display.
func (p *Presence) Snapshot() map[domain.ClientID]PresenceEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.ClientID]PresenceEntry, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}

// GetState implements sync.Object. It sends whenever the local entry
// exists, since presence is meant to be broadcast every tick as long
// as the participant has ever set a status.
func (p *Presence) GetState(connecting bool) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	self, ok := p.entries[p.self]
	if !ok {
		return nil, false
	}
	return map[domain.ClientID]PresenceEntry{p.self: self}, true
}

// ApplyRemoteState implements sync.Object: merge every incoming entry,
// keeping only the freshest per client id.
func (p *Presence) ApplyRemoteState(_ bool, state any, senderID domain.ClientID) {
	incoming, ok := decodeEntries(state)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for cid, entry := range incoming {
		if entry.ClientID == "" {
			entry.ClientID = senderID
		}
		existing, has := p.entries[cid]
		if !has || freshness.Newer(entry, existing) {
			p.entries[cid] = entry
		}
	}
}

// decodeEntries accepts either the concrete map produced by our own
// GetState or a map[string]any decoded off the wire (the JSON codec
// does not know about PresenceEntry).
func decodeEntries(state any) (map[domain.ClientID]PresenceEntry, bool) {
	switch v := state.(type) {
	case map[domain.ClientID]PresenceEntry:
		return v, true
	case map[string]any:
		out := make(map[domain.ClientID]PresenceEntry, len(v))
		for k, raw := range v {
			entry, ok := coercePresenceEntry(raw)
			if !ok {
				continue
			}
			out[domain.ClientID(k)] = entry
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

func coercePresenceEntry(raw any) (PresenceEntry, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return PresenceEntry{}, false
	}
	entry := PresenceEntry{}
	if status, ok := m["status"].(string); ok {
		entry.Status = status
	}
	if ts, ok := m["timestamp"].(float64); ok {
		entry.Timestamp = int64(ts)
	}
	if cid, ok := m["clientId"].(string); ok {
		entry.ClientID = domain.ClientID(cid)
	}
	return entry, true
}
