// Package freshness implements the total order used to resolve
// concurrent writes to the same live object across peers whose clocks
// are not assumed to agree on wall-clock time.
package freshness

import "github.com/liveshare-oss/synccore/internal/domain"

// Stamped is anything that can report the (timestamp, clientId) pair
// the freshness rule orders on. Live object state that wants to
// participate in convergence should embed these two fields and expose
// them through this interface.
type Stamped interface {
	FreshnessTimestamp() int64
	FreshnessClientID() domain.ClientID
}

// Stamp is a concrete Stamped value, convenient for tests and for
// state records that don't want to implement the interface themselves.
type Stamp struct {
	Timestamp int64
	ClientID  domain.ClientID
}

func (s Stamp) FreshnessTimestamp() int64        { return s.Timestamp }
func (s Stamp) FreshnessClientID() domain.ClientID { return s.ClientID }

// Newer reports whether a is newer than b under the rule: a.timestamp
// > b.timestamp, or equal timestamps broken by a.clientId > b.clientId
// in lexicographic order. It is a strict total order: for any a, b
// exactly one of Newer(a,b), Newer(b,a), or Equal(a,b) holds.
func Newer(a, b Stamped) bool {
	at, bt := a.FreshnessTimestamp(), b.FreshnessTimestamp()
	if at != bt {
		return at > bt
	}
	return a.FreshnessClientID() > b.FreshnessClientID()
}

// Equal reports whether a and b tie under the freshness rule (same
// timestamp and same clientId).
func Equal(a, b Stamped) bool {
	return a.FreshnessTimestamp() == b.FreshnessTimestamp() &&
		a.FreshnessClientID() == b.FreshnessClientID()
}

// Winner returns whichever of a, b is newer, breaking ties toward a.
func Winner(a, b Stamped) Stamped {
	if Newer(b, a) {
		return b
	}
	return a
}
