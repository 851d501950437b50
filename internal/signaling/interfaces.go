// Package signaling defines the minimal capability interfaces the
// core consumes from the underlying data-collaboration runtime. The
// runtime itself — token acquisition, transport, wire framing — is
// out of scope; these are the seams an implementer binds to a
// concrete carrier.
package signaling

import "github.com/liveshare-oss/synccore/internal/domain"

// InboundSignalMessage is what the carrier hands back on delivery: the
// signal type, the carrier-verified sender identifier (never trusted
// from payload), and the opaque content.
type InboundSignalMessage struct {
	Type     string
	ClientID domain.ClientID
	Content  any
	Local    bool
}

// SignalListener is invoked once per inbound message.
type SignalListener func(msg InboundSignalMessage)

// ConnectedListener is invoked when the runtime transitions to
// connected.
type ConnectedListener func()

// RuntimeSignaler is the per-client-connection capability set: it
// knows whether it is currently connected, what its own client
// identifier is, and can submit and receive signals scoped to this
// connection (used by the Event Scope).
type RuntimeSignaler interface {
	ClientID() (domain.ClientID, bool)
	Connected() bool
	SubmitSignal(signalType string, content any)
	OnConnected(ConnectedListener) (unsubscribe func())
	OnSignal(SignalListener) (unsubscribe func())
}

// ContainerRuntimeSignaler is the container-scoped capability set used
// by the per-container synchronizer: it has no notion of "my client
// id" because a single container fans out to every live object, not a
// single event stream.
type ContainerRuntimeSignaler interface {
	Connected() bool
	SubmitSignal(signalType string, content any)
	OnConnected(ConnectedListener) (unsubscribe func())
	OnSignal(SignalListener) (unsubscribe func())
	ID() domain.ContainerID
}

// TimestampSource returns a session-consistent int64-millis value. It
// is not assumed to be wall-clock time, only monotonic enough for the
// freshness rule and consistent across all peers in a session.
type TimestampSource func() int64
