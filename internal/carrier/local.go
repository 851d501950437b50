// Package carrier provides bindings from the abstract signaling
// interfaces (internal/signaling) to concrete transports: an
// in-process Bus for tests and the CLI simulator, and a
// gorilla/websocket + gin Hub for the demo server. Both are stand-ins
// for whatever real data-collaboration runtime a production deployment
// binds underneath the core.
package carrier

import (
	"sync"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/signaling"
)

// Bus is a shared in-process broadcast medium representing one
// container. Every Peer joined to the same Bus sees every other
// peer's submitted signals, with Local set for the peer that sent it.
type Bus struct {
	id domain.ContainerID

	mu    sync.Mutex
	peers map[domain.ClientID]*Peer
}

func NewBus(id domain.ContainerID) *Bus {
	return &Bus{id: id, peers: make(map[domain.ClientID]*Peer)}
}

// Join adds a new peer to the bus. startConnected controls whether the
// peer begins in the connected state; call Connect later to simulate a
// deferred connection (spec scenario 3).
//
// Each joined peer gets its own container identity derived from the
// bus and the joining client, not the bus's bare id: in the real
// system every client binds its own process-local Synchronizer to its
// own connection to a container, so two peers sharing a Bus here must
// not collapse into the single-registry-entry-per-container-id
// singleton meant for one client's own duplicate registrations.
func (b *Bus) Join(clientID domain.ClientID, startConnected bool) *Peer {
	containerID := domain.ContainerID(string(b.id) + "#" + string(clientID))
	p := &Peer{id: clientID, containerID: containerID, bus: b, connected: startConnected}
	b.mu.Lock()
	b.peers[clientID] = p
	b.mu.Unlock()
	return p
}

// Leave removes a peer from the bus; it stops receiving and can no
// longer be delivered to.
func (b *Bus) Leave(clientID domain.ClientID) {
	b.mu.Lock()
	delete(b.peers, clientID)
	b.mu.Unlock()
}

func (b *Bus) snapshot() []*Peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Peer, 0, len(b.peers))
	for _, p := range b.peers {
		out = append(out, p)
	}
	return out
}

// Peer is one participant's view of the Bus. It implements both
// signaling.RuntimeSignaler and signaling.ContainerRuntimeSignaler —
// in the real runtime these are two capability views of the same
// underlying connection object, and a single type satisfying both
// interfaces structurally mirrors that.
type Peer struct {
	id          domain.ClientID
	containerID domain.ContainerID
	bus         *Bus

	mu                 sync.Mutex
	connected          bool
	signalListeners    []signaling.SignalListener
	connectedListeners []signaling.ConnectedListener
}

func (p *Peer) ClientID() (domain.ClientID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return "", false
	}
	return p.id, true
}

func (p *Peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Peer) ID() domain.ContainerID { return p.containerID }

// SubmitSignal broadcasts content to every peer on the bus, including
// this one (marked Local for this peer only). It is fire-and-forget: a
// disconnected sender's submission is simply not delivered, and that
// drop is never surfaced back to the caller.
func (p *Peer) SubmitSignal(signalType string, content any) {
	if !p.Connected() {
		return
	}
	senderID := p.id
	for _, peer := range p.bus.snapshot() {
		peer.deliver(signaling.InboundSignalMessage{
			Type:     signalType,
			ClientID: senderID,
			Content:  content,
			Local:    peer == p,
		})
	}
}

func (p *Peer) deliver(msg signaling.InboundSignalMessage) {
	p.mu.Lock()
	connected := p.connected
	listeners := append([]signaling.SignalListener(nil), p.signalListeners...)
	p.mu.Unlock()
	if !connected {
		return
	}
	for _, l := range listeners {
		if l != nil {
			l(msg)
		}
	}
}

func (p *Peer) OnSignal(l signaling.SignalListener) func() {
	p.mu.Lock()
	p.signalListeners = append(p.signalListeners, l)
	idx := len(p.signalListeners) - 1
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if idx < len(p.signalListeners) {
			p.signalListeners[idx] = nil
		}
	}
}

func (p *Peer) OnConnected(l signaling.ConnectedListener) func() {
	p.mu.Lock()
	p.connectedListeners = append(p.connectedListeners, l)
	idx := len(p.connectedListeners) - 1
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if idx < len(p.connectedListeners) {
			p.connectedListeners[idx] = nil
		}
	}
}

// Connect flips the peer to connected and fires every registered
// connected listener, simulating the carrier coming online.
func (p *Peer) Connect() {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = true
	listeners := append([]signaling.ConnectedListener(nil), p.connectedListeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		if l != nil {
			l()
		}
	}
}

// Disconnect flips the peer to disconnected; it stops receiving and
// its submissions are dropped until Connect is called again.
func (p *Peer) Disconnect() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}
