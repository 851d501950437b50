package carrier

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/signaling"
)

// WSClient dials a Hub over gorilla/websocket and implements both
// signaling capability interfaces, decoding each relayed frame and
// setting Local by comparing its clientId against the identity this
// connection was assigned — the client, not the server, is what knows
// whether a message is its own.
type WSClient struct {
	containerID domain.ContainerID
	clientID    domain.ClientID
	conn        *websocket.Conn

	mu                 sync.Mutex
	connected          bool
	signalListeners    []signaling.SignalListener
	connectedListeners []signaling.ConnectedListener
}

// Dial connects to a Hub's websocket endpoint for the given container,
// identifying itself as clientID.
func Dial(addr string, containerID domain.ContainerID, clientID domain.ClientID) (*WSClient, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: fmt.Sprintf("/api/ws/%s", containerID), RawQuery: "client=" + string(clientID)}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("carrier: dial: %w", err)
	}
	c := &WSClient{containerID: containerID, clientID: clientID, conn: conn}
	go c.readLoop()
	c.markConnected()
	return c, nil
}

func (c *WSClient) markConnected() {
	c.mu.Lock()
	c.connected = true
	listeners := append([]signaling.ConnectedListener(nil), c.connectedListeners...)
	c.mu.Unlock()
	for _, l := range listeners {
		if l != nil {
			l()
		}
	}
}

func (c *WSClient) readLoop() {
	defer c.markDisconnected()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wireFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		var content any
		_ = json.Unmarshal(frame.Content, &content)

		msg := signaling.InboundSignalMessage{
			Type:     frame.Type,
			ClientID: domain.ClientID(frame.ClientID),
			Content:  content,
			Local:    domain.ClientID(frame.ClientID) == c.clientID,
		}
		c.mu.Lock()
		listeners := append([]signaling.SignalListener(nil), c.signalListeners...)
		c.mu.Unlock()
		for _, l := range listeners {
			if l != nil {
				l(msg)
			}
		}
	}
}

func (c *WSClient) markDisconnected() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *WSClient) ClientID() (domain.ClientID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return "", false
	}
	return c.clientID, true
}

func (c *WSClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *WSClient) ID() domain.ContainerID { return c.containerID }

func (c *WSClient) SubmitSignal(signalType string, content any) {
	if !c.Connected() {
		return
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return
	}
	frame := wireFrame{Type: signalType, ClientID: string(c.clientID), Content: raw}
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *WSClient) OnSignal(l signaling.SignalListener) func() {
	c.mu.Lock()
	c.signalListeners = append(c.signalListeners, l)
	idx := len(c.signalListeners) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.signalListeners) {
			c.signalListeners[idx] = nil
		}
	}
}

func (c *WSClient) OnConnected(l signaling.ConnectedListener) func() {
	c.mu.Lock()
	c.connectedListeners = append(c.connectedListeners, l)
	idx := len(c.connectedListeners) - 1
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.connectedListeners) {
			c.connectedListeners[idx] = nil
		}
	}
}

// Close closes the underlying websocket connection.
func (c *WSClient) Close() error {
	return c.conn.Close()
}
