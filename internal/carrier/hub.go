package carrier

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/liveshare-oss/synccore/internal/domain"
)

// ErrBackpressure is returned by trySend when a connection's outbound
// buffer is full.
var ErrBackpressure = errors.New("carrier: backpressure")

// wireFrame is the JSON shape exchanged over the websocket. ClientID
// is always overwritten server-side on relay so a connection can never
// spoof another participant's identity.
type wireFrame struct {
	Type     string          `json:"type"`
	ClientID string          `json:"clientId"`
	Content  json.RawMessage `json:"content"`
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) trySend(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("carrier: connection closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// Hub relays wire frames between every websocket connection joined to
// the same container, stamping each frame's clientId with the
// connection's server-assigned identity before fanout. It is the
// networked counterpart to Bus, used by cmd/server.
type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.ContainerID]map[domain.ClientID]*wsConn
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[domain.ContainerID]map[domain.ClientID]*wsConn)}
}

// Join registers ws under (containerID, clientID) and starts its
// read/write pumps. It blocks until the connection closes.
func (h *Hub) Join(containerID domain.ContainerID, clientID domain.ClientID, ws *websocket.Conn) {
	conn := &wsConn{conn: ws, send: make(chan []byte, 32)}

	h.mu.Lock()
	room, ok := h.rooms[containerID]
	if !ok {
		room = make(map[domain.ClientID]*wsConn)
		h.rooms[containerID] = room
	}
	room[clientID] = conn
	h.mu.Unlock()

	log.Info().Str("module", "carrier.hub").Str("container", string(containerID)).Str("client", string(clientID)).Msg("joined")

	done := make(chan struct{})
	go h.writePump(conn, done)
	h.readPump(containerID, clientID, conn)
	close(done)

	h.mu.Lock()
	delete(h.rooms[containerID], clientID)
	if len(h.rooms[containerID]) == 0 {
		delete(h.rooms, containerID)
	}
	h.mu.Unlock()
	conn.close()
	log.Info().Str("module", "carrier.hub").Str("container", string(containerID)).Str("client", string(clientID)).Msg("left")
}

func (h *Hub) writePump(c *wsConn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case b, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(containerID domain.ContainerID, clientID domain.ClientID, c *wsConn) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wireFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn().Str("module", "carrier.hub").Err(err).Msg("bad frame")
			continue
		}
		// The server is the trust boundary: whatever clientId a frame
		// arrived with is discarded and replaced with the identity
		// bound to this connection.
		frame.ClientID = string(clientID)
		h.broadcast(containerID, frame)
	}
}

func (h *Hub) broadcast(containerID domain.ContainerID, frame wireFrame) {
	b, err := json.Marshal(frame)
	if err != nil {
		log.Error().Str("module", "carrier.hub").Err(err).Msg("marshal frame")
		return
	}

	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.rooms[containerID]))
	for _, c := range h.rooms[containerID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.trySend(b); err != nil {
			log.Warn().Str("module", "carrier.hub").Err(err).Msg("drop frame")
		}
	}
}
