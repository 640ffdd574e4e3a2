package fanout

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/prediction-scanner/internal/timeutil"
)

const writeTimeout = 10 * time.Second

// client is one connected fan-out socket. writeMu serializes writes; gorilla
// connections allow only one concurrent writer.
type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub owns the connected-client set and broadcasts typed messages to it
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// ClientCount reports the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add registers a connection, greets it, and returns its client record
func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{id: uuid.NewString(), conn: conn}

	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[Fanout] client %s connected (%d total)", c.id, count)

	if payload, err := json.Marshal(NewWelcome(count)); err == nil {
		if err := c.send(payload); err != nil {
			log.Printf("[Fanout] welcome to %s failed: %v", c.id, err)
		}
	}
	return c
}

// remove drops a client and closes its socket
func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		log.Printf("[Fanout] client %s disconnected (%d total)", id, count)
	}
}

// Broadcast sends msg to every connected client, pruning sockets whose write
// fails. Returns how many sends succeeded and how many failed.
func (h *Hub) Broadcast(msg interface{}) (sent, failed int) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Fanout] broadcast marshal failed: %v", err)
		return 0, 0
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var dead []string
	for _, c := range targets {
		if err := c.send(payload); err != nil {
			failed++
			dead = append(dead, c.id)
			continue
		}
		sent++
	}

	for _, id := range dead {
		h.remove(id)
	}
	if failed > 0 {
		log.Printf("[Fanout] broadcast: %d sent, %d failed (pruned)", sent, failed)
	}
	return sent, failed
}

// CloseAll disconnects every client, used on shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// serve runs the read loop for one client: answers pings, discards anything
// else, and unregisters on error or close.
func (h *Hub) serve(c *client) {
	defer h.remove(c.id)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == TypePing {
			payload, err := json.Marshal(Pong{Type: TypePong, Timestamp: timeutil.Now()})
			if err != nil {
				continue
			}
			if err := c.send(payload); err != nil {
				return
			}
		}
	}
}
