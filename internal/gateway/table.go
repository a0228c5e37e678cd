package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaylabs/chatrelay/internal/server"
)

// ClientTable maps connection IDs to live clients and is the core's
// Transport: sends resolve the connection and enqueue on its pump, a
// full queue drops the event rather than blocking the core.
type ClientTable struct {
	log     *log.Logger
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientTable(l *log.Logger) *ClientTable {
	return &ClientTable{
		log:     l,
		clients: make(map[string]*Client),
	}
}

func (t *ClientTable) Add(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[c.connID] = c
}

func (t *ClientTable) Remove(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clients, connID)
}

func (t *ClientTable) Send(connID string, ev *server.ServerEvent) bool {
	t.mu.RLock()
	c, ok := t.clients[connID]
	t.mu.RUnlock()

	if !ok {
		return false
	}

	return c.queueEvent(ev)
}

func (t *ClientTable) Close(connID string, reason string) {
	t.mu.RLock()
	c, ok := t.clients[connID]
	t.mu.RUnlock()

	if !ok {
		return
	}

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		t.log.Printf("write close frame for connection %q: %v", connID, err)
	}

	c.stopClient()
	c.conn.Close()
}

func (t *ClientTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}
