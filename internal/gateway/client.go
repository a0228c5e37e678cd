package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaylabs/chatrelay/internal/server"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxEventSize   = 1024
	publishTimeout = 5 * time.Second
)

// Client pumps one websocket connection: Read parses inbound events and
// dispatches them to the manager, Write drains the send queue and keeps
// the transport-level ping/pong alive.
type Client struct {
	connID   string
	conn     *websocket.Conn
	mgr      *server.Manager
	table    *ClientTable
	log      *log.Logger
	send     chan *server.ServerEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(connID string, conn *websocket.Conn, mgr *server.Manager, table *ClientTable, l *log.Logger) *Client {
	return &Client{
		connID: connID,
		conn:   conn,
		mgr:    mgr,
		table:  table,
		log:    l,
		send:   make(chan *server.ServerEvent, 256),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeEvent(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// transport pongs count as heartbeats
		c.mgr.Heartbeat(0, c.connID)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev server.ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(server.ErrInvalidEvent(-1))
			continue
		}

		c.dispatch(&ev)
	}
}

func (c *Client) dispatch(ev *server.ClientEvent) {
	var err error
	switch {
	case ev.Join != nil:
		err = c.mgr.JoinRoom(ev.Id, c.connID, ev.Join.RoomId)
	case ev.Leave != nil:
		err = c.mgr.LeaveRoom(ev.Id, c.connID, ev.Leave.RoomId)
	case ev.Publish != nil:
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = c.mgr.SendMessage(ctx, ev.Id, c.connID, ev.Publish.RoomId, ev.Publish.Content)
		cancel()
	case ev.Typing != nil:
		err = c.mgr.Typing(ev.Id, c.connID, ev.Typing.RoomId, ev.Typing.Started)
	case ev.Heartbeat != nil:
		err = c.mgr.Heartbeat(ev.Id, c.connID)
	default:
		c.queueEvent(server.ErrInvalidEvent(ev.Id))
	}

	if err != nil {
		c.log.Printf("dispatch event for connection %q: %v", c.connID, err)
	}
}

func (c *Client) queueEvent(ev *server.ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Printf("send queue full for connection %q, dropping event", c.connID)
		return false
	}

	return true
}

func serializeEvent(ev *server.ServerEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func (c *Client) writeMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.table.Remove(c.connID)
	c.mgr.Disconnect(context.Background(), c.connID)
	c.stopClient()
}
