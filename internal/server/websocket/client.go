package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

// subscription is one client's interest in one table. Deltas that arrive
// before the subscribe answer has been queued are held in pending.
type subscription struct {
	tableID string
	role    Role
	seat    int
	ready   bool
	pending [][]byte
}

// Client is one websocket connection of an authenticated player.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   string
	username string
	send     chan []byte

	mu   sync.Mutex
	subs map[string]*subscription

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID, username string, buffer int) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		username: username,
		send:     make(chan []byte, buffer),
		subs:     make(map[string]*subscription),
		done:     make(chan struct{}),
	}
}

// close tears the connection down. It never blocks and never calls into a
// table, so it is safe from inside a table serializer. The read pump notices
// the closed socket and unregisters the client.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// enqueue queues a frame without blocking. A full buffer closes the
// connection; the client is expected to reconnect and recover.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.hub.log.Warn().Str("user_id", c.userID).Msg("send buffer full, dropping connection")
		c.close()
		return false
	}
}

func (c *Client) sendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode message")
		return
	}
	c.enqueue(data)
}

// deliverLocked routes a table frame through the subscription. Callers hold
// c.mu.
func (c *Client) deliverLocked(sub *subscription, data []byte) {
	if !sub.ready {
		sub.pending = append(sub.pending, data)
		return
	}
	c.enqueue(data)
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		c.hub.unregister(c)
	}()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("user_id", c.userID).Msg("unexpected websocket close")
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendMessage(WSMessage{Type: TypeError, Payload: ErrorPayload{Message: "malformed message"}})
			continue
		}
		c.hub.handle(c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
