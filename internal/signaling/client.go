// internal/signaling/client.go
package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is one live socket bound to a verified user. It is the
// connectionRef held by the user's PresenceEntry; the hub never writes
// to the socket directly, only to the send channel drained by writePump.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	userID     uuid.UUID
	userName   string
	profilePic string

	// closed is guarded by the hub mutex; once set, nothing may write to
	// send again.
	closed    bool
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, userName, profilePic string, sendBuffer int) *Client {
	return &Client{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		hub:        hub,
		userID:     userID,
		userName:   userName,
		profilePic: profilePic,
	}
}

// close shuts the send channel exactly once; writePump then flushes a
// close frame and exits. Safe to call from both the eviction path and
// the unregister path.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.closed = true
		close(c.send)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error",
					zap.String("userId", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.logger.Warn("Failed to parse signaling frame",
				zap.String("userId", c.userID.String()),
				zap.Error(err))
			continue
		}

		c.hub.dispatch(c, &env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
