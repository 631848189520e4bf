package wsrelay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one websocket connection. It joins at most one game as one
// player at a time.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	game   string
	player string

	sendMu sync.Mutex
	closed bool
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:    h,
		conn:   conn,
		out:    make(chan []byte, h.opts.SendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) attach(gameID, playerID string) {
	c.mu.Lock()
	c.game = gameID
	c.player = playerID
	c.mu.Unlock()
}

func (c *Client) gameID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.game
}

func (c *Client) playerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.player
}

// close stops the write pump and cancels any battle the client started.
func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.out)
}

// enqueue hands a frame to the write pump. A client too slow to drain its
// buffer is disconnected.
func (c *Client) enqueue(frame []byte) {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	select {
	case c.out <- frame:
		c.sendMu.Unlock()
		return
	default:
	}
	c.sendMu.Unlock()

	c.hub.logger.Warn("client send buffer full, disconnecting",
		zap.String("game_id", c.gameID()),
		zap.String("player_id", c.playerID()))
	c.hub.unregister(c)
}

func (c *Client) send(msgType string, data any) {
	frame, err := encode(msgType, c.gameID(), c.playerID(), data)
	if err != nil {
		c.hub.logger.Error("encoding message failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	c.enqueue(frame)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	opts := c.hub.opts
	c.conn.SetReadLimit(opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.send(TypeError, ErrorData{Message: "malformed message"})
			continue
		}
		c.hub.handleMessage(c, msg)
	}
}

func (c *Client) writePump() {
	opts := c.hub.opts
	ticker := time.NewTicker(opts.PongTimeout * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
