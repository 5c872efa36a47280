package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatsync/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Conn is the part of *websocket.Conn the pumps use.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents a WebSocket connection client
type Client struct {
	ID     string
	UserID string

	conn Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(userID string, conn Conn) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Send queues a frame for the write pump. A client whose buffer is full is
// closed, since it can no longer be kept consistent.
func (c *Client) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		logger.Warn("WebSocket: Client %s (%s) send buffer full, closing connection", c.ID, c.UserID)
		c.closeLocked()
		return false
	}
}

// SendMessage encodes and queues one outbound frame.
func (c *Client) SendMessage(msgType string, data interface{}) bool {
	frame, err := EncodeMessage(msgType, data)
	if err != nil {
		logger.Error("WebSocket: Failed to encode %s for %s: %v", msgType, c.UserID, err)
		return false
	}
	return c.Send(frame)
}

func (c *Client) SendError(err error) bool {
	return c.SendMessage(MessageTypeError, ErrorPayload(err))
}

// Close stops the write pump, which then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ReadPump reads messages from the WebSocket connection and hands them to
// handle one at a time, in arrival order. It returns when the connection
// fails or is closed.
func (c *Client) ReadPump(handle func([]byte)) {
	defer func() {
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: Read error for %s: %v", c.UserID, err)
			}
			return
		}
		handle(message)
	}
}

// WritePump sends queued frames and keepalive pings until the client is
// closed or a write fails.
func (c *Client) WritePump() {
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
				logger.Debug("WebSocket: Write to %s failed: %v", c.UserID, err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
