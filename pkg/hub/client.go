package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/tonelink/pkg/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be below pongWait

	// Listeners only send small protocol pings.
	maxInbound = 4 * 1024

	sendBuffer  = 256
	replyBuffer = 8
)

// Conn is the subset of a websocket connection a Client uses.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client is one event listener. Broadcasts arrive on send, which the hub
// owns and closes. Replies to the listener's own requests go through
// replies, which is never closed.
type Client struct {
	hub     *Hub
	conn    Conn
	send    chan Message
	replies chan Message
}

// NewClient registers a listener on conn with hub. It returns nil if the
// hub has stopped.
func NewClient(hub *Hub, conn Conn) *Client {
	c := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan Message, sendBuffer),
		replies: make(chan Message, replyBuffer),
	}
	if !hub.join(c) {
		return nil
	}
	return c
}

// Run serves the connection until it closes.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInbound)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(data)
	}
}

// handle answers protocol pings. Anything else from a listener is ignored.
func (c *Client) handle(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.hub.logger.Debug("ignoring listener message", "error", err)
		return
	}
	if msg.Type != protocol.TypePing {
		return
	}

	ping, err := msg.GetPingData()
	if err != nil {
		c.hub.logger.Debug("bad ping", "error", err)
		return
	}
	pong, err := protocol.NewPongMessage(*ping)
	if err != nil {
		return
	}
	reply, err := NewEventMessage(pong)
	if err != nil {
		return
	}

	select {
	case c.replies <- reply:
	default:
		c.hub.logger.Debug("reply queue full, dropping pong")
	}
}

// writeLoop is the only goroutine that writes to the connection.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(m); err != nil {
				return
			}

		case m := <-c.replies:
			if err := c.write(m); err != nil {
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

func (c *Client) write(m Message) error {
	kind := websocket.TextMessage
	if m.Type == BinaryMessage {
		kind = websocket.BinaryMessage
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, m.Data)
}
