package ws

import (
	"errors"
	"log"
	"sync"
	"time"

	"selfie-capture-kiosk/models"

	"github.com/gorilla/websocket"
)

var errClientClosed = errors.New("client closed")

type frame struct {
	kind    int
	payload []byte
}

// client owns one websocket. Only writePump writes to conn.
type client struct {
	id     string
	conn   *websocket.Conn
	format Format

	mu     sync.Mutex
	send   chan frame
	done   chan struct{}
	closed bool
}

func newClient(id string, conn *websocket.Conn, format Format) *client {
	return &client{
		id:     id,
		conn:   conn,
		format: format,
		send:   make(chan frame, SendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks: a client that cannot keep up loses the message.
func (c *client) enqueue(msg models.OutboundMessage) error {
	payload, err := encode(c.format, msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- frame{kind: c.format.frameType(), payload: payload}:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// close stops the write pump; it sends a close frame and closes conn.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// shutdown closes the connection so the read pump exits and unregisters.
func (c *client) shutdown() {
	c.close()
	_ = c.conn.Close()
}

func (c *client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		// a dead writer must not keep accepting frames until the read
		// deadline notices
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(f.kind, f.payload); err != nil {
				log.Printf("⚠️  Write to %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// flush writes whatever was queued before close.
func (c *client) flush() {
	for {
		select {
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(f.kind, f.payload); err != nil {
				return
			}
		default:
			return
		}
	}
}
