// Package wsrelay carries relay sessions over websocket connections.
package wsrelay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 45 * time.Second
	outboundSize = 256
)

var ErrConnClosed = errors.New("wsrelay: connection closed")

// conn is the relay.Transport for one websocket. Send queues the frame for
// the writer goroutine; a peer that lets the queue fill up is disconnected.
type conn struct {
	ws       *websocket.Conn
	out      chan []byte
	done     chan struct{}
	once     sync.Once
	overflow func()
}

func newConn(ws *websocket.Conn, overflow func()) *conn {
	return &conn{
		ws:       ws,
		out:      make(chan []byte, outboundSize),
		done:     make(chan struct{}),
		overflow: overflow,
	}
}

func (c *conn) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		if c.overflow != nil {
			c.overflow()
		}
		_ = c.Close()
		return ErrConnClosed
	}
}

func (c *conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	return nil
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
