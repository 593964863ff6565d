package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const writeWait = 5 * time.Second

// Conn is a websocket with a bounded outbound queue drained by WritePump.
// It is used on both ends of the relay.
type Conn struct {
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewConn(ws *websocket.Conn, queue int) *Conn {
	if queue <= 0 {
		queue = 32
	}
	return &Conn{ws: ws, send: make(chan core.Frame, queue)}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// WritePump drains the send queue until ctx ends or the queue is closed.
// A non-zero pingPeriod sends websocket pings on that interval.
func (c *Conn) WritePump(ctx context.Context, pingPeriod time.Duration, log zerolog.Logger) {
	var tick <-chan time.Time
	if pingPeriod > 0 {
		t := time.NewTicker(pingPeriod)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Msg("writePump channel closed")
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-tick:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Msg("writePump ping")
				return
			}
		}
	}
}

// ReadPump delivers every inbound text frame to onFrame until the socket fails.
// With a non-zero pingPeriod the peer must answer pings within 10/9 of it.
func (c *Conn) ReadPump(readLimit int64, pingPeriod time.Duration, onFrame func([]byte)) error {
	if readLimit > 0 {
		c.ws.SetReadLimit(readLimit)
	}
	if pingPeriod > 0 {
		pongWait := pingPeriod * 10 / 9
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		onFrame(data)
	}
}
