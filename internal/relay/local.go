package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
)

// Switchboard is an in-process relay: its channels route through a Hub the
// same way websocket parties do. Delivery is synchronous, so handlers must
// not block.
type Switchboard struct {
	hub *Hub
}

func NewSwitchboard(opts HubOptions) *Switchboard {
	return &Switchboard{hub: NewHub(NewRegistry(), opts)}
}

func (sb *Switchboard) Hub() *Hub { return sb.hub }

// Connect binds p and returns its channel. connect is emitted on it.
func (sb *Switchboard) Connect(p domain.Party) *LocalChannel {
	ch := &LocalChannel{Bus: signal.NewBus(), sb: sb, self: p}
	ch.Reconnect()
	return ch
}

// LocalChannel is a core.SignalChannel attached to a Switchboard.
type LocalChannel struct {
	*signal.Bus
	sb   *Switchboard
	self domain.Party

	mu   sync.Mutex
	conn *localConn
}

var _ core.SignalChannel = (*LocalChannel)(nil)

func (c *LocalChannel) Send(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.isClosed() {
		return fmt.Errorf("send %s: %w", event, domain.ErrSignalingUnavailable)
	}
	frame, err := signal.EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	// like the websocket channel, routing failures are the relay's business
	_ = c.sb.hub.Deliver(context.Background(), c.self, frame)
	return nil
}

// Disconnect unbinds the channel and emits disconnect.
func (c *LocalChannel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Reconnect binds a fresh connection, replacing any current one.
func (c *LocalChannel) Reconnect() {
	conn := &localConn{ch: c}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.sb.hub.Join(context.Background(), c.self, conn, conn.Close)
	c.Emit(core.EventConnect, nil)
}

func (c *LocalChannel) dropped(conn *localConn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()
	c.sb.hub.Leave(context.Background(), c.self.ID, conn)
	if current {
		c.Emit(core.EventDisconnect, nil)
	}
}

type localConn struct {
	ch *LocalChannel

	mu     sync.Mutex
	closed bool
}

func (l *localConn) TrySend(f core.Frame) error {
	if l.isClosed() {
		return signal.ErrClosed
	}
	var env signal.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return fmt.Errorf("%w: %w", signal.ErrMalformed, err)
	}
	l.ch.Emit(env.Event, env.Data)
	return nil
}

func (l *localConn) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.ch.dropped(l)
}

func (l *localConn) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
