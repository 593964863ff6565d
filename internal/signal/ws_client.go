package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type WSOptions struct {
	// URL of the relay signaling endpoint, e.g. ws://host:8080/api/ws/signal.
	URL        string
	Self       domain.Party
	PingPeriod time.Duration
	ReadLimit  int64
	Backoff    time.Duration
	QueueSize  int
}

// WSChannel is a SignalChannel over a websocket to the relay. It reconnects
// on failure and emits connect/disconnect on its bus.
type WSChannel struct {
	*Bus
	opts   WSOptions
	dialer *websocket.Dialer
	log    zerolog.Logger

	mu   sync.RWMutex
	conn *Conn
}

var _ core.SignalChannel = (*WSChannel)(nil)

func NewWSChannel(opts WSOptions) *WSChannel {
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	return &WSChannel{
		Bus:    NewBus(),
		opts:   opts,
		dialer: websocket.DefaultDialer,
		log:    log.With().Str("module", "signal.ws").Str("party", string(opts.Self.ID)).Logger(),
	}
}

// Send encodes payload into an envelope and queues it.
func (c *WSChannel) Send(event string, payload any) error {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("send %s: %w", event, domain.ErrSignalingUnavailable)
	}
	if err := conn.TrySend(frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func (c *WSChannel) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Run keeps a connection to the relay until ctx ends.
func (c *WSChannel) Run(ctx context.Context) error {
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn().Err(err).Dur("backoff", c.opts.Backoff).Msg("relay connection lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.Backoff):
		}
	}
}

func (c *WSChannel) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("id", string(c.opts.Self.ID))
	if c.opts.Self.Name != "" {
		q.Set("name", c.opts.Self.Name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *WSChannel) runOnce(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	ws, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	conn := NewConn(ws, c.opts.QueueSize)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info().Str("url", c.opts.URL).Msg("connected to relay")
	c.Emit(core.EventConnect, nil)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.write(ctx, conn)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	err = conn.ReadPump(c.opts.ReadLimit, c.opts.PingPeriod, c.dispatch)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	conn.Close()
	c.Emit(core.EventDisconnect, nil)
	return err
}

func (c *WSChannel) write(ctx context.Context, conn *Conn) {
	conn.WritePump(ctx, c.opts.PingPeriod, c.log)
	// a dead writer leaves the reader blocked otherwise
	conn.Close()
}

func (c *WSChannel) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Error().Err(err).Msg("bad json")
		return
	}
	if env.Event == core.EventConnect || env.Event == core.EventDisconnect {
		c.log.Warn().Str("event", env.Event).Msg("reserved event from relay dropped")
		return
	}
	if n := c.Emit(env.Event, env.Data); n == 0 {
		c.log.Debug().Str("event", env.Event).Msg("no handler")
	}
}

// EncodeFrame builds the wire frame for event.
func EncodeFrame(event string, payload any) (core.Frame, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		data = b
	}
	b, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return b, nil
}
