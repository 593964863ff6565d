package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/observe"
	"github.com/dkeye/peercall/internal/signal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrOffline     = errors.New("party offline")
	ErrRateLimited = errors.New("rate limited")
)

type HubOptions struct {
	Policy  Policy
	Limiter *RateLimiter
	Metrics *observe.Metrics
}

// Hub routes frames between the parties in its registry.
type Hub struct {
	reg     *Registry
	policy  Policy
	limiter *RateLimiter
	metrics *observe.Metrics
	log     zerolog.Logger
}

func NewHub(reg *Registry, opts HubOptions) *Hub {
	if opts.Policy == nil {
		opts.Policy = SimplePolicy{}
	}
	return &Hub{
		reg:     reg,
		policy:  opts.Policy,
		limiter: opts.Limiter,
		metrics: opts.Metrics,
		log:     log.With().Str("module", "relay.hub").Logger(),
	}
}

func (h *Hub) Registry() *Registry { return h.reg }

// Join binds p to conn. An older connection of p is cancelled and closed.
func (h *Hub) Join(ctx context.Context, p domain.Party, conn core.SignalConnection, cancel context.CancelFunc) {
	old := h.reg.Bind(p, conn, cancel)
	if old == nil {
		h.metrics.PartyOnline(ctx, 1)
		return
	}
	h.log.Info().Str("party", string(p.ID)).Msg("connection replaced")
	if old.Cancel != nil {
		old.Cancel()
	}
	old.Conn.Close()
}

// Leave unbinds p if conn is still its connection.
func (h *Hub) Leave(ctx context.Context, id domain.PartyID, conn core.SignalConnection) {
	if h.reg.Unbind(id, conn) {
		h.metrics.PartyOnline(ctx, -1)
		// attempts stay counted across reconnects until they age out
		h.limiter.Prune()
	}
}

// Deliver routes one inbound frame sent by from.
func (h *Hub) Deliver(ctx context.Context, from domain.Party, data []byte) error {
	var env signal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.metrics.Dropped(ctx, "", "malformed")
		return fmt.Errorf("%w: %w", signal.ErrMalformed, err)
	}
	l := h.log.With().Str("from", string(from.ID)).Str("event", env.Event).Logger()

	if env.Event == signal.EventCallRequest && !h.limiter.Allow(from.ID) {
		l.Warn().Msg("call request rate limited")
		h.metrics.Dropped(ctx, env.Event, "rate_limited")
		return ErrRateLimited
	}

	routed, err := Route(from, env)
	if err != nil {
		l.Warn().Err(err).Msg("unroutable event")
		h.metrics.Dropped(ctx, env.Event, "invalid")
		return err
	}

	conn, ok := h.reg.Lookup(routed.To)
	if !ok {
		l.Info().Str("to", string(routed.To)).Msg("target offline")
		h.metrics.Dropped(ctx, env.Event, "offline")
		if req, isReq := routed.Payload.(signal.IncomingCall); isReq {
			h.replyUnavailable(ctx, from, routed.To, req.CallID)
		}
		return fmt.Errorf("%s to %s: %w", env.Event, routed.To, ErrOffline)
	}

	frame, err := signal.EncodeFrame(routed.Event, routed.Payload)
	if err != nil {
		return err
	}
	if err := h.send(ctx, routed.To, conn, routed.Event, frame); err != nil {
		return err
	}
	l.Debug().Str("to", string(routed.To)).Msg("relayed")
	return nil
}

func (h *Hub) replyUnavailable(ctx context.Context, caller domain.Party, target domain.PartyID, callID string) {
	conn, ok := h.reg.Lookup(caller.ID)
	if !ok {
		return
	}
	frame, err := signal.EncodeFrame(signal.EventCallReject, signal.CallReject{
		From:   domain.Party{ID: target},
		To:     caller.ID,
		CallID: callID,
		Reason: domain.ReasonUnavailable,
	})
	if err != nil {
		return
	}
	_ = h.send(ctx, caller.ID, conn, signal.EventCallReject, frame)
}

func (h *Hub) send(ctx context.Context, to domain.PartyID, conn core.SignalConnection, event string, frame core.Frame) error {
	err := conn.TrySend(frame)
	if err == nil {
		h.metrics.Relayed(ctx, event)
		return nil
	}
	if !errors.Is(err, signal.ErrBackpressure) {
		h.metrics.Dropped(ctx, event, "closed")
		return err
	}

	action := h.policy.OnBackPressure(domain.Party{ID: to}, event)
	h.log.Warn().Str("to", string(to)).Str("event", event).Stringer("action", action).Msg("backpressure")
	h.metrics.Dropped(ctx, event, "backpressure")
	if action == KickMember {
		h.reg.Cancel(to)
		conn.Close()
	}
	return err
}
