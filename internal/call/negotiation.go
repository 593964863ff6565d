package call

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
	"github.com/pion/webrtc/v4"
)

// Only the caller creates offers. The callee turns its triggers into
// nego:needed and answers the round the caller runs for it, so the two sides
// never hold local offers at the same time.

func renegotiable(s *Session) bool {
	return s.state == domain.Connecting || s.state == domain.Active
}

func (m *Machine) onRenegotiationNeeded(gen uint64) {
	s := m.live(gen)
	if s == nil {
		return
	}
	if !renegotiable(s) {
		m.slog(s).Debug().Msg("renegotiation trigger ignored")
		return
	}
	m.requestRenegotiation(s)
}

// requestRenegotiation starts a round unless one is in flight (coalesced) or
// another exchange is still open (deferred until it completes).
func (m *Machine) requestRenegotiation(s *Session) {
	switch {
	case s.negotiationInFlight:
		m.slog(s).Debug().Uint64("round", s.negoRound).Msg("renegotiation coalesced")
		m.metrics.Renegotiation(s.ctx, "coalesced")
	case !s.accepted || s.pendingOffer != nil || s.answering:
		s.renegotiateAfter = true
	case !s.initiator:
		m.askForRound(s)
	default:
		m.startRenegotiation(s)
	}
}

// askForRound is the callee's side of a trigger.
func (m *Machine) askForRound(s *Session) {
	s.renegotiateAfter = false
	s.negotiationInFlight = true
	s.negoResent = false
	m.metrics.Renegotiation(s.ctx, "requested")
	m.publish()

	send := func() {
		_ = m.send(signal.EventNegoNeeded, signal.NegoNeeded{
			To:     s.remote.ID,
			From:   m.self.ID,
			CallID: s.id,
		})
	}
	send()
	m.armNegoTimer(s, s.negoRound, send)
}

func (m *Machine) startRenegotiation(s *Session) {
	s.renegotiateAfter = false
	s.negotiationInFlight = true
	s.negoResent = false
	s.negoRound++
	round := s.negoRound
	tr := s.transport
	m.metrics.Renegotiation(s.ctx, "sent")
	m.publish()

	m.spawn(s, func(ctx context.Context) (func(), func()) {
		offer, err := tr.CreateOffer(ctx)
		return func() {
			if !s.negotiationInFlight || s.negoRound != round {
				m.slog(s).Debug().Uint64("round", round).Msg("superseded offer dropped")
				return
			}
			if err != nil {
				m.abort(s, negotiationErr(err), domain.ReasonNegotiation)
				return
			}
			send := func() {
				_ = m.send(signal.EventNegoOffer, signal.NegoOffer{
					Offer:  offer,
					To:     s.remote.ID,
					From:   m.self.ID,
					Round:  round,
					CallID: s.id,
				})
			}
			send()
			m.armNegoTimer(s, round, send)
		}, nil
	})
}

// armNegoTimer re-sends an unanswered round once, then ends the call.
func (m *Machine) armNegoTimer(s *Session, round uint64, resend func()) {
	if s.negoTimer != nil {
		s.negoTimer.Stop()
	}
	var onTimeout func(*Session)
	onTimeout = func(s *Session) {
		if !s.negotiationInFlight || s.negoRound != round {
			return
		}
		m.metrics.Renegotiation(s.ctx, "timeout")
		if s.negoResent {
			m.abort(s, fmt.Errorf("%w: round %d unanswered", domain.ErrMediaNegotiation, round), domain.ReasonNegotiation)
			return
		}
		m.slog(s).Warn().Uint64("round", round).Msg("renegotiation unanswered, re-sending")
		s.negoResent = true
		resend()
		s.negoTimer = m.after(s, m.cfg.NegotiationTimeout, onTimeout)
	}
	s.negoTimer = m.after(s, m.cfg.NegotiationTimeout, onTimeout)
}

func (m *Machine) finishRound(s *Session) {
	s.negotiationInFlight = false
	s.negoResent = false
	if s.negoTimer != nil {
		s.negoTimer.Stop()
		s.negoTimer = nil
	}
}

func (m *Machine) onNegoNeeded(raw json.RawMessage) {
	var p signal.NegoNeeded
	if err := signal.Decode(raw, &p); err != nil {
		m.log.Warn().Err(err).Msg("malformed nego:needed dropped")
		return
	}
	s := m.sess
	if s == nil || !m.fromRemote(s, p.From, p.CallID) {
		return
	}
	if !renegotiable(s) || !s.initiator {
		m.slog(s).Debug().Err(domain.ErrInvalidState).Msg("nego:needed ignored")
		return
	}
	if s.negotiationInFlight {
		// the round in flight may predate the remote change
		s.renegotiateAfter = true
		return
	}
	m.requestRenegotiation(s)
}

func (m *Machine) onNegoOffer(raw json.RawMessage) {
	var p signal.NegoOffer
	if err := signal.Decode(raw, &p); err != nil {
		m.log.Warn().Err(err).Msg("malformed nego:offer dropped")
		return
	}
	s := m.sess
	if s == nil || !m.fromRemote(s, p.From, p.CallID) {
		return
	}
	if !renegotiable(s) {
		m.slog(s).Debug().Err(domain.ErrInvalidState).Msg("nego:offer ignored")
		return
	}
	if !signal.ValidDescription(p.Offer, webrtc.SDPTypeOffer) {
		m.abort(s, negotiationErr(signal.ErrMalformed), domain.ReasonNegotiation)
		return
	}
	if p.Round != 0 && p.Round == s.answeredRound && s.lastAnswer != nil {
		m.slog(s).Debug().Uint64("round", p.Round).Msg("duplicate nego:offer, resending answer")
		_ = m.send(signal.EventNegoAccepted, signal.NegoAccepted{
			To:     s.remote.ID,
			From:   m.self.ID,
			Answer: *s.lastAnswer,
			Round:  p.Round,
			CallID: s.id,
		})
		return
	}
	if s.answering {
		m.slog(s).Debug().Uint64("round", p.Round).Msg("nego:offer while answering ignored")
		return
	}
	if s.initiator && s.negotiationInFlight {
		m.metrics.Renegotiation(s.ctx, "collision")
		m.slog(s).Info().Uint64("round", s.negoRound).Msg("offer collision, keeping local round")
		return
	}

	s.answering = true
	tr := s.transport
	offer := p.Offer
	round := p.Round
	m.spawn(s, func(ctx context.Context) (func(), func()) {
		ans, err := tr.CreateAnswer(ctx, offer)
		return func() {
			s.answering = false
			if err != nil {
				m.abort(s, negotiationErr(err), domain.ReasonNegotiation)
				return
			}
			s.answeredRound = round
			s.lastAnswer = &ans
			_ = m.send(signal.EventNegoAccepted, signal.NegoAccepted{
				To:     s.remote.ID,
				From:   m.self.ID,
				Answer: ans,
				Round:  round,
				CallID: s.id,
			})
			if !s.initiator && s.negotiationInFlight {
				m.finishRound(s)
				m.publish()
			}
			if s.renegotiateAfter {
				m.requestRenegotiation(s)
			}
		}, nil
	})
}

func (m *Machine) onNegoAccepted(raw json.RawMessage) {
	var p signal.NegoAccepted
	if err := signal.Decode(raw, &p); err != nil {
		m.log.Warn().Err(err).Msg("malformed nego:accepted dropped")
		return
	}
	s := m.sess
	if s == nil || !m.fromRemote(s, p.From, p.CallID) {
		return
	}
	if !s.initiator || !s.negotiationInFlight || (p.Round != 0 && p.Round != s.negoRound) {
		m.slog(s).Debug().Uint64("round", p.Round).Uint64("current", s.negoRound).Msg("stale nego:accepted dropped")
		return
	}
	if !signal.ValidDescription(p.Answer, webrtc.SDPTypeAnswer) {
		m.abort(s, negotiationErr(signal.ErrMalformed), domain.ReasonNegotiation)
		return
	}
	if err := s.transport.SetRemoteAnswer(p.Answer); err != nil {
		m.abort(s, negotiationErr(fmt.Errorf("round %d: %w", s.negoRound, err)), domain.ReasonNegotiation)
		return
	}
	m.finishRound(s)
	m.slog(s).Debug().Uint64("round", s.negoRound).Msg("renegotiation complete")
	m.publish()
	if s.renegotiateAfter {
		m.requestRenegotiation(s)
	}
}
