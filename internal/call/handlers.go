package call

import (
	"encoding/json"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
	"github.com/pion/webrtc/v4"
)

func (m *Machine) register() {
	on := func(event string, fn func(json.RawMessage)) {
		id := m.sig.On(event, func(raw json.RawMessage) {
			m.q.push(func() { fn(raw) })
		})
		m.subs = append(m.subs, subscription{event: event, id: id})
	}
	on(signal.EventIncomingCall, m.onIncomingCall)
	on(signal.EventCallAccepted, m.onRemoteAccepted)
	on(signal.EventCallReject, m.onRemoteRejected)
	on(signal.EventCallEnd, m.onRemoteEnd)
	on(signal.EventNegoOffer, m.onNegoOffer)
	on(signal.EventNegoAccepted, m.onNegoAccepted)
	on(signal.EventNegoNeeded, m.onNegoNeeded)
	on(core.EventConnect, func(json.RawMessage) { m.onSignalUp() })
	on(core.EventDisconnect, func(json.RawMessage) { m.onSignalDown() })
}

// fromRemote reports whether an event addressed by from/callID belongs to s.
// Empty fields are not checked.
func (m *Machine) fromRemote(s *Session, from domain.PartyID, callID string) bool {
	if from != "" && from != s.remote.ID {
		m.slog(s).Debug().Err(domain.ErrStaleParty).Str("from", string(from)).Msg("event dropped")
		return false
	}
	if callID != "" && s.id != "" && callID != s.id {
		m.slog(s).Debug().Err(domain.ErrStaleParty).Str("event_call", callID).Msg("event dropped")
		return false
	}
	return true
}

// onIncomingCall is receiveOffer.
func (m *Machine) onIncomingCall(raw json.RawMessage) {
	var p signal.IncomingCall
	if err := signal.Decode(raw, &p); err != nil || p.Sender.IsZero() {
		m.log.Warn().Err(err).Msg("malformed incoming call dropped")
		return
	}
	if p.Sender.ID == m.self.ID {
		m.log.Warn().Msg("incoming call from self dropped")
		return
	}

	if s := m.sess; s != nil {
		if s.state == domain.RingingIncoming && s.remote.ID == p.Sender.ID && s.id == p.CallID {
			m.slog(s).Debug().Msg("duplicate call request ignored")
			return
		}
		m.slog(s).Info().Str("caller", string(p.Sender.ID)).Msg("busy, rejecting second caller")
		_ = m.send(signal.EventCallReject, signal.CallReject{
			From:   m.self,
			To:     p.Sender.ID,
			CallID: p.CallID,
			Reason: domain.ReasonBusy,
		})
		return
	}

	if !signal.ValidDescription(p.Offer, webrtc.SDPTypeOffer) {
		m.log.Warn().Str("caller", string(p.Sender.ID)).Err(domain.ErrMediaNegotiation).Msg("incoming call without valid offer")
		_ = m.send(signal.EventCallReject, signal.CallReject{
			From:   m.self,
			To:     p.Sender.ID,
			CallID: p.CallID,
			Reason: domain.ReasonNegotiation,
		})
		return
	}

	s := m.newSession(p.Sender, false, p.CallID)
	offer := p.Offer
	s.pendingOffer = &offer
	m.metrics.CallStarted(s.ctx, "incoming")
	m.setState(s, domain.RingingIncoming)
}

func (m *Machine) onRemoteAccepted(raw json.RawMessage) {
	var p signal.CallAccepted
	if err := signal.Decode(raw, &p); err != nil {
		m.log.Warn().Err(err).Msg("malformed call:accepted dropped")
		return
	}
	s := m.sess
	if s == nil {
		m.log.Debug().Str("from", string(p.From.ID)).Msg("call:accepted without session dropped")
		return
	}
	if !m.fromRemote(s, p.From.ID, p.CallID) {
		return
	}
	if s.state != domain.Requesting {
		m.slog(s).Debug().Err(domain.ErrInvalidState).Msg("call:accepted ignored")
		return
	}
	if s.pendingOffer == nil {
		m.slog(s).Warn().Msg("call:accepted before offer was sent")
		return
	}
	if !signal.ValidDescription(p.Answer, webrtc.SDPTypeAnswer) {
		m.abort(s, negotiationErr(signal.ErrMalformed), domain.ReasonNegotiation)
		return
	}
	if err := s.transport.SetRemoteAnswer(p.Answer); err != nil {
		m.abort(s, negotiationErr(err), domain.ReasonNegotiation)
		return
	}
	s.pendingOffer = nil
	s.accepted = true
	if p.From.Name != "" {
		s.remote.Name = p.From.Name
	}
	s.stopTimers()
	m.setState(s, domain.Connecting)
	s.stateTimer = m.after(s, m.cfg.ConnectTimeout, m.onConnectTimeout)

	m.acquireMedia(s, func() {
		if m.attach(s) && s.renegotiateAfter {
			m.requestRenegotiation(s)
		}
	})
}

func (m *Machine) onRemoteRejected(raw json.RawMessage) {
	var p signal.CallReject
	if err := signal.Decode(raw, &p); err != nil {
		m.log.Warn().Err(err).Msg("malformed call:reject dropped")
		return
	}
	s := m.sess
	if s == nil {
		return
	}
	if !m.fromRemote(s, p.From.ID, p.CallID) {
		return
	}
	if s.state != domain.Requesting {
		m.slog(s).Debug().Str("reason", p.Reason).Msg("call:reject ignored")
		return
	}
	reason := p.Reason
	if reason == "" {
		reason = domain.ReasonDeclined
	}
	m.lastErr = domain.ErrRemoteRejected
	m.slog(s).Info().Str("reason", reason).Msg("call rejected")
	m.reset(s, reason)
}

func (m *Machine) onRemoteEnd(raw json.RawMessage) {
	var p signal.CallEnd
	if err := signal.Decode(raw, &p); err != nil {
		m.log.Warn().Err(err).Msg("malformed call:end dropped")
		return
	}
	s := m.sess
	if s == nil {
		m.log.Debug().Str("from", string(p.From)).Msg("call:end without session dropped")
		return
	}
	if !m.fromRemote(s, p.From, p.CallID) {
		return
	}
	switch s.state {
	case domain.RingingIncoming:
		m.reset(s, domain.ReasonCancelled)
	case domain.Requesting:
		m.lastErr = domain.ErrRemoteRejected
		m.reset(s, domain.ReasonRemoteEnd)
	default:
		m.teardown(s, domain.ReasonRemoteEnd)
	}
}
