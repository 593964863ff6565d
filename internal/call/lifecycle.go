package call

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
)

// abort ends s after a local failure and tells the remote side. A callee
// that has not answered yet rejects; everybody else sends call:end.
func (m *Machine) abort(s *Session, err error, reason string) {
	m.slog(s).Error().Err(err).Str("reason", reason).Msg("call failed")
	m.lastErr = err
	if !s.initiator && !s.accepted {
		_ = m.send(signal.EventCallReject, signal.CallReject{From: m.self, To: s.remote.ID, CallID: s.id, Reason: reason})
	} else {
		_ = m.send(signal.EventCallEnd, signal.CallEnd{From: m.self.ID, To: s.remote.ID, CallID: s.id, Reason: reason})
	}
	m.end(s, reason)
}

// end picks the exit path for the current state: sessions that reached the
// media phase pass through Ending and Ended, earlier ones reset directly.
func (m *Machine) end(s *Session, reason string) {
	switch s.state {
	case domain.Connecting, domain.Active, domain.Ending:
		m.teardown(s, reason)
	default:
		m.reset(s, reason)
	}
}

// teardown walks Ending -> Ended -> Idle, releasing everything in Ending.
func (m *Machine) teardown(s *Session, reason string) {
	if s.state != domain.Ending {
		m.setState(s, domain.Ending)
	}
	m.release(s)
	m.setState(s, domain.Ended)
	m.finish(s, reason)
}

// reset releases s and returns to Idle without the Ending/Ended steps.
func (m *Machine) reset(s *Session, reason string) {
	m.release(s)
	m.finish(s, reason)
}

func (m *Machine) release(s *Session) {
	s.stopTimers()
	s.cancel()
	if s.localStream != nil {
		s.localStream.Stop()
		s.localStream = nil
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			m.slog(s).Warn().Err(err).Msg("transport close")
		}
		s.transport = nil
	}
	s.remoteStream = nil
	s.pendingOffer = nil
	s.negotiationInFlight = false
	s.answering = false
	s.renegotiateAfter = false
}

func (m *Machine) finish(s *Session, reason string) {
	if m.sess != s {
		return
	}
	counted := s.state != domain.Idle
	m.sess = nil
	m.endReason = reason
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
	}
	if counted {
		m.metrics.CallEnded(context.Background(), reason)
	}
	m.log.Info().
		Str("call", s.id).
		Str("remote", string(s.remote.ID)).
		Str("reason", reason).
		Dur("duration", time.Since(s.startedAt)).
		Msg("call finished")
	m.publish()
}

func (m *Machine) shutdown() {
	for _, sub := range m.subs {
		m.sig.Off(sub.event, sub.id)
	}
	m.subs = nil
	if s := m.sess; s != nil {
		_ = m.send(signal.EventCallEnd, signal.CallEnd{From: m.self.ID, To: s.remote.ID, CallID: s.id, Reason: domain.ReasonShutdown})
		m.end(s, domain.ReasonShutdown)
	}
}

func (m *Machine) onRequestTimeout(s *Session) {
	if s.state != domain.Requesting {
		return
	}
	m.slog(s).Warn().Dur("after", m.cfg.RequestTimeout).Msg("call request unanswered")
	_ = m.send(signal.EventCallEnd, signal.CallEnd{From: m.self.ID, To: s.remote.ID, CallID: s.id, Reason: domain.ReasonTimeout})
	m.lastErr = domain.ErrRequestTimeout
	m.reset(s, domain.ReasonTimeout)
}

func (m *Machine) onConnectTimeout(s *Session) {
	if s.state != domain.Connecting {
		return
	}
	m.abort(s, fmt.Errorf("%w: no remote media after %s", domain.ErrMediaNegotiation, m.cfg.ConnectTimeout), domain.ReasonTimeout)
}

func (m *Machine) onRemoteTrack(gen uint64, rs core.RemoteStream) {
	s := m.live(gen)
	if s == nil {
		m.log.Debug().Str("stream", rs.ID()).Msg("remote track for stale session ignored")
		return
	}
	switch s.state {
	case domain.Connecting:
		s.remoteStream = rs
		if s.stateTimer != nil {
			s.stateTimer.Stop()
			s.stateTimer = nil
		}
		m.metrics.CallConnected(s.ctx, time.Since(s.startedAt))
		m.setState(s, domain.Active)
	case domain.Active:
		s.remoteStream = rs
		m.slog(s).Info().Str("stream", rs.ID()).Msg("remote stream updated")
		m.publish()
	default:
		m.slog(s).Debug().Str("stream", rs.ID()).Msg("remote track ignored")
	}
}

func (m *Machine) onTransportClosed(gen uint64) {
	s := m.live(gen)
	if s == nil || s.transport == nil {
		return
	}
	switch s.state {
	case domain.Requesting, domain.Connecting, domain.Active:
		m.abort(s, fmt.Errorf("%w: peer connection closed", domain.ErrMediaNegotiation), domain.ReasonTransport)
	}
}

func (m *Machine) onSignalUp() {
	m.signalUp = true
	if m.graceTimer != nil {
		m.graceTimer.Stop()
		m.graceTimer = nil
		m.log.Info().Msg("signaling restored within grace period")
	}
}

func (m *Machine) onSignalDown() {
	m.signalUp = false
	s := m.sess
	if s == nil || m.graceTimer != nil {
		return
	}
	m.slog(s).Warn().Dur("grace", m.cfg.SignalGrace).Msg("signaling lost")
	m.graceTimer = m.after(s, m.cfg.SignalGrace, func(s *Session) {
		m.graceTimer = nil
		if m.signalUp {
			return
		}
		m.lastErr = domain.ErrSignalingUnavailable
		m.slog(s).Warn().Msg("signaling grace expired")
		m.end(s, domain.ReasonSignaling)
	})
}
