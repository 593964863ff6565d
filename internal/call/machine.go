// Package call drives a one-to-one call: it consumes signaling and transport
// events, owns the per-call session, and decides when to offer, answer,
// acquire media and tear down.
//
// Every transition runs on the goroutine started by [Machine.Run]. Public
// operations, signal handlers, transport callbacks and timers all enqueue
// closures; slow work (device prompts, ICE gathering) runs on worker
// goroutines whose results are enqueued back and dropped if the session they
// were started for is gone.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/observe"
	"github.com/dkeye/peercall/internal/signal"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("call machine stopped")

type Config struct {
	// RequestTimeout bounds Requesting; on expiry the caller cancels.
	RequestTimeout time.Duration
	// ConnectTimeout bounds Connecting without remote media.
	ConnectTimeout time.Duration
	// NegotiationTimeout bounds one renegotiation round.
	NegotiationTimeout time.Duration
	// SignalGrace is how long a session survives a signaling disconnect.
	SignalGrace time.Duration
	// Constraints for device acquisition; zero value asks for audio and video.
	Constraints core.MediaConstraints
	Metrics     *observe.Metrics
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.NegotiationTimeout <= 0 {
		c.NegotiationTimeout = 15 * time.Second
	}
	if c.SignalGrace <= 0 {
		c.SignalGrace = 10 * time.Second
	}
	if !c.Constraints.Audio && !c.Constraints.Video {
		c.Constraints = core.MediaConstraints{Audio: true, Video: true}
	}
	return c
}

type subscription struct {
	event string
	id    core.HandlerID
}

type Machine struct {
	self    domain.Party
	sig     core.SignalChannel
	factory core.TransportFactory
	devices core.MediaDevices
	cfg     Config
	metrics *observe.Metrics
	log     zerolog.Logger

	q    *queue
	done chan struct{}
	subs []subscription

	// owned by the loop
	ctx        context.Context
	sess       *Session
	gen        uint64
	signalUp   bool
	graceTimer *time.Timer
	lastErr    error
	endReason  string

	mu        sync.RWMutex
	view      Snapshot
	listeners []func(Snapshot)
}

// New registers the machine's handlers on sig. Handlers stay registered for
// the machine's lifetime and act on whichever session is live.
func New(self domain.Party, sig core.SignalChannel, factory core.TransportFactory, devices core.MediaDevices, cfg Config) *Machine {
	cfg = cfg.withDefaults()
	m := &Machine{
		self:     self,
		sig:      sig,
		factory:  factory,
		devices:  devices,
		cfg:      cfg,
		metrics:  cfg.Metrics,
		log:      log.With().Str("module", "call").Str("party", string(self.ID)).Logger(),
		q:        newQueue(),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		signalUp: true,
	}
	m.view = Snapshot{State: domain.Idle, Self: self, MicEnabled: true, CamEnabled: true}
	m.register()
	return m
}

// Run processes events until ctx ends. A live session is ended on exit.
func (m *Machine) Run(ctx context.Context) error {
	m.ctx = ctx
	m.log.Info().Msg("call machine started")
	defer func() {
		m.shutdown()
		close(m.done)
		m.log.Info().Msg("call machine stopped")
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.q.notify:
			for {
				fn, ok := m.q.pop()
				if !ok {
					break
				}
				fn()
			}
		}
	}
}

// do runs fn on the loop and waits for its result.
func (m *Machine) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	m.q.push(func() { res <- fn() })
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

func (m *Machine) RequestCall(ctx context.Context, remote domain.Party) error {
	return m.do(ctx, func() error { return m.requestCall(remote) })
}

func (m *Machine) AcceptIncoming(ctx context.Context) error {
	return m.do(ctx, m.acceptIncoming)
}

func (m *Machine) RejectIncoming(ctx context.Context) error {
	return m.do(ctx, m.rejectIncoming)
}

func (m *Machine) EndCall(ctx context.Context) error {
	return m.do(ctx, m.endCall)
}

// ToggleMic flips the audio enable flag and returns the new value.
func (m *Machine) ToggleMic(ctx context.Context) (bool, error) {
	var on bool
	err := m.do(ctx, func() (err error) {
		on, err = m.toggle(core.KindAudio)
		return err
	})
	return on, err
}

// ToggleCamera flips the video enable flag and returns the new value.
func (m *Machine) ToggleCamera(ctx context.Context) (bool, error) {
	var on bool
	err := m.do(ctx, func() (err error) {
		on, err = m.toggle(core.KindVideo)
		return err
	})
	return on, err
}

func (m *Machine) Self() domain.Party { return m.self }

func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// OnChange registers a listener called on the loop goroutine after every
// visible change. Listeners must not block or call back into the machine
// synchronously.
func (m *Machine) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Machine) publish() {
	snap := Snapshot{
		State:      domain.Idle,
		Self:       m.self,
		MicEnabled: true,
		CamEnabled: true,
		LastError:  m.lastErr,
		EndReason:  m.endReason,
	}
	if s := m.sess; s != nil {
		snap.State = s.state
		snap.Remote = s.remote
		snap.CallID = s.id
		snap.Initiator = s.initiator
		snap.LocalStream = s.localStream
		snap.RemoteStream = s.remoteStream
		snap.MicEnabled = s.micEnabled
		snap.CamEnabled = s.camEnabled
		snap.NegotiationInFlight = s.negotiationInFlight
	}

	m.mu.Lock()
	m.view = snap
	ls := append([]func(Snapshot){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range ls {
		fn(snap)
	}
}

func (m *Machine) newSession(remote domain.Party, initiator bool, callID string) *Session {
	m.gen++
	ctx, cancel := context.WithCancel(m.ctx)
	s := &Session{
		id:         callID,
		gen:        m.gen,
		remote:     remote,
		state:      domain.Idle,
		initiator:  initiator,
		startedAt:  time.Now(),
		micEnabled: true,
		camEnabled: true,
		ctx:        ctx,
		cancel:     cancel,
	}
	m.sess = s
	m.lastErr = nil
	m.endReason = ""
	return s
}

func (m *Machine) slog(s *Session) *zerolog.Logger {
	l := m.log.With().Str("call", s.id).Str("remote", string(s.remote.ID)).Str("state", s.state.String()).Logger()
	return &l
}

func (m *Machine) setState(s *Session, next domain.CallState) {
	prev := s.state
	s.state = next
	m.log.Info().
		Str("call", s.id).
		Str("remote", string(s.remote.ID)).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("call state")
	m.publish()
}

// live returns the session for gen, or nil when it has been replaced or ended.
func (m *Machine) live(gen uint64) *Session {
	if m.sess != nil && m.sess.gen == gen {
		return m.sess
	}
	return nil
}

// spawn runs work off the loop. The returned apply runs on the loop if s is
// still the live session; otherwise discard runs (when non-nil).
func (m *Machine) spawn(s *Session, work func(ctx context.Context) (apply, discard func())) {
	go func() {
		apply, discard := work(s.ctx)
		m.q.push(func() {
			if m.sess != s {
				m.log.Debug().Str("call", s.id).Msg("stale continuation dropped")
				if discard != nil {
					discard()
				}
				return
			}
			apply()
		})
	}()
}

// after schedules fn on the loop for s after d.
func (m *Machine) after(s *Session, d time.Duration, fn func(*Session)) *time.Timer {
	gen := s.gen
	return time.AfterFunc(d, func() {
		m.q.push(func() {
			if live := m.live(gen); live != nil {
				fn(live)
			}
		})
	})
}

func (m *Machine) send(event string, payload any) error {
	if err := m.sig.Send(event, payload); err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("signal send failed")
		return err
	}
	m.log.Debug().Str("event", event).Msg("signal sent")
	return nil
}

func (m *Machine) bindTransport(s *Session, tr core.PeerTransport) {
	s.transport = tr
	gen := s.gen
	tr.OnRemoteTrack(func(rs core.RemoteStream) {
		m.q.push(func() { m.onRemoteTrack(gen, rs) })
	})
	tr.OnRenegotiationNeeded(func() {
		m.q.push(func() { m.onRenegotiationNeeded(gen) })
	})
	tr.OnClosed(func() {
		m.q.push(func() { m.onTransportClosed(gen) })
	})
}

func negotiationErr(err error) error {
	if errors.Is(err, domain.ErrMediaNegotiation) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrMediaNegotiation, err)
}

func (m *Machine) requestCall(remote domain.Party) error {
	if m.sess != nil {
		return fmt.Errorf("request call while %s: %w", m.sess.state, domain.ErrInvalidState)
	}
	if remote.IsZero() || remote.ID == m.self.ID {
		return fmt.Errorf("request call to %q: %w", remote.ID, domain.ErrInvalidState)
	}

	s := m.newSession(remote, true, uuid.NewString())
	tr, err := m.factory.NewTransport(s.ctx)
	if err != nil {
		m.lastErr = negotiationErr(err)
		m.reset(s, domain.ReasonNegotiation)
		return m.lastErr
	}
	m.bindTransport(s, tr)
	m.metrics.CallStarted(s.ctx, "outgoing")
	m.setState(s, domain.Requesting)
	s.stateTimer = m.after(s, m.cfg.RequestTimeout, m.onRequestTimeout)

	m.spawn(s, func(ctx context.Context) (func(), func()) {
		offer, err := tr.CreateOffer(ctx)
		return func() {
			if err != nil {
				// nothing reached the remote party yet
				m.lastErr = negotiationErr(err)
				m.slog(s).Error().Err(m.lastErr).Msg("call request failed")
				m.reset(s, domain.ReasonNegotiation)
				return
			}
			if s.state != domain.Requesting {
				return
			}
			s.pendingOffer = &offer
			if err := m.send(signal.EventCallRequest, signal.CallRequest{
				From:   m.self,
				To:     s.remote.ID,
				Offer:  offer,
				CallID: s.id,
			}); err != nil {
				m.lastErr = fmt.Errorf("%w: %w", domain.ErrSignalingUnavailable, err)
				m.reset(s, domain.ReasonSignaling)
			}
		}, nil
	})
	return nil
}

func (m *Machine) acceptIncoming() error {
	s := m.sess
	if s == nil || s.state != domain.RingingIncoming {
		return fmt.Errorf("accept while %s: %w", m.currentState(), domain.ErrInvalidState)
	}
	tr, err := m.factory.NewTransport(s.ctx)
	if err != nil {
		m.lastErr = negotiationErr(err)
		_ = m.send(signal.EventCallReject, signal.CallReject{From: m.self, To: s.remote.ID, CallID: s.id, Reason: domain.ReasonNegotiation})
		m.reset(s, domain.ReasonNegotiation)
		return m.lastErr
	}
	m.bindTransport(s, tr)
	m.setState(s, domain.Connecting)
	s.stateTimer = m.after(s, m.cfg.ConnectTimeout, m.onConnectTimeout)

	m.acquireMedia(s, func() { m.answerIncoming(s) })
	return nil
}

func (m *Machine) answerIncoming(s *Session) {
	if s.pendingOffer == nil {
		m.abort(s, fmt.Errorf("%w: no stored offer", domain.ErrMediaNegotiation), domain.ReasonNegotiation)
		return
	}
	offer := *s.pendingOffer
	tr := s.transport
	// tracks attached before answering ride on the offered sections
	if !m.attach(s) {
		return
	}
	m.spawn(s, func(ctx context.Context) (func(), func()) {
		ans, err := tr.CreateAnswer(ctx, offer)
		return func() {
			if err != nil {
				m.abort(s, negotiationErr(err), domain.ReasonNegotiation)
				return
			}
			s.pendingOffer = nil
			if err := m.send(signal.EventCallAccepted, signal.CallAccepted{
				To:     s.remote.ID,
				From:   m.self,
				Answer: ans,
				CallID: s.id,
			}); err != nil {
				m.lastErr = fmt.Errorf("%w: %w", domain.ErrSignalingUnavailable, err)
				m.teardown(s, domain.ReasonSignaling)
				return
			}
			s.accepted = true
			if s.renegotiateAfter {
				m.requestRenegotiation(s)
			}
		}, nil
	})
}

func (m *Machine) rejectIncoming() error {
	s := m.sess
	if s == nil || s.state != domain.RingingIncoming {
		return fmt.Errorf("reject while %s: %w", m.currentState(), domain.ErrInvalidState)
	}
	_ = m.send(signal.EventCallReject, signal.CallReject{
		From:   m.self,
		To:     s.remote.ID,
		CallID: s.id,
		Reason: domain.ReasonDeclined,
	})
	m.reset(s, domain.ReasonDeclined)
	return nil
}

func (m *Machine) endCall() error {
	s := m.sess
	if s == nil {
		return fmt.Errorf("end call while idle: %w", domain.ErrInvalidState)
	}
	_ = m.send(signal.EventCallEnd, signal.CallEnd{
		From:   m.self.ID,
		To:     s.remote.ID,
		CallID: s.id,
		Reason: domain.ReasonHangup,
	})
	m.teardown(s, domain.ReasonHangup)
	return nil
}

func (m *Machine) toggle(kind core.TrackKind) (bool, error) {
	s := m.sess
	if s == nil || s.localStream == nil {
		return false, domain.ErrNoActiveMedia
	}
	flag := &s.micEnabled
	if kind == core.KindVideo {
		flag = &s.camEnabled
	}
	*flag = !*flag
	n := s.localStream.SetEnabled(kind, *flag)
	m.slog(s).Info().Str("kind", string(kind)).Bool("enabled", *flag).Int("tracks", n).Msg("toggle")
	m.publish()
	return *flag, nil
}

func (m *Machine) currentState() domain.CallState {
	if m.sess == nil {
		return domain.Idle
	}
	return m.sess.state
}

// acquireMedia asks for devices and stores the stream before calling next.
func (m *Machine) acquireMedia(s *Session, next func()) {
	devices := m.devices
	constraints := m.cfg.Constraints
	m.spawn(s, func(ctx context.Context) (func(), func()) {
		stream, err := devices.GetUserMedia(ctx, constraints)
		apply := func() {
			if err != nil {
				if !errors.Is(err, domain.ErrMediaAccessDenied) {
					err = fmt.Errorf("%w: %w", domain.ErrMediaAccessDenied, err)
				}
				m.abort(s, err, domain.ReasonMediaDenied)
				return
			}
			if !s.state.HasMedia() {
				stream.Stop()
				return
			}
			s.localStream = stream
			stream.SetEnabled(core.KindAudio, s.micEnabled)
			stream.SetEnabled(core.KindVideo, s.camEnabled)
			m.slog(s).Info().Str("stream", stream.ID()).Msg("local media acquired")
			m.publish()
			next()
		}
		discard := func() {
			if stream != nil {
				stream.Stop()
			}
		}
		return apply, discard
	})
}

// attach adds local tracks to the transport; false means the call was ended.
func (m *Machine) attach(s *Session) bool {
	if s.localStream == nil || s.transport == nil {
		return true
	}
	if err := s.transport.AttachLocalTracks(s.localStream); err != nil {
		m.abort(s, negotiationErr(err), domain.ReasonNegotiation)
		return false
	}
	return true
}
