package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// PacketSink observes RTP packets read from remote tracks.
type PacketSink func(kind core.TrackKind, pkt *rtp.Packet)

// Transport is a core.PeerTransport over a pion PeerConnection.
type Transport struct {
	pc     *webrtc.PeerConnection
	id     string
	gather time.Duration
	sink   PacketSink
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// negMu serializes description changes, including the gathering wait.
	negMu sync.Mutex

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender
	// used marks senders carrying one of our tracks
	used     map[*webrtc.RTPSender]bool
	remotes  map[string]*remoteStream
	onRemote func(core.RemoteStream)
	onNego   func()
	onClosed func()

	closeOnce sync.Once
	closed    bool
}

var _ core.PeerTransport = (*Transport)(nil)

func newTransport(ctx context.Context, api *webrtc.API, cfg webrtc.Configuration, gather time.Duration, sink PacketSink) (*Transport, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %v", domain.ErrMediaNegotiation, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &Transport{
		pc:      pc,
		id:      uuid.NewString()[:8],
		gather:  gather,
		sink:    sink,
		ctx:     ctx,
		cancel:  cancel,
		senders: make(map[string]*webrtc.RTPSender),
		used:    make(map[*webrtc.RTPSender]bool),
		remotes: make(map[string]*remoteStream),
	}
	t.log = log.With().Str("module", "webrtc").Str("pc", t.id).Logger()

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		t.log.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.log.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			t.fireClosed()
		}
	})

	pc.OnNegotiationNeeded(func() {
		t.mu.Lock()
		fn := t.onNego
		t.mu.Unlock()
		t.log.Debug().Msg("negotiation needed")
		if fn != nil {
			fn()
		}
	})

	pc.OnTrack(t.handleTrack)

	return t, nil
}

func (t *Transport) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	t.negMu.Lock()
	defer t.negMu.Unlock()
	if err := t.ensureTransceivers(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer: %v", domain.ErrMediaNegotiation, err)
	}
	return t.setLocalAndGather(ctx, offer)
}

func (t *Transport) CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: not an offer (%s)", domain.ErrMediaNegotiation, offer.Type)
	}
	t.negMu.Lock()
	defer t.negMu.Unlock()
	// pion cannot roll back, so an offer in flight rules out answering
	if t.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: local offer pending", domain.ErrMediaNegotiation)
	}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: apply offer: %v", domain.ErrMediaNegotiation, err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer: %v", domain.ErrMediaNegotiation, err)
	}
	return t.setLocalAndGather(ctx, answer)
}

// ensureTransceivers gives the first offer a sendrecv audio and video section
// so it can go out before local media exists. pion puts a silent placeholder
// track on each sender; AttachLocalTracks swaps the real track in.
func (t *Transport) ensureTransceivers() error {
	have := map[webrtc.RTPCodecType]bool{}
	for _, tr := range t.pc.GetTransceivers() {
		have[tr.Kind()] = true
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if have[kind] {
			continue
		}
		tc, err := t.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendrecv,
		})
		if err != nil {
			return fmt.Errorf("%w: add %s transceiver: %v", domain.ErrMediaNegotiation, kind, err)
		}
		go t.drainRTCP(tc.Sender())
	}
	return nil
}

func (t *Transport) setLocalAndGather(ctx context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local %s: %v", domain.ErrMediaNegotiation, desc.Type, err)
	}

	var timeout <-chan time.Time
	if t.gather > 0 {
		timer := time.NewTimer(t.gather)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-gatherComplete:
	case <-timeout:
		t.log.Warn().Dur("after", t.gather).Msg("ICE gathering incomplete, sending partial candidates")
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	case <-t.ctx.Done():
		return webrtc.SessionDescription{}, fmt.Errorf("%w: transport closed", domain.ErrMediaNegotiation)
	}

	local := t.pc.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: no local description", domain.ErrMediaNegotiation)
	}
	return *local, nil
}

func (t *Transport) SetRemoteAnswer(answer webrtc.SessionDescription) error {
	t.negMu.Lock()
	defer t.negMu.Unlock()
	if t.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return domain.ErrNoPendingOffer
	}
	if answer.Type != webrtc.SDPTypeAnswer || answer.SDP == "" {
		return fmt.Errorf("%w: not an answer (%s)", domain.ErrMediaNegotiation, answer.Type)
	}
	if err := t.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: apply answer: %v", domain.ErrMediaNegotiation, err)
	}
	return nil
}

// AttachLocalTracks attaches each track once. A track goes onto a negotiated
// sender of its kind that still carries a placeholder, which needs no new
// offer; otherwise it is added, which makes pion ask for renegotiation. The
// track's enable flag is mirrored onto its sender: a disabled track is
// replaced by silence.
func (t *Transport) AttachLocalTracks(stream core.LocalStream) error {
	var errs []error
	for _, tr := range stream.Tracks() {
		t.mu.Lock()
		_, seen := t.senders[tr.ID()]
		t.mu.Unlock()
		if seen {
			continue
		}
		local := tr.Local()
		if local == nil {
			errs = append(errs, fmt.Errorf("track %s has no local source", tr.ID()))
			continue
		}
		sender, err := t.placeTrack(local)
		if err != nil {
			errs = append(errs, fmt.Errorf("attach track %s: %w", tr.ID(), err))
			continue
		}

		tr.OnEnabledChange(func(on bool) {
			var next webrtc.TrackLocal
			if on {
				next = local
			}
			if err := sender.ReplaceTrack(next); err != nil {
				t.log.Warn().Err(err).Str("track_id", tr.ID()).Bool("enabled", on).Msg("replace track")
			}
		})
		if !tr.Enabled() {
			_ = sender.ReplaceTrack(nil)
		}
		t.log.Info().Str("track_id", tr.ID()).Str("kind", string(tr.Kind())).Msg("local track attached")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrMediaNegotiation, errors.Join(errs...))
	}
	return nil
}

func (t *Transport) placeTrack(local webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	for _, tc := range t.pc.GetTransceivers() {
		sender := tc.Sender()
		if sender == nil || tc.Kind() != local.Kind() {
			continue
		}
		t.mu.Lock()
		taken := t.used[sender]
		t.mu.Unlock()
		if taken {
			continue
		}
		if err := sender.ReplaceTrack(local); err != nil {
			return nil, err
		}
		t.mu.Lock()
		t.used[sender] = true
		t.mu.Unlock()
		return sender, nil
	}

	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.used[sender] = true
	t.mu.Unlock()
	go t.drainRTCP(sender)
	return sender, nil
}

// drainRTCP keeps interceptors (NACK, reports) running for a sender.
func (t *Transport) drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (t *Transport) OnRemoteTrack(fn func(core.RemoteStream)) {
	t.mu.Lock()
	t.onRemote = fn
	t.mu.Unlock()
}

func (t *Transport) OnRenegotiationNeeded(fn func()) {
	t.mu.Lock()
	t.onNego = fn
	t.mu.Unlock()
}

// OnClosed sets application-level callback for cleanup
func (t *Transport) OnClosed(fn func()) {
	t.mu.Lock()
	t.onClosed = fn
	t.mu.Unlock()
}

func (t *Transport) fireClosed() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		fn := t.onClosed
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	err := t.pc.Close()
	if err != nil {
		t.log.Error().Err(err).Msg("close error")
	} else {
		t.log.Info().Msg("closed")
	}
	t.fireClosed()
	return err
}

func (t *Transport) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := core.KindOf(track.Kind())
	t.log.Info().
		Str("kind", string(kind)).
		Str("track_id", track.ID()).
		Str("stream_id", track.StreamID()).
		Msg("OnTrack received")

	t.mu.Lock()
	rs, ok := t.remotes[track.StreamID()]
	if !ok {
		rs = &remoteStream{id: track.StreamID()}
		t.remotes[rs.id] = rs
	}
	changed := rs.add(kind, track)
	fn := t.onRemote
	t.mu.Unlock()

	if kind == core.KindVideo {
		// ask for a keyframe so the first frames decode
		if err := t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}); err != nil {
			t.log.Debug().Err(err).Msg("send PLI")
		}
	}

	go t.drain(kind, track)

	if changed && fn != nil {
		fn(rs)
	}
}

// drain reads a remote track until it ends. Unread tracks stall the receiver.
func (t *Transport) drain(kind core.TrackKind, track *webrtc.TrackRemote) {
	var packets int
	defer func() {
		t.log.Debug().Str("track_id", track.ID()).Int("packets", packets).Msg("remote track ended")
	}()
	for {
		if t.ctx.Err() != nil {
			return
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		packets++
		if t.sink != nil {
			t.sink(kind, pkt)
		}
	}
}

type remoteStream struct {
	mu     sync.Mutex
	id     string
	kinds  []core.TrackKind
	tracks []*webrtc.TrackRemote
}

var _ core.RemoteStream = (*remoteStream)(nil)

func (r *remoteStream) ID() string { return r.id }

func (r *remoteStream) Kinds() []core.TrackKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.TrackKind(nil), r.kinds...)
}

// add records track and reports whether the stream gained a kind.
func (r *remoteStream) add(kind core.TrackKind, track *webrtc.TrackRemote) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = append(r.tracks, track)
	for _, k := range r.kinds {
		if k == kind {
			return false
		}
	}
	r.kinds = append(r.kinds, kind)
	return true
}
