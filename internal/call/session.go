package call

import (
	"context"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Session is the state of one call. Only the machine loop touches it.
type Session struct {
	id        string
	gen       uint64
	remote    domain.Party
	state     domain.CallState
	initiator bool
	// accepted is set once the answer to the initial offer was sent or applied.
	accepted  bool
	startedAt time.Time

	transport    core.PeerTransport
	localStream  core.LocalStream
	remoteStream core.RemoteStream
	pendingOffer *webrtc.SessionDescription

	negotiationInFlight bool
	negoRound           uint64
	// negoResent is set once the in-flight round was sent a second time.
	negoResent       bool
	answering        bool
	renegotiateAfter bool
	answeredRound    uint64
	lastAnswer       *webrtc.SessionDescription

	micEnabled bool
	camEnabled bool

	ctx        context.Context
	cancel     context.CancelFunc
	stateTimer *time.Timer
	negoTimer  *time.Timer
}

func (s *Session) stopTimers() {
	if s.stateTimer != nil {
		s.stateTimer.Stop()
		s.stateTimer = nil
	}
	if s.negoTimer != nil {
		s.negoTimer.Stop()
		s.negoTimer = nil
	}
}

// Snapshot is the read-only view handed to the UI.
type Snapshot struct {
	State     domain.CallState
	Self      domain.Party
	Remote    domain.Party
	CallID    string
	Initiator bool

	LocalStream  core.LocalStream
	RemoteStream core.RemoteStream
	MicEnabled   bool
	CamEnabled   bool

	NegotiationInFlight bool

	// LastError and EndReason describe how the previous session ended.
	LastError error
	EndReason string
}
