package domain

type CallState int

const (
	Idle CallState = iota
	Requesting
	RingingIncoming
	Connecting
	Active
	Ending
	Ended
)

func (s CallState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case RingingIncoming:
		return "ringing"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Ending:
		return "ending"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// HasMedia reports whether a local stream may exist in this state.
func (s CallState) HasMedia() bool {
	return s == Connecting || s == Active || s == Ending
}

// Reasons attached to call:reject and to the end of a session.
const (
	ReasonBusy        = "busy"
	ReasonDeclined    = "declined"
	ReasonUnavailable = "unavailable"
	ReasonTimeout     = "timeout"
	ReasonHangup      = "hangup"
	ReasonRemoteEnd   = "remote-end"
	ReasonCancelled   = "cancelled"
	ReasonMediaDenied = "media-denied"
	ReasonNegotiation = "negotiation-failed"
	ReasonTransport   = "transport-closed"
	ReasonSignaling   = "signaling-lost"
	ReasonShutdown    = "shutdown"
)
