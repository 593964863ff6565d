package domain

import "errors"

var (
	ErrMediaAccessDenied    = errors.New("media access denied")
	ErrMediaNegotiation     = errors.New("media negotiation failed")
	ErrInvalidState         = errors.New("operation not allowed in current call state")
	ErrStaleParty           = errors.New("event from stale party")
	ErrSignalingUnavailable = errors.New("signaling unavailable")
	ErrNoActiveMedia        = errors.New("no active local media")
	ErrNoPendingOffer       = errors.New("no pending local offer")
	ErrRemoteRejected       = errors.New("call rejected by remote party")
	ErrRequestTimeout       = errors.New("call request timed out")
)
