// Package signal carries call signaling between parties: the event names and
// payloads exchanged through the relay, an in-process handler bus, and the
// websocket client channel.
package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/peercall/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	EventCallRequest  = "call:request"
	EventIncomingCall = "receive:call:request"
	EventCallAccepted = "call:accepted"
	EventCallReject   = "call:reject"
	EventCallEnd      = "call:end"
	EventNegoOffer    = "nego:offer"
	EventNegoAccepted = "nego:accepted"
	// EventNegoNeeded asks the caller to run a renegotiation round; only the
	// caller ever offers, so descriptions never collide.
	EventNegoNeeded = "nego:needed"
)

var ErrMalformed = errors.New("malformed signaling payload")

// Envelope is the wire frame for every event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type CallRequest struct {
	From   domain.Party              `json:"from"`
	To     domain.PartyID            `json:"to"`
	Offer  webrtc.SessionDescription `json:"offer"`
	CallID string                    `json:"call,omitempty"`
}

type IncomingCall struct {
	Sender domain.Party              `json:"sender"`
	Offer  webrtc.SessionDescription `json:"offer"`
	CallID string                    `json:"call,omitempty"`
}

type CallAccepted struct {
	To     domain.PartyID            `json:"to,omitempty"`
	From   domain.Party              `json:"from"`
	Answer webrtc.SessionDescription `json:"ans"`
	CallID string                    `json:"call,omitempty"`
}

type CallReject struct {
	From   domain.Party   `json:"from"`
	To     domain.PartyID `json:"to"`
	CallID string         `json:"call,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

type CallEnd struct {
	From   domain.PartyID `json:"from"`
	To     domain.PartyID `json:"to"`
	CallID string         `json:"call,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

type NegoOffer struct {
	Offer  webrtc.SessionDescription `json:"offer"`
	To     domain.PartyID            `json:"to"`
	From   domain.PartyID            `json:"from,omitempty"`
	Round  uint64                    `json:"round"`
	CallID string                    `json:"call,omitempty"`
}

type NegoAccepted struct {
	To     domain.PartyID            `json:"to"`
	From   domain.PartyID            `json:"from,omitempty"`
	Answer webrtc.SessionDescription `json:"ans"`
	Round  uint64                    `json:"round"`
	CallID string                    `json:"call,omitempty"`
}

type NegoNeeded struct {
	To     domain.PartyID `json:"to"`
	From   domain.PartyID `json:"from,omitempty"`
	CallID string         `json:"call,omitempty"`
}

// Decode unmarshals a payload into v.
func Decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return ErrMalformed
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Join(ErrMalformed, err)
	}
	return nil
}

// ValidDescription reports whether d is a non-empty description of type want.
func ValidDescription(d webrtc.SessionDescription, want webrtc.SDPType) bool {
	return d.Type == want && d.SDP != ""
}
