// Package relay forwards call signaling between connected parties. It knows
// nothing about call state: every inbound event is addressed by its "to" field
// and rewritten so the receiver sees the authenticated sender.
package relay

import (
	"errors"
	"fmt"

	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/signal"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrNoTarget     = errors.New("event without target")
)

// Routed is an event ready to be delivered to To.
type Routed struct {
	To      domain.PartyID
	Event   string
	Payload any
}

// Route decodes an inbound event from sender and returns what to deliver.
// The sender identity in the payload is always replaced by from.
func Route(from domain.Party, env signal.Envelope) (Routed, error) {
	var (
		to  domain.PartyID
		out any
		ev  = env.Event
	)
	switch env.Event {
	case signal.EventCallRequest:
		var p signal.CallRequest
		if err := signal.Decode(env.Data, &p); err != nil {
			return Routed{}, err
		}
		to = p.To
		ev = signal.EventIncomingCall
		out = signal.IncomingCall{Sender: from, Offer: p.Offer, CallID: p.CallID}
	case signal.EventCallAccepted:
		var p signal.CallAccepted
		if err := signal.Decode(env.Data, &p); err != nil {
			return Routed{}, err
		}
		to = p.To
		p.From = from
		out = p
	case signal.EventCallReject:
		var p signal.CallReject
		if err := signal.Decode(env.Data, &p); err != nil {
			return Routed{}, err
		}
		to = p.To
		p.From = from
		out = p
	case signal.EventCallEnd:
		var p signal.CallEnd
		if err := signal.Decode(env.Data, &p); err != nil {
			return Routed{}, err
		}
		to = p.To
		p.From = from.ID
		out = p
	case signal.EventNegoOffer:
		var p signal.NegoOffer
		if err := signal.Decode(env.Data, &p); err != nil {
			return Routed{}, err
		}
		to = p.To
		p.From = from.ID
		out = p
	case signal.EventNegoAccepted:
		var p signal.NegoAccepted
		if err := signal.Decode(env.Data, &p); err != nil {
			return Routed{}, err
		}
		to = p.To
		p.From = from.ID
		out = p
	case signal.EventNegoNeeded:
		var p signal.NegoNeeded
		if err := signal.Decode(env.Data, &p); err != nil {
			return Routed{}, err
		}
		to = p.To
		p.From = from.ID
		out = p
	default:
		return Routed{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if to == "" {
		return Routed{}, fmt.Errorf("%s: %w", env.Event, ErrNoTarget)
	}
	return Routed{To: to, Event: ev, Payload: out}, nil
}
