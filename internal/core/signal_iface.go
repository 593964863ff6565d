package core

import "encoding/json"

// Frame is a raw encoded signaling message.
type Frame []byte

// SignalConnection abstracts a relay-side messaging endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Local events emitted by a SignalChannel itself, never sent on the wire.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// Handler receives the raw payload of an inbound event.
type Handler func(payload json.RawMessage)

// HandlerID identifies a registration returned by On.
type HandlerID uint64

// SignalChannel is the client side of the signaling relay.
// Send is fire-and-forget: a nil error only means the event was queued.
// Handlers of one event run in registration order.
type SignalChannel interface {
	Send(event string, payload any) error
	On(event string, h Handler) HandlerID
	Off(event string, id HandlerID)
}
