package core

//go:generate mockgen -destination=mock/mock_core.go -package=mock github.com/dkeye/peercall/internal/core MediaDevices,PeerTransport,TransportFactory

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// PeerTransport wraps one peer connection. It is created per call session
// and closed when the session ends. Only one side of a call creates offers;
// there is no rollback.
type PeerTransport interface {
	// CreateOffer sets and returns a local offer once ICE gathering completed.
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// CreateAnswer applies a remote offer and returns the local answer. It
	// fails while a local offer is pending.
	CreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// SetRemoteAnswer completes an exchange started by CreateOffer.
	SetRemoteAnswer(answer webrtc.SessionDescription) error
	// AttachLocalTracks adds the stream's tracks. Tracks already attached are skipped.
	AttachLocalTracks(stream LocalStream) error

	OnRemoteTrack(func(RemoteStream))
	OnRenegotiationNeeded(func())
	// OnClosed fires once when the connection failed or was closed.
	OnClosed(func())

	Close() error
}

// TransportFactory builds a fresh PeerTransport for a new call session.
type TransportFactory interface {
	NewTransport(ctx context.Context) (PeerTransport, error)
}

// TransportFactoryFunc adapts a function to TransportFactory.
type TransportFactoryFunc func(ctx context.Context) (PeerTransport, error)

func (f TransportFactoryFunc) NewTransport(ctx context.Context) (PeerTransport, error) {
	return f(ctx)
}
