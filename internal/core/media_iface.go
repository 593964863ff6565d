package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// KindOf maps a pion codec type to a TrackKind.
func KindOf(t webrtc.RTPCodecType) TrackKind {
	if t == webrtc.RTPCodecTypeVideo {
		return KindVideo
	}
	return KindAudio
}

type MediaConstraints struct {
	Audio bool
	Video bool
}

// Track is one captured local track.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	// OnEnabledChange registers a listener for enable flag flips.
	OnEnabledChange(func(enabled bool))
	// Local returns the pion track to attach, nil for tracks without a sender.
	Local() webrtc.TrackLocal
	// Stop releases the capture device. Idempotent.
	Stop()
	Stopped() bool
}

// LocalStream is the set of tracks produced by one device acquisition.
type LocalStream interface {
	ID() string
	Tracks() []Track
	// SetEnabled flips every track of kind and returns how many were changed.
	SetEnabled(kind TrackKind, enabled bool) int
	Stop()
}

// MediaDevices acquires local capture devices.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) (LocalStream, error)
}

// RemoteStream is a media stream received from the peer.
type RemoteStream interface {
	ID() string
	Kinds() []TrackKind
}
