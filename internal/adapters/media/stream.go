package media

import (
	"sync"

	"github.com/dkeye/peercall/internal/core"
	"github.com/pion/webrtc/v4"
)

// Track is a captured track with a mutable enable flag.
type Track struct {
	id     string
	kind   core.TrackKind
	local  webrtc.TrackLocal
	closer func() error

	mu        sync.Mutex
	enabled   bool
	stopped   bool
	listeners []func(bool)
}

var _ core.Track = (*Track)(nil)

// NewTrack wraps local. closer releases the device and may be nil.
func NewTrack(id string, kind core.TrackKind, local webrtc.TrackLocal, closer func() error) *Track {
	return &Track{id: id, kind: kind, local: local, closer: closer, enabled: true}
}

func (t *Track) ID() string               { return t.id }
func (t *Track) Kind() core.TrackKind     { return t.kind }
func (t *Track) Local() webrtc.TrackLocal { return t.local }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled flips the flag and notifies listeners when it changed.
func (t *Track) SetEnabled(on bool) {
	t.mu.Lock()
	if t.enabled == on || t.stopped {
		t.mu.Unlock()
		return
	}
	t.enabled = on
	ls := append([]func(bool){}, t.listeners...)
	t.mu.Unlock()

	for _, fn := range ls {
		fn(on)
	}
}

func (t *Track) OnEnabledChange(fn func(bool)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.listeners = nil
	closer := t.closer
	t.mu.Unlock()

	if closer != nil {
		_ = closer()
	}
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stream groups the tracks of one acquisition.
type Stream struct {
	id     string
	tracks []*Track
}

var _ core.LocalStream = (*Stream)(nil)

func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []core.Track {
	out := make([]core.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *Stream) SetEnabled(kind core.TrackKind, on bool) int {
	n := 0
	for _, t := range s.tracks {
		if t.kind != kind {
			continue
		}
		t.SetEnabled(on)
		n++
	}
	return n
}

func (s *Stream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Kinds lists the distinct track kinds in capture order.
func (s *Stream) Kinds() []core.TrackKind {
	var out []core.TrackKind
	seen := map[core.TrackKind]bool{}
	for _, t := range s.tracks {
		if !seen[t.kind] {
			seen[t.kind] = true
			out = append(out, t.kind)
		}
	}
	return out
}
