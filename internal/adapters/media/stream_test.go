package media

import (
	"testing"

	"github.com/dkeye/peercall/internal/core"
	"github.com/stretchr/testify/assert"
)

func newTestStream() (*Stream, *int) {
	closed := 0
	closer := func() error { closed++; return nil }
	return NewStream("s1",
		NewTrack("a1", core.KindAudio, nil, closer),
		NewTrack("v1", core.KindVideo, nil, closer),
	), &closed
}

func TestStream_SetEnabledByKind(t *testing.T) {
	s, _ := newTestStream()

	n := s.SetEnabled(core.KindAudio, false)

	assert.Equal(t, 1, n)
	tracks := s.Tracks()
	assert.False(t, tracks[0].Enabled())
	assert.True(t, tracks[1].Enabled())
}

func TestTrack_ListenerFiresOnlyOnChange(t *testing.T) {
	tr := NewTrack("a1", core.KindAudio, nil, nil)
	var flips []bool
	tr.OnEnabledChange(func(on bool) { flips = append(flips, on) })

	tr.SetEnabled(true)
	tr.SetEnabled(false)
	tr.SetEnabled(false)
	tr.SetEnabled(true)

	assert.Equal(t, []bool{false, true}, flips)
}

func TestStream_StopIsIdempotent(t *testing.T) {
	s, closed := newTestStream()

	s.Stop()
	s.Stop()

	assert.Equal(t, 2, *closed)
	for _, tr := range s.Tracks() {
		assert.True(t, tr.Stopped())
	}
}

func TestTrack_StoppedIgnoresToggle(t *testing.T) {
	tr := NewTrack("v1", core.KindVideo, nil, nil)
	tr.Stop()

	tr.SetEnabled(false)

	assert.True(t, tr.Enabled())
}

func TestStream_Kinds(t *testing.T) {
	s := NewStream("s",
		NewTrack("a1", core.KindAudio, nil, nil),
		NewTrack("a2", core.KindAudio, nil, nil),
		NewTrack("v1", core.KindVideo, nil, nil),
	)
	assert.Equal(t, []core.TrackKind{core.KindAudio, core.KindVideo}, s.Kinds())
}
