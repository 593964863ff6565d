package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevices(fn func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)) *Devices {
	return &Devices{getUserMedia: fn, log: zerolog.Nop()}
}

func TestDevices_FallsBackThroughAttemptsThenDenies(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	d := testDevices(func(c mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
		mu.Lock()
		defer mu.Unlock()
		label := ""
		if c.Video != nil {
			label += "v"
		}
		if c.Audio != nil {
			label += "a"
		}
		seen = append(seen, label)
		return nil, errors.New("permission denied")
	})

	_, err := d.GetUserMedia(context.Background(), core.MediaConstraints{Audio: true, Video: true})

	require.ErrorIs(t, err, domain.ErrMediaAccessDenied)
	assert.Equal(t, []string{"va", "v", "a"}, seen)
}

func TestDevices_AudioOnlyRequestSkipsVideo(t *testing.T) {
	calls := 0
	d := testDevices(func(c mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
		calls++
		assert.Nil(t, c.Video)
		return nil, errors.New("busy")
	})

	_, err := d.GetUserMedia(context.Background(), core.MediaConstraints{Audio: true})

	require.ErrorIs(t, err, domain.ErrMediaAccessDenied)
	assert.Equal(t, 1, calls)
}

func TestDevices_NothingRequested(t *testing.T) {
	d := testDevices(nil)
	_, err := d.GetUserMedia(context.Background(), core.MediaConstraints{})
	assert.ErrorIs(t, err, domain.ErrMediaAccessDenied)
}

func TestDevices_ContextCancelledWhilePrompting(t *testing.T) {
	release := make(chan struct{})
	d := testDevices(func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
		<-release
		return nil, errors.New("late")
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.GetUserMedia(ctx, core.MediaConstraints{Audio: true})
	close(release)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
