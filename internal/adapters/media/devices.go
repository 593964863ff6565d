// Package media captures local camera and microphone through pion/mediadevices.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errNoCapture = errors.New("no capture drivers on this platform")

type attempt struct {
	video bool
	audio bool
	label string
}

// Devices implements core.MediaDevices.
type Devices struct {
	selector     *mediadevices.CodecSelector
	getUserMedia func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
	log          zerolog.Logger
}

var _ core.MediaDevices = (*Devices)(nil)

func NewDevices() (*Devices, error) {
	selector, err := newCodecSelector()
	if err != nil {
		return nil, err
	}
	d := &Devices{
		selector:     selector,
		getUserMedia: mediadevices.GetUserMedia,
		log:          log.With().Str("module", "media").Logger(),
	}
	if !captureSupported {
		d.getUserMedia = func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error) {
			return nil, errNoCapture
		}
		d.log.Warn().Msg("capture unsupported, calls will be receive-only")
		return d, nil
	}
	infos := mediadevices.EnumerateDevices()
	if len(infos) == 0 {
		d.log.Warn().Msg("no media devices found")
	}
	for _, info := range infos {
		d.log.Debug().Str("kind", fmt.Sprint(info.Kind)).Str("label", info.Label).Msg("media device")
	}
	return d, nil
}

// Populate registers the codecs the capture encoders produce.
func (d *Devices) Populate(me *webrtc.MediaEngine) error {
	if d.selector == nil {
		return me.RegisterDefaultCodecs()
	}
	d.selector.Populate(me)
	return nil
}

// GetUserMedia acquires devices for c. When ctx ends first, the stream that
// arrives later is stopped.
func (d *Devices) GetUserMedia(ctx context.Context, c core.MediaConstraints) (core.LocalStream, error) {
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("%w: no media kind requested", domain.ErrMediaAccessDenied)
	}
	type result struct {
		s   *Stream
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := d.acquire(c)
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.s, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.s != nil {
				r.s.Stop()
			}
		}()
		return nil, ctx.Err()
	}
}

func attemptsFor(c core.MediaConstraints) []attempt {
	var out []attempt
	if c.Video && c.Audio {
		out = append(out, attempt{true, true, "video+audio"})
	}
	if c.Video {
		out = append(out, attempt{true, false, "video-only"})
	}
	if c.Audio {
		out = append(out, attempt{false, true, "audio-only"})
	}
	return out
}

func (d *Devices) constraints(a attempt) mediadevices.MediaStreamConstraints {
	cons := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if a.video {
		cons.Video = func(c *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some cameras poison the VP8 encoder
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}
	if a.audio {
		cons.Audio = func(*mediadevices.MediaTrackConstraints) {}
	}
	return cons
}

func (d *Devices) acquire(c core.MediaConstraints) (*Stream, error) {
	var lastErr error
	for _, a := range attemptsFor(c) {
		ms, err := d.getUserMedia(d.constraints(a))
		if err != nil {
			d.log.Warn().Err(err).Str("attempt", a.label).Msg("GetUserMedia failed")
			lastErr = err
			continue
		}
		raw := ms.GetTracks()
		if len(raw) == 0 {
			lastErr = errors.New("no tracks returned")
			continue
		}
		tracks := make([]*Track, 0, len(raw))
		for _, mt := range raw {
			mt := mt
			mt.OnEnded(func(err error) {
				if err != nil {
					d.log.Warn().Err(err).Str("track", mt.ID()).Msg("local track ended")
				}
			})
			tracks = append(tracks, NewTrack(mt.ID(), core.KindOf(mt.Kind()), mt, mt.Close))
		}
		s := NewStream(uuid.NewString(), tracks...)
		d.log.Info().Str("attempt", a.label).Int("tracks", len(tracks)).Str("stream", s.ID()).Msg("local media captured")
		return s, nil
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrMediaAccessDenied, lastErr)
}
