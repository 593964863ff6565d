//go:build !linux

package media

import "github.com/pion/mediadevices"

// No V4L2/malgo drivers here; the transport falls back to default codecs.
const captureSupported = false

func newCodecSelector() (*mediadevices.CodecSelector, error) {
	return nil, nil
}
