package rtc

import (
	"context"
	"time"

	"github.com/dkeye/peercall/internal/core"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:global.stun.twilio.com:3478",
}

type Options struct {
	STUNServers []string
	// GatherTimeout bounds the wait for ICE gathering. Zero waits until done.
	GatherTimeout time.Duration
	// ICE timeouts; zero values keep the defaults below.
	DisconnectedTimeout time.Duration
	FailedTimeout       time.Duration
	KeepAliveInterval   time.Duration
	Sink                PacketSink
}

// DefaultWebRTCConfig uses DefaultSTUNServers for a nil list; an empty
// non-nil list configures no ICE servers (host candidates only).
func DefaultWebRTCConfig(stun []string) webrtc.Configuration {
	if stun == nil {
		stun = DefaultSTUNServers
	}
	if len(stun) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: stun,
			},
		},
	}
}

// Factory builds one Transport per call over a shared pion API.
type Factory struct {
	api  *webrtc.API
	cfg  webrtc.Configuration
	opts Options
}

var _ core.TransportFactory = (*Factory)(nil)

// NewFactory prepares the media engine. populate registers codecs; nil uses
// pion's defaults.
func NewFactory(opts Options, populate func(*webrtc.MediaEngine) error) (*Factory, error) {
	me := &webrtc.MediaEngine{}
	if populate == nil {
		populate = (*webrtc.MediaEngine).RegisterDefaultCodecs
	}
	if err := populate(me); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, ir); err != nil {
		return nil, err
	}

	if opts.DisconnectedTimeout == 0 {
		opts.DisconnectedTimeout = 30 * time.Second
	}
	if opts.FailedTimeout == 0 {
		opts.FailedTimeout = 120 * time.Second
	}
	if opts.KeepAliveInterval == 0 {
		opts.KeepAliveInterval = 2 * time.Second
	}
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(opts.DisconnectedTimeout, opts.FailedTimeout, opts.KeepAliveInterval)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(me),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	)
	return &Factory{api: api, cfg: DefaultWebRTCConfig(opts.STUNServers), opts: opts}, nil
}

func (f *Factory) NewTransport(ctx context.Context) (core.PeerTransport, error) {
	t, err := newTransport(ctx, f.api, f.cfg, f.opts.GatherTimeout, f.opts.Sink)
	if err != nil {
		return nil, err
	}
	return t, nil
}
