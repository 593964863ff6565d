package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/peercall/internal/adapters/media"
	"github.com/dkeye/peercall/internal/adapters/rtc"
	"github.com/dkeye/peercall/internal/call"
	"github.com/dkeye/peercall/internal/config"
	"github.com/dkeye/peercall/internal/core"
	"github.com/dkeye/peercall/internal/domain"
	"github.com/dkeye/peercall/internal/observe"
	sig "github.com/dkeye/peercall/internal/signal"
)

// packetCounter is the sink for remote RTP; the console reports it.
type packetCounter struct {
	audio, video atomic.Uint64
}

func (c *packetCounter) sink(kind core.TrackKind, _ *rtp.Packet) {
	if kind == core.KindVideo {
		c.video.Add(1)
		return
	}
	c.audio.Add(1)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.SetupLogging("info")
	cfg, err := config.LoadClient(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg.LogLevel)

	self, err := domain.NewParty(cfg.ID, cfg.Name)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid party")
	}

	devices, err := media.NewDevices()
	if err != nil {
		log.Fatal().Err(err).Msg("media devices")
	}

	stun := cfg.STUNServers
	if len(stun) == 0 {
		stun = nil
	}
	counter := &packetCounter{}
	factory, err := rtc.NewFactory(rtc.Options{
		STUNServers:   stun,
		GatherTimeout: cfg.GatherTimeout,
		Sink:          counter.sink,
	}, devices.Populate)
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc factory")
	}

	channel := sig.NewWSChannel(sig.WSOptions{
		URL:        cfg.RelayURL,
		Self:       self,
		PingPeriod: cfg.PingPeriod,
		Backoff:    cfg.Backoff,
	})

	machine := call.New(self, channel, factory, devices, call.Config{
		RequestTimeout:     cfg.RequestTimeout,
		ConnectTimeout:     cfg.ConnectTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
		SignalGrace:        cfg.SignalGrace,
		Constraints:        core.MediaConstraints{Audio: cfg.Audio, Video: cfg.Video},
		Metrics:            observe.DefaultMetrics(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return channel.Run(ctx) })
	g.Go(func() error { return machine.Run(ctx) })
	g.Go(func() error {
		err := (&console{m: machine, in: os.Stdin, out: os.Stdout, packets: counter}).run(ctx)
		cancel()
		return err
	})

	log.Info().Str("party", self.String()).Str("relay", cfg.RelayURL).Msg("peercall started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("peercall stopped")
		os.Exit(1)
	}
}
