package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/peercall/internal/config"
	"github.com/dkeye/peercall/internal/observe"
	"github.com/dkeye/peercall/internal/relay"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config.SetupLogging("info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	config.SetupLogging(cfg.LogLevel)

	var (
		metrics     *observe.Metrics
		metricsHTTP http.Handler
	)
	if cfg.Metrics {
		provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "peercall-relay"})
		if err != nil {
			log.Fatal().Err(err).Msg("metrics provider")
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()
		if metrics, err = observe.NewMetrics(provider.MeterProvider); err != nil {
			log.Fatal().Err(err).Msg("metrics instruments")
		}
		metricsHTTP = provider.Handler
	}

	var policy relay.Policy = relay.SimplePolicy{}
	if cfg.Policy == "drop" {
		policy = relay.LenientPolicy{}
	}
	hub := relay.NewHub(relay.NewRegistry(), relay.HubOptions{
		Policy:  policy,
		Limiter: relay.NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		Metrics: metrics,
	})

	r := relay.SetupRouter(ctx, cfg, hub, metricsHTTP)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("peercall relay started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
