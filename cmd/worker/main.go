// cmd/worker runs the cache sweep against the persistent backends without
// serving HTTP, for hosts that only use the CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/fetchkit/internal/config"
	"github.com/briangreenhill/fetchkit/internal/providers"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "fetchkit-worker").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	logger = logger.Level(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := providers.Setup(ctx, cfg, providers.WithLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("setup providers")
	}
	defer p.Close()

	// clear whatever expired while nothing was running
	removed := p.Cache.Sweep(ctx)
	logger.Info().Int("removed", removed).Dur("interval", cfg.Cache.SweepInterval).Msg("worker running")

	p.Cache.Start()

	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return
		case <-ticker.C:
			st := p.Cache.Stats(ctx)
			logger.Info().
				Int("local", st.Local.Size).
				Int("session", st.Session.Size).
				Msg("cache size")
		}
	}
}
