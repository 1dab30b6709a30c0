// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/fetchkit/internal/config"
	"github.com/briangreenhill/fetchkit/internal/http/routes"
	"github.com/briangreenhill/fetchkit/internal/providers"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "fetchkit-api").Logger()

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

	p.Cache.Start()

	s := routes.New(routes.ServerOptions{
		Providers:  p,
		Log:        logger,
		AdminToken: cfg.AdminToken,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Strs("sources", p.Registry.List()).Msg("starting api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
