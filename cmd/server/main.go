package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/liveshare-oss/synccore/internal/carrier"
	"github.com/liveshare-oss/synccore/internal/config"
	"github.com/liveshare-oss/synccore/internal/domain"
	"github.com/liveshare-oss/synccore/internal/roles"
	"github.com/liveshare-oss/synccore/internal/sync"
	"github.com/liveshare-oss/synccore/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	sync.UpdateInterval = cfg.UpdateInterval
	sink := telemetry.NewZerologSink(log.Logger)
	sync.SetTelemetrySink(sink)

	lookup := roles.NewJWTLookup([]byte(cfg.Secret))
	verifier := roles.NewVerifier(lookup, cfg.RoleCacheTTL)

	hub := carrier.NewHub()
	router := carrier.SetupRouter(carrier.RouterConfig{
		Secret:     cfg.Secret,
		Hub:        hub,
		Lookup:     lookup,
		Verifier:   verifier,
		DefaultSet: domain.NewRoleSet(domain.RoleAttendee),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Info().Str("addr", addr).Msg("synccore demo server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
