// Package main is the entry point for the privileged cpupower helper.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pe200012/cpupower-gui-qml/internal/authz"
	"github.com/pe200012/cpupower-gui-qml/internal/config"
	"github.com/pe200012/cpupower-gui-qml/internal/engine"
	"github.com/pe200012/cpupower-gui-qml/internal/events"
	"github.com/pe200012/cpupower-gui-qml/internal/server"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// devAuthority grants every request. Only used in dev mode without polkit.
type devAuthority struct{}

func (devAuthority) CheckAuthorization(context.Context, authz.CheckRequest) (authz.Decision, error) {
	return authz.Decision{Authorized: true}, nil
}

func main() {
	cfg, err := config.LoadHelper()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.DevMode {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "cpupower-helper").Str("version", version).Logger()
	}

	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("version", version).Str("commit", commit).Str("build_date", buildDate).Msg("starting cpupower-helper")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var authority authz.Authority
	switch {
	case cfg.PolkitEnabled:
		polkit, polkitErr := authz.NewPolkitAuthority()
		if polkitErr != nil {
			logger.Fatal().Err(polkitErr).Msg("failed to connect to polkit")
		}
		defer polkit.Close()
		authority = polkit
	case cfg.DevMode:
		logger.Warn().Msg("DEV MODE ENABLED - polkit is bypassed and every caller is authorized; do not use in production")
		authority = devAuthority{}
	default:
		logger.Warn().Msg("polkit disabled; every mutation will be rejected")
	}
	gate := authz.NewGate(authority, authz.WithQueryTimeout(cfg.AuthTimeout))

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		natsPublisher, natsErr := events.NewNATSPublisher(events.NATSConfig{
			URL:           cfg.NATSURL,
			Name:          "cpupower-helper",
			SubjectPrefix: cfg.NATSSubjectPrefix,
			Stream:        events.StreamConfig{Name: cfg.NATSStream},
		})
		if natsErr != nil {
			logger.Fatal().Err(natsErr).Msg("failed to connect to NATS")
		}
		defer func() {
			if closeErr := natsPublisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to drain NATS connection")
			}
		}()
		publisher = natsPublisher
		logger.Info().Str("url", cfg.NATSURL).Str("stream", cfg.NATSStream).Msg("publishing mutation events")
	}

	idle := server.NewIdleTimer(cfg.IdleTimeout, nil)
	reader := sysfs.NewReader(cfg.SysfsRoot)
	eng := engine.New(reader, gate,
		engine.WithToucher(idle),
		engine.WithPublisher(publisher),
		engine.WithActionID(cfg.ActionID),
	)
	srv := server.New(eng, cfg, version, commit, buildDate, server.WithIdleTimer(idle))
	defer srv.Close()

	ln, err := server.Listen(cfg.SocketPath, cfg.SocketMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open helper socket")
	}

	// Calls may wait on an interactive authorization prompt, so the write
	// timeout outlasts the authority query timeout.
	httpServer := &http.Server{
		Handler:           srv.Router(),
		ConnContext:       server.ConnContext,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.AuthTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("socket", cfg.SocketPath).Dur("idle_timeout", cfg.IdleTimeout).Msg("helper listening")
		if serveErr := httpServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serving helper socket: %w", serveErr)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		case <-srv.IdleDone():
			logger.Info().Dur("idle_timeout", cfg.IdleTimeout).Msg("idle timeout reached")
		case <-srv.QuitRequested():
			logger.Info().Msg("quit requested")
		case <-gctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("shutting down helper: %w", shutdownErr)
		}
		return nil
	})
	srv.Start()

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("helper stopped with error")
		cancel()
		os.Exit(1)
	}
	logger.Info().Msg("helper stopped gracefully")
}
