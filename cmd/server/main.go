package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/ghosttrack/internal/auth"
	"github.com/dennisdiepolder/ghosttrack/internal/config"
	"github.com/dennisdiepolder/ghosttrack/internal/feed"
	"github.com/dennisdiepolder/ghosttrack/internal/server"
	"github.com/dennisdiepolder/ghosttrack/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting ghosttrack server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.OIDCIssuer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token verification")
	}

	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	hub := feed.NewHub(log.Logger)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(cfg, store, hub, verifier),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stops the hub and closes feed connections
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newHandler(cfg *config.Server, store storage.Store, hub *feed.Hub, verifier *auth.Verifier) http.Handler {
	s := server.New(store, hub, cfg, log.Logger)
	return s.Routes(cfg, verifier, feed.NewHandler(hub, cfg, log.Logger))
}
