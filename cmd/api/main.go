package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/config"
	"github.com/maeumieum/counsel/backend/internal/handler"
	"github.com/maeumieum/counsel/backend/internal/logging"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/service/ai"
	"github.com/maeumieum/counsel/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(config.LogConfig{Level: "info", Format: "console"}, os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.New(cfg.Log, os.Stdout)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg("no .env file loaded, using process environment only")
	}

	topics := topic.NewMemoryStore(topic.Seed())

	provider, err := ai.NewProvider(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.AI.ResolveProvider()).Msg("failed to initialize AI provider")
	}
	logger.Info().Str("provider", provider.Name()).Msg("AI provider initialized")

	chatService := chat.NewService(topics, provider, logger, chat.WithApology(cfg.Turn.Apology))
	defer func() {
		if err := chatService.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("shutdown incomplete")
		}
	}()

	router := handler.NewRouter(logger, topics, chatService)

	startServer(ctx, logger, cfg.Server, router)
}

func startServer(ctx context.Context, logger zerolog.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("counseling backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
