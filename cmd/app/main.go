package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"referral_gate_bot/internal/api"
	"referral_gate_bot/internal/middleware"
	"referral_gate_bot/internal/repository"
	"referral_gate_bot/internal/service"
	"referral_gate_bot/internal/telegram"
	"referral_gate_bot/pkg/auth"
	"referral_gate_bot/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	repo, err := repository.New(cfg.Storage)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	botAPI, err := telegram.NewBotAPI(cfg.Telegram)
	if err != nil {
		zapLogger.Fatal("Failed to initialize telegram bot", zap.Error(err))
	}
	if cfg.Referral.BotUsername == "" {
		cfg.Referral.BotUsername = botAPI.Self.UserName
	}

	client := telegram.NewClient(botAPI)
	events := service.NewEventFeed(0)
	dispatcher := service.NewDispatcher(client, events)

	svc := service.NewService(
		service.NewReferralService(repo, client, dispatcher, cfg.Referral),
		service.NewJoinRequestService(repo, client, cfg.Referral),
		service.NewStatsService(repo, cfg.Referral),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Enabled {
		router := api.NewRouter(api.Dependencies{
			Repo:      repo,
			Referrals: svc,
			Stats:     svc,
			Events:    events,
			Auth:      auth.NewTelegramAuth(cfg.Telegram.BotToken, cfg.Server.AuthDebug),
			Authz:     middleware.NewAuthorization(cfg.Referral.AdminUserID),
		})

		srv := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			zapLogger.Info("Starting server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLogger.Error("Server stopped", zap.Error(err))
				stop()
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zapLogger.Error("Failed to shut down server", zap.Error(err))
			}
		}()
	}

	bot := telegram.NewBot(botAPI, svc, svc, svc, cfg.Referral, cfg.Telegram.UpdateTimeout)
	if err := bot.Run(ctx); err != nil {
		zapLogger.Error("Bot stopped with error", zap.Error(err))
	}
}
