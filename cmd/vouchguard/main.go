package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/biz/usecase"
	"github.com/vouchguard/vouchguard/internal/conf"
	"github.com/vouchguard/vouchguard/internal/data"
	"github.com/vouchguard/vouchguard/internal/infra/ethos"
	"github.com/vouchguard/vouchguard/internal/infra/feishu"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
	"github.com/vouchguard/vouchguard/internal/infra/telegram"
	"github.com/vouchguard/vouchguard/internal/infra/triage"
	"github.com/vouchguard/vouchguard/internal/infra/webhook"
	"github.com/vouchguard/vouchguard/internal/server"
	"github.com/vouchguard/vouchguard/internal/service"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logg.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open persistence
	store, err := data.NewStore(ctx, cfg.Store.DatabaseURL, cfg.Store.DBPath)
	if err != nil {
		logg.Error("failed to open store", "error", err)
		os.Exit(1)
	}

	// Trust-network API client
	ethosClient := ethos.NewClient(cfg.Ethos.BaseURL, logg)

	credUC := usecase.NewCredentialUsecase(store.Credentials, ethosClient, logg)
	if err := credUC.Bootstrap(ctx, cfg.Ethos.SessionToken); err != nil {
		logg.Error("credential bootstrap failed", "error", err)
		os.Exit(1)
	}

	// Notification channels, each optional
	var notifiers []repo.Notifier
	var tgBot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		tgBot, err = telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logg)
		if err != nil {
			logg.Error("telegram init failed", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, tgBot)
	}
	if cfg.Feishu.AppID != "" {
		notifiers = append(notifiers, feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.ChatID, logg))
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, webhook.NewClient(cfg.Webhook.URL, logg))
	}
	if !cfg.HasAlertChannel() {
		logg.Warn("no alert channel configured; alerts will be recorded but not delivered")
	}

	configured := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		configured = append(configured, n.Name())
		if err := store.Channels.Ensure(ctx, n.Name()); err != nil {
			logg.Warn("channel config init failed", "channel", n.Name(), "error", err)
		}
	}

	// LLM triage is optional; without a key alerts go out unannotated
	var triageRepo repo.TriageRepo
	if cfg.OpenAI.APIKey != "" {
		triageRepo = triage.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, logg)
		logg.Info("llm triage enabled", "model", cfg.OpenAI.Model)
	}
	triageUC := usecase.NewTriageUsecase(triageRepo, logg)

	// Usecase layer
	defenseUC := usecase.NewDefenseUsecase(ethosClient, store.Defenses, store.Alerts, credUC, logg)
	dispatchUC := usecase.NewDispatchUsecase(notifiers, store.Alerts, store.Channels, triageUC, defenseUC,
		usecase.DefaultDispatchConfig(), logg)
	monitorUC := usecase.NewMonitorUsecase(ethosClient, store.Relationships, store.Activities,
		store.Defenses, store.Alerts, store.Cycles, dispatchUC, defenseUC, cfg.ToMonitorConfig(), logg)

	// The bot needs the dispatcher for button callbacks, and the dispatcher
	// needs the bot as a channel, so the handler is wired in afterwards
	if tgBot != nil {
		tgBot.SetHandler(dispatchUC)
		go tgBot.Start(ctx)
	}

	// Background services
	scheduler := service.NewCycleScheduler(monitorUC, cfg.Monitor.Interval(), cfg.Monitor.WarmupDelay(), logg)
	scheduler.Start(ctx)

	watchdog := service.NewCredentialWatchdog(credUC, dispatchUC, logg)
	watchdog.Start(ctx)

	// Dashboard HTTP API
	srv := server.NewServer(store.Relationships, store.Activities, store.Alerts, store.Defenses,
		store.Cycles, store.Channels, ethosClient, monitorUC, defenseUC, credUC,
		configured, cfg.Monitor.Interval(), cfg.API.Port, logg)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logg.Info("shutting down")
		scheduler.Stop()
		watchdog.Stop()
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logg.Warn("api server shutdown failed", "error", err)
		}
		if err := store.Close(); err != nil {
			logg.Warn("store close failed", "error", err)
		}
		logg.Sync()
		os.Exit(0)
	}()

	logg.Info("vouchguard started",
		"operator", cfg.Ethos.OperatorKey,
		"interval", cfg.Monitor.Interval().String(),
		"channels", len(notifiers),
		"port", cfg.API.Port)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error("api server error", "error", err)
		os.Exit(1)
	}
}
