package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/biz/repo"
	"github.com/vouchguard/vouchguard/internal/conf"
	"github.com/vouchguard/vouchguard/internal/infra/feishu"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
	"github.com/vouchguard/vouchguard/internal/infra/telegram"
	"github.com/vouchguard/vouchguard/internal/infra/webhook"
)

// Sends one synthetic alert through every configured channel.
// Useful for verifying tokens and chat ids before going live.

func main() {
	godotenv.Load()
	cfg := conf.LoadFromEnv()

	log, err := logger.New("development")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var notifiers []repo.Notifier
	if cfg.Telegram.BotToken != "" {
		bot, err := telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, log)
		if err != nil {
			fmt.Printf("Error: telegram: %v\n", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, bot)
	}
	if cfg.Feishu.AppID != "" {
		notifiers = append(notifiers, feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.ChatID, log))
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, webhook.NewClient(cfg.Webhook.URL, log))
	}

	if len(notifiers) == 0 {
		fmt.Println("Error: no channel configured. Set TELEGRAM_BOT_TOKEN, FEISHU_APP_ID or ALERT_WEBHOOK_URL.")
		os.Exit(1)
	}

	payload := &domain.AlertPayload{
		Type:          domain.AlertNegativeReview,
		ActivityID:    0,
		TargetName:    "Test Target",
		TargetKey:     "address:0x0000000000000000000000000000000000000001",
		TargetAddress: "0x0000000000000000000000000000000000000001",
		AuthorName:    "Test Author",
		AuthorKey:     "address:0x0000000000000000000000000000000000000002",
		Score:         -1,
		Comment:       "This is a test alert from send-alert. No action needed.",
		ProfileURL:    "https://app.ethos.network",
		DashboardURL:  cfg.API.DashboardBaseURL,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, n := range notifiers {
		msgID, err := n.SendAlert(ctx, "test-alert", payload)
		if err != nil {
			fmt.Printf("%s: FAILED: %v\n", n.Name(), err)
			continue
		}
		fmt.Printf("%s: sent (message %s)\n", n.Name(), msgID)
	}
}
