package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vouchguard/vouchguard/internal/biz/domain"
	"github.com/vouchguard/vouchguard/internal/infra/logger"
)

const maxCommentLen = 300

// ActionHandler resolves operator responses arriving from inline-keyboard
// callbacks. Wired after construction because the dispatcher that implements
// it is built with this bot as one of its channels.
type ActionHandler interface {
	HandleAction(ctx context.Context, action domain.AlertAction, alertID string, activityID int64) (string, error)
}

// Bot delivers alerts to a Telegram chat and feeds operator button presses
// back into the pipeline.
type Bot struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	handler ActionHandler
	log     *logger.Logger
}

// NewBot authenticates against the Bot API and resolves the target chat
func NewBot(token, chatIDStr string, log *logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatIDStr, err)
	}
	return &Bot{
		api:    api,
		chatID: chatID,
		log:    log.With("channel", "telegram"),
	}, nil
}

// Name identifies the channel
func (b *Bot) Name() string { return "telegram" }

// SetHandler wires the callback action handler
func (b *Bot) SetHandler(h ActionHandler) { b.handler = h }

// SendAlert delivers a formatted alert with inline actions and returns the
// Telegram message id
func (b *Bot) SendAlert(ctx context.Context, alertID string, p *domain.AlertPayload) (string, error) {
	msg := tgbotapi.NewMessage(b.chatID, formatAlert(p))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	var rows [][]tgbotapi.InlineKeyboardButton
	if p.Suggested != nil {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", encodeCallback(domain.ActionConfirm, alertID, p.ActivityID)),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", encodeCallback(domain.ActionEdit, alertID, p.ActivityID)),
			tgbotapi.NewInlineKeyboardButtonData("🙈 Ignore", encodeCallback(domain.ActionIgnore, alertID, p.ActivityID)),
		))
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🙈 Ignore", encodeCallback(domain.ActionIgnore, alertID, p.ActivityID)),
		))
	}
	if p.DashboardURL != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🛡 Open dashboard", p.DashboardURL),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)

	sent, err := b.api.Send(msg)
	if err != nil {
		return "", fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

// SendText delivers a plain operational notice
func (b *Bot) SendText(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram text: %w", err)
	}
	return nil
}

// Start runs the update loop until the context is cancelled. Only callback
// queries are consumed; everything else in the chat is ignored.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram update loop started", "bot", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery == nil {
				continue
			}
			b.handleCallback(ctx, update.CallbackQuery)
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	action, alertID, activityID, ok := decodeCallback(cb.Data)
	if !ok || b.handler == nil {
		b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
		return
	}

	ack, err := b.handler.HandleAction(ctx, action, alertID, activityID)
	if err != nil {
		b.log.Warn("callback action failed", "action", action.String(), "alert_id", alertID, "error", err)
		ack = "⚠️ " + truncate(err.Error(), 150)
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		b.log.Warn("failed to answer callback", "error", err)
	}

	// Remove the keyboard once the alert reached a terminal state so the
	// same button cannot fire twice. Edit keeps the buttons alive.
	if err == nil && (action == domain.ActionConfirm || action == domain.ActionIgnore) && cb.Message != nil {
		edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, err := b.api.Send(edit); err != nil {
			b.log.Warn("failed to clear keyboard", "error", err)
		}
	}
}

func formatAlert(p *domain.AlertPayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n\n", p.Title())
	fmt.Fprintf(&sb, "*Target:* %s (`%s`)\n", escapeMarkdown(p.TargetName), domain.ShortAddress(p.TargetAddress))
	if p.AuthorName != "" {
		fmt.Fprintf(&sb, "*From:* %s", escapeMarkdown(p.AuthorName))
		if p.AuthorAddress != "" {
			fmt.Fprintf(&sb, " (`%s`)", domain.ShortAddress(p.AuthorAddress))
		}
		sb.WriteString("\n")
	}
	if p.Type != domain.AlertUnvouch {
		fmt.Fprintf(&sb, "*Score:* %+d\n", p.Score)
	}
	if p.Comment != "" {
		fmt.Fprintf(&sb, "*Comment:* %s\n", escapeMarkdown(truncate(p.Comment, maxCommentLen)))
	}
	fmt.Fprintf(&sb, "\n[View profile](%s)\n", p.ProfileURL)
	if p.Suggested != nil {
		fmt.Fprintf(&sb, "\n*Suggested defense* (score %+d):\n_%s_\n",
			p.Suggested.Score, escapeMarkdown(p.Suggested.Comment))
	}
	if p.TriageNote != "" {
		fmt.Fprintf(&sb, "\n🤖 %s\n", escapeMarkdown(p.TriageNote))
	}
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
