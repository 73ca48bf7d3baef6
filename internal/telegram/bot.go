package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourorg/release-relay/internal/ledger"
)

// LedgerView is the read side of the delivery ledger
type LedgerView interface {
	Watermark() time.Time
	Entries(ctx context.Context) ([]ledger.Entry, error)
}

// JobRunner interface for triggering release checks
type JobRunner interface {
	TriggerCheck(ctx context.Context) error
}

// Bot handles Telegram admin commands
type Bot struct {
	api          *tgbotapi.BotAPI
	ledger       LedgerView
	jobRunner    JobRunner
	allowedUsers map[int64]bool
	logger       *slog.Logger
}

// NewBot creates a new bot instance. Only users in allowedUserIDs get answers.
func NewBot(api *tgbotapi.BotAPI, view LedgerView, jobRunner JobRunner, allowedUserIDs []int64, logger *slog.Logger) *Bot {
	allowedUsers := make(map[int64]bool)
	for _, id := range allowedUserIDs {
		allowedUsers[id] = true
	}

	return &Bot{
		api:          api,
		ledger:       view,
		jobRunner:    jobRunner,
		allowedUsers: allowedUsers,
		logger:       logger,
	}
}

// StartPolling starts polling for updates
func (b *Bot) StartPolling(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || !b.allowedUsers[message.From.ID] {
		return
	}

	if !message.IsCommand() {
		return
	}

	command := message.Command()
	b.logger.Info("Processing command",
		"command", command,
		"user_id", message.From.ID,
		"chat_id", message.Chat.ID)

	response := b.handleCommand(ctx, command)

	msg := tgbotapi.NewMessage(message.Chat.ID, response)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send command response", "command", command, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, command string) string {
	var response string
	var err error

	switch command {
	case "status":
		response, err = b.handleStatus(ctx)
	case "forcecheck":
		response, err = b.handleForceCheck(ctx)
	case "help", "start":
		response = helpText
	default:
		response = "Unknown command. Use /help for available commands."
	}

	if err != nil {
		b.logger.Error("Command execution failed", "command", command, "error", err)
		response = "❌ Error: " + html.EscapeString(err.Error())
	}
	return response
}

// handleStatus handles /status command
func (b *Bot) handleStatus(ctx context.Context) (string, error) {
	entries, err := b.ledger.Entries(ctx)
	if err != nil {
		return "", err
	}

	var response strings.Builder
	fmt.Fprintf(&response, "<b>Watermark:</b> %s\n", b.ledger.Watermark().UTC().Format(time.RFC3339))
	fmt.Fprintf(&response, "<b>Tracked messages:</b> %d\n", len(entries))

	for _, e := range entries {
		fmt.Fprintf(&response, "\n• <code>%s</code> → %s (updated %s)",
			html.EscapeString(e.Identity),
			html.EscapeString(e.MessageID),
			e.TouchedAt.UTC().Format("2006-01-02 15:04"))
		if e.NeedsRefresh {
			response.WriteString(" ⏳")
		}
	}

	return response.String(), nil
}

// handleForceCheck handles /forcecheck command
func (b *Bot) handleForceCheck(ctx context.Context) (string, error) {
	if b.jobRunner == nil {
		return "❌ Force check not available", nil
	}

	b.logger.Info("Manual release check triggered")
	if err := b.jobRunner.TriggerCheck(ctx); err != nil {
		return "", err
	}

	return "🔄 Manual release check started...", nil
}

const helpText = `<b>Available commands:</b>

/status - Show the watermark and the messages still kept in sync
/forcecheck - Manually trigger a release check
/help - Show this help message`
