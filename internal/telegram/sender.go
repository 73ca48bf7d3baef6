package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/model"
)

// NewAPI connects to the Bot API. endpoint defaults to tgbotapi.APIEndpoint;
// client is usually a retrying client.
func NewAPI(token, endpoint string, client *http.Client) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create telegram bot")
	}
	return api, nil
}

// Sender posts release messages to one chat or channel
type Sender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewSender creates a new Telegram sender
func NewSender(bot *tgbotapi.BotAPI, chatID int64, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{bot: bot, chatID: chatID, logger: logger}
}

// Create sends a new HTML message and returns its message id
func (s *Sender) Create(ctx context.Context, p model.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, preview := FormatHTML(p), hasImage(p)
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = !preview
	if kb := keyboard(p); kb != nil {
		msg.ReplyMarkup = kb
	}

	sent, err := s.bot.Send(msg)
	if err != nil {
		return "", goerr.Wrap(err, "failed to send telegram message",
			goerr.V("chat_id", s.chatID),
			goerr.V("permanent", isPermanentError(err)))
	}
	return strconv.Itoa(sent.MessageID), nil
}

// Update edits the text of an existing message. Telegram refuses edits that
// change nothing; that case counts as success.
func (s *Sender) Update(ctx context.Context, messageID string, p model.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := strconv.Atoi(messageID)
	if err != nil {
		return "", goerr.Wrap(err, "invalid telegram message id", goerr.V("message_id", messageID))
	}

	edit := tgbotapi.NewEditMessageText(s.chatID, id, FormatHTML(p))
	edit.ParseMode = tgbotapi.ModeHTML
	edit.DisableWebPagePreview = !hasImage(p)
	edit.ReplyMarkup = keyboard(p)

	if _, err := s.bot.Send(edit); err != nil {
		if isNotModified(err) {
			s.logger.Debug("Telegram message already up to date", "message_id", messageID)
			return messageID, nil
		}
		return "", goerr.Wrap(err, "failed to edit telegram message",
			goerr.V("chat_id", s.chatID),
			goerr.V("message_id", messageID),
			goerr.V("permanent", isPermanentError(err)))
	}
	return messageID, nil
}

func hasImage(p model.Payload) bool {
	e := p.Embed()
	return e != nil && e.Image != nil
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

// isPermanentError checks if a Telegram API error is permanent and shouldn't be retried
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// These errors indicate permanent issues that won't be fixed by retrying
	permanentErrors := []string{
		"chat not found",
		"bot was blocked by the user",
		"user is deactivated",
		"text must be encoded in utf-8",
		"message is too long",
		"bad request: can't parse entities",
		"message to edit not found",
		"forbidden",
	}

	for _, permErr := range permanentErrors {
		if strings.Contains(errStr, permErr) {
			return true
		}
	}

	return false
}
