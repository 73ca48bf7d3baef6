package cli

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/announce"
	"github.com/yourorg/release-relay/internal/checker"
	"github.com/yourorg/release-relay/internal/config"
	"github.com/yourorg/release-relay/internal/db"
	"github.com/yourorg/release-relay/internal/discord"
	"github.com/yourorg/release-relay/internal/httpretry"
	"github.com/yourorg/release-relay/internal/ledger"
	"github.com/yourorg/release-relay/internal/render"
	"github.com/yourorg/release-relay/internal/slack"
	"github.com/yourorg/release-relay/internal/telegram"
)

const (
	sourceTimeout    = 15 * time.Second
	transportTimeout = 15 * time.Second
	maxRetries       = 3
)

// destination is a built transport plus what the renderer needs to know about it
type destination struct {
	transport checker.Transport
	// telegramAPI is set for the telegram destination; the admin bot shares it
	telegramAPI *tgbotapi.BotAPI
}

// platform returns the size limits and mention pattern of a destination kind
func platform(kind string) (render.Limits, string) {
	switch kind {
	case config.DestTelegram:
		return telegram.Limits(), telegram.MentionFormat
	case config.DestSlack:
		return slack.Limits(), slack.MentionFormat
	default:
		return render.DiscordLimits(), render.DefaultMentionFormat
	}
}

func newDestination(cfg config.Destination, logger *slog.Logger) (*destination, error) {
	client := httpretry.Client(transportTimeout, maxRetries)

	switch cfg.Kind {
	case config.DestDiscordWebhook:
		c, err := discord.NewWebhook(cfg.DiscordWebhook, discord.WithHTTPClient(client), discord.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &destination{transport: c}, nil

	case config.DestDiscordBot:
		c, err := discord.NewChannel(cfg.DiscordBotToken, cfg.DiscordChannelID, discord.WithHTTPClient(client), discord.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &destination{transport: c}, nil

	case config.DestTelegram:
		api, err := telegram.NewAPI(cfg.TelegramToken, "", client)
		if err != nil {
			return nil, err
		}
		return &destination{
			transport:   telegram.NewSender(api, cfg.TelegramChatID, logger),
			telegramAPI: api,
		}, nil

	case config.DestSlack:
		c, err := slack.New(cfg.SlackToken, cfg.SlackChannel, slack.WithHTTPClient(client), slack.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return &destination{transport: c}, nil
	}

	return nil, goerr.New("invalid destination", goerr.V("destination", cfg.Kind))
}

func newRenderer(cfg config.Render, gh config.GitHub, kind string, client *http.Client, logger *slog.Logger) (*render.Renderer, error) {
	rc := cfg.Config(gh.Owner, gh.Repo)
	rc.Limits, rc.MentionFormat = platform(kind)

	opts := []render.Option{render.WithLogger(logger)}
	if cfg.AnnounceProject != "" {
		fetcher, err := announce.New(cfg.AnnounceProject, cfg.AnnounceURL, client)
		if err != nil {
			return nil, err
		}
		opts = append(opts, render.WithAnnouncer(fetcher))
	}
	return render.New(rc, opts...), nil
}

// newLedger returns the ledger and a function releasing its store
func newLedger(ctx context.Context, cfg config.Loop) (*ledger.Ledger, func(), error) {
	if cfg.LedgerBackend != config.LedgerSQLite {
		return ledger.New(ledger.NewMemoryStore()), func() {}, nil
	}

	database, err := db.OpenMemory(ctx)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := database.Close(); err != nil {
			slog.Default().Warn("Failed to close ledger database", "error", err)
		}
	}
	return ledger.New(db.NewLedgerStore(database)), closer, nil
}
