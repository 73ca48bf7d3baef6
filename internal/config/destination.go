package config

import (
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// Destination kinds
const (
	DestDiscordWebhook = "discord-webhook"
	DestDiscordBot     = "discord-bot"
	DestTelegram       = "telegram"
	DestSlack          = "slack"
)

// Destination is where release messages are posted
type Destination struct {
	Kind string

	DiscordWebhook   string `masq:"secret"`
	DiscordBotToken  string `masq:"secret"`
	DiscordChannelID string

	TelegramToken    string `masq:"secret"`
	TelegramChatID   int64
	TelegramAdminIDs string

	SlackToken   string `masq:"secret"`
	SlackChannel string
}

// Flags returns CLI flags for the destination
func (c *Destination) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "destination",
			Usage:       "Destination kind (discord-webhook, discord-bot, telegram, slack)",
			Value:       DestDiscordWebhook,
			Destination: &c.Kind,
			Sources:     cli.EnvVars("RELAY_DESTINATION"),
		},
		&cli.StringFlag{
			Name:        "discord-webhook",
			Usage:       "Discord webhook URL",
			Destination: &c.DiscordWebhook,
			Sources:     cli.EnvVars("RELAY_DISCORD_WEBHOOK", "DISCORD_WEBHOOK"),
		},
		&cli.StringFlag{
			Name:        "discord-bot-token",
			Usage:       "Discord bot token (discord-bot destination)",
			Destination: &c.DiscordBotToken,
			Sources:     cli.EnvVars("RELAY_DISCORD_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "discord-channel-id",
			Usage:       "Discord channel id (discord-bot destination)",
			Destination: &c.DiscordChannelID,
			Sources:     cli.EnvVars("RELAY_DISCORD_CHANNEL_ID"),
		},
		&cli.StringFlag{
			Name:        "telegram-token",
			Usage:       "Telegram bot token",
			Destination: &c.TelegramToken,
			Sources:     cli.EnvVars("RELAY_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN"),
		},
		&cli.Int64Flag{
			Name:        "telegram-chat-id",
			Usage:       "Telegram chat or channel id",
			Destination: &c.TelegramChatID,
			Sources:     cli.EnvVars("RELAY_TELEGRAM_CHAT_ID"),
		},
		&cli.StringFlag{
			Name:        "telegram-admin-ids",
			Usage:       "Comma separated Telegram user ids allowed to use /status and /forcecheck",
			Destination: &c.TelegramAdminIDs,
			Sources:     cli.EnvVars("RELAY_TELEGRAM_ADMIN_IDS"),
		},
		&cli.StringFlag{
			Name:        "slack-token",
			Usage:       "Slack bot token",
			Destination: &c.SlackToken,
			Sources:     cli.EnvVars("RELAY_SLACK_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-channel",
			Usage:       "Slack channel id",
			Destination: &c.SlackChannel,
			Sources:     cli.EnvVars("RELAY_SLACK_CHANNEL"),
		},
	}
}

// Validate checks that the selected destination is fully configured
func (c *Destination) Validate() error {
	switch c.Kind {
	case DestDiscordWebhook:
		if c.DiscordWebhook == "" {
			return goerr.New("discord-webhook is required")
		}
	case DestDiscordBot:
		if c.DiscordBotToken == "" || c.DiscordChannelID == "" {
			return goerr.New("discord-bot-token and discord-channel-id are required")
		}
	case DestTelegram:
		if c.TelegramToken == "" || c.TelegramChatID == 0 {
			return goerr.New("telegram-token and telegram-chat-id are required")
		}
		if _, err := c.AdminIDs(); err != nil {
			return err
		}
	case DestSlack:
		if c.SlackToken == "" || c.SlackChannel == "" {
			return goerr.New("slack-token and slack-channel are required")
		}
	default:
		return goerr.New("invalid destination", goerr.V("destination", c.Kind))
	}
	return nil
}

// AdminIDs parses the Telegram admin user list
func (c *Destination) AdminIDs() ([]int64, error) {
	return parseUserIDs(c.TelegramAdminIDs)
}

func parseUserIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	var ids []int64
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid telegram user id", goerr.V("id", part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
