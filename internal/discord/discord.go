// Package discord delivers messages through a webhook or as a bot in a channel.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/httpretry"
	"github.com/yourorg/release-relay/internal/model"
)

const (
	defaultAPIBase = "https://discord.com/api/v10"
	maxErrorBody   = 4 << 10
	maxReplyBody   = 1 << 20
)

// RejectedError is returned when Discord answers with a non-2xx status
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("discord rejected the request: status %d: %s", e.Status, e.Body)
}

// Client sends and edits messages. Exactly one of the webhook or channel
// targets is configured.
type Client struct {
	http   *http.Client
	logger *slog.Logger

	// webhook target
	webhookURL string

	// bot channel target
	apiBase   string
	botToken  string
	channelID string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the retrying default client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithAPIBase overrides https://discord.com/api/v10 for the channel target
func WithAPIBase(base string) Option {
	return func(cl *Client) {
		cl.apiBase = strings.TrimSuffix(base, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func newClient(opts []Option) *Client {
	c := &Client{
		http:    httpretry.Client(15*time.Second, 3),
		logger:  slog.Default(),
		apiBase: defaultAPIBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWebhook creates a client posting through an incoming webhook
func NewWebhook(webhookURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(webhookURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, goerr.New("invalid webhook URL", goerr.V("url", webhookURL))
	}
	c := newClient(opts)
	c.webhookURL = strings.TrimSuffix(webhookURL, "/")
	return c, nil
}

// NewChannel creates a client posting as a bot user into a channel
func NewChannel(botToken, channelID string, opts ...Option) (*Client, error) {
	if botToken == "" || channelID == "" {
		return nil, goerr.New("bot token and channel id are required")
	}
	c := newClient(opts)
	c.botToken = botToken
	c.channelID = channelID
	return c, nil
}

type messageResponse struct {
	ID string `json:"id"`
}

// Create posts a new message and returns its id
func (c *Client) Create(ctx context.Context, p model.Payload) (string, error) {
	return c.send(ctx, http.MethodPost, c.createURL(), p)
}

// Update replaces the content of an existing message. Discord keeps the id.
func (c *Client) Update(ctx context.Context, messageID string, p model.Payload) (string, error) {
	if messageID == "" {
		return "", goerr.New("message id is required for update")
	}
	return c.send(ctx, http.MethodPatch, c.messageURL(messageID), p)
}

func (c *Client) createURL() string {
	if c.webhookURL != "" {
		return c.webhookURL + "?wait=true&with_components=true"
	}
	return c.apiBase + "/channels/" + url.PathEscape(c.channelID) + "/messages"
}

func (c *Client) messageURL(id string) string {
	if c.webhookURL != "" {
		return c.webhookURL + "/messages/" + url.PathEscape(id) + "?with_components=true"
	}
	return c.apiBase + "/channels/" + url.PathEscape(c.channelID) + "/messages/" + url.PathEscape(id)
}

func (c *Client) send(ctx context.Context, method, target string, p model.Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.botToken != "" {
		req.Header.Set("Authorization", "Bot "+c.botToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", goerr.Wrap(err, "discord request failed", goerr.V("method", method))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return "", goerr.Wrap(err, "failed to read discord response")
		}
		return "", goerr.Wrap(&RejectedError{Status: resp.StatusCode, Body: string(raw)}, "discord returned an error",
			goerr.V("method", method),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(raw)))
	}

	// The reply echoes the whole message back, embeds included.
	var msg messageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBody)).Decode(&msg); err != nil {
		return "", goerr.Wrap(err, "failed to decode discord response", goerr.V("status", resp.StatusCode))
	}
	if msg.ID == "" {
		return "", goerr.New("discord response has no message id", goerr.V("status", resp.StatusCode))
	}

	c.logger.Debug("Discord message delivered", "method", method, "message_id", msg.ID)
	return msg.ID, nil
}
