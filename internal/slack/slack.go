// Package slack delivers messages to a Slack channel as a bot user.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/yourorg/release-relay/internal/model"
	"github.com/yourorg/release-relay/internal/render"
)

// MentionFormat pings a user group
const MentionFormat = "<!subteam^%s>"

// Limits returns the ceilings used for Slack messages. Attachment text beyond
// a few thousand characters is collapsed by clients.
func Limits() render.Limits {
	return render.Limits{Content: 2000, Title: 256, Description: 3000, Total: 4000}
}

var (
	linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

// Client posts and updates messages in one channel
type Client struct {
	api       *slack.Client
	channelID string
	logger    *slog.Logger
}

// Option configures a Client
type Option func(*options)

type options struct {
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithAPIURL overrides the Slack API root
func WithAPIURL(u string) Option {
	return func(o *options) {
		o.apiURL = u
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a Slack client for channelID
func New(token, channelID string, opts ...Option) (*Client, error) {
	if token == "" || channelID == "" {
		return nil, goerr.New("slack token and channel are required")
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	var apiOpts []slack.Option
	if o.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(o.apiURL))
	}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, slack.OptionHTTPClient(o.httpClient))
	}

	return &Client{
		api:       slack.New(token, apiOpts...),
		channelID: channelID,
		logger:    o.logger,
	}, nil
}

// Create posts a new message and returns its timestamp, which Slack uses as the message id
func (c *Client) Create(ctx context.Context, p model.Payload) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, c.channelID, messageOptions(p)...)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post slack message", goerr.V("channel", c.channelID))
	}
	return ts, nil
}

// Update replaces an existing message
func (c *Client) Update(ctx context.Context, messageID string, p model.Payload) (string, error) {
	_, ts, _, err := c.api.UpdateMessageContext(ctx, c.channelID, messageID, messageOptions(p)...)
	if err != nil {
		return "", goerr.Wrap(err, "failed to update slack message",
			goerr.V("channel", c.channelID),
			goerr.V("ts", messageID))
	}
	if ts == "" {
		ts = messageID
	}
	return ts, nil
}

func messageOptions(p model.Payload) []slack.MsgOption {
	opts := []slack.MsgOption{
		slack.MsgOptionText(p.Content, false),
	}
	if att := Attachment(p); att != nil {
		opts = append(opts, slack.MsgOptionAttachments(*att))
	}
	return opts
}

// Attachment converts the payload embed into a coloured legacy attachment
func Attachment(p model.Payload) *slack.Attachment {
	embed := p.Embed()
	if embed == nil {
		return nil
	}

	att := &slack.Attachment{
		Color:      fmt.Sprintf("#%06x", embed.Color),
		Title:      embed.Title,
		TitleLink:  embed.URL,
		Text:       Mrkdwn(embed.Description),
		Fallback:   embed.Title,
		MarkdownIn: []string{"text"},
	}
	if embed.Footer != nil {
		att.Footer = embed.Footer.Text
		att.FooterIcon = embed.Footer.IconURL
	}
	if embed.Image != nil {
		att.ImageURL = embed.Image.URL
	}
	for _, btn := range p.LinkButtons() {
		att.Actions = append(att.Actions, slack.AttachmentAction{
			Type: "button",
			Text: btn.Label,
			URL:  btn.URL,
		})
	}
	return att
}

// Mrkdwn converts the renderer's markdown subset into Slack mrkdwn
func Mrkdwn(s string) string {
	s = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
	s = linkRe.ReplaceAllString(s, "<$2|$1>")
	s = boldRe.ReplaceAllString(s, "*$1*")
	return s
}
