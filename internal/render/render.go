// Package render turns a release into a bounded chat message payload.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yourorg/release-relay/internal/model"
)

// Style selects the message layout
type Style string

const (
	// StyleEmbed is a single embed with the changelog and a link footer
	StyleEmbed Style = "embed"
	// StyleRich adds a link button, announcement enrichment and the
	// credits-aware fallback when the changelog does not fit
	StyleRich Style = "rich"
)

const (
	StableColour     = 0x0072f7
	PrereleaseColour = 0xffb11a

	DefaultCreditsMarker = "Huge thanks to"
	DefaultMentionFormat = "<@&%s>"

	placeholderBody = "Release body not provided"
	longNotesNotice = "The full release notes are too long to show here, see GitHub for everything that changed."
)

// Limits are the size ceilings of the destination platform, in characters
type Limits struct {
	Content     int
	Title       int
	Description int
	Total       int
}

// DiscordLimits returns Discord's message and embed ceilings
func DiscordLimits() Limits {
	return Limits{Content: 2000, Title: 256, Description: 4096, Total: 6000}
}

// Config is the static configuration of a renderer
type Config struct {
	Owner            string
	Repo             string
	CreditsMarker    string
	StableRoleID     string
	PrereleaseRoleID string
	// MentionFormat is a fmt pattern turning a role id into a ping
	MentionFormat string
	Style         Style
	Limits        Limits
}

// Announcer looks up an external announcement for a release
type Announcer interface {
	Applies(rel model.Release) bool
	Announcement(ctx context.Context, rel model.Release) (*model.Announcement, error)
}

// Renderer renders releases. It keeps no state between calls.
type Renderer struct {
	cfg       Config
	announcer Announcer
	logger    *slog.Logger
}

// Option configures a Renderer
type Option func(*Renderer)

// WithAnnouncer enables announcement enrichment for the rich style
func WithAnnouncer(a Announcer) Option {
	return func(r *Renderer) {
		r.announcer = a
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// New creates a renderer, filling unset config fields with defaults
func New(cfg Config, opts ...Option) *Renderer {
	if cfg.CreditsMarker == "" {
		cfg.CreditsMarker = DefaultCreditsMarker
	}
	if cfg.MentionFormat == "" {
		cfg.MentionFormat = DefaultMentionFormat
	}
	if cfg.Style == "" {
		cfg.Style = StyleEmbed
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DiscordLimits()
	}

	r := &Renderer{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render builds the message for a release. It never fails: missing fields are
// replaced with placeholders and a failed enrichment lookup only sets NeedsRefresh.
func (r *Renderer) Render(ctx context.Context, rel model.Release) model.Rendered {
	out := model.Rendered{Release: rel}

	content := truncate(r.messageContent(rel), r.cfg.Limits.Content)
	title := truncate(r.embedTitle(rel), r.cfg.Limits.Title)
	footer := r.footer(rel)

	embed := model.Embed{
		Title:  title,
		URL:    rel.URL,
		Color:  r.colour(rel),
		Footer: footer,
	}
	if rel.PublishedAt != nil && !rel.PublishedAt.IsZero() {
		embed.Timestamp = rel.PublishedAt.UTC().Format(time.RFC3339)
	}

	body := r.body(rel)
	if r.cfg.Style == StyleRich && r.announcer != nil && r.announcer.Applies(rel) {
		ann, err := r.announcer.Announcement(ctx, rel)
		if err != nil {
			r.logger.Warn("Announcement lookup failed, using changelog",
				"tag", rel.Tag,
				"error", err,
			)
			out.NeedsRefresh = true
		} else {
			body = ann.Description + "\n\n**[Read the announcement](" + ann.URL + ")**"
			if ann.ImageURL != "" {
				embed.Image = &model.EmbedImage{URL: ann.ImageURL}
			}
		}
	}

	linkFooter := ""
	if rel.URL != "" && r.cfg.Style == StyleEmbed {
		linkFooter = "\n\n**[View the release note on GitHub](" + rel.URL + ")**"
	}

	budget := r.budget(content, title, footer, linkFooter)
	if r.cfg.Style == StyleRich {
		embed.Description = r.fitWithCredits(body, rel, budget) + linkFooter
	} else {
		embed.Description = truncate(body, budget) + linkFooter
	}

	out.Payload = model.Payload{
		Content: content,
		Embeds:  []model.Embed{embed},
	}
	if r.cfg.Style == StyleRich && rel.URL != "" {
		out.Payload.Components = []model.Component{{
			Type: model.ComponentActionRow,
			Components: []model.Component{{
				Type:  model.ComponentButton,
				Style: model.ButtonStyleLink,
				Label: "View on GitHub",
				URL:   rel.URL,
			}},
		}}
	}

	serialized, err := out.Payload.Serialize()
	if err != nil {
		r.logger.Error("Failed to serialize payload", "tag", rel.Tag, "error", err)
	}
	out.Serialized = serialized
	return out
}

// BodyBudget returns how many characters of release body fit in the message
func (r *Renderer) BodyBudget(rel model.Release) int {
	linkFooter := ""
	if rel.URL != "" && r.cfg.Style == StyleEmbed {
		linkFooter = "\n\n**[View the release note on GitHub](" + rel.URL + ")**"
	}
	return r.budget(
		truncate(r.messageContent(rel), r.cfg.Limits.Content),
		truncate(r.embedTitle(rel), r.cfg.Limits.Title),
		r.footer(rel),
		linkFooter,
	)
}

func (r *Renderer) budget(content, title string, footer *model.EmbedFooter, linkFooter string) int {
	fixed := runeLen(title) + runeLen(content)
	if footer != nil {
		fixed += runeLen(footer.Text)
	}
	budget := min(r.cfg.Limits.Description, r.cfg.Limits.Total-fixed) - runeLen(linkFooter)
	return max(budget, 0)
}

func (r *Renderer) repoURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", r.cfg.Owner, r.cfg.Repo)
}

func (r *Renderer) body(rel model.Release) string {
	raw := strings.TrimSpace(rel.Body)
	if raw == "" {
		raw = placeholderBody
	}
	return rewriteMarkdown(raw, r.repoURL(), r.cfg.CreditsMarker)
}

// fitWithCredits truncates body, but keeps the credits section intact when a
// plain cut would drop it entirely. When even the credits do not fit, a one-line
// contributor summary replaces the body.
func (r *Renderer) fitWithCredits(body string, rel model.Release, budget int) string {
	if runeLen(body) <= budget {
		return body
	}
	marker := r.cfg.CreditsMarker
	idx := strings.Index(body, marker)
	cut := truncate(body, budget)
	if idx < 0 || strings.Contains(cut, marker) {
		return cut
	}

	withCredits := longNotesNotice + "\n\n" + body[idx:]
	if runeLen(withCredits) <= budget {
		return withCredits
	}

	n := rel.Contributors
	if n == 0 {
		n = countContributors(rel.Body, marker)
	}
	return truncate(contributorSummary(n), budget)
}

func contributorSummary(n int) string {
	switch {
	case n <= 0:
		return longNotesNotice
	case n == 1:
		return "This release was made possible by 1 contributor, see GitHub for the full notes."
	default:
		return fmt.Sprintf("This release was made possible by %d contributors, see GitHub for the full notes.", n)
	}
}

func (r *Renderer) messageContent(rel model.Release) string {
	name := rel.DisplayName()
	if rel.Prerelease {
		if r.cfg.PrereleaseRoleID != "" {
			return fmt.Sprintf(r.cfg.MentionFormat, r.cfg.PrereleaseRoleID) + " " + name
		}
		return "New prerelease: " + name
	}
	if r.cfg.StableRoleID != "" {
		return fmt.Sprintf(r.cfg.MentionFormat, r.cfg.StableRoleID) + " " + name
	}
	return "New release: " + name
}

func (r *Renderer) embedTitle(rel model.Release) string {
	if rel.Prerelease {
		return "🚧 " + rel.DisplayName()
	}
	return "📦 " + rel.DisplayName()
}

func (r *Renderer) colour(rel model.Release) int {
	if rel.Prerelease {
		return PrereleaseColour
	}
	return StableColour
}

func (r *Renderer) footer(rel model.Release) *model.EmbedFooter {
	if rel.Author.Login == "" {
		return nil
	}
	return &model.EmbedFooter{
		Text:    "Released by @" + rel.Author.Login,
		IconURL: rel.Author.AvatarURL,
	}
}
