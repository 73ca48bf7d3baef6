package telegram

import (
	"html"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/yourorg/release-relay/internal/model"
	"github.com/yourorg/release-relay/internal/render"
)

var (
	linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	boldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

// Limits returns Telegram's message ceilings. The 4096 limit applies to the
// text after HTML entities are parsed, so markup does not count.
func Limits() render.Limits {
	return render.Limits{Content: 1024, Title: 256, Description: 3800, Total: 4096}
}

// MentionFormat passes the configured ping target through as is, e.g. "@devs"
const MentionFormat = "%s"

// FormatHTML converts a payload into a Telegram HTML message body
func FormatHTML(p model.Payload) string {
	var b strings.Builder

	embed := p.Embed()
	if embed != nil && embed.Image != nil {
		// zero-width link makes Telegram show the image as the link preview
		b.WriteString(`<a href="` + html.EscapeString(embed.Image.URL) + `">&#8203;</a>`)
	}
	if p.Content != "" {
		b.WriteString(html.EscapeString(p.Content))
		b.WriteString("\n\n")
	}
	if embed == nil {
		return strings.TrimSpace(b.String())
	}

	title := html.EscapeString(embed.Title)
	if embed.URL != "" {
		title = `<a href="` + html.EscapeString(embed.URL) + `">` + title + `</a>`
	}
	b.WriteString("<b>" + title + "</b>")

	if embed.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(markdownToHTML(embed.Description))
	}
	if embed.Footer != nil && embed.Footer.Text != "" {
		b.WriteString("\n\n<i>" + html.EscapeString(embed.Footer.Text) + "</i>")
	}
	return strings.TrimSpace(b.String())
}

func markdownToHTML(s string) string {
	s = html.EscapeString(s)
	s = linkRe.ReplaceAllString(s, `<a href="$2">$1</a>`)
	s = boldRe.ReplaceAllString(s, `<b>$1</b>`)
	return s
}

// keyboard turns link buttons into an inline keyboard, one button per row
func keyboard(p model.Payload) *tgbotapi.InlineKeyboardMarkup {
	buttons := p.LinkButtons()
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, btn := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(btn.Label, btn.URL)))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
