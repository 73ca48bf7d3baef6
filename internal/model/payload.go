package model

import "encoding/json"

// Payload is a chat message in the Discord webhook/channel message schema.
// Other transports convert it to their own format.
type Payload struct {
	Content    string      `json:"content"`
	Embeds     []Embed     `json:"embeds"`
	Components []Component `json:"components,omitempty"`
}

// Embed is the structured rich element of a message
type Embed struct {
	Title       string       `json:"title"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
}

type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

// Component types and button styles used by action rows
const (
	ComponentActionRow = 1
	ComponentButton    = 2
	ButtonStyleLink    = 5
)

// Component is an action row or a button inside it
type Component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	URL        string      `json:"url,omitempty"`
	Components []Component `json:"components,omitempty"`
}

// Embed returns the first embed, or nil
func (p *Payload) Embed() *Embed {
	if p == nil || len(p.Embeds) == 0 {
		return nil
	}
	return &p.Embeds[0]
}

// LinkButtons returns every link button of every action row
func (p *Payload) LinkButtons() []Component {
	var buttons []Component
	for _, row := range p.Components {
		for _, c := range row.Components {
			if c.Type == ComponentButton && c.Style == ButtonStyleLink {
				buttons = append(buttons, c)
			}
		}
	}
	return buttons
}

// Serialize returns the canonical JSON form used for change detection.
// Field order is fixed by the struct layout so equal payloads serialize byte-identically.
func (p *Payload) Serialize() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Rendered is the output of rendering one release
type Rendered struct {
	Release    Release
	Payload    Payload
	Serialized string

	// NeedsRefresh is set when an optional enrichment lookup failed and the
	// message should be re-rendered and re-sent on a later cycle.
	NeedsRefresh bool
}

// Announcement is the summary pulled from an external announcement page
type Announcement struct {
	URL         string
	Description string
	ImageURL    string
}
