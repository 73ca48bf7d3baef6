package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/yourorg/release-relay/internal/render"
)

// Render holds message layout configuration
type Render struct {
	Style            string
	StableRoleID     string
	PrereleaseRoleID string
	CreditsMarker    string

	// AnnounceProject and AnnounceURL enable announcement enrichment for the rich style
	AnnounceProject string
	AnnounceURL     string
}

// Flags returns CLI flags for rendering
func (c *Render) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "style",
			Usage:       "Message style (embed, rich)",
			Value:       string(render.StyleEmbed),
			Destination: &c.Style,
			Sources:     cli.EnvVars("RELAY_STYLE"),
		},
		&cli.StringFlag{
			Name:        "stable-role-id",
			Usage:       "Role or group pinged for stable releases",
			Destination: &c.StableRoleID,
			Sources:     cli.EnvVars("RELAY_STABLE_ROLE_ID"),
		},
		&cli.StringFlag{
			Name:        "prerelease-role-id",
			Usage:       "Role or group pinged for prereleases",
			Destination: &c.PrereleaseRoleID,
			Sources:     cli.EnvVars("RELAY_PRERELEASE_ROLE_ID"),
		},
		&cli.StringFlag{
			Name:        "credits-marker",
			Usage:       "Text that starts the credits section of release notes",
			Value:       render.DefaultCreditsMarker,
			Destination: &c.CreditsMarker,
			Sources:     cli.EnvVars("RELAY_CREDITS_MARKER"),
		},
		&cli.StringFlag{
			Name:        "announce-project",
			Usage:       "owner/name whose .0 releases get an announcement lookup (rich style)",
			Destination: &c.AnnounceProject,
			Sources:     cli.EnvVars("RELAY_ANNOUNCE_PROJECT"),
		},
		&cli.StringFlag{
			Name:        "announce-url",
			Usage:       "Announcement page template, {major} {minor} and {tag} are replaced",
			Destination: &c.AnnounceURL,
			Sources:     cli.EnvVars("RELAY_ANNOUNCE_URL"),
		},
	}
}

// Validate checks the style and the enrichment pair
func (c *Render) Validate() error {
	switch render.Style(c.Style) {
	case render.StyleEmbed, render.StyleRich:
	default:
		return goerr.New("invalid style", goerr.V("style", c.Style))
	}
	if (c.AnnounceProject == "") != (c.AnnounceURL == "") {
		return goerr.New("announce-project and announce-url must be set together")
	}
	return nil
}

// Config returns the renderer configuration for owner/repo
func (c *Render) Config(owner, repo string) render.Config {
	return render.Config{
		Owner:            owner,
		Repo:             repo,
		CreditsMarker:    c.CreditsMarker,
		StableRoleID:     c.StableRoleID,
		PrereleaseRoleID: c.PrereleaseRoleID,
		Style:            render.Style(c.Style),
	}
}
