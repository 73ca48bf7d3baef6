package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/yourorg/release-relay/internal/config"
	"github.com/yourorg/release-relay/internal/httpretry"
	"github.com/yourorg/release-relay/internal/model"
)

func cmdPreview() *cli.Command {
	var (
		fileCfg   config.File
		githubCfg config.GitHub
		destCfg   config.Destination
		renderCfg config.Render
		tag       string
		raw       bool
	)

	return &cli.Command{
		Name:  "preview",
		Usage: "Render one release and print it without delivering",
		Flags: concat(
			fileCfg.Flags(),
			githubCfg.Flags(),
			destCfg.Flags(),
			renderCfg.Flags(),
			[]cli.Flag{
				&cli.StringFlag{Name: "tag", Usage: "Release tag", Destination: &tag},
				&cli.BoolFlag{Name: "raw", Usage: "Print the serialized payload instead", Destination: &raw},
			},
		),
		Before: fileCfg.Before,
		Action: func(ctx context.Context, c *cli.Command) error {
			if tag == "" {
				return goerr.New("--tag is required")
			}
			if err := validate(&githubCfg, &renderCfg); err != nil {
				return err
			}

			rendered, err := renderTag(ctx, githubCfg, renderCfg, destCfg.Kind, tag)
			if err != nil {
				return err
			}
			if raw {
				_, err := fmt.Fprintln(os.Stdout, rendered.Serialized)
				return err
			}
			printRendered(os.Stdout, rendered)
			return nil
		},
	}
}

func cmdEdit() *cli.Command {
	var (
		fileCfg   config.File
		githubCfg config.GitHub
		destCfg   config.Destination
		renderCfg config.Render
		tag       string
		messageID string
	)

	return &cli.Command{
		Name:  "edit",
		Usage: "Re-render a release and overwrite an existing message",
		Flags: concat(
			fileCfg.Flags(),
			githubCfg.Flags(),
			destCfg.Flags(),
			renderCfg.Flags(),
			[]cli.Flag{
				&cli.StringFlag{Name: "tag", Usage: "Release tag", Destination: &tag},
				&cli.StringFlag{Name: "message-id", Usage: "Id of the message to overwrite", Destination: &messageID},
			},
		),
		Before: fileCfg.Before,
		Action: func(ctx context.Context, c *cli.Command) error {
			if tag == "" || messageID == "" {
				return goerr.New("--tag and --message-id are required")
			}
			if err := validate(&githubCfg, &destCfg, &renderCfg); err != nil {
				return err
			}

			rendered, err := renderTag(ctx, githubCfg, renderCfg, destCfg.Kind, tag)
			if err != nil {
				return err
			}
			dest, err := newDestination(destCfg, slog.Default())
			if err != nil {
				return goerr.Wrap(err, "failed to create destination")
			}
			id, err := dest.transport.Update(ctx, messageID, rendered.Payload)
			if err != nil {
				return goerr.Wrap(err, "failed to edit message", goerr.V("tag", tag), goerr.V("message_id", messageID))
			}

			color.New(color.FgGreen).Fprintf(os.Stdout, "Updated message %s with %s\n", id, tag)
			return nil
		},
	}
}

func renderTag(ctx context.Context, gh config.GitHub, rc config.Render, kind, tag string) (model.Rendered, error) {
	client := httpretry.Client(sourceTimeout, maxRetries)
	src, err := gh.NewSource(client)
	if err != nil {
		return model.Rendered{}, goerr.Wrap(err, "failed to create release source")
	}
	rel, err := src.GetReleaseByTag(ctx, gh.Owner, gh.Repo, tag)
	if err != nil {
		return model.Rendered{}, goerr.Wrap(err, "failed to fetch release", goerr.V("tag", tag))
	}
	renderer, err := newRenderer(rc, gh, kind, client, slog.Default())
	if err != nil {
		return model.Rendered{}, err
	}
	return renderer.Render(ctx, *rel), nil
}

func printRendered(w io.Writer, r model.Rendered) {
	label := color.New(color.FgHiBlack)
	title := color.New(color.FgCyan, color.Bold)

	label.Fprintln(w, "content")
	fmt.Fprintln(w, r.Payload.Content)

	if e := r.Payload.Embed(); e != nil {
		fmt.Fprintln(w)
		color.New(color.Attribute(30+ansiColour(e.Color)), color.Bold).Fprint(w, "▌ ")
		title.Fprintln(w, e.Title)
		if e.URL != "" {
			label.Fprintln(w, e.URL)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, e.Description)
		if e.Image != nil {
			label.Fprintf(w, "image: %s\n", e.Image.URL)
		}
		if e.Footer != nil {
			label.Fprintln(w, e.Footer.Text)
		}
	}

	for _, b := range r.Payload.LinkButtons() {
		color.New(color.FgBlue, color.Underline).Fprintf(w, "[%s] %s\n", b.Label, b.URL)
	}

	fmt.Fprintln(w)
	label.Fprintf(w, "%d bytes serialized", len(r.Serialized))
	if r.NeedsRefresh {
		color.New(color.FgYellow).Fprint(w, ", enrichment pending")
	}
	fmt.Fprintln(w)
}

// ansiColour maps an RGB embed colour to the nearest of the 8 basic ANSI colours
func ansiColour(rgb int) int {
	r, g, b := rgb>>16&0xff, rgb>>8&0xff, rgb&0xff
	idx := 0
	if r >= 0x80 {
		idx |= 1
	}
	if g >= 0x80 {
		idx |= 2
	}
	if b >= 0x80 {
		idx |= 4
	}
	return idx
}
