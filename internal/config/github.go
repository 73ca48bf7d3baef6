package config

import (
	"context"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/yourorg/release-relay/internal/checker"
	"github.com/yourorg/release-relay/internal/github"
	"github.com/yourorg/release-relay/internal/model"
)

// Release sources
const (
	SourceAPI  = "api"
	SourceAtom = "atom"
)

// GitHub holds the watched repository and how to read its releases
type GitHub struct {
	Owner    string
	Repo     string
	Token    string `masq:"secret"`
	Source   string
	BaseURL  string
	PageSize int
}

// Flags returns CLI flags for GitHub configuration
func (c *GitHub) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repo-owner",
			Usage:       "Owner of the watched repository",
			Destination: &c.Owner,
			Sources:     cli.EnvVars("RELAY_REPO_OWNER"),
		},
		&cli.StringFlag{
			Name:        "repo-name",
			Usage:       "Name of the watched repository",
			Destination: &c.Repo,
			Sources:     cli.EnvVars("RELAY_REPO_NAME"),
		},
		&cli.StringFlag{
			Name:        "github-token",
			Usage:       "GitHub token (optional, raises the API rate limit)",
			Destination: &c.Token,
			Sources:     cli.EnvVars("RELAY_GITHUB_TOKEN", "GITHUB_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "github-source",
			Usage:       "Release source (api, atom)",
			Value:       SourceAPI,
			Destination: &c.Source,
			Sources:     cli.EnvVars("RELAY_GITHUB_SOURCE"),
		},
		&cli.StringFlag{
			Name:        "github-base-url",
			Usage:       "GitHub API root (api source) or site root (atom source)",
			Destination: &c.BaseURL,
			Sources:     cli.EnvVars("RELAY_GITHUB_BASE_URL"),
		},
		&cli.IntFlag{
			Name:        "page-size",
			Usage:       "Releases fetched per cycle",
			Value:       checker.DefaultPageSize,
			Destination: &c.PageSize,
			Sources:     cli.EnvVars("RELAY_PAGE_SIZE"),
		},
	}
}

// Validate checks required fields
func (c *GitHub) Validate() error {
	if c.Owner == "" || c.Repo == "" {
		return goerr.New("repo-owner and repo-name are required")
	}
	switch c.Source {
	case SourceAPI, SourceAtom:
	default:
		return goerr.New("invalid github-source", goerr.V("source", c.Source))
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		return goerr.New("page-size must be between 1 and 100", goerr.V("page_size", c.PageSize))
	}
	return nil
}

// FullName returns owner/repo
func (c *GitHub) FullName() string {
	return c.Owner + "/" + c.Repo
}

// RepoURL returns the repository web URL
func (c *GitHub) RepoURL() string {
	return "https://github.com/" + c.FullName()
}

// ReleaseSource is what the loop and the one-off commands read releases from
type ReleaseSource interface {
	checker.Source
	GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*model.Release, error)
}

// NewSource builds the configured release source
func (c *GitHub) NewSource(client *http.Client) (ReleaseSource, error) {
	switch c.Source {
	case SourceAtom:
		return github.NewFeedSource(client, strings.TrimSuffix(c.BaseURL, "/")), nil
	default:
		opts := []github.ClientOption{github.WithToken(c.Token)}
		if c.BaseURL != "" {
			opts = append(opts, github.WithBaseURL(c.BaseURL))
		}
		src, err := github.New(client, opts...)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
