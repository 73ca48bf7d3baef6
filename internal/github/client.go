// Package github lists releases of a repository, either through the REST API
// or through the public Atom feed.
package github

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/httpretry"
	"github.com/yourorg/release-relay/internal/model"
)

const userAgent = "release-relay/1.0"

// Client provides GitHub API functionality
type Client struct {
	gh *github.Client
}

// ClientOption configures a Client
type ClientOption func(*Client) error

// WithToken authenticates requests. Anonymous requests are rate limited harder.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if token != "" {
			c.gh = c.gh.WithAuthToken(token)
		}
		return nil
	}
}

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise or a test server
func WithBaseURL(base string) ClientOption {
	return func(c *Client) error {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return goerr.Wrap(err, "invalid GitHub base URL", goerr.V("url", base))
		}
		c.gh.BaseURL = u
		return nil
	}
}

// New creates a new GitHub client. httpClient may be nil, in which case a
// retrying client with a 10s timeout is used.
func New(httpClient *http.Client, opts ...ClientOption) (*Client, error) {
	if httpClient == nil {
		httpClient = httpretry.Client(10*time.Second, 3)
	}
	gh := github.NewClient(httpClient)
	gh.UserAgent = userAgent

	c := &Client{gh: gh}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ListReleases returns one page of published releases, most recent first
func (c *Client) ListReleases(ctx context.Context, owner, repo string, page, perPage int) ([]model.Release, error) {
	releases, _, err := c.gh.Repositories.ListReleases(ctx, owner, repo, &github.ListOptions{
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list releases",
			goerr.V("owner", owner),
			goerr.V("repo", repo),
			goerr.V("page", page))
	}

	fullName := owner + "/" + repo
	out := make([]model.Release, 0, len(releases))
	for _, r := range releases {
		// Skip drafts
		if r.GetDraft() {
			continue
		}
		out = append(out, toRelease(fullName, r))
	}
	return out, nil
}

// GetReleaseByTag fetches a single release
func (c *Client) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*model.Release, error) {
	r, _, err := c.gh.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return nil, goerr.Wrap(ErrReleaseNotFound, "no release for tag", goerr.V("tag", tag))
		}
		return nil, goerr.Wrap(err, "failed to get release",
			goerr.V("owner", owner),
			goerr.V("repo", repo),
			goerr.V("tag", tag))
	}
	if r.GetDraft() {
		return nil, goerr.Wrap(ErrReleaseNotFound, "release is a draft", goerr.V("tag", tag))
	}

	rel := toRelease(owner+"/"+repo, r)
	return &rel, nil
}
