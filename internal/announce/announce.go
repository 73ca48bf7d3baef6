// Package announce looks up the announcement page of a feature release and
// extracts its summary and preview image from the page metadata.
package announce

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/PuerkitoBio/goquery"
	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/model"
)

const maxPageBytes = 2 << 20

// Fetcher fetches announcement pages for the ".0" releases of one project.
// URLTemplate may contain {major}, {minor} and {tag} placeholders.
type Fetcher struct {
	http        *http.Client
	project     string
	urlTemplate string
	userAgent   string
}

// New creates a fetcher for project ("owner/name")
func New(project, urlTemplate string, client *http.Client) (*Fetcher, error) {
	if strings.Count(project, "/") != 1 {
		return nil, goerr.New("announcement project must be owner/name", goerr.V("project", project))
	}
	if urlTemplate == "" {
		return nil, goerr.New("announcement URL template is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		http:        client,
		project:     project,
		urlTemplate: urlTemplate,
		userAgent:   "release-relay/1.0",
	}, nil
}

// Applies reports whether rel is a stable release of the project with patch version 0
func (f *Fetcher) Applies(rel model.Release) bool {
	if rel.Prerelease || !strings.EqualFold(rel.Repo, f.project) {
		return false
	}
	v, err := semver.NewVersion(rel.Tag)
	if err != nil {
		return false
	}
	return v.Patch() == 0 && v.Prerelease() == ""
}

// URL returns the announcement page address for rel
func (f *Fetcher) URL(rel model.Release) (string, error) {
	v, err := semver.NewVersion(rel.Tag)
	if err != nil {
		return "", goerr.Wrap(err, "release tag is not a version", goerr.V("tag", rel.Tag))
	}
	return strings.NewReplacer(
		"{major}", strconv.FormatUint(v.Major(), 10),
		"{minor}", strconv.FormatUint(v.Minor(), 10),
		"{tag}", rel.Tag,
	).Replace(f.urlTemplate), nil
}

// Announcement fetches and parses the announcement page of rel
func (f *Fetcher) Announcement(ctx context.Context, rel model.Release) (*model.Announcement, error) {
	url, err := f.URL(rel)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("url", url))
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch announcement", goerr.V("url", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected announcement status",
			goerr.V("url", url),
			goerr.V("status", resp.StatusCode),
		)
	}

	ann, err := Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse announcement", goerr.V("url", url))
	}
	ann.URL = url
	return ann, nil
}

// Parse extracts description and image from HTML metadata tags
func Parse(r io.Reader) (*model.Announcement, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid HTML")
	}

	ann := &model.Announcement{
		Description: firstMeta(doc,
			`meta[property="og:description"]`,
			`meta[name="description"]`,
			`meta[name="twitter:description"]`,
		),
		ImageURL: firstMeta(doc,
			`meta[property="og:image"]`,
			`meta[name="twitter:image"]`,
		),
	}
	if ann.Description == "" {
		return nil, goerr.New("page has no description metadata")
	}
	return ann, nil
}

func firstMeta(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
