package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/PuerkitoBio/goquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/mmcdole/gofeed"

	"github.com/yourorg/release-relay/internal/httpretry"
	"github.com/yourorg/release-relay/internal/model"
)

// FeedSource reads releases from https://github.com/{owner}/{repo}/releases.atom.
// It needs no token, but the feed carries no prerelease flag, so prerelease is
// inferred from the semver pre-release part of the tag.
type FeedSource struct {
	parser  *gofeed.Parser
	baseURL string
}

// NewFeedSource creates a feed reader. baseURL defaults to https://github.com.
func NewFeedSource(httpClient *http.Client, baseURL string) *FeedSource {
	if httpClient == nil {
		httpClient = httpretry.Client(10*time.Second, 3)
	}
	if baseURL == "" {
		baseURL = "https://github.com"
	}
	parser := gofeed.NewParser()
	parser.Client = httpClient
	parser.UserAgent = userAgent
	return &FeedSource{
		parser:  parser,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// ListReleases returns the feed entries, most recent first. The feed is not
// paginated: any page after the first is empty.
func (f *FeedSource) ListReleases(ctx context.Context, owner, repo string, page, perPage int) ([]model.Release, error) {
	if page > 1 {
		return nil, nil
	}

	feedURL := fmt.Sprintf("%s/%s/%s/releases.atom", f.baseURL, owner, repo)
	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse release feed", goerr.V("url", feedURL))
	}

	fullName := owner + "/" + repo
	out := make([]model.Release, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		rel, ok := itemToRelease(fullName, item)
		if !ok {
			continue
		}
		out = append(out, rel)
		if perPage > 0 && len(out) == perPage {
			break
		}
	}
	return out, nil
}

// GetReleaseByTag scans the feed for tag
func (f *FeedSource) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*model.Release, error) {
	releases, err := f.ListReleases(ctx, owner, repo, 1, 0)
	if err != nil {
		return nil, err
	}
	for _, rel := range releases {
		if rel.Tag == tag {
			return &rel, nil
		}
	}
	return nil, goerr.Wrap(ErrReleaseNotFound, "tag not in release feed", goerr.V("tag", tag))
}

func itemToRelease(repo string, item *gofeed.Item) (model.Release, bool) {
	tag := tagFromLink(item.Link)
	if tag == "" {
		return model.Release{}, false
	}

	rel := model.Release{
		Repo:       repo,
		Tag:        tag,
		Name:       item.Title,
		URL:        item.Link,
		Body:       htmlToText(item.Content),
		Prerelease: isPrereleaseTag(tag),
	}
	if rel.Name == tag {
		rel.Name = ""
	}

	switch {
	case item.PublishedParsed != nil:
		t := *item.PublishedParsed
		rel.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := *item.UpdatedParsed
		rel.PublishedAt = &t
	}

	if item.Author != nil {
		rel.Author.Login = item.Author.Name
	}
	if thumbs := item.Extensions["media"]["thumbnail"]; len(thumbs) > 0 {
		rel.Author.AvatarURL = thumbs[0].Attrs["url"]
	}
	return rel, true
}

// tagFromLink extracts the tag from .../releases/tag/{tag}
func tagFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	dir, last := path.Split(u.Path)
	if !strings.HasSuffix(dir, "/releases/tag/") || last == "" {
		return ""
	}
	tag, err := url.PathUnescape(last)
	if err != nil {
		return last
	}
	return tag
}

func isPrereleaseTag(tag string) bool {
	v, err := semver.NewVersion(tag)
	if err != nil {
		return false
	}
	return v.Prerelease() != ""
}

// htmlToText flattens the rendered release notes back to plain text, one
// line per block element
func htmlToText(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}

	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre").Each(func(_ int, s *goquery.Selection) {
		// nested blocks are reported by their innermost element
		if s.Is("p") && s.ParentsFiltered("li").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch {
		case s.Is("li"):
			text = "- " + text
		case s.Is("h1, h2, h3, h4, h5, h6"):
			text = "**" + text + "**"
		}
		lines = append(lines, text)
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(lines, "\n")
}
