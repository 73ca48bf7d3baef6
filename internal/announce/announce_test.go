package announce_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/yourorg/release-relay/internal/announce"
	"github.com/yourorg/release-relay/internal/model"
)

const page = `<!doctype html><html><head>
<meta property="og:description" content=" Widget 15 ships a new engine. ">
<meta property="og:image" content="https://blog.example.com/og/15.png">
<meta name="description" content="fallback">
</head><body>hello</body></html>`

func TestFetcher_Applies(t *testing.T) {
	f, err := announce.New("acme/widget", "https://blog.example.com/widget-{major}-{minor}", nil)
	gt.NoError(t, err)

	tests := []struct {
		name string
		rel  model.Release
		want bool
	}{
		{name: "patch zero", rel: model.Release{Repo: "acme/widget", Tag: "v15.1.0"}, want: true},
		{name: "no v prefix, mixed case repo", rel: model.Release{Repo: "Acme/Widget", Tag: "15.0.0"}, want: true},
		{name: "patch release", rel: model.Release{Repo: "acme/widget", Tag: "v15.1.2"}, want: false},
		{name: "prerelease flag", rel: model.Release{Repo: "acme/widget", Tag: "v15.0.0", Prerelease: true}, want: false},
		{name: "prerelease version", rel: model.Release{Repo: "acme/widget", Tag: "v15.0.0-canary.1"}, want: false},
		{name: "other project", rel: model.Release{Repo: "acme/other", Tag: "v15.0.0"}, want: false},
		{name: "not a version", rel: model.Release{Repo: "acme/widget", Tag: "nightly"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Equal(t, f.Applies(tt.rel), tt.want)
		})
	}
}

func TestFetcher_URL(t *testing.T) {
	f, err := announce.New("acme/widget", "https://blog.example.com/widget-{major}-{minor}?t={tag}", nil)
	gt.NoError(t, err)

	url, err := f.URL(model.Release{Tag: "v15.1.0"})
	gt.NoError(t, err)
	gt.Equal(t, url, "https://blog.example.com/widget-15-1?t=v15.1.0")
}

func TestFetcher_Announcement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/widget-15-0" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	f, err := announce.New("acme/widget", server.URL+"/widget-{major}-{minor}", server.Client())
	gt.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		ann, err := f.Announcement(context.Background(), model.Release{Repo: "acme/widget", Tag: "v15.0.0"})
		gt.NoError(t, err)
		gt.Equal(t, ann.Description, "Widget 15 ships a new engine.")
		gt.Equal(t, ann.ImageURL, "https://blog.example.com/og/15.png")
		gt.Equal(t, ann.URL, server.URL+"/widget-15-0")
	})

	t.Run("not published yet", func(t *testing.T) {
		_, err := f.Announcement(context.Background(), model.Release{Repo: "acme/widget", Tag: "v16.0.0"})
		gt.Error(t, err)
		gt.String(t, err.Error()).Contains("unexpected announcement status")
	})
}

func TestParse(t *testing.T) {
	t.Run("fallback description", func(t *testing.T) {
		ann, err := announce.Parse(strings.NewReader(`<html><head><meta name="description" content="plain"></head></html>`))
		gt.NoError(t, err)
		gt.Equal(t, ann.Description, "plain")
		gt.Equal(t, ann.ImageURL, "")
	})

	t.Run("no metadata", func(t *testing.T) {
		_, err := announce.Parse(strings.NewReader(`<html><body>nothing</body></html>`))
		gt.Error(t, err)
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := announce.New("widget", "https://x/{major}", nil)
	gt.Error(t, err)

	_, err = announce.New("acme/widget", "", nil)
	gt.Error(t, err)
}
