package checker_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/yourorg/release-relay/internal/checker"
	"github.com/yourorg/release-relay/internal/ledger"
	"github.com/yourorg/release-relay/internal/model"
	"github.com/yourorg/release-relay/internal/render"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Add(d time.Duration) { c.now = c.now.Add(d) }

type mockSource struct {
	releases []model.Release
	err      error
	calls    int
}

func (m *mockSource) ListReleases(ctx context.Context, owner, repo string, page, perPage int) ([]model.Release, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.releases, nil
}

type call struct {
	messageID string
	content   string
	payload   model.Payload
}

type mockTransport struct {
	creates []call
	updates []call
	fail    map[string]bool // keyed by payload content
	nextID  int
}

func (m *mockTransport) Create(ctx context.Context, p model.Payload) (string, error) {
	if m.fail[p.Content] {
		return "", errors.New("400 Bad Request")
	}
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.creates = append(m.creates, call{messageID: id, content: p.Content, payload: p})
	return id, nil
}

func (m *mockTransport) Update(ctx context.Context, messageID string, p model.Payload) (string, error) {
	if m.fail[p.Content] {
		return "", errors.New("500 Internal Server Error")
	}
	m.updates = append(m.updates, call{messageID: messageID, content: p.Content, payload: p})
	return messageID, nil
}

func (m *mockTransport) createdContents() []string {
	var out []string
	for _, c := range m.creates {
		out = append(out, c.content)
	}
	return out
}

type mockAnnouncer struct {
	err error
}

func (m *mockAnnouncer) Applies(rel model.Release) bool { return true }

func (m *mockAnnouncer) Announcement(ctx context.Context, rel model.Release) (*model.Announcement, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.Announcement{URL: "https://blog.example.com/15", Description: "Widget 15 is here"}, nil
}

type fixture struct {
	clock     *fakeClock
	source    *mockSource
	transport *mockTransport
	ledger    *ledger.Ledger
	checker   *checker.Checker
	hooked    []error
}

func newFixture(t *testing.T, renderer checker.Renderer, opts ...checker.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:     &fakeClock{now: t0},
		source:    &mockSource{},
		transport: &mockTransport{fail: map[string]bool{}},
	}
	f.ledger = ledger.New(ledger.NewMemoryStore(), ledger.WithClock(f.clock.Now))
	if renderer == nil {
		renderer = render.New(render.Config{Owner: "acme", Repo: "widget"})
	}
	opts = append([]checker.Option{
		checker.WithClock(f.clock.Now),
		checker.WithErrorHook(func(ctx context.Context, err error) {
			f.hooked = append(f.hooked, err)
		}),
	}, opts...)
	f.checker = checker.New("acme", "widget", f.source, renderer, f.transport, f.ledger, opts...)
	return f
}

func release(tag string, published time.Time, body string) model.Release {
	return model.Release{
		Repo:        "acme/widget",
		Tag:         tag,
		PublishedAt: &published,
		URL:         "https://github.com/acme/widget/releases/tag/" + tag,
		Body:        body,
		Author:      model.Author{Login: "octocat"},
	}
}

func TestCheckOnce_OldestFirst(t *testing.T) {
	f := newFixture(t, nil)
	a := release("v1.0.0", t0.Add(2*time.Minute), "Fixes #1")
	b := release("v1.0.0-rc.1", t0.Add(time.Minute), "")
	b.Prerelease = true
	f.source.releases = []model.Release{a, b}
	f.clock.Add(5 * time.Minute)

	gt.NoError(t, f.checker.CheckOnce(context.Background()))

	gt.Equal(t, f.transport.createdContents(), []string{
		"New prerelease: v1.0.0-rc.1",
		"New release: v1.0.0",
	})
	gt.Equal(t, f.ledger.Watermark(), t0.Add(5*time.Minute))

	cycle := f.checker.LastCycle()
	gt.Value(t, cycle).NotNil()
	gt.Equal(t, cycle.Created, 2)
	gt.Number(t, len(cycle.ID)).Greater(0)
}

func TestCheckOnce_UnchangedReleaseIsDeliveredOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.source.releases = []model.Release{release("v1.0.0", t0.Add(time.Minute), "Fixes #1")}
	f.clock.Add(5 * time.Minute)
	ctx := context.Background()

	gt.NoError(t, f.checker.CheckOnce(ctx))
	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))

	gt.A(t, f.transport.creates).Length(1)
	gt.A(t, f.transport.updates).Length(0)
	gt.Equal(t, f.checker.LastCycle().Unchanged, 1)
}

func TestCheckOnce_EditedReleaseIsUpdated(t *testing.T) {
	f := newFixture(t, nil)
	rel := release("v1.0.0", t0.Add(time.Minute), "Fixes #1")
	f.source.releases = []model.Release{rel}
	f.clock.Add(5 * time.Minute)
	ctx := context.Background()

	gt.NoError(t, f.checker.CheckOnce(ctx))

	rel.Body = "Fixes #1 and #2"
	f.source.releases = []model.Release{rel}
	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))

	gt.A(t, f.transport.updates).Length(1)
	gt.Equal(t, f.transport.updates[0].messageID, "msg-1")
	gt.String(t, f.transport.updates[0].payload.Embed().Description).Contains("pull/2")
}

func TestCheckOnce_FailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, nil)
	older := release("v1.0.0", t0.Add(time.Minute), "old")
	newer := release("v1.1.0", t0.Add(2*time.Minute), "new")
	f.source.releases = []model.Release{newer, older}
	f.transport.fail["New release: v1.0.0"] = true
	f.clock.Add(5 * time.Minute)
	ctx := context.Background()

	gt.NoError(t, f.checker.CheckOnce(ctx))

	gt.Equal(t, f.transport.createdContents(), []string{"New release: v1.1.0"})
	gt.Equal(t, f.checker.LastCycle().Failed, 1)
	gt.A(t, f.hooked).Length(1)
	gt.True(t, f.ledger.Watermark().Before(*older.PublishedAt))

	// the failed item is retried as a fresh create
	delete(f.transport.fail, "New release: v1.0.0")
	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))

	gt.Equal(t, f.transport.createdContents(), []string{"New release: v1.1.0", "New release: v1.0.0"})
	gt.A(t, f.transport.updates).Length(0)
	gt.Equal(t, f.ledger.Watermark(), f.clock.Now())
}

func TestCheckOnce_PersistentFailureDoesNotRepost(t *testing.T) {
	f := newFixture(t, nil)
	older := release("v1.0.0", t0.Add(time.Minute), "old")
	newer := release("v1.1.0", t0.Add(2*time.Minute), "new")
	f.source.releases = []model.Release{newer, older}
	f.transport.fail["New release: v1.0.0"] = true
	ctx := context.Background()

	for range 30 {
		f.clock.Add(time.Hour)
		gt.NoError(t, f.checker.CheckOnce(ctx))
	}

	gt.Equal(t, f.transport.createdContents(), []string{"New release: v1.1.0"})
	// retried hourly until it left the retry window, then given up
	gt.A(t, f.hooked).Length(24)
	gt.Equal(t, f.ledger.Watermark(), f.clock.Now())

	entries, err := f.ledger.Entries(ctx)
	gt.NoError(t, err)
	gt.A(t, entries).Length(0)
}

func TestCheckOnce_RetryWindow(t *testing.T) {
	f := newFixture(t, nil, checker.WithRetryWindow(2*time.Hour))
	rel := release("v1.0.0", t0.Add(time.Minute), "a")
	f.source.releases = []model.Release{rel}
	f.transport.fail["New release: v1.0.0"] = true
	ctx := context.Background()

	for range 4 {
		f.clock.Add(time.Hour)
		gt.NoError(t, f.checker.CheckOnce(ctx))
	}

	gt.A(t, f.hooked).Length(2)
	gt.Equal(t, f.checker.LastCycle().Eligible, 0)
}

func TestCheckOnce_CapDefersNewest(t *testing.T) {
	f := newFixture(t, nil, checker.WithMaxPerCycle(2))
	r1 := release("v1.0.0", t0.Add(1*time.Minute), "a")
	r2 := release("v1.1.0", t0.Add(2*time.Minute), "b")
	r3 := release("v1.2.0", t0.Add(3*time.Minute), "c")
	f.source.releases = []model.Release{r3, r2, r1}
	f.clock.Add(5 * time.Minute)
	ctx := context.Background()

	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.Equal(t, f.transport.createdContents(), []string{"New release: v1.0.0", "New release: v1.1.0"})
	gt.Equal(t, f.checker.LastCycle().Deferred, 1)

	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.Equal(t, f.transport.createdContents(), []string{
		"New release: v1.0.0",
		"New release: v1.1.0",
		"New release: v1.2.0",
	})
}

func TestCheckOnce_ListingFailureKeepsWatermark(t *testing.T) {
	f := newFixture(t, nil)
	f.source.err = errors.New("503 Service Unavailable")
	f.clock.Add(5 * time.Minute)

	err := f.checker.CheckOnce(context.Background())
	gt.Error(t, err)

	gt.Equal(t, f.ledger.Watermark(), t0)
	gt.A(t, f.hooked).Length(1)
	gt.String(t, f.checker.LastCycle().Error).Contains("503")
}

func TestCheckOnce_OldReleasesAreIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.source.releases = []model.Release{release("v0.9.0", t0.Add(-time.Hour), "old")}
	f.clock.Add(5 * time.Minute)

	gt.NoError(t, f.checker.CheckOnce(context.Background()))

	gt.A(t, f.transport.creates).Length(0)
	gt.Equal(t, f.checker.LastCycle().Eligible, 0)
}

func TestCheckOnce_ExpiredEntryIsNotUpdated(t *testing.T) {
	f := newFixture(t, nil)
	rel := release("v1.0.0", t0.Add(time.Minute), "Fixes #1")
	f.source.releases = []model.Release{rel}
	f.clock.Add(5 * time.Minute)
	ctx := context.Background()

	gt.NoError(t, f.checker.CheckOnce(ctx))

	// unchanged for a day: nothing is sent and the sweep drops the entry
	f.clock.Add(25 * time.Hour)
	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.Equal(t, f.checker.LastCycle().Unchanged, 1)
	gt.Equal(t, f.checker.LastCycle().Dropped, 1)

	rel.Body = "edited a day later"
	f.source.releases = []model.Release{rel}
	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))

	gt.A(t, f.transport.updates).Length(0)
	gt.A(t, f.transport.creates).Length(1)
	gt.Equal(t, f.checker.LastCycle().Eligible, 0)
}

func TestCheckOnce_EnrichmentFailureForcesUpdate(t *testing.T) {
	announcer := &mockAnnouncer{err: errors.New("404 Not Found")}
	renderer := render.New(
		render.Config{Owner: "acme", Repo: "widget", Style: render.StyleRich},
		render.WithAnnouncer(announcer),
	)
	f := newFixture(t, renderer)
	f.source.releases = []model.Release{release("v15.0.0", t0.Add(time.Minute), "changelog")}
	f.clock.Add(5 * time.Minute)
	ctx := context.Background()

	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.A(t, f.transport.creates).Length(1)

	// same content, still failing: nothing is sent until the refresh interval passed
	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.A(t, f.transport.updates).Length(0)
	gt.Equal(t, f.checker.LastCycle().Unchanged, 1)

	// then the update is sent anyway
	f.clock.Add(ledger.DefaultRefreshInterval)
	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.A(t, f.transport.updates).Length(1)
	gt.Equal(t, f.transport.updates[0].payload.Embed().Description, f.transport.creates[0].payload.Embed().Description)

	// enrichment succeeds: final update, flag cleared
	announcer.err = nil
	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.A(t, f.transport.updates).Length(2)
	gt.String(t, f.transport.updates[1].payload.Embed().Description).HasPrefix("Widget 15 is here")

	f.clock.Add(5 * time.Minute)
	gt.NoError(t, f.checker.CheckOnce(ctx))
	gt.A(t, f.transport.updates).Length(2)
	gt.Equal(t, f.checker.LastCycle().Unchanged, 1)
}

func TestCheckOnce_CancelledContextDefersRest(t *testing.T) {
	f := newFixture(t, nil)
	f.source.releases = []model.Release{release("v1.0.0", t0.Add(time.Minute), "a")}
	f.clock.Add(5 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gt.NoError(t, f.checker.CheckOnce(ctx))

	gt.A(t, f.transport.creates).Length(0)
	gt.Equal(t, f.checker.LastCycle().Deferred, 1)
	gt.True(t, f.ledger.Watermark().Before(t0.Add(time.Minute)))
}
