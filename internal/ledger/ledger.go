// Package ledger remembers which chat message mirrors which release and decides
// whether a release needs a new message, an edit, or nothing.
package ledger

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/model"
)

const (
	DefaultRetention        = 24 * time.Hour
	DefaultRefreshRetention = 72 * time.Hour
	DefaultRefreshInterval  = 15 * time.Minute
)

// Action is the outcome of Decide
type Action int

const (
	ActionSkip Action = iota
	ActionCreate
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// Decision tells the caller what to do with a release
type Decision struct {
	Action    Action
	MessageID string
	// Forced is set for updates of entries waiting on a refresh; those are
	// delivered even when the payload did not change.
	Forced bool
}

// Entry tracks the message delivered for one release identity
type Entry struct {
	Identity     string    `json:"identity"`
	MessageID    string    `json:"message_id"`
	Serialized   string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	TouchedAt    time.Time `json:"touched_at"`
	NeedsRefresh bool      `json:"needs_refresh"`
}

// EntryStore holds ledger entries
type EntryStore interface {
	Get(ctx context.Context, identity string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, identity string) error
	List(ctx context.Context) ([]*Entry, error)
}

// Ledger is the process-local delivery state: entries plus the watermark.
// It is driven by one reconcile cycle at a time; the lock only guards reads
// from the admin surfaces.
type Ledger struct {
	store            EntryStore
	retention        time.Duration
	refreshRetention time.Duration
	refreshInterval  time.Duration
	now              func() time.Time

	mu        sync.RWMutex
	watermark time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithRetention sets how long an entry stays updatable after its last delivery
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) {
		l.retention = d
	}
}

// WithRefreshRetention sets how long entries waiting on a refresh are kept after their first delivery
func WithRefreshRetention(d time.Duration) Option {
	return func(l *Ledger) {
		l.refreshRetention = d
	}
}

// WithRefreshInterval sets the minimum time between two identical deliveries of
// an entry waiting on a refresh
func WithRefreshInterval(d time.Duration) Option {
	return func(l *Ledger) {
		l.refreshInterval = d
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithWatermark sets the initial watermark (default: construction time)
func WithWatermark(t time.Time) Option {
	return func(l *Ledger) {
		l.watermark = t
	}
}

// New creates a ledger backed by store
func New(store EntryStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:            store,
		retention:        DefaultRetention,
		refreshRetention: DefaultRefreshRetention,
		refreshInterval:  DefaultRefreshInterval,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.watermark.IsZero() {
		l.watermark = l.now()
	}
	return l
}

// Watermark returns the instant of the last completed cycle
func (l *Ledger) Watermark() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.watermark
}

// Advance moves the watermark forward to t. It never moves backwards.
func (l *Ledger) Advance(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.After(l.watermark) {
		l.watermark = t
	}
}

func (l *Ledger) isNew(rel model.Release) bool {
	return rel.PublishedOr(l.now()).After(l.Watermark())
}

// Eligible reports whether rel should be looked at this cycle: it was published
// after the watermark or it still has a live entry.
func (l *Ledger) Eligible(ctx context.Context, rel model.Release) (bool, error) {
	if l.isNew(rel) {
		return true, nil
	}
	entry, err := l.store.Get(ctx, rel.Tag)
	if err != nil {
		return false, goerr.Wrap(err, "failed to look up ledger entry", goerr.V("tag", rel.Tag))
	}
	return entry != nil, nil
}

// Decide returns create for new releases, update for releases with a live
// entry regardless of the watermark, and skip otherwise.
func (l *Ledger) Decide(ctx context.Context, rel model.Release) (Decision, error) {
	entry, err := l.store.Get(ctx, rel.Tag)
	if err != nil {
		return Decision{}, goerr.Wrap(err, "failed to look up ledger entry", goerr.V("tag", rel.Tag))
	}
	if entry != nil {
		return Decision{Action: ActionUpdate, MessageID: entry.MessageID, Forced: entry.NeedsRefresh}, nil
	}
	if l.isNew(rel) {
		return Decision{Action: ActionCreate}, nil
	}
	return Decision{Action: ActionSkip}, nil
}

// Unchanged reports whether r serializes byte-identically to what was last
// delivered for its release. Entries waiting on a refresh are re-sent anyway
// once the refresh interval has passed since their last delivery.
func (l *Ledger) Unchanged(ctx context.Context, r model.Rendered) (bool, error) {
	entry, err := l.store.Get(ctx, r.Release.Tag)
	if err != nil {
		return false, goerr.Wrap(err, "failed to look up ledger entry", goerr.V("tag", r.Release.Tag))
	}
	if entry == nil {
		return false, nil
	}
	if entry.NeedsRefresh && l.now().Sub(entry.TouchedAt) >= l.refreshInterval {
		return false, nil
	}
	return entry.Serialized == r.Serialized, nil
}

// Record stores a successful delivery of r as messageID
func (l *Ledger) Record(ctx context.Context, r model.Rendered, messageID string) error {
	now := l.now()
	entry, err := l.store.Get(ctx, r.Release.Tag)
	if err != nil {
		return goerr.Wrap(err, "failed to look up ledger entry", goerr.V("tag", r.Release.Tag))
	}
	created := now
	if entry != nil {
		created = entry.CreatedAt
	}

	if err := l.store.Put(ctx, &Entry{
		Identity:     r.Release.Tag,
		MessageID:    messageID,
		Serialized:   r.Serialized,
		CreatedAt:    created,
		TouchedAt:    now,
		NeedsRefresh: r.NeedsRefresh,
	}); err != nil {
		return goerr.Wrap(err, "failed to store ledger entry", goerr.V("tag", r.Release.Tag))
	}
	return nil
}

// Sweep drops entries whose last delivery is older than the retention window.
// Entries waiting on a refresh are instead kept until their first delivery is
// older than the refresh retention. It returns the number of dropped entries.
func (l *Ledger) Sweep(ctx context.Context, now time.Time) (int, error) {
	entries, err := l.store.List(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list ledger entries")
	}

	dropped := 0
	for _, e := range entries {
		expired := now.Sub(e.TouchedAt) > l.retention
		if e.NeedsRefresh {
			expired = now.Sub(e.CreatedAt) > l.refreshRetention
		}
		if !expired {
			continue
		}
		if err := l.store.Delete(ctx, e.Identity); err != nil {
			return dropped, goerr.Wrap(err, "failed to delete ledger entry", goerr.V("tag", e.Identity))
		}
		dropped++
	}
	return dropped, nil
}

// Entries returns a snapshot of the live entries, most recently touched first
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	entries, err := l.store.List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list ledger entries")
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return b.TouchedAt.Compare(a.TouchedAt)
	})
	return out, nil
}
