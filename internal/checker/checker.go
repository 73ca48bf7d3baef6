// Package checker runs the poll-and-reconcile cycle: list releases, render the
// ones the ledger still cares about, and create or update their messages.
package checker

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/ledger"
	"github.com/yourorg/release-relay/internal/model"
	"github.com/yourorg/release-relay/internal/scheduler"
)

// DefaultPageSize is the number of releases fetched per cycle
const DefaultPageSize = 10

// Source lists releases, most recent first
type Source interface {
	ListReleases(ctx context.Context, owner, repo string, page, perPage int) ([]model.Release, error)
}

// Transport creates and edits messages in the destination channel
type Transport interface {
	Create(ctx context.Context, p model.Payload) (string, error)
	Update(ctx context.Context, messageID string, p model.Payload) (string, error)
}

// Renderer turns a release into a payload
type Renderer interface {
	Render(ctx context.Context, rel model.Release) model.Rendered
}

// Ledger is the delivery state consulted and updated by each cycle
type Ledger interface {
	Watermark() time.Time
	Advance(t time.Time)
	Eligible(ctx context.Context, rel model.Release) (bool, error)
	Decide(ctx context.Context, rel model.Release) (ledger.Decision, error)
	Unchanged(ctx context.Context, r model.Rendered) (bool, error)
	Record(ctx context.Context, r model.Rendered, messageID string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// ErrorHook receives every per-item and listing failure
type ErrorHook func(ctx context.Context, err error)

// Cycle summarises one CheckOnce run
type Cycle struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Listed     int       `json:"listed"`
	Eligible   int       `json:"eligible"`
	Deferred   int       `json:"deferred"`
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Dropped    int       `json:"dropped"`
	Error      string    `json:"error,omitempty"`
}

// Checker owns one repository/destination pair
type Checker struct {
	owner     string
	repo      string
	source    Source
	renderer  Renderer
	transport Transport
	ledger    Ledger

	pageSize    int
	maxPerCycle int
	retryWindow time.Duration
	errorHook   ErrorHook
	logger      *slog.Logger
	now         func() time.Time

	mu   sync.RWMutex
	last *Cycle
}

// Option configures a Checker
type Option func(*Checker)

// WithPageSize sets how many releases are listed per cycle
func WithPageSize(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxPerCycle caps create and update calls per cycle. Releases left over
// are deferred to the next cycle, oldest first. 0 means unlimited.
func WithMaxPerCycle(n int) Option {
	return func(c *Checker) {
		c.maxPerCycle = max(n, 0)
	}
}

// WithRetryWindow bounds how long a failed create keeps being retried. It must
// not exceed the ledger retention: the watermark never trails the cycle start
// by more than this, so a release whose entry was swept cannot become new again.
func WithRetryWindow(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.retryWindow = d
		}
	}
}

// WithErrorHook reports failures, e.g. to an error tracker
func WithErrorHook(hook ErrorHook) Option {
	return func(c *Checker) {
		c.errorHook = hook
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// New creates a checker for owner/repo
func New(owner, repo string, source Source, renderer Renderer, transport Transport, l Ledger, opts ...Option) *Checker {
	c := &Checker{
		owner:       owner,
		repo:        repo,
		source:      source,
		renderer:    renderer,
		transport:   transport,
		ledger:      l,
		pageSize:    DefaultPageSize,
		retryWindow: ledger.DefaultRetention,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastCycle returns the summary of the most recent cycle, or nil before the first one
func (c *Checker) LastCycle() *Cycle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return nil
	}
	cycle := *c.last
	return &cycle
}

// Job adapts CheckOnce to the scheduler
func (c *Checker) Job() scheduler.Job {
	return func(ctx context.Context) {
		if err := c.CheckOnce(ctx); err != nil {
			c.logger.Error("Release check failed", "error", err)
		}
	}
}

// Run checks every interval until ctx is cancelled
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	scheduler.Start(ctx, c.logger, interval, c.Job())
}

// CheckOnce runs a single cycle. Only a listing failure is returned; per-item
// failures are logged, reported to the error hook and retried next cycle.
func (c *Checker) CheckOnce(ctx context.Context) error {
	cycle := &Cycle{ID: uuid.NewString(), StartedAt: c.now()}
	logger := c.logger.With("cycle_id", cycle.ID)
	defer c.finish(cycle)

	releases, err := c.source.ListReleases(ctx, c.owner, c.repo, 1, c.pageSize)
	if err != nil {
		err = goerr.Wrap(err, "failed to list releases",
			goerr.V("owner", c.owner),
			goerr.V("repo", c.repo),
			goerr.V("cycle_id", cycle.ID))
		cycle.Error = err.Error()
		c.report(ctx, err)
		return err
	}
	cycle.Listed = len(releases)

	// Releases older than the retry window are settled: delivered ones may
	// already be swept, failed ones are given up.
	c.ledger.Advance(cycle.StartedAt.Add(-c.retryWindow))

	// The watermark moves to the cycle start unless something published
	// earlier still needs a create; then it stops just before that item.
	hold := cycle.StartedAt
	holdBefore := func(rel model.Release) {
		if t := rel.PublishedOr(cycle.StartedAt).Add(-time.Nanosecond); t.Before(hold) {
			hold = t
		}
	}

	var eligible []model.Release
	for _, rel := range releases {
		ok, err := c.ledger.Eligible(ctx, rel)
		if err != nil {
			logger.Error("Failed to check eligibility", "tag", rel.Tag, "error", err)
			c.report(ctx, err)
			cycle.Failed++
			holdBefore(rel)
			continue
		}
		if ok {
			eligible = append(eligible, rel)
		}
	}

	slices.SortStableFunc(eligible, model.OldestFirst(cycle.StartedAt))
	cycle.Eligible = len(eligible)

	deliveries := 0
	for i, rel := range eligible {
		if ctx.Err() != nil || (c.maxPerCycle > 0 && deliveries >= c.maxPerCycle) {
			cycle.Deferred = len(eligible) - i
			holdBefore(rel)
			logger.Info("Deferring releases to the next cycle",
				"deferred", cycle.Deferred,
				"first_deferred", rel.Tag)
			break
		}

		action, result, err := c.reconcile(ctx, logger, rel)
		switch result {
		case resultCreated:
			cycle.Created++
			deliveries++
		case resultUpdated:
			cycle.Updated++
			deliveries++
		case resultUnchanged:
			cycle.Unchanged++
		case resultSkipped:
			cycle.Skipped++
		case resultFailed:
			cycle.Failed++
			if action != ledger.ActionSkip {
				deliveries++
			}
			if action != ledger.ActionUpdate {
				holdBefore(rel)
			}
		}
		if err != nil {
			logger.Error("Failed to deliver release",
				"tag", rel.Tag,
				"action", action.String(),
				"error", err)
			c.report(ctx, err)
		}
	}

	c.ledger.Advance(hold)

	dropped, err := c.ledger.Sweep(ctx, c.now())
	if err != nil {
		logger.Error("Failed to sweep ledger", "error", err)
		c.report(ctx, err)
	}
	cycle.Dropped = dropped

	logger.Info("Release check completed",
		"listed", cycle.Listed,
		"eligible", cycle.Eligible,
		"created", cycle.Created,
		"updated", cycle.Updated,
		"unchanged", cycle.Unchanged,
		"failed", cycle.Failed,
		"deferred", cycle.Deferred,
		"dropped", cycle.Dropped,
		"watermark", c.ledger.Watermark())
	return nil
}

type result int

const (
	resultSkipped result = iota
	resultCreated
	resultUpdated
	resultUnchanged
	resultFailed
)

// reconcile handles one release. A create whose message was sent but could
// not be recorded still counts as created: retrying it would post a duplicate.
func (c *Checker) reconcile(ctx context.Context, logger *slog.Logger, rel model.Release) (ledger.Action, result, error) {
	decision, err := c.ledger.Decide(ctx, rel)
	if err != nil {
		return ledger.ActionSkip, resultFailed, err
	}
	if decision.Action == ledger.ActionSkip {
		return decision.Action, resultSkipped, nil
	}

	rendered := c.renderer.Render(ctx, rel)

	switch decision.Action {
	case ledger.ActionCreate:
		id, err := c.transport.Create(ctx, rendered.Payload)
		if err != nil {
			return decision.Action, resultFailed, goerr.Wrap(err, "failed to create message", goerr.V("tag", rel.Tag))
		}
		logger.Info("Release message created", "tag", rel.Tag, "message_id", id, "needs_refresh", rendered.NeedsRefresh)
		if err := c.ledger.Record(ctx, rendered, id); err != nil {
			return decision.Action, resultCreated, err
		}
		return decision.Action, resultCreated, nil

	case ledger.ActionUpdate:
		unchanged, err := c.ledger.Unchanged(ctx, rendered)
		if err != nil {
			return decision.Action, resultFailed, err
		}
		if unchanged {
			logger.Debug("Release unchanged, skipping update", "tag", rel.Tag)
			return decision.Action, resultUnchanged, nil
		}

		id, err := c.transport.Update(ctx, decision.MessageID, rendered.Payload)
		if err != nil {
			return decision.Action, resultFailed, goerr.Wrap(err, "failed to update message",
				goerr.V("tag", rel.Tag),
				goerr.V("message_id", decision.MessageID))
		}
		logger.Info("Release message updated",
			"tag", rel.Tag,
			"message_id", id,
			"forced", decision.Forced,
			"needs_refresh", rendered.NeedsRefresh)
		if err := c.ledger.Record(ctx, rendered, id); err != nil {
			return decision.Action, resultUpdated, err
		}
		return decision.Action, resultUpdated, nil
	}

	return decision.Action, resultSkipped, nil
}

func (c *Checker) report(ctx context.Context, err error) {
	if c.errorHook != nil {
		c.errorHook(ctx, err)
	}
}

func (c *Checker) finish(cycle *Cycle) {
	cycle.FinishedAt = c.now()
	c.mu.Lock()
	c.last = cycle
	c.mu.Unlock()
}
