// Package httpretry retries outbound HTTP requests on rate limiting and server errors.
package httpretry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const maxRetryAfter = 30 * time.Second

// Transport is an http.RoundTripper that retries 429 and 5xx responses and
// network errors with linear backoff. Requests whose body cannot be replayed
// (no GetBody) are sent once.
type Transport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

// New wraps base (http.DefaultTransport when nil)
func New(base http.RoundTripper, maxRetries int) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:       base,
		MaxRetries: maxRetries,
		BaseDelay:  time.Second,
		Logger:     slog.Default(),
	}
}

// Client returns an http.Client using a retrying transport
func Client(timeout time.Duration, maxRetries int) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: New(nil, maxRetries),
	}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	retries := max(t.MaxRetries, 0)
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		retries = 0
	}

	for attempt := 0; attempt <= retries; attempt++ {
		r := req
		if attempt > 0 {
			r = req.Clone(ctx)
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				r.Body = body
			}
		}

		resp, err := t.Base.RoundTrip(r)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || attempt == retries {
				break
			}
			if werr := wait(ctx, t.delay(attempt, nil)); werr != nil {
				return nil, werr
			}
			continue
		}

		// Success or client error (don't retry)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		if attempt == retries {
			return resp, nil
		}

		d := t.delay(attempt, resp)
		t.Logger.Debug("Retrying HTTP request",
			"method", req.Method,
			"host", req.URL.Host,
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"backoff", d,
		)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if werr := wait(ctx, d); werr != nil {
			return nil, werr
		}
	}

	return nil, lastErr
}

func (t *Transport) delay(attempt int, resp *http.Response) time.Duration {
	backoff := time.Duration(attempt+1) * t.BaseDelay
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return backoff
	}
	if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs >= 0 {
		return min(time.Duration(secs*float64(time.Second)), maxRetryAfter)
	}
	// For rate limiting, use longer backoff
	return backoff * 2
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
