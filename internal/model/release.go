package model

import (
	"cmp"
	"time"
)

// Author is the account that published a release
type Author struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// Release is one upstream release as returned by a release source.
// Tag is the identity: stable and unique per upstream release.
type Release struct {
	Repo         string     `json:"repo"` // owner/name
	Tag          string     `json:"tag"`
	Name         string     `json:"name"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	URL          string     `json:"url"`
	Body         string     `json:"body"`
	Prerelease   bool       `json:"prerelease"`
	Author       Author     `json:"author"`
	Contributors int        `json:"contributors,omitempty"` // 0 when unknown
}

// DisplayName returns the release name, falling back to the tag
func (r Release) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Tag
}

// PublishedOr returns the published time, or fallback when the release has none
func (r Release) PublishedOr(fallback time.Time) time.Time {
	if r.PublishedAt == nil || r.PublishedAt.IsZero() {
		return fallback
	}
	return *r.PublishedAt
}

// OldestFirst orders releases chronologically by publish time, ties broken by tag.
// Releases without a publish time sort as "now", i.e. after every dated release.
func OldestFirst(now time.Time) func(a, b Release) int {
	return func(a, b Release) int {
		if c := a.PublishedOr(now).Compare(b.PublishedOr(now)); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	}
}
