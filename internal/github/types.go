package github

import (
	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"

	"github.com/yourorg/release-relay/internal/model"
)

// ErrReleaseNotFound is returned when a tag has no published release
var ErrReleaseNotFound = goerr.New("release not found")

// toRelease maps an API release. Drafts are rejected by the caller.
func toRelease(repo string, r *github.RepositoryRelease) model.Release {
	rel := model.Release{
		Repo:       repo,
		Tag:        r.GetTagName(),
		Name:       r.GetName(),
		URL:        r.GetHTMLURL(),
		Body:       r.GetBody(),
		Prerelease: r.GetPrerelease(),
	}
	if r.PublishedAt != nil {
		published := r.GetPublishedAt().Time
		rel.PublishedAt = &published
	}
	if author := r.GetAuthor(); author != nil {
		rel.Author = model.Author{
			Login:     author.GetLogin(),
			AvatarURL: author.GetAvatarURL(),
		}
	}
	return rel
}
