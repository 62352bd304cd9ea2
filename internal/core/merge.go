package core

import (
	"context"
	"sort"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"

	"noir-registry/internal/types"
)

// MergePackage computes the row to persist for one index entry. It depends
// only on its arguments, so re-running it over the same inputs converges:
// values the incoming side does not know (a failed enrichment) keep what the
// existing row already holds.
func MergePackage(ctx context.Context, existing *types.PackageRecord, incoming types.IndexedPackage) types.PackageRecord {
	assert.NotEmpty(ctx, incoming.Entry.Name, "index entry name must be set")
	assert.NotEmpty(ctx, incoming.Entry.RepositoryURL, "index entry url must be set")

	merged := types.PackageRecord{
		Name:                incoming.Entry.Name,
		GithubRepositoryURL: incoming.Entry.RepositoryURL,
		Source:              types.PackageSourceCuratedIndex,
	}
	if existing != nil {
		merged.Description = existing.Description
		merged.Homepage = existing.Homepage
		merged.License = existing.License
		merged.OwnerGithubUsername = existing.OwnerGithubUsername
		merged.OwnerAvatarURL = existing.OwnerAvatarURL
		merged.TotalDownloads = existing.TotalDownloads
		merged.GithubStars = existing.GithubStars
		if existing.Source == types.PackageSourcePublished {
			merged.Source = types.PackageSourcePublished
		}
	}
	if description := strings.TrimSpace(incoming.Entry.Description); description != "" {
		merged.Description = &description
	}
	if merged.OwnerGithubUsername == "" {
		merged.OwnerGithubUsername = incoming.Ref.Owner
	}
	if meta := incoming.Metadata; meta != nil {
		if meta.OwnerLogin != "" {
			merged.OwnerGithubUsername = meta.OwnerLogin
		}
		merged.OwnerAvatarURL = cloneString(meta.OwnerAvatarURL)
		merged.License = cloneString(meta.License)
		merged.Homepage = cloneString(meta.Homepage)
		merged.GithubStars = meta.Stars
	}
	return merged
}

// SameRecord reports whether two records would persist identically.
func SameRecord(a types.PackageRecord, b types.PackageRecord) bool {
	return SameContent(a, b) &&
		a.TotalDownloads == b.TotalDownloads &&
		a.GithubStars == b.GithubStars
}

// SameContent compares everything except the metric counters, which every
// ingestion run refreshes.
func SameContent(a types.PackageRecord, b types.PackageRecord) bool {
	return a.Name == b.Name &&
		a.GithubRepositoryURL == b.GithubRepositoryURL &&
		a.OwnerGithubUsername == b.OwnerGithubUsername &&
		a.Source == b.Source &&
		equalStringPtr(a.Description, b.Description) &&
		equalStringPtr(a.Homepage, b.Homepage) &&
		equalStringPtr(a.License, b.License) &&
		equalStringPtr(a.OwnerAvatarURL, b.OwnerAvatarURL)
}

// NormalizeKeywords lower-cases, trims and deduplicates keywords and
// returns them sorted.
func NormalizeKeywords(keywords []string) []string {
	set := map[string]struct{}{}
	for _, keyword := range keywords {
		value := strings.ToLower(strings.TrimSpace(keyword))
		if value == "" {
			continue
		}
		set[value] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for value := range set {
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func equalStringPtr(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
