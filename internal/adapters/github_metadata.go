package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"noir-registry/internal/ports"
	"noir-registry/internal/shared"
	"noir-registry/internal/types"
)

const (
	defaultGithubAPIURL      = "https://api.github.com"
	defaultGithubTimeout     = 30 * time.Second
	defaultBreakerThreshold  = 5
	defaultBreakerCooldown   = 30 * time.Second
	githubReleasesPageSize   = 100
	githubUserAgent          = "noir-registry"
	maxGithubErrorBodyLength = 512
)

// GithubMetadataAdapter reads repository metadata from the GitHub REST API.
// Calls for one API host share a circuit breaker; missing repositories and
// malformed payloads do not count towards tripping it.
type GithubMetadataAdapter struct {
	BaseURL string
	Token   string
	Timeout time.Duration

	client   *http.Client
	breakers *hostBreakers
}

func NewGithubMetadataAdapter(baseURL string, token string, timeout time.Duration) *GithubMetadataAdapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGithubAPIURL
	}
	if timeout <= 0 {
		timeout = defaultGithubTimeout
	}
	return &GithubMetadataAdapter{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    strings.TrimSpace(token),
		Timeout:  timeout,
		client:   newHTTPClient(timeout),
		breakers: newHostBreakers(defaultBreakerThreshold, defaultBreakerCooldown),
	}
}

type githubRepository struct {
	Owner struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"owner"`
	StargazersCount int64  `json:"stargazers_count"`
	Homepage        string `json:"homepage"`
	License         *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
	Topics []string `json:"topics"`
}

type githubRelease struct {
	TagName     string `json:"tag_name"`
	Body        string `json:"body"`
	TarballURL  string `json:"tarball_url"`
	Draft       bool   `json:"draft"`
	PublishedAt string `json:"published_at"`
	CreatedAt   string `json:"created_at"`
}

type githubTag struct {
	Name string `json:"name"`
}

func (a *GithubMetadataAdapter) Repository(ctx context.Context, ref types.SourceRef) (types.RepoMetadata, error) {
	var payload githubRepository
	if err := a.getJSON(ctx, repoPath(ref), &payload); err != nil {
		return types.RepoMetadata{}, err
	}
	meta := types.RepoMetadata{
		OwnerLogin:     strings.TrimSpace(payload.Owner.Login),
		OwnerAvatarURL: optionalString(payload.Owner.AvatarURL),
		Stars:          payload.StargazersCount,
		Homepage:       optionalString(payload.Homepage),
		Topics:         payload.Topics,
	}
	if payload.License != nil && payload.License.SPDXID != "NOASSERTION" {
		meta.License = optionalString(payload.License.SPDXID)
	}
	return meta, nil
}

func (a *GithubMetadataAdapter) Releases(ctx context.Context, ref types.SourceRef) ([]types.Release, error) {
	var payload []githubRelease
	path := fmt.Sprintf("%s/releases?per_page=%d", repoPath(ref), githubReleasesPageSize)
	if err := a.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	releases := make([]types.Release, 0, len(payload))
	for _, release := range payload {
		tag := strings.TrimSpace(release.TagName)
		if release.Draft || tag == "" {
			continue
		}
		publishedAt, ok := parseTimestamp(release.PublishedAt, release.CreatedAt)
		if !ok {
			continue
		}
		releases = append(releases, types.Release{
			Tag:         tag,
			Body:        release.Body,
			TarballURL:  release.TarballURL,
			PublishedAt: publishedAt,
		})
	}
	return releases, nil
}

// LatestTag returns the most recent tag GitHub lists for the repository.
func (a *GithubMetadataAdapter) LatestTag(ctx context.Context, ref types.SourceRef) (string, error) {
	var payload []githubTag
	if err := a.getJSON(ctx, repoPath(ref)+"/tags?per_page=1", &payload); err != nil {
		return "", err
	}
	if len(payload) == 0 || strings.TrimSpace(payload[0].Name) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("repository %s/%s has no tags", ref.Owner, ref.Repo))
	}
	return strings.TrimSpace(payload[0].Name), nil
}

func (a *GithubMetadataAdapter) getJSON(ctx context.Context, path string, out interface{}) error {
	endpoint := a.BaseURL + path
	host := endpoint
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	breaker := a.breakers.get(host)
	if !breaker.Ready() {
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg(fmt.Sprintf("circuit breaker open for %s", host))
	}

	var terminal error
	err := breaker.Call(func() error {
		err := a.fetchJSON(ctx, endpoint, out)
		if err != nil && errbuilder.CodeOf(err) != errbuilder.CodeUnavailable {
			terminal = err
			return nil
		}
		return err
	}, 0)
	if terminal != nil {
		return terminal
	}
	if err == nil {
		return nil
	}
	var coded *errbuilder.ErrBuilder
	if errors.As(err, &coded) {
		return err
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(fmt.Sprintf("github request failed: %s", endpoint)).
		WithCause(err)
}

func (a *GithubMetadataAdapter) fetchJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid github url %s", endpoint)).
			WithCause(err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", githubUserAgent)
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg(fmt.Sprintf("github request failed: %s", endpoint)).
			WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("malformed github response from %s", endpoint)).
				WithCause(err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("github repository not found: %s", endpoint))
	case isRateLimited(resp):
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg(fmt.Sprintf("github rate limit exceeded (resets %s)", rateLimitReset(resp))).
			WithCause(shared.HTTPStatusError(resp.StatusCode, endpoint))
	case resp.StatusCode >= http.StatusInternalServerError:
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("github is unavailable").
			WithCause(shared.HTTPStatusError(resp.StatusCode, endpoint))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxGithubErrorBodyLength))
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("unexpected github response").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, endpoint, strings.TrimSpace(string(body))))
	}
}

func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

func rateLimitReset(resp *http.Response) string {
	reset := resp.Header.Get("X-RateLimit-Reset")
	if reset == "" {
		return "unknown"
	}
	var seconds int64
	if _, err := fmt.Sscanf(reset, "%d", &seconds); err != nil {
		return reset
	}
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}

func repoPath(ref types.SourceRef) string {
	return "/repos/" + url.PathEscape(ref.Owner) + "/" + url.PathEscape(ref.Repo)
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

var _ ports.RepoMetadataPort = (*GithubMetadataAdapter)(nil)
