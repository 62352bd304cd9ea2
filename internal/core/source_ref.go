package core

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"noir-registry/internal/types"
)

const githubHost = "github.com"

// ParseSourceURL splits a repository URL into host, owner and repository.
// It accepts http(s) and ssh URLs as well as scp-style git@host:owner/repo.
func ParseSourceURL(raw string) (types.SourceRef, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return types.SourceRef{}, invalidSourceURL(raw, "empty url")
	}
	var host, path string
	if at := strings.Index(value, "@"); at >= 0 && !strings.Contains(value, "://") {
		rest := value[at+1:]
		colon := strings.Index(rest, ":")
		if colon < 0 {
			return types.SourceRef{}, invalidSourceURL(raw, "missing path")
		}
		host, path = rest[:colon], rest[colon+1:]
	} else {
		parsed, err := url.Parse(value)
		if err != nil {
			return types.SourceRef{}, invalidSourceURL(raw, err.Error())
		}
		switch parsed.Scheme {
		case "http", "https", "ssh", "git":
		default:
			return types.SourceRef{}, invalidSourceURL(raw, "unsupported scheme")
		}
		host, path = parsed.Hostname(), parsed.Path
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if host == "" || len(segments) < 2 {
		return types.SourceRef{}, invalidSourceURL(raw, "expected <host>/<owner>/<repo>")
	}
	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")
	for _, segment := range []string{host, owner, repo} {
		if !validPathSegment(segment) {
			return types.SourceRef{}, invalidSourceURL(raw, fmt.Sprintf("invalid segment %q", segment))
		}
	}
	return types.SourceRef{Host: host, Owner: owner, Repo: repo}, nil
}

// ParseGithubURL is ParseSourceURL restricted to github.com repositories.
func ParseGithubURL(raw string) (types.SourceRef, error) {
	ref, err := ParseSourceURL(raw)
	if err != nil {
		return types.SourceRef{}, err
	}
	if ref.Host != githubHost {
		return types.SourceRef{}, invalidSourceURL(raw, "not a github.com repository")
	}
	return ref, nil
}

// CanonicalGithubURL renders the https form of a GitHub repository.
func CanonicalGithubURL(ref types.SourceRef) string {
	return fmt.Sprintf("https://%s/%s/%s", ref.Host, ref.Owner, ref.Repo)
}

func validPathSegment(segment string) bool {
	if segment == "" || segment == "." || segment == ".." {
		return false
	}
	return !strings.ContainsAny(segment, `/\:`+"\x00")
}

func invalidSourceURL(raw string, reason string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("invalid repository url %q: %s", raw, reason))
}
