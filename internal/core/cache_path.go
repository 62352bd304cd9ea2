package core

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// CachePath derives the local checkout directory for a dependency source:
// <root>/<host>/<owner>/<repo>. The result always lies strictly inside root.
func CachePath(root string, gitURL string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("cache root is empty")
	}
	ref, err := ParseSourceURL(gitURL)
	if err != nil {
		return "", err
	}
	cleanRoot := filepath.Clean(root)
	path := filepath.Join(cleanRoot, ref.Host, ref.Owner, ref.Repo)
	rel, err := filepath.Rel(cleanRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("cache path for %q escapes %s", gitURL, cleanRoot))
	}
	return path, nil
}
