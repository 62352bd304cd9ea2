// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// SampleIndex is a small curated index: two GitHub libraries under the
// Cryptography section, one repository the fake GitHub does not know and
// one entry hosted outside GitHub.
const SampleIndex = `# Awesome Noir

## Libraries

### Cryptography

- [ec-crypto](https://github.com/noir-lang/ec-crypto) - elliptic curve crypto
- [hasher](https://github.com/noir-lang/hasher) - hashing helpers

## Misc

- [ghost](https://github.com/noir-lang/ghost) - repository was deleted
- [mirror](https://gitlab.com/noir/mirror) - not on github
`

// FakeRepository is the subset of the GitHub repository payload the
// registry reads.
type FakeRepository struct {
	Stars   int64
	License string
	Topics  []string
}

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// WriteFile writes content below dir and returns the full path.
func WriteFile(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// NewIndexServer serves document at /README.md.
func NewIndexServer(t *testing.T, document string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/README.md" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(document))
	}))
	t.Cleanup(server.Close)
	return server
}

// NewGithubServer answers /repos/<owner>/<repo> for the given repositories,
// keyed by "owner/repo", and 404s everything else.
func NewGithubServer(t *testing.T, repos map[string]FakeRepository) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/repos/")
		repo, ok := repos[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
			return
		}
		owner := strings.SplitN(key, "/", 2)[0]
		body := map[string]interface{}{
			"owner":            map[string]string{"login": owner, "avatar_url": "https://avatars.example/" + owner},
			"stargazers_count": repo.Stars,
			"topics":           repo.Topics,
		}
		if repo.License != "" {
			body["license"] = map[string]string{"spdx_id": repo.License}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

// SampleGithub knows ec-crypto and hasher from SampleIndex.
func SampleGithub(t *testing.T) *httptest.Server {
	t.Helper()
	return NewGithubServer(t, map[string]FakeRepository{
		"noir-lang/ec-crypto": {Stars: 42, License: "MIT", Topics: []string{"zk", "crypto"}},
		"noir-lang/hasher":    {Stars: 7, Topics: []string{"hash"}},
	})
}
