package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"noir-registry/internal/core"
	"noir-registry/internal/ports"
)

// SourceCacheAdapter manages the checkouts nargo keeps under Root, laid out
// as <root>/<host>/<owner>/<repo>.
type SourceCacheAdapter struct {
	Root string
}

func NewSourceCacheAdapter(root string) SourceCacheAdapter {
	return SourceCacheAdapter{Root: strings.TrimSpace(root)}
}

// DefaultSourceCacheRoot returns $HOME/nargo.
func DefaultSourceCacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "nargo")
}

// Purge removes the checkout for gitURL and returns its path. A missing
// checkout is not an error.
func (a SourceCacheAdapter) Purge(gitURL string) (string, error) {
	path, err := core.CachePath(a.Root, gitURL)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return path, nil
	}
	if err != nil {
		return path, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to inspect cached source %s", path)).
			WithCause(err)
	}
	if !info.IsDir() {
		return path, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("cached source %s is not a directory", path))
	}
	if err := os.RemoveAll(path); err != nil {
		return path, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to remove cached source %s", path)).
			WithCause(err)
	}
	return path, nil
}

var _ ports.SourceCachePort = SourceCacheAdapter{}
