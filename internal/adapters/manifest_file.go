package adapters

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"noir-registry/internal/ports"
)

const ManifestFileName = "Nargo.toml"

type ManifestFileAdapter struct{}

func NewManifestFileAdapter() ManifestFileAdapter {
	return ManifestFileAdapter{}
}

// Locate resolves the manifest to edit. An explicit hint may name the file
// or the directory holding it; otherwise the search walks from startDir up
// to the filesystem root.
func (a ManifestFileAdapter) Locate(hint string, startDir string) (string, error) {
	if strings.TrimSpace(hint) != "" {
		path := filepath.Clean(hint)
		info, err := os.Stat(path)
		if err != nil {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("manifest %s not found", path)).
				WithCause(err)
		}
		if info.IsDir() {
			path = filepath.Join(path, ManifestFileName)
			if _, err := os.Stat(path); err != nil {
				return "", errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg(fmt.Sprintf("manifest %s not found", path)).
					WithCause(err)
			}
		}
		return path, nil
	}
	if strings.TrimSpace(startDir) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("start directory is empty")
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid start directory %s", startDir)).
			WithCause(err)
	}
	for {
		candidate := filepath.Join(dir, ManifestFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("could not find %s in %s or any parent directory", ManifestFileName, startDir))
		}
		dir = parent
	}
}

func (a ManifestFileAdapter) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		code := errbuilder.CodeInternal
		if os.IsNotExist(err) {
			code = errbuilder.CodeNotFound
		}
		return nil, errbuilder.New().
			WithCode(code).
			WithMsg(fmt.Sprintf("failed to read manifest %s", path)).
			WithCause(err)
	}
	return data, nil
}

// Replace writes data to a temporary file beside path, syncs it and renames
// it over path. The original file mode is kept. On any failure the original
// is untouched and the temporary file removed.
func (a ManifestFileAdapter) Replace(path string, data []byte) (err error) {
	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return manifestWriteError(path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return manifestWriteError(path, err)
	}
	if err = tmp.Chmod(mode); err != nil {
		return manifestWriteError(path, err)
	}
	if err = tmp.Sync(); err != nil {
		return manifestWriteError(path, err)
	}
	if err = tmp.Close(); err != nil {
		return manifestWriteError(path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return manifestWriteError(path, err)
	}
	return nil
}

func manifestWriteError(path string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(fmt.Sprintf("failed to write manifest %s", path)).
		WithCause(err)
}

var _ ports.ManifestPort = ManifestFileAdapter{}
