package ports

import (
	"context"

	"noir-registry/internal/types"
)

// ManifestPort locates and rewrites project manifests on disk.
type ManifestPort interface {
	// Locate returns hint when set, otherwise the nearest Nargo.toml
	// found walking up from startDir.
	Locate(hint string, startDir string) (string, error)
	Read(path string) ([]byte, error)
	// Replace atomically swaps the file content at path.
	Replace(path string, data []byte) error
}

// RegistryPort queries a remote registry over HTTP.
type RegistryPort interface {
	Package(ctx context.Context, name string) (types.PackageDetail, error)
	Search(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error)
	URL() string
}

// SourceCachePort manages local checkouts of dependency sources.
type SourceCachePort interface {
	Purge(gitURL string) (string, error)
}

// ToolchainPort checks a project with the language toolchain.
type ToolchainPort interface {
	// Check reports false without error when the toolchain is absent.
	Check(ctx context.Context, projectDir string) (bool, error)
}
