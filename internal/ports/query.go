package ports

import (
	"context"

	"noir-registry/internal/types"
)

// QueryPort is the read surface served over HTTP.
type QueryPort interface {
	ListPackages(ctx context.Context, query types.ListQuery) ([]types.Package, error)
	// GetPackage fails with CodeNotFound when no package has this exact name.
	GetPackage(ctx context.Context, name string) (types.PackageDetail, error)
	SearchPackages(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error)
	Categories(ctx context.Context) ([]types.Category, error)
	Health(ctx context.Context) error
}
