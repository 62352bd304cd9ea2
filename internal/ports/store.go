package ports

import (
	"context"

	"noir-registry/internal/types"
)

// PackageStorePort is the durable registry store. Every mutating call is
// applied atomically for a single package.
type PackageStorePort interface {
	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	UpsertPackage(ctx context.Context, record types.PackageRecord) (types.UpsertResult, error)
	// InsertVersion records a release and moves the package's latest
	// version pointer when the release is the most recently published.
	InsertVersion(ctx context.Context, packageID int64, version types.VersionRecord) (int64, error)
	ReplaceKeywords(ctx context.Context, packageID int64, keywords []string) error
	// SetCategory links the package to a single category; nil clears it.
	SetCategory(ctx context.Context, packageID int64, categoryID *int64) error
	DeletePackage(ctx context.Context, name string) (bool, error)

	// FindPackage returns the stored record for name, or nil.
	FindPackage(ctx context.Context, name string) (*types.PackageRecord, error)
	// GetByName returns the package whose name equals name exactly, or nil.
	GetByName(ctx context.Context, name string) (*types.Package, error)
	List(ctx context.Context, query types.ListQuery) ([]types.Package, error)
	Search(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error)
	Versions(ctx context.Context, packageID int64) ([]types.PackageVersion, error)
	VersionExists(ctx context.Context, packageID int64, version string) (bool, error)

	SeedCategories(ctx context.Context, categories []types.Category) error
	ListCategories(ctx context.Context) ([]types.Category, error)

	Ping(ctx context.Context) error
}

// CategorySeedPort provides the controlled category vocabulary.
type CategorySeedPort interface {
	Categories() ([]types.Category, error)
}
