package ports

import (
	"context"

	"noir-registry/internal/types"
)

// IndexSourcePort fetches the curated index document.
type IndexSourcePort interface {
	FetchIndex(ctx context.Context) ([]byte, error)
}

// RepoMetadataPort reads repository metadata from the hosting platform.
// Errors carry errbuilder codes: CodeNotFound for a missing repository,
// CodeUnavailable for rate limiting and other transient failures.
type RepoMetadataPort interface {
	Repository(ctx context.Context, ref types.SourceRef) (types.RepoMetadata, error)
	Releases(ctx context.Context, ref types.SourceRef) ([]types.Release, error)
	LatestTag(ctx context.Context, ref types.SourceRef) (string, error)
}

// QueryCachePort memoizes query results between store mutations.
type QueryCachePort interface {
	Get(ctx context.Context, key string) ([]types.Package, bool)
	Set(ctx context.Context, key string, value []types.Package)
	Flush(ctx context.Context)
}

// SchedulerPort runs jobs on a cron schedule.
type SchedulerPort interface {
	AddJob(ctx context.Context, schedule string, name string, job func(context.Context)) error
	Start()
	Stop() context.Context
}
