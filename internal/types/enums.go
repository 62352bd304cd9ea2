package types

type PackageSource string

const (
	PackageSourceCuratedIndex PackageSource = "curated-index"
	PackageSourcePublished    PackageSource = "published"
)

type SortOrder string

const (
	SortStars   SortOrder = "stars"
	SortName    SortOrder = "name"
	SortNewest  SortOrder = "newest"
	SortUpdated SortOrder = "updated"

	// SortRelevance ranks name prefix matches, then description prefix
	// matches, ahead of the star ordering. Lists treat it as SortStars.
	SortRelevance SortOrder = "relevance"
)

type EnrichmentStatus string

const (
	EnrichmentComplete EnrichmentStatus = "complete"
	EnrichmentPartial  EnrichmentStatus = "partial"
	EnrichmentFailed   EnrichmentStatus = "failed"
)

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)
