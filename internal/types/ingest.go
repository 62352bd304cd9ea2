package types

import "time"

// IndexEntry is one package line of the curated index document.
type IndexEntry struct {
	Name          string
	RepositoryURL string
	Description   string
	// Sections lists the enclosing headings, outermost first.
	Sections []string
	Line     int
}

type IndexParseResult struct {
	Entries    []IndexEntry
	Discarded  int
	Duplicates []string
}

// SourceRef identifies a repository on a source-hosting platform.
type SourceRef struct {
	Host  string
	Owner string
	Repo  string
}

// RepoMetadata is what the hosting platform reports about a repository.
// A nil pointer field means the platform reported no value.
type RepoMetadata struct {
	OwnerLogin     string
	OwnerAvatarURL *string
	Stars          int64
	License        *string
	Homepage       *string
	Topics         []string
}

type Release struct {
	Tag         string
	Body        string
	TarballURL  string
	PublishedAt time.Time
}

// IndexedPackage is the incoming side of the ingestion merge. Metadata
// is nil when enrichment did not succeed for the entry.
type IndexedPackage struct {
	Entry    IndexEntry
	Ref      SourceRef
	Metadata *RepoMetadata
}

type IngestionReport struct {
	Found     int `json:"found"`
	Discarded int `json:"discarded"`
	Enriched  int `json:"enriched"`
	Partial   int `json:"partial"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Versions  int `json:"versions"`
}
