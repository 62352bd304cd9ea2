package types

import "time"

// PackageRecord holds the mutable columns of a package row. It is the
// unit the ingestion merge produces and the store upserts by Name.
type PackageRecord struct {
	Name                string        `json:"name"`
	Description         *string       `json:"description"`
	GithubRepositoryURL string        `json:"github_repository_url"`
	Homepage            *string       `json:"homepage"`
	License             *string       `json:"license"`
	OwnerGithubUsername string        `json:"owner_github_username"`
	OwnerAvatarURL      *string       `json:"owner_avatar_url"`
	TotalDownloads      int64         `json:"total_downloads"`
	GithubStars         int64         `json:"github_stars"`
	Source              PackageSource `json:"source"`
}

// Package is the read model served by the query surface.
type Package struct {
	ID int64 `json:"id"`
	PackageRecord
	LatestVersion   *string   `json:"latest_version"`
	LatestVersionID *int64    `json:"latest_version_id,omitempty"`
	OwnerID         *int64    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Keywords        []string  `json:"keywords"`
	Category        *Category `json:"category"`
}

type PackageDetail struct {
	Package
	Versions []PackageVersion `json:"versions"`
}

type VersionRecord struct {
	Version                string    `json:"version"`
	Readme                 *string   `json:"readme,omitempty"`
	Changelog              *string   `json:"changelog,omitempty"`
	NoirVersionRequirement *string   `json:"noir_version_requirement,omitempty"`
	DownloadURL            *string   `json:"download_url,omitempty"`
	Checksum               *string   `json:"checksum,omitempty"`
	FileSize               *int64    `json:"file_size,omitempty"`
	PublishedAt            time.Time `json:"published_at"`
}

type PackageVersion struct {
	ID        int64 `json:"id"`
	PackageID int64 `json:"package_id"`
	VersionRecord
	DownloadCount int64 `json:"download_count"`
}

type Category struct {
	ID          int64  `json:"id" yaml:"-"`
	Name        string `json:"name" yaml:"name"`
	Slug        string `json:"slug" yaml:"slug"`
	Description string `json:"description" yaml:"description"`
}

type UpsertResult struct {
	ID      int64
	Created bool
	Changed bool
}
