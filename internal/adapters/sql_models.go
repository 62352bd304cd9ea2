package adapters

import (
	"strings"
	"time"

	"noir-registry/internal/types"
)

type userModel struct {
	ID        int64  `gorm:"primaryKey"`
	GithubID  int64  `gorm:"uniqueIndex;not null"`
	Username  string `gorm:"not null"`
	AvatarURL *string
	APIKey    *string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userModel) TableName() string { return "users" }

type packageModel struct {
	ID                  int64  `gorm:"primaryKey"`
	Name                string `gorm:"uniqueIndex;not null"`
	Description         *string
	GithubRepositoryURL string `gorm:"not null"`
	Homepage            *string
	License             *string
	OwnerGithubUsername string
	OwnerAvatarURL      *string
	TotalDownloads      int64 `gorm:"not null;default:0"`
	GithubStars         int64 `gorm:"not null;default:0"`
	LatestVersion       *string
	LatestVersionID     *int64
	Source              string `gorm:"not null"`
	OwnerID             *int64
	// Lowercased in Go: SQLite's LOWER() folds ASCII only.
	SearchName          string `gorm:"not null;default:''"`
	SearchDescription   string `gorm:"not null;default:''"`
	CreatedAt           time.Time
	UpdatedAt           time.Time

	Owner      *userModel             `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL"`
	Versions   []versionModel         `gorm:"foreignKey:PackageID;constraint:OnDelete:CASCADE"`
	Keywords   []keywordModel         `gorm:"foreignKey:PackageID;constraint:OnDelete:CASCADE"`
	Categories []packageCategoryModel `gorm:"foreignKey:PackageID;constraint:OnDelete:CASCADE"`
}

func (packageModel) TableName() string { return "packages" }

func (m packageModel) record() types.PackageRecord {
	return types.PackageRecord{
		Name:                m.Name,
		Description:         m.Description,
		GithubRepositoryURL: m.GithubRepositoryURL,
		Homepage:            m.Homepage,
		License:             m.License,
		OwnerGithubUsername: m.OwnerGithubUsername,
		OwnerAvatarURL:      m.OwnerAvatarURL,
		TotalDownloads:      m.TotalDownloads,
		GithubStars:         m.GithubStars,
		Source:              types.PackageSource(m.Source),
	}
}

func (m packageModel) toPackage() types.Package {
	return types.Package{
		ID:              m.ID,
		PackageRecord:   m.record(),
		LatestVersion:   m.LatestVersion,
		LatestVersionID: m.LatestVersionID,
		OwnerID:         m.OwnerID,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		Keywords:        []string{},
	}
}

func newPackageModel(record types.PackageRecord) packageModel {
	return packageModel{
		Name:                record.Name,
		Description:         record.Description,
		GithubRepositoryURL: record.GithubRepositoryURL,
		Homepage:            record.Homepage,
		License:             record.License,
		OwnerGithubUsername: record.OwnerGithubUsername,
		OwnerAvatarURL:      record.OwnerAvatarURL,
		TotalDownloads:      record.TotalDownloads,
		GithubStars:         record.GithubStars,
		Source:              string(record.Source),
		SearchName:          searchFold(record.Name),
		SearchDescription:   searchFold(derefString(record.Description)),
	}
}

// recordColumns lists the mutable columns an upsert rewrites.
func recordColumns(record types.PackageRecord) map[string]interface{} {
	return map[string]interface{}{
		"description":           record.Description,
		"github_repository_url": record.GithubRepositoryURL,
		"homepage":              record.Homepage,
		"license":               record.License,
		"owner_github_username": record.OwnerGithubUsername,
		"owner_avatar_url":      record.OwnerAvatarURL,
		"total_downloads":       record.TotalDownloads,
		"github_stars":          record.GithubStars,
		"source":                string(record.Source),
		"search_name":           searchFold(record.Name),
		"search_description":    searchFold(derefString(record.Description)),
	}
}

func searchFold(value string) string {
	return strings.ToLower(value)
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

type versionModel struct {
	ID                     int64  `gorm:"primaryKey"`
	PackageID              int64  `gorm:"not null;uniqueIndex:idx_package_versions_package_version"`
	Version                string `gorm:"not null;uniqueIndex:idx_package_versions_package_version"`
	Readme                 *string
	Changelog              *string
	NoirVersionRequirement *string
	DownloadURL            *string
	Checksum               *string
	FileSize               *int64
	DownloadCount          int64     `gorm:"not null;default:0"`
	PublishedAt            time.Time `gorm:"not null;index"`
	CreatedAt              time.Time
}

func (versionModel) TableName() string { return "package_versions" }

func newVersionModel(packageID int64, record types.VersionRecord) versionModel {
	return versionModel{
		PackageID:              packageID,
		Version:                record.Version,
		Readme:                 record.Readme,
		Changelog:              record.Changelog,
		NoirVersionRequirement: record.NoirVersionRequirement,
		DownloadURL:            record.DownloadURL,
		Checksum:               record.Checksum,
		FileSize:               record.FileSize,
		PublishedAt:            record.PublishedAt.UTC(),
	}
}

func (m versionModel) record() types.VersionRecord {
	return types.VersionRecord{
		Version:                m.Version,
		Readme:                 m.Readme,
		Changelog:              m.Changelog,
		NoirVersionRequirement: m.NoirVersionRequirement,
		DownloadURL:            m.DownloadURL,
		Checksum:               m.Checksum,
		FileSize:               m.FileSize,
		PublishedAt:            m.PublishedAt,
	}
}

func (m versionModel) toVersion() types.PackageVersion {
	return types.PackageVersion{
		ID:            m.ID,
		PackageID:     m.PackageID,
		VersionRecord: m.record(),
		DownloadCount: m.DownloadCount,
	}
}

type keywordModel struct {
	PackageID int64  `gorm:"primaryKey;autoIncrement:false"`
	Keyword   string `gorm:"primaryKey;index"`
}

func (keywordModel) TableName() string { return "package_keywords" }

type categoryModel struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Slug        string `gorm:"uniqueIndex;not null"`
	Description string
}

func (categoryModel) TableName() string { return "categories" }

func (m categoryModel) toCategory() types.Category {
	return types.Category{ID: m.ID, Name: m.Name, Slug: m.Slug, Description: m.Description}
}

type packageCategoryModel struct {
	PackageID  int64         `gorm:"primaryKey;autoIncrement:false"`
	CategoryID int64         `gorm:"primaryKey;autoIncrement:false"`
	Category   categoryModel `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
}

func (packageCategoryModel) TableName() string { return "package_categories" }

// schemaModels lists every table in dependency order.
var schemaModels = []interface{}{
	&userModel{},
	&categoryModel{},
	&packageModel{},
	&versionModel{},
	&keywordModel{},
	&packageCategoryModel{},
}
