package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"noir-registry/internal/core"
	"noir-registry/internal/ports"
	"noir-registry/internal/types"
)

var sortClauses = map[types.SortOrder]string{
	types.SortStars:   "packages.github_stars DESC, packages.id ASC",
	types.SortName:    "packages.name ASC, packages.id ASC",
	types.SortNewest:  "packages.created_at DESC, packages.id ASC",
	types.SortUpdated: "packages.updated_at DESC, packages.id ASC",
}

const (
	keywordFilter  = "EXISTS (SELECT 1 FROM package_keywords k WHERE k.package_id = packages.id AND k.keyword = ?)"
	categoryFilter = "EXISTS (SELECT 1 FROM package_categories pc JOIN categories c ON c.id = pc.category_id WHERE pc.package_id = packages.id AND c.slug = ?)"
	searchFilter   = "(packages.search_name LIKE ? ESCAPE '\\'" +
		" OR packages.search_description LIKE ? ESCAPE '\\'" +
		" OR EXISTS (SELECT 1 FROM package_keywords k WHERE k.package_id = packages.id AND k.keyword LIKE ? ESCAPE '\\'))"
	relevanceOrder = "CASE WHEN packages.search_name LIKE ? ESCAPE '\\' THEN 1" +
		" WHEN packages.search_description LIKE ? ESCAPE '\\' THEN 2 ELSE 3 END," +
		" packages.github_stars DESC, packages.id ASC"
)

// SQLStoreAdapter keeps the registry in a relational database through gorm.
// SQLite and Postgres are supported.
type SQLStoreAdapter struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// OpenSQLStore connects to the database. For SQLite the dsn is a file path
// (or a file: URI); foreign keys are switched on for every connection.
func OpenSQLStore(driver types.DatabaseDriver, dsn string, logger zerolog.Logger) (*SQLStoreAdapter, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("database dsn is empty")
	}
	var dialector gorm.Dialector
	switch driver {
	case types.DatabaseDriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(dsn))
	case types.DatabaseDriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unsupported database driver %q (want sqlite or postgres)", driver))
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("failed to open database").
			WithCause(err)
	}
	if driver != types.DatabaseDriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, storeError("failed to access database handle", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &SQLStoreAdapter{db: db, logger: logger}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (a *SQLStoreAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (a *SQLStoreAdapter) Migrate(ctx context.Context) error {
	if err := a.db.WithContext(ctx).AutoMigrate(schemaModels...); err != nil {
		return storeError("failed to migrate schema", err)
	}
	if err := a.backfillSearchColumns(ctx); err != nil {
		return storeError("failed to backfill search columns", err)
	}
	return nil
}

// backfillSearchColumns fills the folded search columns of rows written
// before they existed.
func (a *SQLStoreAdapter) backfillSearchColumns(ctx context.Context) error {
	var rows []packageModel
	err := a.db.WithContext(ctx).
		Select("id", "name", "description").
		Where("search_name = ?", "").
		Find(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		err := a.db.WithContext(ctx).Model(&packageModel{}).Where("id = ?", row.ID).
			UpdateColumns(map[string]interface{}{
				"search_name":        searchFold(row.Name),
				"search_description": searchFold(derefString(row.Description)),
			}).Error
		if err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		a.logger.Info().Int("packages", len(rows)).Msg("backfilled search columns")
	}
	return nil
}

func (a *SQLStoreAdapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return storeError("failed to access database handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeUnavailable).
			WithMsg("database is unreachable").
			WithCause(err)
	}
	return nil
}

func (a *SQLStoreAdapter) UpsertPackage(ctx context.Context, record types.PackageRecord) (types.UpsertResult, error) {
	var result types.UpsertResult
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing packageModel
		err := tx.Where("name = ?", record.Name).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row := newPackageModel(record)
			err := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "name"}},
					DoUpdates: clause.Assignments(recordColumns(record)),
				}).
				Create(&row).Error
			if err != nil {
				return err
			}
			result = types.UpsertResult{ID: row.ID, Created: true, Changed: true}
			return nil
		}
		if err != nil {
			return err
		}
		result.ID = existing.ID
		if core.SameRecord(existing.record(), record) {
			return nil
		}
		result.Changed = !core.SameContent(existing.record(), record)
		columns := recordColumns(record)
		columns["updated_at"] = tx.NowFunc()
		return tx.Model(&packageModel{}).Where("id = ?", existing.ID).Updates(columns).Error
	})
	if err != nil {
		return types.UpsertResult{}, storeError(fmt.Sprintf("failed to upsert package %s", record.Name), err)
	}
	return result, nil
}

func (a *SQLStoreAdapter) InsertVersion(ctx context.Context, packageID int64, version types.VersionRecord) (int64, error) {
	if strings.TrimSpace(version.Version) == "" {
		return 0, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("version string is empty")
	}
	var versionID int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pkg, err := lockPackage(tx, packageID)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&versionModel{}).
			Where("package_id = ? AND version = ?", packageID, version.Version).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errbuilder.New().
				WithCode(errbuilder.CodeAlreadyExists).
				WithMsg(fmt.Sprintf("version %s of package %d already exists", version.Version, packageID))
		}
		row := newVersionModel(packageID, version)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		versionID = row.ID

		promote := pkg.LatestVersionID == nil
		if !promote {
			var current versionModel
			err := tx.Where("id = ? AND package_id = ?", *pkg.LatestVersionID, packageID).Take(&current).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				promote = true
			case err != nil:
				return err
			default:
				promote = core.NewerRelease(row.record(), current.record())
			}
		}
		if !promote {
			return nil
		}
		return tx.Model(&packageModel{}).Where("id = ?", packageID).Updates(map[string]interface{}{
			"latest_version":    row.Version,
			"latest_version_id": row.ID,
			"updated_at":        tx.NowFunc(),
		}).Error
	})
	if err != nil {
		return 0, storeError(fmt.Sprintf("failed to insert version %s", version.Version), err)
	}
	return versionID, nil
}

func (a *SQLStoreAdapter) ReplaceKeywords(ctx context.Context, packageID int64, keywords []string) error {
	normalized := core.NormalizeKeywords(keywords)
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPackage(tx, packageID); err != nil {
			return err
		}
		if err := tx.Where("package_id = ?", packageID).Delete(&keywordModel{}).Error; err != nil {
			return err
		}
		if len(normalized) == 0 {
			return nil
		}
		rows := make([]keywordModel, 0, len(normalized))
		for _, keyword := range normalized {
			rows = append(rows, keywordModel{PackageID: packageID, Keyword: keyword})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return storeError("failed to replace keywords", err)
	}
	return nil
}

func (a *SQLStoreAdapter) SetCategory(ctx context.Context, packageID int64, categoryID *int64) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPackage(tx, packageID); err != nil {
			return err
		}
		if err := tx.Where("package_id = ?", packageID).Delete(&packageCategoryModel{}).Error; err != nil {
			return err
		}
		if categoryID == nil {
			return nil
		}
		var count int64
		if err := tx.Model(&categoryModel{}).Where("id = ?", *categoryID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("category %d not found", *categoryID))
		}
		return tx.Omit(clause.Associations).Create(&packageCategoryModel{PackageID: packageID, CategoryID: *categoryID}).Error
	})
	if err != nil {
		return storeError("failed to set category", err)
	}
	return nil
}

func (a *SQLStoreAdapter) DeletePackage(ctx context.Context, name string) (bool, error) {
	result := a.db.WithContext(ctx).Where("name = ?", name).Delete(&packageModel{})
	if result.Error != nil {
		return false, storeError(fmt.Sprintf("failed to delete package %s", name), result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (a *SQLStoreAdapter) FindPackage(ctx context.Context, name string) (*types.PackageRecord, error) {
	var row packageModel
	err := a.db.WithContext(ctx).Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(fmt.Sprintf("failed to load package %s", name), err)
	}
	record := row.record()
	return &record, nil
}

func (a *SQLStoreAdapter) GetByName(ctx context.Context, name string) (*types.Package, error) {
	var rows []packageModel
	if err := a.db.WithContext(ctx).Where("name = ?", name).Limit(1).Find(&rows).Error; err != nil {
		return nil, storeError(fmt.Sprintf("failed to load package %s", name), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	packages, err := a.hydrate(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &packages[0], nil
}

func (a *SQLStoreAdapter) List(ctx context.Context, query types.ListQuery) ([]types.Package, error) {
	tx := a.filtered(ctx, query)
	order, ok := sortClauses[query.Sort]
	if !ok {
		order = sortClauses[types.SortStars]
	}
	var rows []packageModel
	if err := tx.Order(order).Find(&rows).Error; err != nil {
		return nil, storeError("failed to list packages", err)
	}
	return a.hydrate(ctx, rows)
}

func (a *SQLStoreAdapter) Search(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error) {
	if strings.TrimSpace(term) == "" {
		return a.List(ctx, query)
	}
	pattern := core.LikePattern(term)
	tx := a.filtered(ctx, query).Where(searchFilter, pattern, pattern, pattern)
	if order, ok := sortClauses[query.Sort]; ok {
		tx = tx.Order(order)
	} else {
		prefix := core.LikePrefixPattern(term)
		tx = tx.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                relevanceOrder,
			Vars:               []interface{}{prefix, prefix},
			WithoutParentheses: true,
		}})
	}
	var rows []packageModel
	if err := tx.Find(&rows).Error; err != nil {
		return nil, storeError("failed to search packages", err)
	}
	return a.hydrate(ctx, rows)
}

func (a *SQLStoreAdapter) Versions(ctx context.Context, packageID int64) ([]types.PackageVersion, error) {
	var rows []versionModel
	err := a.db.WithContext(ctx).
		Where("package_id = ?", packageID).
		Order("published_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, storeError("failed to list versions", err)
	}
	versions := make([]types.PackageVersion, 0, len(rows))
	for _, row := range rows {
		versions = append(versions, row.toVersion())
	}
	return versions, nil
}

func (a *SQLStoreAdapter) VersionExists(ctx context.Context, packageID int64, version string) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&versionModel{}).
		Where("package_id = ? AND version = ?", packageID, version).
		Count(&count).Error
	if err != nil {
		return false, storeError("failed to look up version", err)
	}
	return count > 0, nil
}

func (a *SQLStoreAdapter) SeedCategories(ctx context.Context, categories []types.Category) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, category := range categories {
			row := categoryModel{Name: category.Name, Slug: category.Slug, Description: category.Description}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "description"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeError("failed to seed categories", err)
	}
	return nil
}

func (a *SQLStoreAdapter) ListCategories(ctx context.Context) ([]types.Category, error) {
	var rows []categoryModel
	if err := a.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, storeError("failed to list categories", err)
	}
	categories := make([]types.Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, row.toCategory())
	}
	return categories, nil
}

func (a *SQLStoreAdapter) filtered(ctx context.Context, query types.ListQuery) *gorm.DB {
	tx := a.db.WithContext(ctx).Model(&packageModel{})
	if query.Keyword != "" {
		tx = tx.Where(keywordFilter, query.Keyword)
	}
	if query.Category != "" {
		tx = tx.Where(categoryFilter, query.Category)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}
	return tx
}

type categoryLink struct {
	PackageID   int64
	ID          int64
	Name        string
	Slug        string
	Description string
}

// hydrate loads keywords and the category for a page of packages.
func (a *SQLStoreAdapter) hydrate(ctx context.Context, rows []packageModel) ([]types.Package, error) {
	packages := make([]types.Package, 0, len(rows))
	if len(rows) == 0 {
		return packages, nil
	}
	ids := make([]int64, 0, len(rows))
	index := make(map[int64]int, len(rows))
	for i, row := range rows {
		ids = append(ids, row.ID)
		index[row.ID] = i
		packages = append(packages, row.toPackage())
	}

	var keywords []keywordModel
	err := a.db.WithContext(ctx).
		Where("package_id IN ?", ids).
		Order("package_id ASC, keyword ASC").
		Find(&keywords).Error
	if err != nil {
		return nil, storeError("failed to load keywords", err)
	}
	for _, keyword := range keywords {
		pkg := &packages[index[keyword.PackageID]]
		pkg.Keywords = append(pkg.Keywords, keyword.Keyword)
	}

	var links []categoryLink
	err = a.db.WithContext(ctx).
		Table("package_categories pc").
		Select("pc.package_id, c.id, c.name, c.slug, c.description").
		Joins("JOIN categories c ON c.id = pc.category_id").
		Where("pc.package_id IN ?", ids).
		Order("pc.package_id ASC, c.id ASC").
		Scan(&links).Error
	if err != nil {
		return nil, storeError("failed to load categories", err)
	}
	for _, link := range links {
		pkg := &packages[index[link.PackageID]]
		if pkg.Category != nil {
			continue
		}
		pkg.Category = &types.Category{ID: link.ID, Name: link.Name, Slug: link.Slug, Description: link.Description}
	}
	return packages, nil
}

// lockPackage loads the package row inside a transaction. Postgres takes a
// row lock so concurrent writers to one package serialize.
func lockPackage(tx *gorm.DB, packageID int64) (packageModel, error) {
	query := tx
	if tx.Dialector.Name() == "postgres" {
		query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var pkg packageModel
	err := query.Where("id = ?", packageID).Take(&pkg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return packageModel{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("package %d not found", packageID))
	}
	return pkg, err
}

// storeError keeps coded errors raised inside a transaction and wraps the
// rest as internal failures.
func storeError(msg string, err error) error {
	var coded *errbuilder.ErrBuilder
	if errors.As(err, &coded) {
		return err
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

var _ ports.PackageStorePort = (*SQLStoreAdapter)(nil)
