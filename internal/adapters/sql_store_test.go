package adapters

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noir-registry/internal/types"
)

func strPtr(value string) *string {
	return &value
}

func newTestStore(t *testing.T) *SQLStoreAdapter {
	t.Helper()
	store, err := OpenSQLStore(types.DatabaseDriverSQLite, filepath.Join(t.TempDir(), "registry.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func upsertTestPackage(t *testing.T, store *SQLStoreAdapter, name string, description string, stars int64) int64 {
	t.Helper()
	result, err := store.UpsertPackage(context.Background(), types.PackageRecord{
		Name:                name,
		Description:         strPtr(description),
		GithubRepositoryURL: "https://github.com/noir-lang/" + name,
		OwnerGithubUsername: "noir-lang",
		GithubStars:         stars,
		Source:              types.PackageSourceCuratedIndex,
	})
	require.NoError(t, err)
	return result.ID
}

func packageNames(packages []types.Package) []string {
	names := make([]string, 0, len(packages))
	for _, pkg := range packages {
		names = append(names, pkg.Name)
	}
	return names
}

func TestSQLStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := types.PackageRecord{
		Name:                "ec-crypto",
		Description:         strPtr("elliptic curve crypto"),
		GithubRepositoryURL: "https://github.com/noir-lang/ec-crypto",
		OwnerGithubUsername: "noir-lang",
		GithubStars:         10,
		Source:              types.PackageSourceCuratedIndex,
	}

	first, err := store.UpsertPackage(ctx, record)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := store.UpsertPackage(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, types.UpsertResult{ID: first.ID}, second)

	record.GithubStars = 11
	third, err := store.UpsertPackage(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, types.UpsertResult{ID: first.ID}, third, "counter refresh is not a content change")

	record.License = strPtr("MIT")
	fourth, err := store.UpsertPackage(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, types.UpsertResult{ID: first.ID, Changed: true}, fourth)

	stored, err := store.FindPackage(ctx, "ec-crypto")
	require.NoError(t, err)
	if diff := cmp.Diff(&record, stored); diff != "" {
		t.Fatalf("stored record mismatch (-want +got):\n%s", diff)
	}

	all, err := store.List(ctx, types.ListQuery{Sort: types.SortStars})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLStoreGetByNameIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	upsertTestPackage(t, store, "ec-crypto", "elliptic curve crypto", 1)

	pkg, err := store.GetByName(ctx, "ec-crypto")
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "ec-crypto", pkg.Name)
	assert.Equal(t, []string{}, pkg.Keywords)

	missing, err := store.GetByName(ctx, "EC-Crypto")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLStoreLatestVersionPointer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := upsertTestPackage(t, store, "noir-bignum", "big numbers", 3)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertVersion(ctx, id, types.VersionRecord{Version: "v0.2.0", PublishedAt: base.Add(48 * time.Hour)})
	require.NoError(t, err)
	_, err = store.InsertVersion(ctx, id, types.VersionRecord{Version: "v0.1.0", PublishedAt: base})
	require.NoError(t, err)

	pkg, err := store.GetByName(ctx, "noir-bignum")
	require.NoError(t, err)
	require.NotNil(t, pkg.LatestVersion)
	assert.Equal(t, "v0.2.0", *pkg.LatestVersion)

	latestID, err := store.InsertVersion(ctx, id, types.VersionRecord{Version: "v0.3.0", PublishedAt: base.Add(72 * time.Hour)})
	require.NoError(t, err)

	pkg, err = store.GetByName(ctx, "noir-bignum")
	require.NoError(t, err)
	assert.Equal(t, "v0.3.0", *pkg.LatestVersion)
	require.NotNil(t, pkg.LatestVersionID)
	assert.Equal(t, latestID, *pkg.LatestVersionID)

	versions, err := store.Versions(ctx, id)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "v0.3.0", versions[0].Version)
	for _, version := range versions[1:] {
		assert.False(t, version.PublishedAt.After(versions[0].PublishedAt))
	}
}

func TestSQLStoreInsertVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := upsertTestPackage(t, store, "poseidon", "hashing", 0)
	version := types.VersionRecord{Version: "v1.0.0", PublishedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}

	_, err := store.InsertVersion(ctx, id, version)
	require.NoError(t, err)
	_, err = store.InsertVersion(ctx, id, version)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeAlreadyExists, errbuilder.CodeOf(err))

	exists, err := store.VersionExists(ctx, id, "v1.0.0")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.InsertVersion(ctx, id+100, version)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))
}

func TestSQLStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	upsertTestPackage(t, store, "ec-crypto", "elliptic curve crypto", 5)
	upsertTestPackage(t, store, "unrelated", "something else", 50)
	tagged := upsertTestPackage(t, store, "hasher", "hash functions", 1)
	require.NoError(t, store.ReplaceKeywords(ctx, tagged, []string{"Crypto-Primitives", "hash"}))

	got, err := store.Search(ctx, "crypto", types.ListQuery{Sort: types.SortStars})
	require.NoError(t, err)
	assert.Equal(t, []string{"ec-crypto", "hasher"}, packageNames(got))

	got, err = store.Search(ctx, "CRYPTO", types.ListQuery{Sort: types.SortStars, Keyword: "hash"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hasher"}, packageNames(got))

	got, err = store.Search(ctx, "%", types.ListQuery{Sort: types.SortStars})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLStoreSearchFoldsNonASCIICase(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	upsertTestPackage(t, store, "Ärger-lib", "Überprüfung von Signaturen", 3)
	upsertTestPackage(t, store, "plain", "nothing here", 1)

	got, err := store.Search(ctx, "ärger", types.ListQuery{Sort: types.SortStars})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ärger-lib"}, packageNames(got))

	got, err = store.Search(ctx, "ÜBERPRÜFUNG", types.ListQuery{Sort: types.SortStars})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ärger-lib"}, packageNames(got))
}

func TestSQLStoreMigrateBackfillsSearchColumns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	upsertTestPackage(t, store, "Ärger-lib", "Elliptic Curves", 3)
	require.NoError(t, store.db.Model(&packageModel{}).Where("name = ?", "Ärger-lib").
		UpdateColumns(map[string]interface{}{"search_name": "", "search_description": ""}).Error)

	require.NoError(t, store.Migrate(ctx))

	got, err := store.Search(ctx, "elliptic", types.ListQuery{Sort: types.SortStars})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ärger-lib"}, packageNames(got))
}

func TestSQLStoreSearchRelevance(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	upsertTestPackage(t, store, "zk-tools", "helpers for hash circuits", 100)
	upsertTestPackage(t, store, "sponge", "hash sponge construction", 1)
	upsertTestPackage(t, store, "hash-lib", "generic helpers", 2)

	got, err := store.Search(ctx, "hash", types.ListQuery{Sort: types.SortRelevance})
	require.NoError(t, err)
	assert.Equal(t, []string{"hash-lib", "sponge", "zk-tools"}, packageNames(got))
}

func TestSQLStoreListOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	upsertTestPackage(t, store, "bravo", "b", 5)
	upsertTestPackage(t, store, "alpha", "a", 5)
	upsertTestPackage(t, store, "charlie", "c", 9)

	got, err := store.List(ctx, types.ListQuery{Sort: types.SortStars})
	require.NoError(t, err)
	assert.Equal(t, []string{"charlie", "bravo", "alpha"}, packageNames(got))

	got, err = store.List(ctx, types.ListQuery{Sort: types.SortName, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo"}, packageNames(got))
}

func TestSQLStoreCategories(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seed := []types.Category{
		{Name: "Cryptography", Slug: "cryptography", Description: "primitives"},
		{Name: "Developer Tools", Slug: "developer-tools", Description: "tooling"},
	}
	require.NoError(t, store.SeedCategories(ctx, seed))
	require.NoError(t, store.SeedCategories(ctx, seed))

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)

	id := upsertTestPackage(t, store, "ec-crypto", "elliptic curve crypto", 1)
	upsertTestPackage(t, store, "formatter", "formats code", 1)
	require.NoError(t, store.SetCategory(ctx, id, &categories[1].ID))
	require.NoError(t, store.SetCategory(ctx, id, &categories[0].ID))

	pkg, err := store.GetByName(ctx, "ec-crypto")
	require.NoError(t, err)
	require.NotNil(t, pkg.Category)
	assert.Equal(t, "cryptography", pkg.Category.Slug)

	got, err := store.List(ctx, types.ListQuery{Sort: types.SortName, Category: "cryptography"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ec-crypto"}, packageNames(got))

	missing := int64(999)
	err = store.SetCategory(ctx, id, &missing)
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	require.NoError(t, store.SetCategory(ctx, id, nil))
	pkg, err = store.GetByName(ctx, "ec-crypto")
	require.NoError(t, err)
	assert.Nil(t, pkg.Category)
}

func TestSQLStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SeedCategories(ctx, []types.Category{{Name: "Cryptography", Slug: "cryptography"}}))
	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)

	id := upsertTestPackage(t, store, "ec-crypto", "elliptic curve crypto", 1)
	_, err = store.InsertVersion(ctx, id, types.VersionRecord{Version: "v0.1.0", PublishedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceKeywords(ctx, id, []string{"ecc"}))
	require.NoError(t, store.SetCategory(ctx, id, &categories[0].ID))

	deleted, err := store.DeletePackage(ctx, "ec-crypto")
	require.NoError(t, err)
	assert.True(t, deleted)

	for _, model := range []interface{}{&versionModel{}, &keywordModel{}, &packageCategoryModel{}} {
		var count int64
		require.NoError(t, store.db.Model(model).Count(&count).Error)
		assert.Zero(t, count)
	}

	deleted, err = store.DeletePackage(ctx, "ec-crypto")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestOpenSQLStoreRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQLStore("mysql", "dsn", zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}
