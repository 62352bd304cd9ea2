package app

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"noir-registry/internal/adapters"
	"noir-registry/internal/core"
	"noir-registry/internal/types"
)

type mockMetadata struct {
	mock.Mock
}

func (m *mockMetadata) Repository(ctx context.Context, ref types.SourceRef) (types.RepoMetadata, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(types.RepoMetadata), args.Error(1)
}

func (m *mockMetadata) Releases(ctx context.Context, ref types.SourceRef) ([]types.Release, error) {
	args := m.Called(ctx, ref)
	releases, _ := args.Get(0).([]types.Release)
	return releases, args.Error(1)
}

func (m *mockMetadata) LatestTag(ctx context.Context, ref types.SourceRef) (string, error) {
	args := m.Called(ctx, ref)
	return args.String(0), args.Error(1)
}

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) Package(ctx context.Context, name string) (types.PackageDetail, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(types.PackageDetail), args.Error(1)
}

func (m *mockRegistry) Search(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error) {
	args := m.Called(ctx, term, query)
	packages, _ := args.Get(0).([]types.Package)
	return packages, args.Error(1)
}

func (m *mockRegistry) URL() string {
	return "http://registry.test/api"
}

type stubIndex struct {
	document []byte
	err      error
}

func (s stubIndex) FetchIndex(context.Context) ([]byte, error) {
	return s.document, s.err
}

type stubToolchain struct {
	ran   bool
	err   error
	calls []string
}

func (s *stubToolchain) Check(_ context.Context, dir string) (bool, error) {
	s.calls = append(s.calls, dir)
	return s.ran, s.err
}

// countingCache wraps the in-memory cache and counts flushes.
type countingCache struct {
	*adapters.QueryCacheAdapter
	mu      sync.Mutex
	flushes int
}

func newCountingCache() *countingCache {
	return &countingCache{QueryCacheAdapter: adapters.NewQueryCacheAdapter(adapters.DefaultQueryCacheTTL)}
}

func (c *countingCache) Flush(ctx context.Context) {
	c.mu.Lock()
	c.flushes++
	c.mu.Unlock()
	c.QueryCacheAdapter.Flush(ctx)
}

func (c *countingCache) flushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

func strPtr(value string) *string {
	return &value
}

// newStoreService returns a service backed by a migrated temp-file SQLite
// store seeded with the built-in categories.
func newStoreService(t *testing.T) Service {
	t.Helper()
	store, err := adapters.OpenSQLStore(types.DatabaseDriverSQLite, filepath.Join(t.TempDir(), "registry.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc := Service{
		Store:  store,
		Seeds:  adapters.NewCategorySeedAdapter(""),
		Cache:  newCountingCache(),
		Parser: core.NewIndexParser(),
	}
	_, err = svc.Migrate(context.Background())
	require.NoError(t, err)
	return svc
}
