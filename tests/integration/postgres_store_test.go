//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"noir-registry/internal/adapters"
	"noir-registry/internal/app"
	"noir-registry/internal/core"
	"noir-registry/internal/types"
	"noir-registry/tests/testutil"
)

func startPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "registry",
			"POSTGRES_PASSWORD": "registry",
			"POSTGRES_DB":       "registry",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("host=%s port=%s user=registry password=registry dbname=registry sslmode=disable", host, port.Port())
}

func TestPostgresStoreWithTestcontainers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers test in short mode")
	}
	ctx := t.Context()
	dsn := startPostgres(ctx, t)

	store, err := adapters.OpenSQLStore(types.DatabaseDriverPostgres, dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	index := testutil.NewIndexServer(t, testutil.SampleIndex)
	github := testutil.SampleGithub(t)
	service := app.Service{
		Store:    store,
		Seeds:    adapters.NewCategorySeedAdapter(""),
		Index:    adapters.NewIndexSourceAdapter(index.URL+"/README.md", time.Second, 1, time.Millisecond),
		Metadata: adapters.NewGithubMetadataAdapter(github.URL, "", time.Second),
		Cache:    adapters.NewQueryCacheAdapter(adapters.DefaultQueryCacheTTL),
		Parser:   core.NewIndexParser(),
	}
	_, err = service.Migrate(ctx)
	require.NoError(t, err)
	// A second migration must be a no-op.
	_, err = service.Migrate(ctx)
	require.NoError(t, err)

	report, err := service.Ingest(ctx, app.IngestRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Failed)

	found, err := service.SearchPackages(ctx, "CRYPTO", types.ListQuery{Sort: types.SortRelevance})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ec-crypto", found[0].Name)

	pkg, err := service.GetPackage(ctx, "ec-crypto")
	require.NoError(t, err)
	_, err = store.InsertVersion(ctx, pkg.ID, types.VersionRecord{Version: "v0.2.0", PublishedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = store.InsertVersion(ctx, pkg.ID, types.VersionRecord{Version: "v0.1.0", PublishedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	_, err = store.InsertVersion(ctx, pkg.ID, types.VersionRecord{Version: "v0.1.0", PublishedAt: time.Now()})
	assert.Equal(t, errbuilder.CodeAlreadyExists, errbuilder.CodeOf(err))

	pkg, err = service.GetPackage(ctx, "ec-crypto")
	require.NoError(t, err)
	require.NotNil(t, pkg.LatestVersion)
	assert.Equal(t, "v0.2.0", *pkg.LatestVersion)
	assert.Len(t, pkg.Versions, 2)

	_, err = service.DeletePackage(ctx, "ec-crypto")
	require.NoError(t, err)
	versions, err := store.Versions(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
	require.NoError(t, service.Health(ctx))
}
