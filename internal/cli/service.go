package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"noir-registry/internal/adapters"
	"noir-registry/internal/app"
	"noir-registry/internal/types"
)

// newAppService builds the service from the loaded configuration. The store
// is opened separately by commands that need it.
func newAppService() app.Service {
	timeout := viper.GetDuration("http.timeout")
	retries := viper.GetInt("http.retries")
	retryDelay := viper.GetDuration("http.retry_delay")

	service := app.NewService()
	service.Index = adapters.NewIndexSourceAdapter(viper.GetString("index_url"), timeout, retries, retryDelay)
	service.Metadata = adapters.NewGithubMetadataAdapter(viper.GetString("github.api_url"), viper.GetString("github.token"), timeout)
	service.Registry = adapters.NewRegistryClientAdapter(viper.GetString("registry_url"), timeout, retries, retryDelay)
	service.Seeds = adapters.NewCategorySeedAdapter(viper.GetString("categories_file"))
	if root := viper.GetString("cache_root"); root != "" {
		service.Sources = adapters.NewSourceCacheAdapter(root)
	}
	if binary := viper.GetString("nargo"); binary != "" {
		service.Toolchain = adapters.NewNargoToolchainAdapter(binary)
	}
	return service
}

// openStore connects the service to the configured database. The returned
// func closes it.
func openStore(ctx context.Context, service *app.Service) (func(), error) {
	driver := types.DatabaseDriver(viper.GetString("database.driver"))
	store, err := adapters.OpenSQLStore(driver, viper.GetString("database.dsn"), *log.Ctx(ctx))
	if err != nil {
		return nil, err
	}
	service.Store = store
	return func() {
		if err := store.Close(); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to close database")
		}
	}, nil
}
