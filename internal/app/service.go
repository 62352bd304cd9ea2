package app

import (
	"time"

	"noir-registry/internal/adapters"
	"noir-registry/internal/core"
	"noir-registry/internal/ports"
)

// Service wires the registry use cases to their ports. Store is left nil
// by NewService because opening it needs configuration; commands that
// touch the registry database set it before use.
type Service struct {
	Store     ports.PackageStorePort
	Seeds     ports.CategorySeedPort
	Index     ports.IndexSourcePort
	Metadata  ports.RepoMetadataPort
	Cache     ports.QueryCachePort
	Manifests ports.ManifestPort
	Registry  ports.RegistryPort
	Sources   ports.SourceCachePort
	Toolchain ports.ToolchainPort
	Parser    core.IndexParser
	Clock     func() time.Time
}

func NewService() Service {
	return Service{
		Seeds:     adapters.NewCategorySeedAdapter(""),
		Index:     adapters.NewIndexSourceAdapter(adapters.DefaultIndexURL, 0, 0, 0),
		Metadata:  adapters.NewGithubMetadataAdapter("", "", 0),
		Cache:     adapters.NewQueryCacheAdapter(adapters.DefaultQueryCacheTTL),
		Manifests: adapters.NewManifestFileAdapter(),
		Registry:  adapters.NewRegistryClientAdapter(adapters.DefaultRegistryURL, 0, 0, 0),
		Sources:   adapters.NewSourceCacheAdapter(adapters.DefaultSourceCacheRoot()),
		Toolchain: adapters.NewNargoToolchainAdapter(""),
		Parser:    core.NewIndexParser(),
		Clock:     time.Now,
	}
}

func (s Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}
