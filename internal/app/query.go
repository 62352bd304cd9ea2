package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"noir-registry/internal/core"
	"noir-registry/internal/ports"
	"noir-registry/internal/types"
)

const (
	cacheKindList   = "list"
	cacheKindSearch = "search"
)

func (s Service) ListPackages(ctx context.Context, query types.ListQuery) ([]types.Package, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	normalized, err := core.NormalizeListQuery(query)
	if err != nil {
		return nil, err
	}
	if normalized.Sort == types.SortRelevance {
		normalized.Sort = types.SortStars
	}
	return s.cached(ctx, core.QueryCacheKey(cacheKindList, "", normalized), func() ([]types.Package, error) {
		return s.Store.List(ctx, normalized)
	})
}

// SearchPackages matches term case-insensitively against names,
// descriptions and keywords. An empty term lists everything.
func (s Service) SearchPackages(ctx context.Context, term string, query types.ListQuery) ([]types.Package, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.ListPackages(ctx, query)
	}
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	normalized, err := core.NormalizeListQuery(query)
	if err != nil {
		return nil, err
	}
	return s.cached(ctx, core.QueryCacheKey(cacheKindSearch, term, normalized), func() ([]types.Package, error) {
		return s.Store.Search(ctx, term, normalized)
	})
}

func (s Service) GetPackage(ctx context.Context, name string) (types.PackageDetail, error) {
	if err := s.requireStore(); err != nil {
		return types.PackageDetail{}, err
	}
	pkg, err := s.Store.GetByName(ctx, name)
	if err != nil {
		return types.PackageDetail{}, err
	}
	if pkg == nil {
		return types.PackageDetail{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("package %q not found", name))
	}
	versions, err := s.Store.Versions(ctx, pkg.ID)
	if err != nil {
		return types.PackageDetail{}, err
	}
	if versions == nil {
		versions = []types.PackageVersion{}
	}
	return types.PackageDetail{Package: *pkg, Versions: versions}, nil
}

func (s Service) Categories(ctx context.Context) ([]types.Category, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	return s.Store.ListCategories(ctx)
}

func (s Service) Health(ctx context.Context) error {
	if err := s.requireStore(); err != nil {
		return err
	}
	return s.Store.Ping(ctx)
}

func (s Service) cached(ctx context.Context, key string, load func() ([]types.Package, error)) ([]types.Package, error) {
	if s.Cache != nil {
		if packages, ok := s.Cache.Get(ctx, key); ok {
			return packages, nil
		}
	}
	packages, err := load()
	if err != nil {
		return nil, err
	}
	if packages == nil {
		packages = []types.Package{}
	}
	if s.Cache != nil {
		s.Cache.Set(ctx, key, packages)
	}
	return packages, nil
}

func (s Service) requireStore() error {
	if s.Store == nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("package store is not configured")
	}
	return nil
}

var _ ports.QueryPort = Service{}
