package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
)

// Migrate brings the schema up to date and seeds the category vocabulary.
func (s Service) Migrate(ctx context.Context) (MigrateResult, error) {
	if err := s.requireStore(); err != nil {
		return MigrateResult{}, err
	}
	if err := s.Store.Migrate(ctx); err != nil {
		return MigrateResult{}, err
	}
	categories, err := s.Seeds.Categories()
	if err != nil {
		return MigrateResult{}, err
	}
	if err := s.Store.SeedCategories(ctx, categories); err != nil {
		return MigrateResult{}, err
	}
	log.Ctx(ctx).Info().Int("categories", len(categories)).Msg("schema migrated")
	return MigrateResult{Categories: len(categories)}, nil
}

// DeletePackage removes a package together with its versions, keywords
// and category link.
func (s Service) DeletePackage(ctx context.Context, name string) (DeleteResult, error) {
	if err := s.requireStore(); err != nil {
		return DeleteResult{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return DeleteResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("package name is required")
	}
	deleted, err := s.Store.DeletePackage(ctx, name)
	if err != nil {
		return DeleteResult{}, err
	}
	if !deleted {
		return DeleteResult{Name: name}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("package %q not found", name))
	}
	if s.Cache != nil {
		s.Cache.Flush(ctx)
	}
	log.Ctx(ctx).Info().Str("package", name).Msg("package deleted")
	return DeleteResult{Name: name, Deleted: true}, nil
}
