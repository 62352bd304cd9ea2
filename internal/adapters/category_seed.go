package adapters

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"noir-registry/internal/core"
	"noir-registry/internal/ports"
	"noir-registry/internal/types"
)

//go:embed seed/categories.yaml
var defaultCategories []byte

type categoryDocument struct {
	Categories []types.Category `yaml:"categories"`
}

// CategorySeedAdapter reads the category vocabulary from a YAML file, or
// from the built-in list when Path is empty.
type CategorySeedAdapter struct {
	Path string
}

func NewCategorySeedAdapter(path string) CategorySeedAdapter {
	return CategorySeedAdapter{Path: strings.TrimSpace(path)}
}

func (a CategorySeedAdapter) Categories() ([]types.Category, error) {
	data := defaultCategories
	source := "built-in categories"
	if a.Path != "" {
		content, err := os.ReadFile(a.Path)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("failed to read categories file %s", a.Path)).
				WithCause(err)
		}
		data = content
		source = a.Path
	}
	var doc categoryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse %s", source)).
			WithCause(err)
	}
	seen := map[string]struct{}{}
	categories := make([]types.Category, 0, len(doc.Categories))
	for _, category := range doc.Categories {
		category.Name = strings.TrimSpace(category.Name)
		if category.Name == "" {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("%s: category name is empty", source))
		}
		if strings.TrimSpace(category.Slug) == "" {
			category.Slug = core.Slugify(category.Name)
		}
		if _, dup := seen[category.Slug]; dup {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("%s: duplicate category slug %s", source, category.Slug))
		}
		seen[category.Slug] = struct{}{}
		category.Description = strings.TrimSpace(category.Description)
		categories = append(categories, category)
	}
	return categories, nil
}

var _ ports.CategorySeedPort = CategorySeedAdapter{}
