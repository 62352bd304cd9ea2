package core

import (
	"strings"
	"unicode"

	"noir-registry/internal/types"
)

// Slugify lower-cases value and joins its alphanumeric runs with hyphens.
func Slugify(value string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// MatchCategory picks the category for an index entry from its enclosing
// headings, preferring the innermost heading that names a known category.
func MatchCategory(sections []string, categories []types.Category) (types.Category, bool) {
	bySlug := make(map[string]types.Category, len(categories)*2)
	for _, category := range categories {
		bySlug[category.Slug] = category
		if slug := Slugify(category.Name); slug != "" {
			if _, exists := bySlug[slug]; !exists {
				bySlug[slug] = category
			}
		}
	}
	for i := len(sections) - 1; i >= 0; i-- {
		if category, ok := bySlug[Slugify(sections[i])]; ok {
			return category, true
		}
	}
	return types.Category{}, false
}
