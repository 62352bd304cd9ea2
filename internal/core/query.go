package core

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"noir-registry/internal/types"
)

var sortOrders = map[types.SortOrder]struct{}{
	types.SortStars:     {},
	types.SortName:      {},
	types.SortNewest:    {},
	types.SortUpdated:   {},
	types.SortRelevance: {},
}

// ParseSortOrder maps a user supplied sort name to a SortOrder. The empty
// string selects the default star ordering.
func ParseSortOrder(value string) (types.SortOrder, error) {
	normalized := types.SortOrder(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return types.SortStars, nil
	}
	if _, ok := sortOrders[normalized]; !ok {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("unsupported sort order %q (want stars, name, newest, updated or relevance)", value))
	}
	return normalized, nil
}

// NormalizeListQuery validates a query and fills defaults.
func NormalizeListQuery(query types.ListQuery) (types.ListQuery, error) {
	sortOrder, err := ParseSortOrder(string(query.Sort))
	if err != nil {
		return types.ListQuery{}, err
	}
	if query.Limit < 0 {
		return types.ListQuery{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("limit must not be negative")
	}
	return types.ListQuery{
		Sort:     sortOrder,
		Limit:    query.Limit,
		Keyword:  strings.ToLower(strings.TrimSpace(query.Keyword)),
		Category: strings.ToLower(strings.TrimSpace(query.Category)),
	}, nil
}

// LikePattern builds a case-insensitive substring pattern for term, with
// LIKE wildcards escaped by a backslash.
func LikePattern(term string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(strings.ToLower(term)) + "%"
}

// LikePrefixPattern is LikePattern anchored at the start of the value.
func LikePrefixPattern(term string) string {
	return strings.TrimPrefix(LikePattern(term), "%")
}

// QueryCacheKey identifies a normalized list or search query.
func QueryCacheKey(kind string, term string, query types.ListQuery) string {
	return fmt.Sprintf("%s|%s|%s|%d|%s|%s", kind, strings.ToLower(strings.TrimSpace(term)), query.Sort, query.Limit, query.Keyword, query.Category)
}
