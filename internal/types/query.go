package types

// ListQuery narrows and orders a package listing. Empty Keyword and
// Category disable the corresponding filter; Limit <= 0 means no limit.
type ListQuery struct {
	Sort     SortOrder
	Limit    int
	Keyword  string
	Category string
}
