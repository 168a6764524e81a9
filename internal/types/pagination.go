package types

// PaginatedResponse represents a paginated list response. The offset and
// limit echo back the values the query was executed with.
type PaginatedResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// NewPaginatedResponse creates a new paginated response
func NewPaginatedResponse[T any](items []T, total, offset, limit int) PaginatedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return PaginatedResponse[T]{
		Items:  items,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}
}
