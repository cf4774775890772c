package domain

// Page is an offset-paginated result set. Total is the full partition size
// before slicing, not the number of items on this page.
type Page[T any] struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Data  []T `json:"data"`
}

// EmptyPage returns a well-formed zero-item page echoing the requested
// page and limit.
func EmptyPage[T any](page, limit int) Page[T] {
	return Page[T]{Total: 0, Page: page, Limit: limit, Data: []T{}}
}
