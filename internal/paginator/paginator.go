// Package paginator pages over in-memory history snapshots. Display
// order is most-recent-first: the whole list is reversed from its
// fetch order (oldest first, matching on-chain append order) before
// slicing, so boundary pages are stable regardless of page number.
package paginator

// Page is one displayed slice of a snapshot
type Page[T any] struct {
	Items      []T `json:"items"`
	Number     int `json:"page"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_items"`
}

// TotalPages returns ceil(length / pageSize)
func TotalPages(length, pageSize int) int {
	if length <= 0 || pageSize <= 0 {
		return 0
	}
	return (length + pageSize - 1) / pageSize
}

// Paginate returns the 1-based page of items in most-recent-first
// order. Out-of-range page numbers are clamped: page < 1 behaves as
// page 1 and page > TotalPages behaves as the last page. The input
// slice is not mutated.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	total := TotalPages(len(items), pageSize)

	if page < 1 {
		page = 1
	}
	if total > 0 && page > total {
		page = total
	}

	p := Page[T]{
		Items:      []T{},
		Number:     page,
		TotalPages: total,
		TotalItems: len(items),
	}
	if total == 0 {
		return p
	}

	// Reverse globally, then slice.
	reversed := make([]T, len(items))
	for i, item := range items {
		reversed[len(items)-1-i] = item
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if end > len(reversed) {
		end = len(reversed)
	}

	p.Items = reversed[start:end]
	return p
}

// Next advances the page number, staying put at the last page
func Next(page, totalPages int) int {
	if page < totalPages {
		return page + 1
	}
	return page
}

// Previous retreats the page number, staying put at page one
func Previous(page int) int {
	if page > 1 {
		return page - 1
	}
	return page
}
