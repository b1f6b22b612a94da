// Package persistence contains helpers shared by repository implementations.
package persistence

const (
	// DefaultPageSize applies when callers pass a non-positive page size.
	DefaultPageSize = 20
	// MaxPageSize caps a single page.
	MaxPageSize = 100
)

// Normalize clamps a 1-based page number and page size to sane bounds.
func Normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// Offset returns the row offset and limit for a page.
func Offset(page, pageSize int) (offset, limit int) {
	page, pageSize = Normalize(page, pageSize)
	return (page - 1) * pageSize, pageSize
}

// Window slices n items for a page, returning [start, end) bounds.
func Window(n, page, pageSize int) (int, int) {
	offset, limit := Offset(page, pageSize)
	if offset >= n {
		return n, n
	}
	end := offset + limit
	if end > n {
		end = n
	}
	return offset, end
}
