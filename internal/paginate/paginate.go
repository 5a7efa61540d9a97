// Package paginate slices fully materialized result lists into
// pages.
package paginate

import (
	"strconv"
	"strings"
)

// Page is the pagination metadata returned with every list.
type Page struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// Parse coerces raw page and limit parameters. Missing or
// invalid pages become 1. Missing or invalid limits become def,
// and limits above maxLimit are clamped.
func Parse(pageStr, limitStr string, def, maxLimit int) (page, limit int) {
	page = atoi(pageStr)
	if page < 1 {
		page = 1
	}
	limit = atoi(limitStr)
	if limit <= 0 {
		limit = def
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// atoi accepts integers and truncates decimals ("2.7" -> 2).
// Anything else is 0.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil &&
		f > -1e9 && f < 1e9 {
		return int(f)
	}
	return 0
}

// Slice returns items[(page-1)*limit : page*limit] and the page
// metadata. Pages past the end yield an empty, non-nil slice.
func Slice[T any](items []T, page, limit int) ([]T, Page) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	total := len(items)
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	p := Page{
		CurrentPage: page,
		TotalPages:  pages,
		TotalCount:  total,
		Limit:       limit,
		HasNextPage: page < pages,
		HasPrevPage: page > 1,
	}

	// Compare page numbers before multiplying: a huge page would
	// overflow (page-1)*limit.
	if page > pages {
		return []T{}, p
	}
	start := (page - 1) * limit
	end := min(start+limit, total)
	return items[start:end], p
}
