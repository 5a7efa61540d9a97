package server

import (
	"net/url"
	"strings"

	"github.com/addiskers/dispatch--sub001/internal/filter"
	"github.com/addiskers/dispatch--sub001/internal/paginate"
)

// compile builds the filter for a request. Activity queries
// default to today when no date bound is given.
func (s *Server) compile(q url.Values, defaultToday bool) filter.Spec {
	return filter.Compile(q, filter.Options{
		DefaultToday: defaultToday,
		Now:          s.now,
		Location:     s.loc,
	})
}

// pageParams coerces page and limit using the configured sizes.
func (s *Server) pageParams(q url.Values) (page, limit int) {
	return paginate.Parse(
		q.Get("page"), q.Get("limit"),
		s.cfg.DefaultPageSize, s.cfg.MaxPageSize,
	)
}

// sortParams reads sortBy and sortOrder. Order defaults to
// descending; only "asc" selects ascending.
func sortParams(q url.Values) (column string, desc bool) {
	return q.Get("sortBy"), !strings.EqualFold(q.Get("sortOrder"), "asc")
}
