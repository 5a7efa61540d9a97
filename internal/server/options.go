package server

import (
	"fmt"
	"net/http"

	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/filter"
)

// handleFilterOptions lists the selectable values of every
// contact dimension. Placeholder and missing values are folded
// into one "Unassigned (N)" option, which the filter compiler
// reads back as the unassigned flag.
func (s *Server) handleFilterOptions(
	w http.ResponseWriter, r *http.Request,
) {
	ctx := r.Context()
	out := make(map[string][]string, len(filter.Dimensions))
	for _, d := range filter.Dimensions {
		values, err := s.db.DistinctContactValues(ctx, d.Field, nil)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		opts := make([]string, 0, len(values)+1)
		for _, v := range values {
			if !crm.IsPlaceholder(v) {
				opts = append(opts, v)
			}
		}

		unassigned := filter.MultiSelect{Unassigned: true}
		n, err := s.db.CountContacts(ctx, unassigned.Cond(d.Field))
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if n > 0 {
			opts = append(opts,
				fmt.Sprintf("%s (%d)", crm.UnassignedPrefix, n))
		}
		out[d.Param] = opts
	}
	writeData(w, out)
}
