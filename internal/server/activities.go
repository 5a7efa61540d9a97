package server

import (
	"net/http"

	"github.com/addiskers/dispatch--sub001/internal/activity"
	"github.com/addiskers/dispatch--sub001/internal/paginate"
)

// activitiesResponse is the report with one page of activities.
type activitiesResponse struct {
	activity.Report
	Activities []activity.Activity `json:"activities"`
}

func (s *Server) handleActivities(
	w http.ResponseWriter, r *http.Request,
) {
	q := r.URL.Query()
	spec := s.compile(q, true)

	report, err := activity.Collect(r.Context(), s.db, spec, s.loc)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	page, limit := s.pageParams(q)
	items, p := paginate.Slice(report.Activities, page, limit)
	writePage(w, activitiesResponse{Report: report, Activities: items}, p)
}
