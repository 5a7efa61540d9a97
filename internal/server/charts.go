package server

import (
	"errors"
	"net/http"

	"github.com/addiskers/dispatch--sub001/internal/analytics"
)

type chartResponse struct {
	Chart       analytics.Chart       `json:"chart"`
	Granularity analytics.Granularity `json:"granularity"`
	Series      []analytics.Row       `json:"series"`
}

func (s *Server) handleChart(
	w http.ResponseWriter, r *http.Request,
) {
	chart, err := analytics.ParseChart(r.PathValue("chart"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	spec := s.compile(q, false)
	g := analytics.ParseGranularity(q.Get("period"))

	now := s.now()
	if spec.Window.IsZero() {
		spec.Window = analytics.DefaultWindow(now)
	}
	// The window goes to storage so the fetch cap applies to
	// contacts inside it.
	contacts, err := s.loadContacts(r.Context(), spec, true)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	rows, err := analytics.TimeSeries(contacts, chart, spec,
		analytics.SeriesOptions{
			Granularity: g,
			Now:         now,
			Location:    s.loc,
		})
	if errors.Is(err, analytics.ErrUnknownChart) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeData(w, chartResponse{Chart: chart, Granularity: g, Series: rows})
}
