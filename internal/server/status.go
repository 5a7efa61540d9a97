package server

import (
	"net/http"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/db"
	"github.com/addiskers/dispatch--sub001/internal/ingest"
)

type healthResponse struct {
	Status string   `json:"status"`
	Stats  db.Stats `json:"stats"`
}

func (s *Server) handleHealth(
	w http.ResponseWriter, r *http.Request,
) {
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable,
			"database unavailable: "+err.Error())
		return
	}
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeData(w, healthResponse{Status: "ok", Stats: stats})
}

type importStatus struct {
	LastRun string       `json:"last_run,omitempty"`
	Stats   ingest.Stats `json:"stats"`
}

func (s *Server) handleImportStatus(
	w http.ResponseWriter, _ *http.Request,
) {
	if s.importer == nil {
		writeError(w, http.StatusNotFound, "import is not configured")
		return
	}
	st := importStatus{Stats: s.importer.LastStats()}
	if t := s.importer.LastRun(); !t.IsZero() {
		st.LastRun = t.UTC().Format(time.RFC3339)
	}
	writeData(w, st)
}

func (s *Server) handleTriggerImport(
	w http.ResponseWriter, r *http.Request,
) {
	if s.importer == nil {
		writeError(w, http.StatusNotFound, "import is not configured")
		return
	}
	force := r.URL.Query().Get("force") == "true"
	stats, err := s.importer.Run(r.Context(), force)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeData(w, stats)
}
