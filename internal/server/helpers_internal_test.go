package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/config"
	"github.com/addiskers/dispatch--sub001/internal/db"
)

// testServer creates a Server for internal tests with the given
// write timeout.
func testServer(
	t *testing.T, writeTimeout time.Duration, opts ...Option,
) *Server {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.Config{
		Host:            "127.0.0.1",
		DataDir:         dir,
		DBPath:          dbPath,
		Timezone:        "UTC",
		DefaultPageSize: 50,
		MaxPageSize:     500,
		WriteTimeout:    writeTimeout,
	}
	return New(cfg, database, opts...)
}

// withHandlerDelay makes every timeout-wrapped handler sleep
// first. Must be applied before routes are registered, which
// New guarantees for options.
func withHandlerDelay(d time.Duration) Option {
	return func(s *Server) { s.handlerDelay = d }
}

// isTimeoutResponse reports whether resp is the 503 JSON
// timeout body written by withTimeout.
func isTimeoutResponse(t *testing.T, resp *http.Response) bool {
	t.Helper()
	if resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}
	body, _ := io.ReadAll(resp.Body)
	var je jsonError
	if json.Unmarshal(body, &je) != nil {
		return false
	}
	return je.Error == "request timed out"
}

func assertRecorderStatus(
	t *testing.T, w *httptest.ResponseRecorder, code int,
) {
	t.Helper()
	if w.Code != code {
		t.Fatalf(
			"expected status %d, got %d: %s",
			code, w.Code, w.Body.String(),
		)
	}
}
