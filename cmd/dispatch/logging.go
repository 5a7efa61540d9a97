package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/addiskers/dispatch--sub001/internal/config"
	"github.com/addiskers/dispatch--sub001/internal/ingest"
)

// newLogger builds the process logger from the configured level
// and format. An unknown level logs at info.
func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func printImportStats(w io.Writer, s ingest.Stats) {
	fmt.Fprintf(w,
		"Import complete: %d files (%d skipped), %d contacts, "+
			"%d conversations, %d snapshots in %s\n",
		s.Files, s.Skipped, s.Contacts, s.Conversations,
		s.Snapshots, s.Duration,
	)
	if s.BadLines > 0 {
		fmt.Fprintf(w, "  %d malformed lines skipped\n", s.BadLines)
	}
	for _, msg := range s.Warnings {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}
