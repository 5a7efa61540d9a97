// Package ingest loads CRM exports (JSONL) into the store and
// keeps the per-contact analytics snapshots consistent with the
// imported conversations.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/addiskers/dispatch--sub001/internal/activity"
	"github.com/addiskers/dispatch--sub001/internal/crm"
	"github.com/addiskers/dispatch--sub001/internal/db"
)

// Export file names looked up in the import directory.
const (
	ContactsFile      = "contacts.jsonl"
	ConversationsFile = "conversations.jsonl"
)

// batchSize records are written per transaction.
const batchSize = 500

// Stats summarizes one import run.
type Stats struct {
	Files         int      `json:"files"`
	Skipped       int      `json:"skipped"`
	Contacts      int      `json:"contacts"`
	Conversations int      `json:"conversations"`
	Snapshots     int      `json:"snapshots"`
	BadLines      int      `json:"bad_lines"`
	Warnings      []string `json:"warnings,omitempty"`
	Duration      string   `json:"duration"`
}

// maxWarnings caps Stats.Warnings; BadLines keeps the full count.
const maxWarnings = 20

func (s *Stats) warn(msg string) {
	s.BadLines++
	if len(s.Warnings) < maxWarnings {
		s.Warnings = append(s.Warnings, msg)
	}
}

// Engine imports the export files of one directory. Runs are
// serialized.
type Engine struct {
	db  *db.DB
	dir string

	mu        sync.Mutex
	lastRun   time.Time
	lastStats Stats
}

// NewEngine creates an Engine reading from dir.
func NewEngine(database *db.DB, dir string) *Engine {
	return &Engine{db: database, dir: dir}
}

// Dir returns the import directory.
func (e *Engine) Dir() string { return e.dir }

// LastRun returns when the last import finished.
func (e *Engine) LastRun() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun
}

// LastStats returns the stats of the last import.
func (e *Engine) LastStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStats
}

// Run imports the export files whose mtime changed since they
// were last loaded, or all of them when force is set, then
// rebuilds the snapshots of every contact it touched.
func (e *Engine) Run(ctx context.Context, force bool) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var stats Stats
	imported, err := e.db.LoadImportedFiles()
	if err != nil {
		return stats, err
	}

	touched := make(map[int64]bool)
	// Contacts go first so conversation snapshots land on them.
	for _, name := range []string{ContactsFile, ConversationsFile} {
		path := filepath.Join(e.dir, name)
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return stats, fmt.Errorf("stat %s: %w", name, err)
		}
		mtime := info.ModTime().UnixNano()
		if !force && imported[path] == mtime {
			stats.Skipped++
			continue
		}

		if name == ContactsFile {
			err = e.importContacts(ctx, path, touched, &stats)
		} else {
			err = e.importConversations(ctx, path, touched, &stats)
		}
		if err != nil {
			return stats, err
		}
		if err := e.db.MarkImported(path, mtime); err != nil {
			return stats, err
		}
		stats.Files++
	}

	n, err := e.refreshSnapshots(ctx, touched)
	if err != nil {
		return stats, err
	}
	stats.Snapshots = n
	stats.Duration = time.Since(start).Round(time.Millisecond).String()

	e.lastRun = time.Now()
	e.lastStats = stats
	slog.Info("import finished",
		"files", stats.Files,
		"skipped", stats.Skipped,
		"contacts", stats.Contacts,
		"conversations", stats.Conversations,
		"snapshots", stats.Snapshots,
		"bad_lines", stats.BadLines,
		"duration", stats.Duration,
	)
	return stats, nil
}

// eachLine feeds every non-blank line of path to fn, numbering
// lines from 1.
func eachLine(
	ctx context.Context, path string, fn func(n int, line string) error,
) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	lr := newLineReader(f, maxLineLen)
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(lr.lineNo, line); err != nil {
			return err
		}
	}
	if err := lr.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if lr.skipped > 0 {
		slog.Warn("skipped oversized lines",
			"file", filepath.Base(path), "count", lr.skipped)
	}
	return nil
}

func (e *Engine) importContacts(
	ctx context.Context, path string, touched map[int64]bool,
	stats *Stats,
) error {
	base := filepath.Base(path)
	batch := make([]crm.Contact, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.db.UpsertContacts(batch); err != nil {
			return err
		}
		stats.Contacts += len(batch)
		batch = batch[:0]
		return nil
	}

	err := eachLine(ctx, path, func(n int, line string) error {
		c, err := decodeContact(line)
		if err != nil {
			stats.warn(fmt.Sprintf("%s:%d: %v", base, n, err))
			return nil
		}
		touched[c.ID] = true
		batch = append(batch, c)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

func (e *Engine) importConversations(
	ctx context.Context, path string, touched map[int64]bool,
	stats *Stats,
) error {
	base := filepath.Base(path)
	batch := make([]crm.Conversation, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.db.UpsertConversations(batch); err != nil {
			return err
		}
		stats.Conversations += len(batch)
		batch = batch[:0]
		return nil
	}

	err := eachLine(ctx, path, func(n int, line string) error {
		conv, err := decodeConversation(line)
		if err != nil {
			stats.warn(fmt.Sprintf("%s:%d: %v", base, n, err))
			return nil
		}
		touched[conv.ContactID] = true
		batch = append(batch, conv)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// refreshSnapshots rebuilds the snapshot of each touched contact
// that has stored conversations. Contacts without conversations
// keep the snapshot they were exported with.
func (e *Engine) refreshSnapshots(
	ctx context.Context, touched map[int64]bool,
) (int, error) {
	if len(touched) == 0 {
		return 0, nil
	}
	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	contacts, err := e.db.ContactsByID(ctx, ids)
	if err != nil {
		return 0, err
	}

	var updated []crm.Contact
	for _, id := range ids {
		c, ok := contacts[id]
		if !ok {
			continue
		}
		convs, err := e.db.ConversationsForContact(ctx, id)
		if err != nil {
			return 0, err
		}
		if len(convs) == 0 {
			continue
		}
		activity.ApplySnapshot(&c, convs)
		updated = append(updated, c)
	}
	for start := 0; start < len(updated); start += batchSize {
		end := min(start+batchSize, len(updated))
		if err := e.db.UpdateSnapshots(updated[start:end]); err != nil {
			return 0, err
		}
	}
	return len(updated), nil
}
