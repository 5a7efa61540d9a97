package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/addiskers/dispatch--sub001/internal/config"
	"github.com/addiskers/dispatch--sub001/internal/db"
	"github.com/addiskers/dispatch--sub001/internal/ingest"
	"github.com/addiskers/dispatch--sub001/internal/server"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	watcherDebounce = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "import":
			runImport(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("dispatch %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`dispatch %s - CRM activity analytics

Loads contact and conversation exports into SQLite and serves
activity reports, contact analytics and time-series charts over
a JSON API.

Usage:
  dispatch [flags]               Start the server (default command)
  dispatch serve [flags]         Start the server (explicit)
  dispatch import [flags] [dir]  Import JSONL exports once and exit
  dispatch version               Show version information
  dispatch help                  Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8080)
  -data-dir string    Data directory (default ~/.dispatch)
  -import-dir string  Directory of contacts.jsonl/conversations.jsonl
  -watch              Re-import when export files change
  -log-level string   debug, info, warn or error (default "info")
  -log-format string  text or json (default "text")

Import flags:
  -data-dir string    Data directory (default ~/.dispatch)
  -force              Re-import files even if unchanged

Environment variables:
  DISPATCH_DATA_DIR       Data directory (database, config.yaml)
  DISPATCH_IMPORT_DIR     Export directory
  DISPATCH_TIMEZONE       IANA zone for day boundaries
  DISPATCH_ENV_FILE       Alternate .env file

Data is stored in ~/.dispatch/ by default.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	slog.SetDefault(newLogger(os.Stderr, cfg))

	database := mustOpenDB(cfg)
	defer database.Close()

	opts := []server.Option{
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	if cfg.ImportDir != "" {
		engine := ingest.NewEngine(database, cfg.ImportDir)
		runInitialImport(ctx, engine)
		if cfg.WatchImports {
			stopWatcher := startFileWatcher(ctx, engine)
			defer stopWatcher()
		}
		opts = append(opts, server.WithImporter(engine))
	}

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		slog.Warn("port in use", "port", cfg.Port, "using", port)
	}
	cfg.Port = port

	srv := server.New(cfg, database, opts...)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		sctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Error("shutdown", "err", err)
		}
	}
}

func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: dispatch import [flags] [dir]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterImportFlags(fs)
	force := fs.Bool("force", false, "Re-import files even if unchanged")
	if err := fs.Parse(args); err != nil {
		fatal("parsing flags", err)
	}
	cfg := mustLoad(fs)
	slog.SetDefault(newLogger(os.Stderr, cfg))

	dir := cfg.ImportDir
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr,
			"no import directory: pass one or set DISPATCH_IMPORT_DIR")
		os.Exit(2)
	}

	database := mustOpenDB(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	stats, err := ingest.NewEngine(database, dir).Run(ctx, *force)
	if err != nil {
		fatal("import failed", err)
	}
	printImportStats(os.Stdout, stats)
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("dispatch", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: dispatch [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		fatal("parsing flags", err)
	}
	return mustLoad(fs)
}

func mustLoad(fs *flag.FlagSet) config.Config {
	cfg, err := config.Load(fs)
	if err != nil {
		fatal("loading config", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fatal("creating data dir", err)
	}
	return cfg
}

func mustOpenDB(cfg config.Config) *db.DB {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		fatal("opening database", err)
	}
	return database
}

func runInitialImport(ctx context.Context, engine *ingest.Engine) {
	slog.Info("running initial import", "dir", engine.Dir())
	if _, err := engine.Run(ctx, false); err != nil {
		slog.Warn("initial import failed", "err", err)
	}
}

func startFileWatcher(
	ctx context.Context, engine *ingest.Engine,
) func() {
	onChange := func(paths []string) {
		slog.Debug("export files changed", "paths", paths)
		if _, err := engine.Run(ctx, false); err != nil {
			slog.Warn("re-import failed", "err", err)
		}
	}
	watcher, err := ingest.NewWatcher(
		engine.Dir(), watcherDebounce, onChange,
	)
	if err != nil {
		slog.Warn("file watcher unavailable", "err", err)
		return func() {}
	}
	watcher.Start()
	return watcher.Stop
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
