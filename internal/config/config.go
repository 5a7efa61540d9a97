// Package config resolves runtime settings from defaults, an
// optional .env file, config.yaml in the data directory, DISPATCH_*
// environment variables and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dbFileName     = "dispatch.db"
	envPrefix      = "DISPATCH_"
)

// Config holds all application configuration.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DataDir         string        `yaml:"-"`
	DBPath          string        `yaml:"db_path"`
	ImportDir       string        `yaml:"import_dir"`
	WatchImports    bool          `yaml:"watch_imports"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	Timezone        string        `yaml:"timezone"`
	DefaultPageSize int           `yaml:"default_page_size"`
	MaxPageSize     int           `yaml:"max_page_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf(
			"determining home directory: %w", err,
		)
	}
	return Config{
		Host:            "127.0.0.1",
		Port:            8080,
		DataDir:         filepath.Join(home, ".dispatch"),
		LogLevel:        "info",
		LogFormat:       "text",
		DefaultPageSize: 50,
		MaxPageSize:     500,
		WriteTimeout:    30 * time.Second,
	}, nil
}

// Load builds a Config by layering defaults < .env < config file
// < env < flags. The provided FlagSet must already be parsed by
// the caller. Only flags that were explicitly set override the
// lower layers.
func Load(fs *flag.FlagSet) (Config, error) {
	var dataDir string
	if fs != nil {
		if isSet(fs, "data-dir") {
			dataDir = fs.Lookup("data-dir").Value.String()
		}
	}
	cfg, err := load(dataDir)
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, fs)
	return cfg, cfg.finish()
}

// LoadMinimal builds a Config without CLI flags.
func LoadMinimal() (Config, error) {
	cfg, err := load("")
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.finish()
}

func load(dataDirOverride string) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}

	dotenv, err := readDotenv()
	if err != nil {
		return cfg, fmt.Errorf("loading env file: %w", err)
	}
	fromDotenv := func(k string) (string, bool) {
		v, ok := dotenv[k]
		return v, ok
	}
	if err := cfg.applyEnv(fromDotenv); err != nil {
		return cfg, err
	}
	// The config file lives in the data dir, so the data dir has
	// to be resolved from every layer before the file is read.
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}

	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}
	return cfg, nil
}

// readDotenv reads DISPATCH_ENV_FILE, or .env in the working
// directory. A missing file is not an error.
func readDotenv() (map[string]string, error) {
	path := os.Getenv(envPrefix + "ENV_FILE")
	if path == "" {
		path = ".env"
	}
	m, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	return m, err
}

// ConfigPath returns the path of config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.DataDir, configFileName)
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.ConfigPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("HOST", &c.Host)
	str("DATA_DIR", &c.DataDir)
	str("DB_PATH", &c.DBPath)
	str("IMPORT_DIR", &c.ImportDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("TIMEZONE", &c.Timezone)
	if err := integer("PORT", &c.Port); err != nil {
		return err
	}
	if err := integer("DEFAULT_PAGE_SIZE", &c.DefaultPageSize); err != nil {
		return err
	}
	if err := integer("MAX_PAGE_SIZE", &c.MaxPageSize); err != nil {
		return err
	}
	if v, ok := lookup(envPrefix + "WATCH"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sWATCH: %w", envPrefix, err)
		}
		c.WatchImports = b
	}
	if v, ok := lookup(envPrefix + "WRITE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf(
				"invalid %sWRITE_TIMEOUT: %w", envPrefix, err,
			)
		}
		c.WriteTimeout = d
	}
	return nil
}

// finish fills derived fields and validates the result.
func (c *Config) finish() error {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, dbFileName)
	}
	if c.DefaultPageSize <= 0 {
		return fmt.Errorf("default page size must be positive, got %d",
			c.DefaultPageSize)
	}
	if c.MaxPageSize < c.DefaultPageSize {
		c.MaxPageSize = c.DefaultPageSize
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Location returns the time zone used for day bucketing. An
// empty Timezone means the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RegisterServeFlags registers serve-command flags on fs.
// The caller must call fs.Parse before passing fs to Load.
func RegisterServeFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8080, "Port to listen on")
	fs.String("data-dir", "", "Data directory (default ~/.dispatch)")
	fs.String("import-dir", "", "Directory of JSONL exports to load")
	fs.Bool("watch", false, "Re-import when files in -import-dir change")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text or json")
}

// RegisterImportFlags registers import-command flags on fs.
func RegisterImportFlags(fs *flag.FlagSet) {
	fs.String("data-dir", "", "Data directory (default ~/.dispatch)")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// applyFlags copies explicitly-set flags from fs into cfg.
func applyFlags(cfg *Config, fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "host":
			cfg.Host = v
		case "port":
			// flag already validated the int; ignore parse error
			cfg.Port, _ = strconv.Atoi(v)
		case "data-dir":
			cfg.DataDir = v
		case "import-dir":
			cfg.ImportDir = v
		case "watch":
			cfg.WatchImports = v == "true"
		case "log-level":
			cfg.LogLevel = v
		case "log-format":
			cfg.LogFormat = v
		}
	})
}
