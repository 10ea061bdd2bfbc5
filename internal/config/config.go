// Package config resolves pgtree's configuration once at startup.
//
// Precedence, lowest first: DefaultConfig, the YAML file, a .env file in the
// working directory, the process environment, command-line flags. Flags are
// applied by the caller after ApplyEnv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/pgtree/internal/database"
	"github.com/koustreak/pgtree/internal/emit"
	"github.com/koustreak/pgtree/internal/errs"
	"github.com/koustreak/pgtree/internal/filestore"
	"github.com/koustreak/pgtree/internal/logger"
	"github.com/koustreak/pgtree/internal/walk"
)

// DefaultPath is read when no --config flag is given. It may be absent.
const DefaultPath = "pgtree.yaml"

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig   `yaml:"database"`
	Walk     WalkConfig       `yaml:"walk"`
	Output   OutputConfig     `yaml:"output"`
	Log      LogConfig        `yaml:"log"`
	Storage  filestore.Config `yaml:"storage"`
	Server   ServerConfig     `yaml:"server"`
}

// DatabaseConfig holds session settings.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	ApplicationName  string        `yaml:"application_name"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"` // 0 disables
	FetchSize        int           `yaml:"fetch_size"`
}

// WalkConfig selects schemas, relation kinds and detail categories.
type WalkConfig struct {
	Schema        string `yaml:"schema"`
	Match         string `yaml:"match"` // exact, substring or regex
	IncludeSystem bool   `yaml:"include_system"`

	Views             bool `yaml:"views"`
	MaterializedViews bool `yaml:"materialized_views"`
	ForeignTables     bool `yaml:"foreign_tables"`

	Indexes     bool `yaml:"indexes"`
	ForeignKeys bool `yaml:"foreign_keys"`
	Triggers    bool `yaml:"triggers"`
	Functions   bool `yaml:"functions"`
}

// OutputConfig controls rendering and delivery of the snapshot.
type OutputConfig struct {
	Format string `yaml:"format"` // tree or json
	Pretty bool   `yaml:"pretty"`
	Path   string `yaml:"path"`   // empty writes to stdout
	Upload string `yaml:"upload"` // s3://bucket/key, optional

	// Presign, when positive, logs a download URL for the uploaded
	// snapshot that stays valid this long.
	Presign time.Duration `yaml:"presign"`
}

// LogConfig holds logger settings. Logs always go to stderr.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console or auto
}

// ServerConfig holds settings for `pgtree serve`.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RateLimit caps snapshot requests per second across all clients,
	// each one holds a database session. 0 disables the limit.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	// CORSOrigins lists the origins allowed to call the API from a
	// browser. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	db := database.DefaultConfig("")
	return &Config{
		Database: DatabaseConfig{
			ApplicationName: db.ApplicationName,
			ConnectTimeout:  db.ConnectTimeout,
			FetchSize:       db.FetchSize,
		},
		Walk:   WalkConfig{Match: walk.ModeExact.String()},
		Output: OutputConfig{Format: string(emit.FormatTree)},
		Log:    LogConfig{Level: "info", Format: "auto"},
		Storage: filestore.Config{
			Provider: filestore.ProviderMinIO,
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
			Burst:           4,
		},
	}
}

// Load reads a Config from the YAML file at path on top of the defaults.
// A missing file yields DefaultConfig unless mustExist is set.
func Load(path string, mustExist bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return cfg, nil
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config "+path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse config "+path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads path into the process environment if it exists.
// Variables that are already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "load "+path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read through
// lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Database.DSN, "PGTREE_DSN", "DATABASE_URL")
	str(&c.Database.ApplicationName, "PGTREE_APPLICATION_NAME")
	str(&c.Log.Level, "PGTREE_LOG_LEVEL")
	str(&c.Log.Format, "PGTREE_LOG_FORMAT")
	str(&c.Storage.Endpoint, "PGTREE_S3_ENDPOINT")
	str(&c.Storage.AccessKey, "PGTREE_S3_ACCESS_KEY")
	str(&c.Storage.SecretKey, "PGTREE_S3_SECRET_KEY")
	str(&c.Storage.Region, "PGTREE_S3_REGION")
	if v, ok := lookup("PGTREE_S3_PROVIDER"); ok && v != "" {
		c.Storage.Provider = filestore.Provider(v)
	}

	if v, ok := lookup("PGTREE_STATEMENT_TIMEOUT"); ok && v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "PGTREE_STATEMENT_TIMEOUT", err)
		}
		c.Database.StatementTimeout = d
	}
	if v, ok := lookup("PGTREE_FETCH_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "PGTREE_FETCH_SIZE", err)
		}
		c.Database.FetchSize = n
	}
	if v, ok := lookup("PGTREE_S3_USE_SSL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "PGTREE_S3_USE_SSL", err)
		}
		c.Storage.UseSSL = b
	}
	return nil
}

// ParseTimeout accepts a Go duration ("30s", "1m30s") or a bare number of
// milliseconds ("1500"), the unit PostgreSQL uses for statement_timeout.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// Validate checks the resolved configuration without touching the network.
func (c *Config) Validate() error {
	if c.Database.FetchSize < 1 {
		return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("fetch_size must be at least 1, got %d", c.Database.FetchSize))
	}
	if c.Database.StatementTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "statement_timeout must not be negative")
	}
	if c.Database.ConnectTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "connect_timeout must not be negative")
	}
	if _, err := emit.ParseFormat(c.Output.Format); err != nil {
		return err
	}
	if _, err := c.Selector(); err != nil {
		return err
	}
	if c.Output.Upload != "" {
		if _, err := filestore.ParseLocation(c.Output.Upload); err != nil {
			return err
		}
		if c.Storage.Endpoint == "" {
			return errs.New(errs.ErrKindInvalidInput, "upload requested but no object store endpoint is configured")
		}
		p, err := filestore.ParseProvider(string(c.Storage.Provider))
		if err != nil {
			return err
		}
		c.Storage.Provider = p
	}
	if c.Output.Presign < 0 {
		return errs.New(errs.ErrKindInvalidInput, "presign must not be negative")
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		return errs.New(errs.ErrKindInvalidInput, "rate_limit and burst must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "json", "console":
	default:
		return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	return nil
}

// Session returns the database session settings.
func (c *Config) Session() *database.Config {
	return &database.Config{
		DSN:              c.Database.DSN,
		ApplicationName:  c.Database.ApplicationName,
		ConnectTimeout:   c.Database.ConnectTimeout,
		StatementTimeout: c.Database.StatementTimeout,
		FetchSize:        c.Database.FetchSize,
	}
}

// Selector returns the validated schema selector.
func (c *Config) Selector() (walk.Selector, error) {
	mode, err := walk.ParseMode(c.Walk.Match)
	if err != nil {
		return walk.Selector{}, err
	}
	sel := walk.Selector{Value: c.Walk.Schema, Mode: mode, IncludeSystem: c.Walk.IncludeSystem}
	if err := sel.Validate(); err != nil {
		return walk.Selector{}, err
	}
	return sel, nil
}

// Filters returns the relation kind and detail filters.
func (c *Config) Filters() walk.Filters {
	return walk.Filters{
		Views:             c.Walk.Views,
		MaterializedViews: c.Walk.MaterializedViews,
		ForeignTables:     c.Walk.ForeignTables,
		Indexes:           c.Walk.Indexes,
		ForeignKeys:       c.Walk.ForeignKeys,
		Triggers:          c.Walk.Triggers,
		Functions:         c.Walk.Functions,
	}
}

// Logger returns the logger settings, writing to stderr.
func (c *Config) Logger() *logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	if c.Log.Format != "" {
		cfg.Format = c.Log.Format
	}
	return cfg
}
