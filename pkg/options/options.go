// Package options holds scanimport configuration: a YAML file, environment
// overrides prefixed with SCANIMPORT_, and functional options for callers
// that configure the engine in code.
package options

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/exploopio/scanimport/pkg/compress"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCANIMPORT_"

// Inventory drivers.
const (
	InventoryMemory   = "memory"
	InventorySQLite   = "sqlite"
	InventoryPostgres = "postgres"
	InventoryNATS     = "nats"
)

// =============================================================================
// Config
// =============================================================================

// Config is the complete scanimport configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" json:"log"`
	Inventory InventoryConfig `yaml:"inventory" json:"inventory"`
	Pipeline  PipelineConfig  `yaml:"pipeline" json:"pipeline"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
}

// InventoryConfig selects and configures the inventory adapter.
type InventoryConfig struct {
	// Driver is memory, sqlite, postgres or nats.
	Driver string `yaml:"driver" json:"driver"`

	// DSN is the database path or connection string (sqlite, postgres).
	DSN string `yaml:"dsn" json:"dsn"`

	// CacheSize is the natural key cache size (sqlite, postgres).
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// NATSURL is the server URL (nats).
	NATSURL string `yaml:"nats_url" json:"nats_url"`

	// SubjectPrefix is the subject prefix of published events (nats).
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`

	// Compression is the event payload compression, gzip or zstd (nats).
	Compression string `yaml:"compression" json:"compression"`
}

// PipelineConfig configures the worker pool.
type PipelineConfig struct {
	Workers   int           `yaml:"workers" json:"workers"`
	QueueSize int           `yaml:"queue_size" json:"queue_size"`
	RateLimit float64       `yaml:"rate_limit" json:"rate_limit"`
	Burst     int           `yaml:"burst" json:"burst"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`

	// MaxReportSize caps the decompressed size of one report in bytes.
	MaxReportSize int64 `yaml:"max_report_size" json:"max_report_size"`
}

// ServerConfig configures the HTTP ingest server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// HideHealthDetails omits per-check results from health responses.
	HideHealthDetails bool `yaml:"hide_health_details" json:"hide_health_details"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Inventory: InventoryConfig{
			Driver:        InventoryMemory,
			CacheSize:     4096,
			SubjectPrefix: "scanimport.inventory",
		},
		Pipeline: PipelineConfig{
			Workers:       4,
			QueueSize:     100,
			Burst:         1,
			Timeout:       5 * time.Minute,
			MaxReportSize: 512 << 20,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Option is a function that configures a Config.
type Option func(*Config)

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty), SCANIMPORT_* environment variables and opts, in that
// order. The result is validated.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		// Expand environment variables in config
		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	Apply(cfg, opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply applies options to cfg.
func Apply(cfg *Config, opts ...Option) {
	for _, opt := range opts {
		opt(cfg)
	}
}

// ApplyEnv overrides cfg from environment variables read through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LOG_LEVEL":                &cfg.Log.Level,
		"INVENTORY_DRIVER":         &cfg.Inventory.Driver,
		"INVENTORY_DSN":            &cfg.Inventory.DSN,
		"INVENTORY_NATS_URL":       &cfg.Inventory.NATSURL,
		"INVENTORY_SUBJECT_PREFIX": &cfg.Inventory.SubjectPrefix,
		"INVENTORY_COMPRESSION":    &cfg.Inventory.Compression,
		"SERVER_ADDR":              &cfg.Server.Addr,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"INVENTORY_CACHE_SIZE": &cfg.Inventory.CacheSize,
		"PIPELINE_WORKERS":     &cfg.Pipeline.Workers,
		"PIPELINE_QUEUE_SIZE":  &cfg.Pipeline.QueueSize,
		"PIPELINE_BURST":       &cfg.Pipeline.Burst,
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	if v, ok := lookup(EnvPrefix + "PIPELINE_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sPIPELINE_RATE_LIMIT: %w", EnvPrefix, err)
		}
		cfg.Pipeline.RateLimit = f
	}
	if v, ok := lookup(EnvPrefix + "PIPELINE_MAX_REPORT_SIZE"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sPIPELINE_MAX_REPORT_SIZE: %w", EnvPrefix, err)
		}
		cfg.Pipeline.MaxReportSize = n
	}
	if v, ok := lookup(EnvPrefix + "PIPELINE_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sPIPELINE_TIMEOUT: %w", EnvPrefix, err)
		}
		cfg.Pipeline.Timeout = d
	}
	return nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	switch c.Inventory.Driver {
	case InventoryMemory, InventorySQLite:
	case InventoryPostgres:
		if c.Inventory.DSN == "" {
			return fmt.Errorf("inventory: postgres requires a dsn")
		}
	case InventoryNATS:
		if c.Inventory.NATSURL == "" {
			return fmt.Errorf("inventory: nats requires nats_url")
		}
		if _, err := compress.For(compress.Algorithm(c.Inventory.Compression)); err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
	default:
		return fmt.Errorf("inventory: unknown driver %q", c.Inventory.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline: workers must be at least 1")
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline: queue_size must be at least 1")
	}
	if c.Pipeline.RateLimit < 0 {
		return fmt.Errorf("pipeline: rate_limit must not be negative")
	}
	return nil
}

// =============================================================================
// Options
// =============================================================================

// WithLogLevel sets the log level.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.Log.Level = level
	}
}

// WithInventory sets the inventory driver and its DSN or URL.
func WithInventory(driver, dsn string) Option {
	return func(c *Config) {
		c.Inventory.Driver = driver
		if driver == InventoryNATS {
			c.Inventory.NATSURL = dsn
		} else {
			c.Inventory.DSN = dsn
		}
	}
}

// WithWorkers sets the worker count.
func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Pipeline.Workers = n
	}
}

// WithRateLimit sets the report rate limit and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.Pipeline.RateLimit = perSecond
		c.Pipeline.Burst = burst
	}
}

// WithServerAddr sets the HTTP listen address.
func WithServerAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}
