// Package sqlstore provides a core.Inventory backed by database/sql.
//
// SQLite (modernc.org/sqlite, pure Go) is the default driver; PostgreSQL is
// supported through lib/pq. Entities are upserted by natural key, so repeated
// imports of the same report merge into the same rows.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/lib/pq"   // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/exploopio/scanimport/pkg/core"
	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/inventory"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/shared/fingerprint"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config configures a Store.
type Config struct {
	// Driver is "sqlite" or "postgres".
	// Default: sqlite
	Driver string

	// DSN is the data source name. For sqlite it is a file path or ":memory:".
	// Default: ":memory:"
	DSN string

	// CacheSize is the number of natural keys kept in the write cache.
	// Default: 4096
	CacheSize int

	// Logger receives store events. Default: nop.
	Logger core.Logger

	// Metrics receives cache counters. Default: nop.
	Metrics metrics.Collector
}

// DefaultConfig returns an in-memory SQLite configuration.
func DefaultConfig() *Config {
	return &Config{
		Driver:    DriverSQLite,
		DSN:       ":memory:",
		CacheSize: 4096,
	}
}

// cached is the last state written for a natural key.
type cached struct {
	id        string
	hash      string
	hostnames []string
}

// Store is a SQL-backed core.Inventory.
type Store struct {
	db      *sql.DB
	driver  string
	cache   *lru.Cache[string, cached]
	logger  core.Logger
	metrics metrics.Collector

	mu sync.Mutex
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := cfg.DSN
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 4096
	}

	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = ":memory:"
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, ierrors.E(ierrors.KindInvalidInput, "sqlstore.Open", "postgres requires a dsn")
		}
	default:
		return nil, ierrors.E(ierrors.KindInvalidInput, "sqlstore.Open", fmt.Sprintf("unsupported driver %q", driver))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection keeps ":memory:" databases shared and
		// serializes writers.
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA temp_store=MEMORY",
			"PRAGMA busy_timeout=5000",
		}
		for _, pragma := range pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("set pragma: %w", err)
			}
		}
	}

	cache, err := lru.New[string, cached](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	s := &Store{
		db:      db,
		driver:  driver,
		cache:   cache,
		logger:  core.LoggerOrNop(cfg.Logger),
		metrics: metrics.OrNop(cfg.Metrics),
	}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s.logger.Debug("inventory store opened (driver=%s)", driver)
	return s, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the database tables if they don't exist.
func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			natural_key TEXT NOT NULL UNIQUE,
			address TEXT NOT NULL,
			spec TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS interfaces (
			id TEXT PRIMARY KEY,
			natural_key TEXT NOT NULL UNIQUE,
			asset_id TEXT NOT NULL,
			hardware_address TEXT NOT NULL,
			spec TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id TEXT PRIMARY KEY,
			natural_key TEXT NOT NULL UNIQUE,
			asset_id TEXT NOT NULL,
			interface_id TEXT,
			protocol TEXT NOT NULL,
			port INTEGER NOT NULL,
			spec TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS findings (
			id TEXT PRIMARY KEY,
			natural_key TEXT NOT NULL UNIQUE,
			asset_id TEXT NOT NULL,
			service_id TEXT,
			name TEXT NOT NULL,
			severity TEXT NOT NULL,
			spec TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interfaces_asset_id ON interfaces(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_services_asset_id ON services(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_asset_id ON findings(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateAsset upserts an asset keyed by address. Hostnames accumulate
// across calls.
func (s *Store) CreateAsset(ctx context.Context, spec core.AssetSpec) (core.AssetRef, error) {
	key := inventory.AssetKey(spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, found, err := s.lookup(ctx, "assets", fingerprint.EntityAsset, key)
	if err != nil {
		return core.AssetRef{}, s.fail("sqlstore.CreateAsset", err)
	}
	if found {
		spec.Hostnames = union(prev.hostnames, spec.Hostnames)
	}

	id, err := s.upsert(ctx, fingerprint.EntityAsset, key, prev, spec, spec.Hostnames,
		`INSERT INTO assets (id, natural_key, address, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO UPDATE SET
			spec = excluded.spec,
			updated_at = excluded.updated_at`,
		func(id, doc string, now time.Time) []any {
			return []any{id, key, spec.Address, doc, now, now}
		})
	if err != nil {
		return core.AssetRef{}, s.fail("sqlstore.CreateAsset", err)
	}
	return core.AssetRef{ID: id, Key: key}, nil
}

// CreateInterface upserts an interface keyed by asset and hardware address.
func (s *Store) CreateInterface(ctx context.Context, asset core.AssetRef, spec core.InterfaceSpec) (core.InterfaceRef, error) {
	key := inventory.InterfaceKey(asset, spec)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, found, err := s.lookup(ctx, "interfaces", fingerprint.EntityInterface, key)
	if err != nil {
		return core.InterfaceRef{}, s.fail("sqlstore.CreateInterface", err)
	}
	if found {
		spec.Hostnames = union(prev.hostnames, spec.Hostnames)
	}

	id, err := s.upsert(ctx, fingerprint.EntityInterface, key, prev, spec, spec.Hostnames,
		`INSERT INTO interfaces (id, natural_key, asset_id, hardware_address, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO UPDATE SET
			spec = excluded.spec,
			updated_at = excluded.updated_at`,
		func(id, doc string, now time.Time) []any {
			return []any{id, key, asset.ID, spec.HardwareAddress, doc, now, now}
		})
	if err != nil {
		return core.InterfaceRef{}, s.fail("sqlstore.CreateInterface", err)
	}
	return core.InterfaceRef{ID: id, Key: key}, nil
}

// CreateService upserts a service keyed by asset, protocol and port.
func (s *Store) CreateService(ctx context.Context, asset core.AssetRef, iface *core.InterfaceRef, spec core.ServiceSpec) (core.ServiceRef, error) {
	key := inventory.ServiceKey(asset, spec)
	var ifaceID sql.NullString
	if iface != nil {
		ifaceID = sql.NullString{String: iface.ID, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _, err := s.lookup(ctx, "services", fingerprint.EntityService, key)
	if err != nil {
		return core.ServiceRef{}, s.fail("sqlstore.CreateService", err)
	}

	id, err := s.upsert(ctx, fingerprint.EntityService, key, prev, spec, nil,
		`INSERT INTO services (id, natural_key, asset_id, interface_id, protocol, port, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO UPDATE SET
			interface_id = COALESCE(excluded.interface_id, services.interface_id),
			spec = excluded.spec,
			updated_at = excluded.updated_at`,
		func(id, doc string, now time.Time) []any {
			return []any{id, key, asset.ID, ifaceID, spec.Protocol, spec.Port(), doc, now, now}
		})
	if err != nil {
		return core.ServiceRef{}, s.fail("sqlstore.CreateService", err)
	}
	return core.ServiceRef{ID: id, Key: key}, nil
}

// CreateFinding upserts a finding keyed by its owner, name and web
// location.
func (s *Store) CreateFinding(ctx context.Context, asset core.AssetRef, service *core.ServiceRef, spec core.FindingSpec) (core.FindingRef, error) {
	key := inventory.FindingKey(asset, service, spec)
	var serviceID sql.NullString
	if service != nil {
		serviceID = sql.NullString{String: service.ID, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _, err := s.lookup(ctx, "findings", fingerprint.EntityFinding, key)
	if err != nil {
		return core.FindingRef{}, s.fail("sqlstore.CreateFinding", err)
	}

	id, err := s.upsert(ctx, fingerprint.EntityFinding, key, prev, spec, nil,
		`INSERT INTO findings (id, natural_key, asset_id, service_id, name, severity, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(natural_key) DO UPDATE SET
			severity = excluded.severity,
			spec = excluded.spec,
			updated_at = excluded.updated_at`,
		func(id, doc string, now time.Time) []any {
			return []any{id, key, asset.ID, serviceID, spec.Name, string(spec.Severity), doc, now, now}
		})
	if err != nil {
		return core.FindingRef{}, s.fail("sqlstore.CreateFinding", err)
	}
	return core.FindingRef{ID: id, Key: key}, nil
}

// lookup returns the last written state of key, from the cache or the
// database. Callers hold s.mu.
func (s *Store) lookup(ctx context.Context, table string, entity fingerprint.Entity, key string) (cached, bool, error) {
	cacheKey := string(entity) + ":" + key
	if c, ok := s.cache.Get(cacheKey); ok {
		s.metrics.CounterInc(metrics.CacheHits.Name, "entity", string(entity))
		return c, true, nil
	}
	s.metrics.CounterInc(metrics.CacheMisses.Name, "entity", string(entity))

	var id, doc string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, spec FROM "+table+" WHERE natural_key = ?"), key).Scan(&id, &doc)
	if err == sql.ErrNoRows {
		return cached{}, false, nil
	}
	if err != nil {
		return cached{}, false, err
	}

	c := cached{id: id, hash: fingerprint.Hash(doc)}
	var withHostnames struct {
		Hostnames []string `json:"hostnames"`
	}
	if err := json.Unmarshal([]byte(doc), &withHostnames); err == nil {
		c.hostnames = withHostnames.Hostnames
	}
	s.cache.Add(cacheKey, c)
	return c, true, nil
}

// upsert writes spec unless the stored document is already identical.
// Callers hold s.mu.
func (s *Store) upsert(ctx context.Context, entity fingerprint.Entity, key string, prev cached, spec any, hostnames []string, query string, args func(id, doc string, now time.Time) []any) (string, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", entity, err)
	}
	doc := string(raw)
	hash := fingerprint.Hash(doc)

	id := prev.id
	if id == "" {
		id = fingerprint.Ref(entity, key)
	}
	if prev.hash == hash {
		return id, nil
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(query), args(id, doc, time.Now().UTC())...); err != nil {
		return "", err
	}

	s.cache.Add(string(entity)+":"+key, cached{id: id, hash: hash, hostnames: slices.Clone(hostnames)})
	return id, nil
}

func (s *Store) fail(op string, err error) error {
	s.logger.Error("%s: %v", op, err)
	return ierrors.E(ierrors.KindInventory, op, "write failed", err)
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Counts is the number of stored rows per entity.
type Counts struct {
	Assets     int `json:"assets"`
	Interfaces int `json:"interfaces"`
	Services   int `json:"services"`
	Findings   int `json:"findings"`
}

// Counts returns the number of stored rows per entity.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	targets := []struct {
		table string
		dst   *int
	}{
		{"assets", &c.Assets},
		{"interfaces", &c.Interfaces},
		{"services", &c.Services},
		{"findings", &c.Findings},
	}
	for _, t := range targets {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return c, nil
}

// Asset returns the stored spec of the asset with the given natural key.
func (s *Store) Asset(ctx context.Context, key string) (*core.AssetSpec, error) {
	var spec core.AssetSpec
	if err := s.get(ctx, "assets", key, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Finding returns the stored spec of the finding with the given natural key.
func (s *Store) Finding(ctx context.Context, key string) (*core.FindingSpec, error) {
	var spec core.FindingSpec
	if err := s.get(ctx, "findings", key, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}

// FindingsBySeverity returns the number of stored findings per severity.
func (s *Store) FindingsBySeverity(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT severity, COUNT(*) FROM findings GROUP BY severity")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		out[sev] = n
	}
	return out, rows.Err()
}

// get decodes the spec document of key into dst. A missing row is a
// KindInvalidInput error.
func (s *Store) get(ctx context.Context, table, key string, dst any) error {
	var doc string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT spec FROM "+table+" WHERE natural_key = ?"), key).Scan(&doc)
	if err == sql.ErrNoRows {
		return ierrors.E(ierrors.KindInvalidInput, "sqlstore.get", fmt.Sprintf("%s %q not found", table, key), err)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(doc), dst)
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Ensure Store implements core.Inventory
var _ core.Inventory = (*Store)(nil)
