package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/exploopio/scanimport/pkg/core"
	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/fingerprint"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

func newTestStore(t *testing.T, collector metrics.Collector) *Store {
	t.Helper()
	s, err := Open(context.Background(), &Config{Metrics: collector})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"unknown driver", &Config{Driver: "oracle"}},
		{"postgres without dsn", &Config{Driver: DriverPostgres}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(context.Background(), tt.cfg)
			if ierrors.GetKind(err) != ierrors.KindInvalidInput {
				t.Errorf("Open() error = %v, want invalid input", err)
			}
		})
	}
}

func TestStore_UpsertsByNaturalKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	first, err := s.CreateAsset(ctx, core.AssetSpec{Address: "10.0.0.1", Hostnames: []string{"a"}})
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	second, err := s.CreateAsset(ctx, core.AssetSpec{Address: "10.0.0.1", Hostnames: []string{"b"}})
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	if first != second {
		t.Errorf("refs differ: %+v vs %+v", first, second)
	}
	if first.ID != fingerprint.Ref(fingerprint.EntityAsset, first.Key) {
		t.Errorf("ID = %q, want deterministic ref", first.ID)
	}

	stored, err := s.Asset(ctx, first.Key)
	if err != nil {
		t.Fatalf("Asset() error = %v", err)
	}
	if len(stored.Hostnames) != 2 || stored.Hostnames[0] != "a" || stored.Hostnames[1] != "b" {
		t.Errorf("Hostnames = %v, want [a b]", stored.Hostnames)
	}

	iface, err := s.CreateInterface(ctx, first, core.InterfaceSpec{Name: "default", HardwareAddress: "00:00:00:00:00:00"})
	if err != nil {
		t.Fatalf("CreateInterface() error = %v", err)
	}
	svcSpec := core.ServiceSpec{Name: "http", Protocol: "tcp", Ports: []int{80}}
	svc, err := s.CreateService(ctx, first, &iface, svcSpec)
	if err != nil {
		t.Fatalf("CreateService() error = %v", err)
	}
	svcSpec.Version = "nginx"
	again, err := s.CreateService(ctx, first, nil, svcSpec)
	if err != nil {
		t.Fatalf("CreateService() error = %v", err)
	}
	if svc != again {
		t.Errorf("service refs differ: %+v vs %+v", svc, again)
	}

	for _, name := range []string{"XSS", "XSS", "SQLi"} {
		spec := core.FindingSpec{Name: name, Severity: severity.High, Web: &ris.WebContext{Website: "10.0.0.1", Path: "/"}}
		if _, err := s.CreateFinding(ctx, first, &svc, spec); err != nil {
			t.Fatalf("CreateFinding() error = %v", err)
		}
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	want := Counts{Assets: 1, Interfaces: 1, Services: 1, Findings: 2}
	if *counts != want {
		t.Errorf("Counts() = %+v, want %+v", *counts, want)
	}

	bySeverity, err := s.FindingsBySeverity(ctx)
	if err != nil {
		t.Fatalf("FindingsBySeverity() error = %v", err)
	}
	if bySeverity["high"] != 2 {
		t.Errorf("FindingsBySeverity() = %v", bySeverity)
	}
}

func TestStore_FindingSpecRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, nil)

	asset, _ := s.CreateAsset(ctx, core.AssetSpec{Address: "host"})
	spec := core.FindingSpec{
		Name:       "Weak TLS",
		Severity:   severity.Medium,
		References: []string{"cve-2014-3566"},
		Attributes: map[string]string{"scan_id": "4"},
	}
	ref, err := s.CreateFinding(ctx, asset, nil, spec)
	if err != nil {
		t.Fatalf("CreateFinding() error = %v", err)
	}

	got, err := s.Finding(ctx, ref.Key)
	if err != nil {
		t.Fatalf("Finding() error = %v", err)
	}
	if got.Severity != severity.Medium || got.References[0] != "cve-2014-3566" || got.Attributes["scan_id"] != "4" {
		t.Errorf("Finding() = %+v", got)
	}

	if _, err := s.Finding(ctx, "missing"); ierrors.GetKind(err) != ierrors.KindInvalidInput {
		t.Errorf("Finding(missing) error = %v", err)
	}
}

func TestStore_Cache(t *testing.T) {
	ctx := context.Background()
	collector := metrics.NewInMemoryCollector()
	s := newTestStore(t, collector)

	for i := 0; i < 3; i++ {
		if _, err := s.CreateAsset(ctx, core.AssetSpec{Address: "10.0.0.1"}); err != nil {
			t.Fatalf("CreateAsset() error = %v", err)
		}
	}

	if got := collector.GetCounter(metrics.CacheMisses.Name, "entity", "asset"); got != 1 {
		t.Errorf("cache misses = %v, want 1", got)
	}
	if got := collector.GetCounter(metrics.CacheHits.Name, "entity", "asset"); got != 2 {
		t.Errorf("cache hits = %v, want 2", got)
	}
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "inventory.db")

	s, err := Open(ctx, &Config{DSN: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	first, _ := s.CreateAsset(ctx, core.AssetSpec{Address: "10.0.0.1", Hostnames: []string{"a"}})
	s.Close()

	s, err = Open(ctx, &Config{DSN: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	second, err := s.CreateAsset(ctx, core.AssetSpec{Address: "10.0.0.1", Hostnames: []string{"b"}})
	if err != nil {
		t.Fatalf("CreateAsset() error = %v", err)
	}
	if first != second {
		t.Errorf("refs differ after reopen: %+v vs %+v", first, second)
	}
	stored, _ := s.Asset(ctx, second.Key)
	if len(stored.Hostnames) != 2 {
		t.Errorf("Hostnames = %v, want merged", stored.Hostnames)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver   string
		input    string
		expected string
	}{
		{DriverSQLite, "SELECT ? WHERE a = ?", "SELECT ? WHERE a = ?"},
		{DriverPostgres, "SELECT ? WHERE a = ?", "SELECT $1 WHERE a = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.input, func(t *testing.T) {
			s := &Store{driver: tt.driver}
			if got := s.rebind(tt.input); got != tt.expected {
				t.Errorf("rebind(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
