package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/exploopio/scanimport/pkg/compress"
	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/health"
	"github.com/exploopio/scanimport/pkg/inventory/memory"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/pipeline"
)

const nucleiReport = `{"templateID":"tech-detect","info":{"name":"Tech Detect","severity":"info"},"host":"http://10.0.0.7","matched":"http://10.0.0.7/"}
{"templateID":"CVE-2021-44228","info":{"name":"Log4Shell","severity":"critical","reference":["https://logging.apache.org"]},"host":"http://10.0.0.7","matched":"http://10.0.0.7/login"}`

func newTestServer(t *testing.T, cfg *Config) (*Server, *memory.Inventory) {
	t.Helper()
	inv := memory.New()
	if cfg == nil {
		cfg = &Config{}
	}
	return New(pipeline.NewDriver(inv, pipeline.WithMetrics(cfg.Metrics)), cfg), inv
}

func post(t *testing.T, s *Server, path, encoding string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(body)))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIngest(t *testing.T) {
	s, inv := newTestServer(t, nil)

	rec := post(t, s, "/v1/reports/nuclei?name=scan.jsonl", "", []byte(nucleiReport))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result pipeline.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Name != "scan.jsonl" || result.Format != "nuclei_legacy" || result.Status != pipeline.StatusSuccess {
		t.Errorf("result = %+v", result)
	}
	if got := len(inv.Findings()); got != 2 {
		t.Errorf("len(Findings()) = %d, want 2", got)
	}
}

func TestIngest_Compressed(t *testing.T) {
	tests := []struct {
		name     string
		c        *compress.Compressor
		encoding string
	}{
		{"gzip header", compress.DefaultGzip, "gzip"},
		{"zstd header", compress.DefaultZSTD, "zstd"},
		{"gzip sniffed", compress.DefaultGzip, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, inv := newTestServer(t, nil)
			body, err := tt.c.Compress([]byte(nucleiReport))
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}

			rec := post(t, s, "/v1/reports/auto", tt.encoding, body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if got := len(inv.Assets()); got != 1 {
				t.Errorf("len(Assets()) = %d, want 1", got)
			}
		})
	}
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		encoding string
		body     string
		status   int
		kind     string
	}{
		{"malformed", "/v1/reports/zap", "", "<OWASPZAPReport>", http.StatusUnprocessableEntity, "malformed"},
		{"unknown format tag", "/v1/reports/nessus", "", "x", http.StatusBadRequest, "unsupported_format"},
		{"undetectable", "/v1/reports/auto", "", "plain text", http.StatusBadRequest, "unsupported_format"},
		{"empty body", "/v1/reports/zap", "", "", http.StatusBadRequest, "invalid_input"},
		{"unknown encoding", "/v1/reports/zap", "br", "x", http.StatusUnsupportedMediaType, ""},
		{"corrupt gzip", "/v1/reports/zap", "gzip", "not gzip", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, inv := newTestServer(t, nil)
			rec := post(t, s, tt.path, tt.encoding, []byte(tt.body))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}

			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Kind != tt.kind || resp.Error == "" {
				t.Errorf("response = %+v, want kind %q", resp, tt.kind)
			}
			if len(inv.Calls()) != 0 {
				t.Errorf("inventory received %d calls", len(inv.Calls()))
			}
		})
	}
}

func TestIngest_TooLarge(t *testing.T) {
	s, _ := newTestServer(t, &Config{MaxReportSize: 64})

	rec := post(t, s, "/v1/reports/nuclei", "", []byte(nucleiReport))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}

	small, _ := compress.DefaultGzip.Compress([]byte(strings.Repeat(" ", 1000)))
	rec = post(t, s, "/v1/reports/nuclei", "gzip", small)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("decompression bomb status = %d, want 413", rec.Code)
	}
}

func TestIngest_InventoryFailure(t *testing.T) {
	inv := memory.New()
	inv.CreateAssetFn = func(ctx context.Context, spec core.AssetSpec) error {
		return errors.New("down")
	}
	s := New(pipeline.NewDriver(inv), nil)

	rec := post(t, s, "/v1/reports/nuclei", "", []byte(nucleiReport))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result pipeline.Result
	_ = json.NewDecoder(rec.Body).Decode(&result)
	if result.Status != pipeline.StatusPartial {
		t.Errorf("Status = %q, want partial", result.Status)
	}
}

func TestIngest_Async(t *testing.T) {
	inv := memory.New()
	pool := pipeline.NewPool(&pipeline.PoolConfig{Workers: 1, QueueSize: 4}, pipeline.NewDriver(inv))
	ctx := context.Background()
	_ = pool.Start(ctx)
	defer pool.Stop(ctx)

	s := New(pipeline.NewDriver(inv), &Config{Pool: pool})
	rec := post(t, s, "/v1/reports/nuclei?async=true&name=bg", "", []byte(nucleiReport))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var accepted acceptedResponse
	_ = json.NewDecoder(rec.Body).Decode(&accepted)
	if accepted.ID == "" || accepted.Name != "bg" {
		t.Errorf("accepted = %+v", accepted)
	}

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Flush(flushCtx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(inv.Findings()); got != 2 {
		t.Errorf("len(Findings()) = %d, want 2", got)
	}

	statsRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(statsRec, httptest.NewRequest(http.MethodGet, "/v1/pool", nil))
	var stats pipeline.Stats
	_ = json.NewDecoder(statsRec.Body).Decode(&stats)
	if stats.Completed != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestIngest_AsyncDisabled(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if rec := post(t, s, "/v1/reports/nuclei?async=1", "", []byte(nucleiReport)); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFormats(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/formats", nil))

	var body struct {
		Formats []string `json:"formats"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Formats) != 5 {
		t.Errorf("formats = %v, want 5", body.Formats)
	}
}

func TestHealthRoutes(t *testing.T) {
	h := health.NewHandler()
	h.Register("inventory", health.CheckFunc(func(ctx context.Context) health.CheckResult {
		return health.CheckResult{Status: health.StatusHealthy}
	}))
	s, _ := newTestServer(t, &Config{Health: h})

	tests := []struct {
		ready    bool
		path     string
		expected int
	}{
		{false, "/healthz", http.StatusOK},
		{false, "/readyz", http.StatusServiceUnavailable},
		{true, "/readyz", http.StatusOK},
	}

	for _, tt := range tests {
		h.SetReady(tt.ready)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.expected {
			t.Errorf("GET %s (ready=%v) = %d, want %d", tt.path, tt.ready, rec.Code, tt.expected)
		}
	}
}

func TestMetrics(t *testing.T) {
	collector := metrics.NewInMemoryCollector()
	s, _ := newTestServer(t, &Config{Metrics: collector})

	post(t, s, "/v1/reports/nuclei", "", []byte(nucleiReport))
	post(t, s, "/v1/reports/zap", "", []byte("<"))

	if got := collector.GetCounter(metrics.HTTPRequestsTotal.Name, "method", "POST", "route", "/v1/reports/{format}", "status", "200"); got != 1 {
		t.Errorf("200 requests = %v, want 1", got)
	}
	if got := collector.GetCounter(metrics.HTTPRequestsTotal.Name, "method", "POST", "route", "/v1/reports/{format}", "status", "422"); got != 1 {
		t.Errorf("422 requests = %v, want 1", got)
	}
	if got := collector.GetCounter(metrics.ReportsTotal.Name, "format", "nuclei_legacy", "status", pipeline.StatusSuccess); got != 1 {
		t.Errorf("reports_total = %v, want 1", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.expected {
				t.Errorf("statusFor() = %d, want %d", got, tt.expected)
			}
		})
	}
}
