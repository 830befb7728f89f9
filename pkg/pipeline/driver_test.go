package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/exploopio/scanimport/pkg/core"
	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/inventory/memory"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

const (
	zapReport = `<OWASPZAPReport><site host="example.com" port="443" ssl="true"><alerts>` +
		`<alertitem><pluginid>1</pluginid><alert>XSS</alert><riskcode>3</riskcode>` +
		`<instances><instance><uri>https://example.com/a?q=1</uri><method>GET</method><param>q</param></instance></instances>` +
		`</alertitem><alertitem><pluginid>2</pluginid><riskcode>1</riskcode></alertitem>` +
		`</alerts></site></OWASPZAPReport>`
	whatwebReport = `[{"target":"http://10.0.0.9/","http_status":200,"plugins":{"IP":{"string":["10.0.0.9"]}}},{}]`
)

func TestDriver_Process(t *testing.T) {
	inv := memory.New()
	collector := metrics.NewInMemoryCollector()
	d := NewDriver(inv, WithMetrics(collector))

	result, err := d.Process(context.Background(), ris.RawReport{Format: ris.FormatZAP, Name: "zap.xml", Data: []byte(zapReport)})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.Status != StatusSuccess || result.Hosts != 1 || result.Decoded != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v", result)
	}
	if result.Entities.Findings != 1 || result.Entities.Services != 1 {
		t.Errorf("Entities = %+v", result.Entities)
	}
	if want := (severity.CountBySeverity{High: 1, Total: 1}); result.Severities != want {
		t.Errorf("Severities = %+v, want %+v", result.Severities, want)
	}
	if got := collector.GetCounter(metrics.ReportsTotal.Name, "format", "zap", "status", StatusSuccess); got != 1 {
		t.Errorf("reports_total = %v, want 1", got)
	}
	if got := collector.GetCounter(metrics.RecordsSkippedTotal.Name, "format", "zap", "reason", "missing_required_field"); got != 1 {
		t.Errorf("records_skipped_total = %v, want 1", got)
	}
	if len(collector.GetHistogram(metrics.ReportDuration.Name, "format", "zap")) != 1 {
		t.Error("report duration not observed")
	}
}

func TestDriver_DetectsFormat(t *testing.T) {
	inv := memory.New()
	result, err := NewDriver(inv).Process(context.Background(), ris.RawReport{Data: []byte(whatwebReport)})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Format != ris.FormatWhatWeb {
		t.Errorf("Format = %q, want whatweb", result.Format)
	}
	if got := len(inv.Assets()); got != 1 {
		t.Errorf("len(Assets()) = %d, want 1", got)
	}
}

func TestDriver_Errors(t *testing.T) {
	tests := []struct {
		name  string
		raw   ris.RawReport
		check func(error) bool
	}{
		{"malformed", ris.RawReport{Format: ris.FormatZAP, Data: []byte("<OWASPZAPReport>")}, ierrors.IsMalformed},
		{"unsupported tag", ris.RawReport{Format: "nessus", Data: []byte("x")}, ierrors.IsUnsupportedFormat},
		{"undetectable", ris.RawReport{Data: []byte("hello")}, ierrors.IsUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := memory.New()
			result, err := NewDriver(inv).Process(context.Background(), tt.raw)
			if !tt.check(err) {
				t.Errorf("Process() error = %v", err)
			}
			if result != nil {
				t.Errorf("Process() result = %+v, want nil", result)
			}
			if len(inv.Calls()) != 0 {
				t.Errorf("inventory received %d calls, want 0", len(inv.Calls()))
			}
		})
	}
}

func TestDriver_PartialOnInventoryErrors(t *testing.T) {
	inv := memory.New()
	inv.CreateFindingFn = func(ctx context.Context, spec core.FindingSpec) error {
		return errors.New("rejected")
	}

	result, err := NewDriver(inv).Process(context.Background(), ris.RawReport{Format: ris.FormatZAP, Data: []byte(zapReport)})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Status != StatusPartial || len(result.Entities.Errors) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestDriver_ProcessAll(t *testing.T) {
	inv := memory.New()
	raws := []ris.RawReport{
		{Name: "bad", Format: ris.FormatWhatWeb, Data: []byte("[")},
		{Name: "zap", Format: ris.FormatZAP, Data: []byte(zapReport)},
		{Name: "whatweb", Data: []byte(whatwebReport)},
	}

	outcomes := NewDriver(inv).ProcessAll(context.Background(), raws)
	if len(outcomes) != 3 {
		t.Fatalf("len(outcomes) = %d, want 3", len(outcomes))
	}
	if !ierrors.IsMalformed(outcomes[0].Err) || outcomes[0].Name != "bad" {
		t.Errorf("outcomes[0] = %+v", outcomes[0])
	}
	for _, o := range outcomes[1:] {
		if o.Err != nil || o.Result == nil {
			t.Errorf("outcome %s = %+v", o.Name, o)
		}
	}
	if got := len(inv.Assets()); got != 2 {
		t.Errorf("len(Assets()) = %d, want 2", got)
	}
}

func TestDriver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDriver(memory.New()).Process(ctx, ris.RawReport{Format: ris.FormatZAP, Data: []byte(zapReport)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

type stubDecoder struct {
	report *ris.Report
	err    error
}

func (s stubDecoder) Decode(ris.RawReport) (*ris.Report, error) {
	return s.report, s.err
}

func TestDriver_WithDecoder(t *testing.T) {
	report := ris.NewReport(ris.FormatNucleiLegacy)
	report.Hosts = []ris.Host{{Address: "h1"}, {Address: "h2"}}

	inv := memory.New()
	d := NewDriver(inv, WithDecoder(stubDecoder{report: report}))
	result, err := d.Process(context.Background(), ris.RawReport{Format: ris.FormatNucleiLegacy})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Entities.Assets != 2 {
		t.Errorf("Assets = %d, want 2", result.Entities.Assets)
	}
}
