// Package pipeline runs raw scanner reports through decoding and entity
// building, either one at a time with a Driver or concurrently with a Pool.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/exploopio/scanimport/pkg/builder"
	"github.com/exploopio/scanimport/pkg/core"
	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/scanners"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

const opProcess = "pipeline.Process"

// Report statuses used in logs and metrics.
const (
	StatusSuccess     = "success"
	StatusPartial     = "partial"
	StatusMalformed   = "malformed"
	StatusUnsupported = "unsupported"
	StatusFailed      = "failed"
)

// Decoder decodes a raw report.
type Decoder interface {
	Decode(raw ris.RawReport) (*ris.Report, error)
}

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc func(raw ris.RawReport) (*ris.Report, error)

// Decode calls f(raw).
func (f DecoderFunc) Decode(raw ris.RawReport) (*ris.Report, error) {
	return f(raw)
}

// Result describes one processed report.
type Result struct {
	Name       string                   `json:"name,omitempty"`
	Format     ris.Format               `json:"format"`
	Status     string                   `json:"status"`
	Hosts      int                      `json:"hosts"`
	Decoded    int                      `json:"findings_decoded"`
	Severities severity.CountBySeverity `json:"severities"`
	Skipped    int                      `json:"records_skipped"`
	Entities   *builder.Result          `json:"entities"`
	Duration   time.Duration            `json:"duration_ns"`

	// Record errors reported by the decoder
	SkippedErrors []error `json:"-"`
}

// Outcome is the result of one report of a batch.
type Outcome struct {
	Name   string
	Result *Result
	Err    error
}

// Driver decodes reports and hands their entities to an inventory.
type Driver struct {
	decoder Decoder
	builder *builder.Builder
	logger  core.Logger
	metrics metrics.Collector
}

// Option configures a Driver.
type Option func(*driverConfig)

type driverConfig struct {
	decoder Decoder
	logger  core.Logger
	metrics metrics.Collector
}

// WithLogger sets the logger of the driver and its builder.
func WithLogger(logger core.Logger) Option {
	return func(c *driverConfig) {
		c.logger = core.LoggerOrNop(logger)
	}
}

// WithMetrics sets the metrics collector of the driver and its builder.
func WithMetrics(collector metrics.Collector) Option {
	return func(c *driverConfig) {
		c.metrics = metrics.OrNop(collector)
	}
}

// WithDecoder replaces the built-in decoders.
func WithDecoder(decoder Decoder) Option {
	return func(c *driverConfig) {
		c.decoder = decoder
	}
}

// NewDriver creates a driver writing to inventory.
func NewDriver(inventory core.Inventory, opts ...Option) *Driver {
	cfg := &driverConfig{
		logger:  &core.NopLogger{},
		metrics: &metrics.NopCollector{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.decoder == nil {
		cfg.decoder = DecoderFunc(scanners.Decode)
	}

	return &Driver{
		decoder: cfg.decoder,
		builder: builder.New(inventory, builder.WithLogger(cfg.logger), builder.WithMetrics(cfg.metrics)),
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
}

// Process decodes raw and builds its entities. An empty format is detected
// from the content. A malformed or unsupported report returns an error and
// creates no entity. Skipped records and inventory failures are reported in
// the Result.
func (d *Driver) Process(ctx context.Context, raw ris.RawReport) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if raw.Format == "" {
		format, ok := scanners.Detect(raw.Data)
		if !ok {
			err := ierrors.E(ierrors.KindUnsupportedFormat, opProcess, fmt.Sprintf("%s: format not recognized", displayName(raw)))
			d.finish(raw, StatusUnsupported)
			d.logger.Error("%v", err)
			return nil, err
		}
		d.logger.Debug("detected %s format for %s", format, displayName(raw))
		raw.Format = format
	}

	start := time.Now()
	timer := metrics.NewTimer(d.metrics, metrics.ReportDuration.Name, "format", string(raw.Format))

	report, err := d.decoder.Decode(raw)
	if err != nil {
		status := StatusFailed
		switch {
		case ierrors.IsMalformed(err):
			status = StatusMalformed
		case ierrors.IsUnsupportedFormat(err):
			status = StatusUnsupported
		}
		d.finish(raw, status)
		d.logger.Error("decode %s (%s): %v", displayName(raw), raw.Format, err)
		return nil, err
	}

	for _, skipped := range report.Skipped {
		d.logger.Warn("%s: skipped record: %v", displayName(raw), skipped)
		d.metrics.CounterInc(metrics.RecordsSkippedTotal.Name,
			"format", string(raw.Format), "reason", ierrors.GetKind(skipped).String())
	}

	built, err := d.builder.Build(ctx, report)
	if err != nil {
		d.finish(raw, StatusFailed)
		return nil, err
	}
	timer.ObserveDuration()

	result := &Result{
		Name:          raw.Name,
		Format:        raw.Format,
		Status:        StatusSuccess,
		Hosts:         len(report.Hosts),
		Decoded:       report.FindingCount(),
		Severities:    report.Severities(),
		Skipped:       len(report.Skipped),
		Entities:      built,
		Duration:      time.Since(start),
		SkippedErrors: report.Skipped,
	}
	if len(built.Errors) > 0 {
		result.Status = StatusPartial
	}
	d.finish(raw, result.Status)

	d.logger.Info("processed %s (%s): %d hosts, %d findings, %d skipped, %d inventory errors",
		displayName(raw), raw.Format, result.Hosts, built.Findings, result.Skipped, len(built.Errors))
	return result, nil
}

// ProcessAll processes reports one after another. A failing report does not
// stop the batch.
func (d *Driver) ProcessAll(ctx context.Context, raws []ris.RawReport) []Outcome {
	outcomes := make([]Outcome, 0, len(raws))
	for _, raw := range raws {
		result, err := d.Process(ctx, raw)
		outcomes = append(outcomes, Outcome{Name: raw.Name, Result: result, Err: err})
	}
	return outcomes
}

func (d *Driver) finish(raw ris.RawReport, status string) {
	d.metrics.CounterInc(metrics.ReportsTotal.Name, "format", string(raw.Format), "status", status)
}

func displayName(raw ris.RawReport) string {
	if raw.Name != "" {
		return raw.Name
	}
	return "report"
}
