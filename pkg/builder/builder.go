// Package builder turns decoded reports into inventory entities.
//
// For every host the builder calls the inventory in a fixed order: asset,
// interface, host findings, services, then the findings of each service.
// A failing inventory call is logged and counted; the builder moves on to
// the next entity that does not depend on the failed one.
package builder

import (
	"context"
	"fmt"
	"strings"

	"github.com/exploopio/scanimport/pkg/core"
	ierrors "github.com/exploopio/scanimport/pkg/errors"
	"github.com/exploopio/scanimport/pkg/metrics"
	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/fingerprint"
)

const opBuild = "builder.Build"

// Builder emits inventory calls for decoded reports.
type Builder struct {
	inventory core.Inventory
	logger    core.Logger
	metrics   metrics.Collector
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger core.Logger) Option {
	return func(b *Builder) {
		b.logger = core.LoggerOrNop(logger)
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(b *Builder) {
		b.metrics = metrics.OrNop(collector)
	}
}

// New creates a builder that writes to inventory.
func New(inventory core.Inventory, opts ...Option) *Builder {
	b := &Builder{
		inventory: inventory,
		logger:    &core.NopLogger{},
		metrics:   &metrics.NopCollector{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Result summarizes one Build call.
type Result struct {
	Assets     int `json:"assets"`
	Interfaces int `json:"interfaces"`
	Services   int `json:"services"`
	Findings   int `json:"findings"`

	// Inventory failures, one per failed call
	Errors []error `json:"-"`
}

// Total returns the number of entities handed to the inventory.
func (r *Result) Total() int {
	return r.Assets + r.Interfaces + r.Services + r.Findings
}

func (r *Result) fail(err error) {
	r.Errors = append(r.Errors, err)
}

// Build emits the entities of report. It returns an error only when ctx is
// done; inventory failures are collected in Result.Errors.
func (b *Builder) Build(ctx context.Context, report *ris.Report) (*Result, error) {
	if report == nil {
		return nil, ierrors.E(ierrors.KindInvalidInput, opBuild, "nil report")
	}

	result := &Result{}
	for i := range report.Hosts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		b.buildHost(ctx, report.Format, &report.Hosts[i], result)
	}

	b.logger.Debug("built %s report: %d assets, %d interfaces, %d services, %d findings, %d errors",
		report.Format, result.Assets, result.Interfaces, result.Services, result.Findings, len(result.Errors))
	return result, nil
}

func (b *Builder) buildHost(ctx context.Context, format ris.Format, host *ris.Host, result *Result) {
	asset, err := b.inventory.CreateAsset(ctx, assetSpec(host))
	if err != nil {
		b.inventoryError(result, fingerprint.EntityAsset, host.Address, err)
		return
	}
	b.created(result, fingerprint.EntityAsset)

	var iface *core.InterfaceRef
	if host.WithInterface {
		ref, err := b.inventory.CreateInterface(ctx, asset, interfaceSpec(host))
		if err != nil {
			b.inventoryError(result, fingerprint.EntityInterface, host.Address, err)
		} else {
			b.created(result, fingerprint.EntityInterface)
			iface = &ref
		}
	}

	for _, f := range host.Findings {
		b.buildFinding(ctx, format, asset, nil, f, result)
	}

	for _, svc := range host.Services {
		spec := serviceSpec(svc)
		ref, err := b.inventory.CreateService(ctx, asset, iface, spec)
		if err != nil {
			b.inventoryError(result, fingerprint.EntityService, fmt.Sprintf("%s %s/%d", host.Address, spec.Protocol, svc.Port), err)
			continue
		}
		b.created(result, fingerprint.EntityService)

		for _, f := range svc.Findings {
			b.buildFinding(ctx, format, asset, &ref, f, result)
		}
	}
}

func (b *Builder) buildFinding(ctx context.Context, format ris.Format, asset core.AssetRef, service *core.ServiceRef, f ris.Finding, result *Result) {
	if _, err := b.inventory.CreateFinding(ctx, asset, service, findingSpec(f)); err != nil {
		b.inventoryError(result, fingerprint.EntityFinding, f.Name, err)
		return
	}
	b.created(result, fingerprint.EntityFinding)
	b.metrics.CounterInc(metrics.FindingsTotal.Name, "format", string(format), "severity", string(f.Severity))
}

func (b *Builder) created(result *Result, entity fingerprint.Entity) {
	switch entity {
	case fingerprint.EntityAsset:
		result.Assets++
	case fingerprint.EntityInterface:
		result.Interfaces++
	case fingerprint.EntityService:
		result.Services++
	case fingerprint.EntityFinding:
		result.Findings++
	}
	b.metrics.CounterInc(metrics.EntitiesTotal.Name, "entity", string(entity))
}

func (b *Builder) inventoryError(result *Result, entity fingerprint.Entity, subject string, err error) {
	b.logger.Error("create %s %q: %v", entity, subject, err)
	b.metrics.CounterInc(metrics.InventoryErrorsTotal.Name, "entity", string(entity))
	result.fail(ierrors.E(ierrors.KindInventory, opBuild, fmt.Sprintf("create %s %q", entity, subject), err))
}

// =============================================================================
// Spec mapping
// =============================================================================

func assetSpec(host *ris.Host) core.AssetSpec {
	return core.AssetSpec{
		Address:        host.Address,
		Hostnames:      host.Hostnames,
		OS:             host.OperatingSystem(),
		OSFingerprints: host.OS,
		Fingerprints:   host.Fingerprints,
		Software:       host.Software,
		Description:    host.Description,
		Attributes:     host.Attributes,
	}
}

func interfaceSpec(host *ris.Host) core.InterfaceSpec {
	return core.InterfaceSpec{
		Name:            "default",
		IPv4:            host.Address,
		HardwareAddress: NormalizeHardwareAddress(host.HardwareAddress),
		Hostnames:       host.Hostnames,
	}
}

func serviceSpec(svc ris.Service) core.ServiceSpec {
	version := svc.Version
	if version == "" {
		version = VersionFromConfigs(svc.Configs)
	}
	return core.ServiceSpec{
		Name:        svc.Name,
		Protocol:    strings.ToLower(svc.Protocol),
		Ports:       []int{svc.Port},
		Status:      svc.Status,
		Version:     version,
		Description: svc.Description,
	}
}

func findingSpec(f ris.Finding) core.FindingSpec {
	spec := core.FindingSpec{
		Name:        f.Name,
		Description: f.Description,
		References:  f.References,
		Severity:    f.Severity,
		Resolution:  f.Resolution,
		Web:         f.Web,
		ExternalID:  f.ExternalID,
		Data:        f.Data,
		Tags:        f.Tags,
		DetectedAt:  f.DetectedAt,
	}

	attrs := map[string]string{
		"scan_id":            f.ScanID,
		"pci_status":         f.PCIStatus,
		"vulnerable_since":   f.VulnerableSince,
		"risk_score":         f.RiskScore,
		"impact":             f.Impact,
		"ease_of_resolution": f.EaseOfResolution,
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	if len(attrs) > 0 {
		spec.Attributes = attrs
	}
	return spec
}

// VersionFromConfigs returns the value of the first configuration entry
// whose name contains "banner", or "".
func VersionFromConfigs(configs []ris.ServiceConfig) string {
	for _, c := range configs {
		if strings.Contains(strings.ToLower(c.Name), "banner") && c.Value != "" {
			return c.Value
		}
	}
	return ""
}
