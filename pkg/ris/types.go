// Package ris holds the intermediate record set produced by every report
// decoder and consumed by the entity builder.
package ris

import (
	"slices"
	"strings"
	"time"

	"github.com/exploopio/scanimport/pkg/shared/severity"
)

// =============================================================================
// Raw Input
// =============================================================================

// Format is the declared source format of a raw report.
type Format string

const (
	FormatNexposeFull  Format = "nexpose_full"
	FormatNucleiLegacy Format = "nuclei_legacy"
	FormatWebfuzzer    Format = "webfuzzer"
	FormatWhatWeb      Format = "whatweb"
	FormatZAP          Format = "zap"
)

// Formats returns all supported formats.
func Formats() []Format {
	return []Format{
		FormatNexposeFull,
		FormatNucleiLegacy,
		FormatWebfuzzer,
		FormatWhatWeb,
		FormatZAP,
	}
}

// IsValid checks if the format is supported.
func (f Format) IsValid() bool {
	return slices.Contains(Formats(), f)
}

// String returns the string representation.
func (f Format) String() string {
	return string(f)
}

// ParseFormat resolves a user supplied format tag. Matching is
// case-insensitive and accepts the short tool names.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nexpose_full", "nexpose":
		return FormatNexposeFull, true
	case "nuclei_legacy", "nuclei":
		return FormatNucleiLegacy, true
	case "webfuzzer":
		return FormatWebfuzzer, true
	case "whatweb":
		return FormatWhatWeb, true
	case "zap", "owasp_zap":
		return FormatZAP, true
	}
	return "", false
}

// RawReport is an opaque report buffer plus its declared format.
type RawReport struct {
	// Declared source format (empty means detect)
	Format Format

	// Human-readable name, usually the file name
	Name string

	// Report content, already read and decompressed
	Data []byte
}

// =============================================================================
// Vulnerability Definitions
// =============================================================================

// VulnerabilityDefinition is a catalog entry referenced by one or more
// findings of the same report.
type VulnerabilityDefinition struct {
	// Lowercase format-specific identifier (required)
	ID string `json:"id"`

	// Title (required)
	Name string `json:"name"`

	// Plain-text description
	Description string `json:"description,omitempty"`

	// Canonical severity
	Severity severity.Level `json:"severity"`

	// Aggregated references
	References []string `json:"references,omitempty"`

	// Plain-text resolution
	Resolution string `json:"resolution,omitempty"`

	// Whether findings of this definition carry a web context
	Web bool `json:"web,omitempty"`

	// Source risk score, kept verbatim
	RiskScore string `json:"risk_score,omitempty"`

	// Tags
	Tags []string `json:"tags,omitempty"`
}

// Definitions is a read-only lookup of vulnerability definitions scoped to
// one report. It is safe for concurrent readers.
type Definitions struct {
	byID map[string]VulnerabilityDefinition
}

// NewDefinitions builds the lookup. Later entries with the same id replace
// earlier ones.
func NewDefinitions(defs ...VulnerabilityDefinition) *Definitions {
	d := &Definitions{byID: make(map[string]VulnerabilityDefinition, len(defs))}
	for _, def := range defs {
		def.ID = strings.ToLower(def.ID)
		d.byID[def.ID] = def
	}
	return d
}

// Lookup returns a copy of the definition with the given id. The match is
// case-insensitive.
func (d *Definitions) Lookup(id string) (VulnerabilityDefinition, bool) {
	if d == nil {
		return VulnerabilityDefinition{}, false
	}
	def, ok := d.byID[strings.ToLower(id)]
	if ok {
		def.References = slices.Clone(def.References)
		def.Tags = slices.Clone(def.Tags)
	}
	return def, ok
}

// Len returns the number of definitions.
func (d *Definitions) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byID)
}

// =============================================================================
// Findings
// =============================================================================

// Finding is one occurrence of a vulnerability on a host or service.
type Finding struct {
	// Title (required)
	Name string `json:"name"`

	// Plain-text description
	Description string `json:"description,omitempty"`

	// Severity, always one of the five levels
	Severity severity.Level `json:"severity"`

	// Aggregated references
	References []string `json:"references,omitempty"`

	// Plain-text resolution
	Resolution string `json:"resolution,omitempty"`

	// Scanner specific identifier (e.g. NUCLEI-<template>, ZAP-<plugin>)
	ExternalID string `json:"external_id,omitempty"`

	// Matched data or evidence text
	Data string `json:"data,omitempty"`

	// Tags
	Tags []string `json:"tags,omitempty"`

	// Impact and ease of resolution, as reported
	Impact           string `json:"impact,omitempty"`
	EaseOfResolution string `json:"ease_of_resolution,omitempty"`

	// Source risk score, kept verbatim
	RiskScore string `json:"risk_score,omitempty"`

	// When the scanner reported the occurrence
	DetectedAt *time.Time `json:"detected_at,omitempty"`

	// Occurrence metadata (Nexpose tests)
	VulnerableSince string `json:"vulnerable_since,omitempty"`
	ScanID          string `json:"scan_id,omitempty"`
	PCIStatus       string `json:"pci_status,omitempty"`

	// Web context, set for web findings only
	Web *WebContext `json:"web,omitempty"`
}

// WebContext locates a web finding.
type WebContext struct {
	// Site root, e.g. https://example.com:8443
	Website string `json:"website,omitempty"`

	// HTTP method
	Method string `json:"method,omitempty"`

	// URL path
	Path string `json:"path,omitempty"`

	// Raw query string
	Query string `json:"query,omitempty"`

	// Parameter names or matrix parameters
	Params string `json:"params,omitempty"`

	// Vulnerable parameter name
	ParamName string `json:"param_name,omitempty"`

	// Raw request and response, when the scanner includes them
	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`
}

// FromDefinition copies the catalog fields of a definition into a new
// finding. The returned finding owns its slices.
func FromDefinition(def VulnerabilityDefinition) Finding {
	return Finding{
		Name:        def.Name,
		Description: def.Description,
		Severity:    def.Severity,
		References:  slices.Clone(def.References),
		Resolution:  def.Resolution,
		RiskScore:   def.RiskScore,
		Tags:        slices.Clone(def.Tags),
	}
}

// =============================================================================
// Hosts and Services
// =============================================================================

// Host is one scanned target.
type Host struct {
	// IP address or hostname (required)
	Address string `json:"address"`

	// Raw hardware address; empty when the source omits it
	HardwareAddress string `json:"hardware_address,omitempty"`

	// Hostnames
	Hostnames []string `json:"hostnames,omitempty"`

	// Operating system fingerprints
	OS []OSFingerprint `json:"os,omitempty"`

	// Generic fingerprints
	Fingerprints []Fingerprint `json:"fingerprints,omitempty"`

	// Software fingerprints
	Software []SoftwareFingerprint `json:"software,omitempty"`

	// Free-text description
	Description string `json:"description,omitempty"`

	// Extra scanner attributes (scan template, site name, risk score...)
	Attributes map[string]string `json:"attributes,omitempty"`

	// Whether the builder should create a network interface for this host
	WithInterface bool `json:"with_interface,omitempty"`

	// Findings not tied to a service
	Findings []Finding `json:"findings,omitempty"`

	// Services
	Services []Service `json:"services,omitempty"`
}

// OperatingSystem returns the best OS description of the host, or "" when
// none is known.
func (h *Host) OperatingSystem() string {
	for _, os := range h.OS {
		if s := os.String(); s != "" {
			return s
		}
	}
	return ""
}

// Service is a network service on a host.
type Service struct {
	// Service name (http, ssh...)
	Name string `json:"name"`

	// Transport protocol (tcp, udp)
	Protocol string `json:"protocol"`

	// Port number
	Port int `json:"port"`

	// Status (open, closed, filtered)
	Status string `json:"status,omitempty"`

	// Banner or version string
	Version string `json:"version,omitempty"`

	// Free-text description
	Description string `json:"description,omitempty"`

	// Service configuration entries
	Configs []ServiceConfig `json:"configs,omitempty"`

	// Findings on this service
	Findings []Finding `json:"findings,omitempty"`
}

// ServiceConfig is one name/value configuration entry of a service.
type ServiceConfig struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// OSFingerprint is one operating system guess.
type OSFingerprint struct {
	Certainty   string `json:"certainty,omitempty"`
	Vendor      string `json:"vendor,omitempty"`
	Family      string `json:"family,omitempty"`
	Product     string `json:"product,omitempty"`
	Version     string `json:"version,omitempty"`
	Arch        string `json:"arch,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
}

// String joins the non-empty product fields.
func (o OSFingerprint) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{o.Vendor, o.Product, o.Version} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 && o.Family != "" {
		return o.Family
	}
	return strings.Join(parts, " ")
}

// Fingerprint is a generic fingerprint entry.
type Fingerprint struct {
	Certainty   string `json:"certainty,omitempty"`
	Description string `json:"description,omitempty"`
	Vendor      string `json:"vendor,omitempty"`
	Family      string `json:"family,omitempty"`
	Product     string `json:"product,omitempty"`
	Version     string `json:"version,omitempty"`
}

// SoftwareFingerprint is an installed software entry.
type SoftwareFingerprint struct {
	Certainty     string `json:"certainty,omitempty"`
	Vendor        string `json:"vendor,omitempty"`
	Family        string `json:"family,omitempty"`
	Product       string `json:"product,omitempty"`
	Version       string `json:"version,omitempty"`
	SoftwareClass string `json:"software_class,omitempty"`
}

// =============================================================================
// Report
// =============================================================================

// Report is the decoded content of one raw report.
type Report struct {
	// Source format
	Format Format `json:"format"`

	// Decoded hosts, in source order
	Hosts []Host `json:"hosts"`

	// Records dropped for InvalidSeverityScore or MissingRequiredField
	Skipped []error `json:"-"`
}

// NewReport creates an empty report for the given format.
func NewReport(format Format) *Report {
	return &Report{
		Format: format,
		Hosts:  make([]Host, 0),
	}
}

// Skip records a dropped record.
func (r *Report) Skip(err error) {
	r.Skipped = append(r.Skipped, err)
}

// FindingCount returns the number of host and service findings.
func (r *Report) FindingCount() int {
	n := 0
	for _, h := range r.Hosts {
		n += len(h.Findings)
		for _, s := range h.Services {
			n += len(s.Findings)
		}
	}
	return n
}

// Severities counts the host and service findings by level.
func (r *Report) Severities() severity.CountBySeverity {
	var c severity.CountBySeverity
	for _, h := range r.Hosts {
		for _, f := range h.Findings {
			c.Increment(f.Severity)
		}
		for _, s := range h.Services {
			for _, f := range s.Findings {
				c.Increment(f.Severity)
			}
		}
	}
	return c
}
