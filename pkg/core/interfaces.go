// Package core provides the interfaces shared by scanimport components: the
// inventory collaborator that receives normalized entities, and the logger.
package core

import (
	"context"
	"time"

	"github.com/exploopio/scanimport/pkg/ris"
	"github.com/exploopio/scanimport/pkg/shared/severity"
)

// =============================================================================
// Inventory Interface - Receives normalized entities
// =============================================================================

// Inventory is the external collaborator that owns persistence of assets,
// interfaces, services and findings.
//
// Every call is idempotent on the entity's natural key (address for assets,
// hardware address for interfaces, protocol+port for services) and returns a
// reference that stays valid for later calls within the same run.
// Implementations must be safe for concurrent use.
type Inventory interface {
	// CreateAsset creates or merges a host.
	CreateAsset(ctx context.Context, spec AssetSpec) (AssetRef, error)

	// CreateInterface creates or merges a network interface of an asset.
	CreateInterface(ctx context.Context, asset AssetRef, spec InterfaceSpec) (InterfaceRef, error)

	// CreateService creates or merges a service. iface is nil for sources
	// that attach services directly to the asset.
	CreateService(ctx context.Context, asset AssetRef, iface *InterfaceRef, spec ServiceSpec) (ServiceRef, error)

	// CreateFinding creates or merges a finding. service is nil for findings
	// not tied to a service.
	CreateFinding(ctx context.Context, asset AssetRef, service *ServiceRef, spec FindingSpec) (FindingRef, error)
}

// =============================================================================
// Entity Specs
// =============================================================================

// AssetSpec describes a host.
type AssetSpec struct {
	// IP address or hostname (natural key)
	Address string `json:"address"`

	// Hostnames
	Hostnames []string `json:"hostnames,omitempty"`

	// Operating system description
	OS string `json:"os,omitempty"`

	// Operating system fingerprints
	OSFingerprints []ris.OSFingerprint `json:"os_fingerprints,omitempty"`

	// Generic fingerprints
	Fingerprints []ris.Fingerprint `json:"fingerprints,omitempty"`

	// Software fingerprints
	Software []ris.SoftwareFingerprint `json:"software,omitempty"`

	// Free-text description
	Description string `json:"description,omitempty"`

	// Extra attributes
	Attributes map[string]string `json:"attributes,omitempty"`
}

// InterfaceSpec describes a network interface.
type InterfaceSpec struct {
	// Name of the interface
	Name string `json:"name"`

	// IPv4 address
	IPv4 string `json:"ipv4,omitempty"`

	// Colon-delimited six-octet hardware address (natural key)
	HardwareAddress string `json:"hardware_address"`

	// Hostnames
	Hostnames []string `json:"hostnames,omitempty"`
}

// ServiceSpec describes a network service.
type ServiceSpec struct {
	// Service name
	Name string `json:"name"`

	// Transport protocol (natural key with Ports)
	Protocol string `json:"protocol"`

	// Ports; the first port is part of the natural key
	Ports []int `json:"ports"`

	// Status (open, closed, filtered)
	Status string `json:"status,omitempty"`

	// Banner or version string
	Version string `json:"version,omitempty"`

	// Free-text description
	Description string `json:"description,omitempty"`
}

// Port returns the natural-key port of the service, or 0.
func (s ServiceSpec) Port() int {
	if len(s.Ports) == 0 {
		return 0
	}
	return s.Ports[0]
}

// FindingSpec describes one finding.
type FindingSpec struct {
	// Title (natural key with the owner and web location)
	Name string `json:"name"`

	// Plain-text description
	Description string `json:"description,omitempty"`

	// Aggregated references
	References []string `json:"references,omitempty"`

	// Severity
	Severity severity.Level `json:"severity"`

	// Plain-text resolution
	Resolution string `json:"resolution,omitempty"`

	// Web context; nil for network findings
	Web *ris.WebContext `json:"web,omitempty"`

	// Scanner specific identifier
	ExternalID string `json:"external_id,omitempty"`

	// Evidence or matched data
	Data string `json:"data,omitempty"`

	// Tags
	Tags []string `json:"tags,omitempty"`

	// Detection time
	DetectedAt *time.Time `json:"detected_at,omitempty"`

	// Extra attributes (scan id, PCI status, risk score...)
	Attributes map[string]string `json:"attributes,omitempty"`
}

// =============================================================================
// References
// =============================================================================

// AssetRef is the stable reference of a created asset.
type AssetRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// InterfaceRef is the stable reference of a created interface.
type InterfaceRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// ServiceRef is the stable reference of a created service.
type ServiceRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// FindingRef is the stable reference of a created finding.
type FindingRef struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}
