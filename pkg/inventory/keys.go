// Package inventory holds the natural-key helpers shared by the inventory
// adapters in its subpackages.
package inventory

import (
	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/shared/fingerprint"
)

// AssetKey returns the natural key of an asset spec.
func AssetKey(spec core.AssetSpec) string {
	return fingerprint.AssetKey(spec.Address)
}

// InterfaceKey returns the natural key of an interface of asset.
func InterfaceKey(asset core.AssetRef, spec core.InterfaceSpec) string {
	return fingerprint.InterfaceKey(asset.Key, spec.HardwareAddress)
}

// ServiceKey returns the natural key of a service of asset.
func ServiceKey(asset core.AssetRef, spec core.ServiceSpec) string {
	return fingerprint.ServiceKey(asset.Key, spec.Protocol, spec.Port())
}

// FindingKey returns the natural key of a finding. Web findings are keyed by
// their location as well as their name.
func FindingKey(asset core.AssetRef, service *core.ServiceRef, spec core.FindingSpec) string {
	in := fingerprint.FindingInput{AssetKey: asset.Key, Name: spec.Name}
	if service != nil {
		in.ServiceKey = service.Key
	}
	if spec.Web != nil {
		in.Website = spec.Web.Website
		in.Method = spec.Web.Method
		in.Path = spec.Web.Path
		in.Parameter = spec.Web.ParamName
	}
	return fingerprint.FindingKey(in)
}
