// Package memory provides an in-process inventory. It merges entities by
// natural key and records every call, which makes it the test double for
// the builder and the pipeline.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/exploopio/scanimport/pkg/core"
	"github.com/exploopio/scanimport/pkg/inventory"
	"github.com/exploopio/scanimport/pkg/shared/fingerprint"
)

// Call is one recorded inventory call.
type Call struct {
	Method string
	Key    string
}

// Asset is a stored asset.
type Asset struct {
	Ref  core.AssetRef
	Spec core.AssetSpec
}

// Interface is a stored interface.
type Interface struct {
	Ref   core.InterfaceRef
	Asset core.AssetRef
	Spec  core.InterfaceSpec
}

// Service is a stored service.
type Service struct {
	Ref       core.ServiceRef
	Asset     core.AssetRef
	Interface *core.InterfaceRef
	Spec      core.ServiceSpec
}

// Finding is a stored finding.
type Finding struct {
	Ref     core.FindingRef
	Asset   core.AssetRef
	Service *core.ServiceRef
	Spec    core.FindingSpec
}

// Inventory is an in-memory core.Inventory.
type Inventory struct {
	// Hooks run before the matching call; a non-nil error fails the call.
	CreateAssetFn     func(ctx context.Context, spec core.AssetSpec) error
	CreateInterfaceFn func(ctx context.Context, spec core.InterfaceSpec) error
	CreateServiceFn   func(ctx context.Context, spec core.ServiceSpec) error
	CreateFindingFn   func(ctx context.Context, spec core.FindingSpec) error

	mu         sync.RWMutex
	calls      []Call
	assets     map[string]*Asset
	interfaces map[string]*Interface
	services   map[string]*Service
	findings   map[string]*Finding
}

// New creates an empty inventory.
func New() *Inventory {
	return &Inventory{
		assets:     make(map[string]*Asset),
		interfaces: make(map[string]*Interface),
		services:   make(map[string]*Service),
		findings:   make(map[string]*Finding),
	}
}

// CreateAsset creates or merges an asset keyed by address.
func (inv *Inventory) CreateAsset(ctx context.Context, spec core.AssetSpec) (core.AssetRef, error) {
	if inv.CreateAssetFn != nil {
		if err := inv.CreateAssetFn(ctx, spec); err != nil {
			return core.AssetRef{}, err
		}
	}

	key := inventory.AssetKey(spec)

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.calls = append(inv.calls, Call{Method: "CreateAsset", Key: key})

	if existing, ok := inv.assets[key]; ok {
		spec.Hostnames = union(existing.Spec.Hostnames, spec.Hostnames)
		existing.Spec = spec
		return existing.Ref, nil
	}

	ref := core.AssetRef{ID: fingerprint.Ref(fingerprint.EntityAsset, key), Key: key}
	inv.assets[key] = &Asset{Ref: ref, Spec: spec}
	return ref, nil
}

// CreateInterface creates or merges an interface keyed by asset and
// hardware address.
func (inv *Inventory) CreateInterface(ctx context.Context, asset core.AssetRef, spec core.InterfaceSpec) (core.InterfaceRef, error) {
	if inv.CreateInterfaceFn != nil {
		if err := inv.CreateInterfaceFn(ctx, spec); err != nil {
			return core.InterfaceRef{}, err
		}
	}

	key := inventory.InterfaceKey(asset, spec)

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.calls = append(inv.calls, Call{Method: "CreateInterface", Key: key})

	if existing, ok := inv.interfaces[key]; ok {
		spec.Hostnames = union(existing.Spec.Hostnames, spec.Hostnames)
		existing.Spec = spec
		return existing.Ref, nil
	}

	ref := core.InterfaceRef{ID: fingerprint.Ref(fingerprint.EntityInterface, key), Key: key}
	inv.interfaces[key] = &Interface{Ref: ref, Asset: asset, Spec: spec}
	return ref, nil
}

// CreateService creates or merges a service keyed by asset, protocol and
// port.
func (inv *Inventory) CreateService(ctx context.Context, asset core.AssetRef, iface *core.InterfaceRef, spec core.ServiceSpec) (core.ServiceRef, error) {
	if inv.CreateServiceFn != nil {
		if err := inv.CreateServiceFn(ctx, spec); err != nil {
			return core.ServiceRef{}, err
		}
	}

	key := inventory.ServiceKey(asset, spec)

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.calls = append(inv.calls, Call{Method: "CreateService", Key: key})

	if existing, ok := inv.services[key]; ok {
		existing.Spec = spec
		return existing.Ref, nil
	}

	ref := core.ServiceRef{ID: fingerprint.Ref(fingerprint.EntityService, key), Key: key}
	inv.services[key] = &Service{Ref: ref, Asset: asset, Interface: iface, Spec: spec}
	return ref, nil
}

// CreateFinding creates or merges a finding keyed by its owner, name and
// web location.
func (inv *Inventory) CreateFinding(ctx context.Context, asset core.AssetRef, service *core.ServiceRef, spec core.FindingSpec) (core.FindingRef, error) {
	if inv.CreateFindingFn != nil {
		if err := inv.CreateFindingFn(ctx, spec); err != nil {
			return core.FindingRef{}, err
		}
	}

	key := inventory.FindingKey(asset, service, spec)

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.calls = append(inv.calls, Call{Method: "CreateFinding", Key: key})

	if existing, ok := inv.findings[key]; ok {
		existing.Spec = spec
		return existing.Ref, nil
	}

	ref := core.FindingRef{ID: fingerprint.Ref(fingerprint.EntityFinding, key), Key: key}
	inv.findings[key] = &Finding{Ref: ref, Asset: asset, Service: service, Spec: spec}
	return ref, nil
}

// Calls returns the recorded calls in order.
func (inv *Inventory) Calls() []Call {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return slices.Clone(inv.calls)
}

// Methods returns the method names of the recorded calls in order.
func (inv *Inventory) Methods() []string {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	methods := make([]string, len(inv.calls))
	for i, c := range inv.calls {
		methods[i] = c.Method
	}
	return methods
}

// Assets returns the stored assets sorted by key.
func (inv *Inventory) Assets() []Asset {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return sortedValues(inv.assets)
}

// Interfaces returns the stored interfaces sorted by key.
func (inv *Inventory) Interfaces() []Interface {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return sortedValues(inv.interfaces)
}

// Services returns the stored services sorted by key.
func (inv *Inventory) Services() []Service {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return sortedValues(inv.services)
}

// Findings returns the stored findings sorted by key.
func (inv *Inventory) Findings() []Finding {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return sortedValues(inv.findings)
}

// Reset clears all entities and recorded calls.
func (inv *Inventory) Reset() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.calls = nil
	inv.assets = make(map[string]*Asset)
	inv.interfaces = make(map[string]*Interface)
	inv.services = make(map[string]*Service)
	inv.findings = make(map[string]*Finding)
}

func sortedValues[T any](m map[string]*T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, *m[k])
	}
	return out
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

// Ensure Inventory implements core.Inventory
var _ core.Inventory = (*Inventory)(nil)
