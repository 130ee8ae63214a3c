// Package modelplugin is the public contract third-party Go plugins use to
// register native module providers: modules served straight from compiled
// code instead of <root>/modules/<name>/module.toml on disk.
package modelplugin

import (
	"fmt"

	"outcome.io/sim/internal/modelregistry"
)

// Descriptor is the discoverable module metadata returned by admin tooling.
type Descriptor = modelregistry.ModuleDescriptor

// Provider is the plugin contract: Name is the module name a scenario's
// [[modules]] entry references, Manifest returns module.toml bytes, and
// Script resolves a path named by one of the manifest's components.
type Provider = modelregistry.ModuleProvider

// Describer lets a provider expose display metadata beyond its bare name.
type Describer = modelregistry.ModuleProviderDescriber

// Register registers a module provider globally.
func Register(p Provider) error {
	return modelregistry.Register(p)
}

// MustRegister registers a module provider and panics on failure. Intended
// for use from a plugin's init().
func MustRegister(p Provider) {
	if err := Register(p); err != nil {
		panic(fmt.Sprintf("model plugin register failed: %v", err))
	}
}

// ListRegistered returns every currently registered provider's descriptor.
func ListRegistered() []Descriptor {
	return modelregistry.List()
}
