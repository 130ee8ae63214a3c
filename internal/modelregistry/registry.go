// Package modelregistry holds the process-wide registry of native module
// providers: Go plugins that serve a module's manifest and scripts directly,
// as an alternative to reading <root>/modules/<name>/module.toml from
// disk (spec §6 project layout; SPEC_FULL §12 supplemented features).
package modelregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"outcome.io/sim/internal/model"
)

// ModuleDescriptor describes a module provider to admin tooling or a
// scenario author deciding which modules are available.
type ModuleDescriptor struct {
	Name        string
	DisplayName string
	Description string
	Version     string
	BuiltIn     bool
}

// ModuleProvider is the plugin contract for a module served by Go code
// instead of on-disk TOML. Manifest returns the module.toml bytes; Script
// resolves one of the paths the manifest's components name.
type ModuleProvider interface {
	// Name is the module name scenarios reference in their [[modules]] list.
	Name() string
	Manifest() ([]byte, error)
	Script(path string) ([]byte, error)
}

// ModuleProviderDescriber is an optional adapter extension for metadata
// exposure; a provider that does not implement it is listed with its Name
// and BuiltIn false.
type ModuleProviderDescriber interface {
	Describe() ModuleDescriptor
}

// Registry stores available module provider plugins.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ModuleProvider
}

func newRegistry() *Registry {
	return &Registry{providers: map[string]ModuleProvider{}}
}

// Register registers a provider by name. Duplicate names are rejected.
func (r *Registry) Register(p ModuleProvider) error {
	if p == nil {
		return fmt.Errorf("module provider is nil")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("module provider name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("module provider already registered: %s", name)
	}
	r.providers[name] = p
	return nil
}

// Resolve returns a named provider when available, otherwise nil.
func (r *Registry) Resolve(name string) ModuleProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[strings.TrimSpace(name)]
}

// List returns descriptors for every registered provider, sorted by name.
func (r *Registry) List() []ModuleDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]ModuleDescriptor, 0, len(r.providers))
	for name, p := range r.providers {
		if describer, ok := p.(ModuleProviderDescriber); ok {
			desc := describer.Describe()
			if desc.Name == "" {
				desc.Name = name
			}
			if desc.DisplayName == "" {
				desc.DisplayName = desc.Name
			}
			items = append(items, desc)
			continue
		}
		items = append(items, ModuleDescriptor{Name: name, DisplayName: name})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items
}

var global = newRegistry()

// Register registers a provider in the global registry.
func Register(p ModuleProvider) error { return global.Register(p) }

// Resolve resolves a provider from the global registry.
func Resolve(name string) ModuleProvider { return global.Resolve(name) }

// List returns every provider registered globally.
func List() []ModuleDescriptor { return global.List() }

// WrapLoader returns a model.Loader that serves a registered provider's
// manifest and scripts when one is registered for the requested module
// name, and falls back to base otherwise. This lets a scenario mix
// disk-backed modules with modules a plugin compiles in (spec §4.C "Load").
func WrapLoader(base model.Loader) model.Loader {
	return model.Loader{
		ReadScenario: base.ReadScenario,
		ReadModuleManifest: func(name string) ([]byte, error) {
			if p := Resolve(name); p != nil {
				return p.Manifest()
			}
			return base.ReadModuleManifest(name)
		},
		ReadModuleScript: func(moduleName, path string) ([]byte, error) {
			if p := Resolve(moduleName); p != nil {
				return p.Script(path)
			}
			return base.ReadModuleScript(moduleName, path)
		},
	}
}
