// Package scenariofs builds a model.Loader that reads scenario and module
// manifests straight off disk, following the project layout spec §6 fixes:
// `<root>/scenarios/<name>.toml`, `<root>/modules/<name>/module.toml`,
// `<root>/snapshots/<file>`. It is the on-disk counterpart to
// internal/modelregistry's compiled-in module providers; New's result is
// typically wrapped with modelregistry.WrapLoader so a scenario can mix
// both sources.
package scenariofs

import (
	"fmt"
	"os"
	"path/filepath"

	"outcome.io/sim/internal/model"
)

// Loader reads scenario/module manifests and scripts from a root directory
// laid out per spec §6.
type Loader struct {
	root string
}

// New returns a disk-backed loader rooted at root.
func New(root string) *Loader {
	return &Loader{root: root}
}

// ReadScenario reads <root>/scenarios/<name>.toml.
func (l *Loader) ReadScenario(name string) ([]byte, error) {
	return l.readFile(filepath.Join(l.root, "scenarios", name+".toml"))
}

// ReadModuleManifest reads <root>/modules/<name>/module.toml.
func (l *Loader) ReadModuleManifest(name string) ([]byte, error) {
	return l.readFile(filepath.Join(l.root, "modules", name, "module.toml"))
}

// ReadModuleScript reads <root>/modules/<moduleName>/<path>, the path
// exactly as named by a component's `scripts = [...]` manifest entry.
func (l *Loader) ReadModuleScript(moduleName, path string) ([]byte, error) {
	return l.readFile(filepath.Join(l.root, "modules", moduleName, path))
}

// SnapshotPath resolves a snapshot file name against <root>/snapshots.
func (l *Loader) SnapshotPath(name string) string {
	return filepath.Join(l.root, "snapshots", name)
}

// AsModelLoader adapts l to model.Loader's function-field shape, typically
// then passed through modelregistry.WrapLoader so compiled-in module
// providers can override a disk-backed module of the same name.
func (l *Loader) AsModelLoader() model.Loader {
	return model.Loader{
		ReadScenario:       l.ReadScenario,
		ReadModuleManifest: l.ReadModuleManifest,
		ReadModuleScript:   l.ReadModuleScript,
	}
}

func (l *Loader) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenariofs: read %s: %w", path, err)
	}
	return data, nil
}
