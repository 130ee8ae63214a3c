package model

import (
	"errors"
	"testing"
)

var errNotFound = errors.New("not found")

const coreModuleManifest = `
name = "core"
version = "1.0.0"
engine_version = ">=1.0.0"
features = ["grids"]

[[prefabs]]
name = "P"
components = ["C"]

[[components]]
name = "C"
triggers = ["tick"]

[[components.vars]]
name = "x"
type = "int"
default = "0"

[[events]]
name = "tick"
`

func testLoader(scenario, module string) Loader {
	return Loader{
		ReadScenario: func(name string) ([]byte, error) { return []byte(scenario), nil },
		ReadModuleManifest: func(name string) ([]byte, error) { return []byte(module), nil },
		ReadModuleScript: func(moduleName, path string) ([]byte, error) { return nil, nil },
	}
}

func TestLoadMergesModuleDeclarations(t *testing.T) {
	scenario := `
name = "demo"
[[modules]]
name = "core"
version = ">=1.0.0"
`
	l := testLoader(scenario, coreModuleManifest)
	m, err := Load(l, "demo", "1.2.0")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := m.Prefabs["P"]; !ok {
		t.Error("prefab P missing from merged model")
	}
	c, ok := m.Components["C"]
	if !ok {
		t.Fatal("component C missing from merged model")
	}
	if len(c.Vars) != 1 || c.Vars[0].Name != "x" {
		t.Errorf("component C vars = %+v", c.Vars)
	}
}

func TestLoadFailsOnVersionMismatch(t *testing.T) {
	scenario := `
name = "demo"
[[modules]]
name = "core"
version = ">=2.0.0"
`
	l := testLoader(scenario, coreModuleManifest)
	if _, err := Load(l, "demo", "1.2.0"); err == nil {
		t.Error("Load() with an unsatisfied module version predicate should fail")
	}
}

func TestLoadFailsOnEngineVersionMismatch(t *testing.T) {
	scenario := `
name = "demo"
[[modules]]
name = "core"
`
	l := testLoader(scenario, coreModuleManifest)
	if _, err := Load(l, "demo", "0.1.0"); err == nil {
		t.Error("Load() with an unsatisfied engine_version requirement should fail")
	}
}

func TestLoadFailsOnUnsupportedFeature(t *testing.T) {
	manifest := `
name = "core"
version = "1.0.0"
engine_version = ">=1.0.0"
features = ["nonexistent_feature"]
`
	scenario := `
name = "demo"
[[modules]]
name = "core"
`
	l := testLoader(scenario, manifest)
	if _, err := Load(l, "demo", "1.2.0"); err == nil {
		t.Error("Load() with an unsupported feature should fail")
	}
}

func TestLoadFailsOnMissingModule(t *testing.T) {
	scenario := `
name = "demo"
[[modules]]
name = "ghost"
`
	l := Loader{
		ReadScenario:       func(name string) ([]byte, error) { return []byte(scenario), nil },
		ReadModuleManifest: func(name string) ([]byte, error) { return nil, errNotFound },
		ReadModuleScript:   func(moduleName, path string) ([]byte, error) { return nil, nil },
	}
	if _, err := Load(l, "demo", "1.2.0"); err == nil {
		t.Error("Load() with a missing module dependency should fail")
	}
}
