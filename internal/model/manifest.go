package model

import (
	"bytes"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/script"
	"outcome.io/sim/internal/vars"
)

// builtinFeatures is the fixed engine feature set a module manifest may
// depend on (spec §4.C, SPEC_FULL §13 "Engine feature set for
// UnsupportedFeature").
var builtinFeatures = map[string]bool{
	"grids":                    true,
	"central_ext":              true,
	"remote_scenario_transfer": true,
}

type scenarioManifestFile struct {
	Name    string      `toml:"name"`
	Modules []moduleRef `toml:"modules"`
}

type moduleRef struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type moduleManifestFile struct {
	Name          string            `toml:"name"`
	Version       string            `toml:"version"`
	EngineVersion string            `toml:"engine_version"`
	Features      []string          `toml:"features"`
	Dependencies  map[string]string `toml:"dependencies"`
	Prefabs       []prefabDecl      `toml:"prefabs"`
	Components    []componentDecl   `toml:"components"`
	Events        []eventDecl       `toml:"events"`
}

type prefabDecl struct {
	Name       string   `toml:"name"`
	Components []string `toml:"components"`
}

type componentDecl struct {
	Name     string    `toml:"name"`
	Triggers []string  `toml:"triggers"`
	Scripts  []string  `toml:"scripts"`
	Vars     []varDecl `toml:"vars"`
}

type varDecl struct {
	Name    string `toml:"name"`
	Type    string `toml:"type"`
	Default string `toml:"default"`
}

type eventDecl struct {
	Name string `toml:"name"`
}

// Loader resolves the manifest/script bytes a scenario load needs. Scenario
// and module manifests live at fixed, caller-chosen paths; scripts are
// resolved relative to the module that names them so a module's !include
// directives stay self-contained (spec §4.E, §6 project layout).
type Loader struct {
	ReadScenario       func(scenarioName string) ([]byte, error)
	ReadModuleManifest func(moduleName string) ([]byte, error)
	ReadModuleScript   func(moduleName, scriptPath string) ([]byte, error)
}

func decodeTOML(data []byte, v interface{}) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Load resolves scenarioName through l, merges every dependency module's
// declarations into a fresh SimModel, and returns it (spec §4.C).
// engineVersion is the running build's own semver, checked against each
// module's engine_version requirement.
func Load(l Loader, scenarioName, engineVersion string) (*SimModel, error) {
	raw, err := l.ReadScenario(scenarioName)
	if err != nil {
		return nil, apperrors.ScenarioMissingModules(scenarioName)
	}
	var sf scenarioManifestFile
	if err := decodeTOML(raw, &sf); err != nil {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidManifest, fmt.Sprintf("scenario %q: %v", scenarioName, err))
	}

	m := NewSimModel(sf.Name)
	loaded := make(map[string]moduleManifestFile)

	for _, ref := range sf.Modules {
		mf, err := loadModule(l, ref.Name)
		if err != nil {
			return nil, err
		}
		if ref.Version != "" {
			if err := checkVersionPredicate(ref.Name, ref.Version, mf.Version); err != nil {
				return nil, err
			}
		}
		if err := checkEngineVersion(mf, engineVersion); err != nil {
			return nil, err
		}
		if err := checkFeatures(mf); err != nil {
			return nil, err
		}
		loaded[mf.Name] = mf
	}

	for _, mf := range loaded {
		for depName, predicate := range mf.Dependencies {
			dep, ok := loaded[depName]
			if !ok {
				return nil, apperrors.ScenarioMissingModules(depName)
			}
			if err := checkVersionPredicate(depName, predicate, dep.Version); err != nil {
				return nil, err
			}
		}
		if err := mergeModule(m, l, mf); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func loadModule(l Loader, name string) (moduleManifestFile, error) {
	raw, err := l.ReadModuleManifest(name)
	if err != nil {
		return moduleManifestFile{}, apperrors.ScenarioMissingModules(name)
	}
	var mf moduleManifestFile
	if err := decodeTOML(raw, &mf); err != nil {
		return moduleManifestFile{}, apperrors.BadRequest(apperrors.CodeInvalidManifest, fmt.Sprintf("module %q: %v", name, err))
	}
	if mf.Name == "" {
		mf.Name = name
	}
	return mf, nil
}

func checkVersionPredicate(name, predicate, version string) error {
	constraint, err := semver.NewConstraint(predicate)
	if err != nil {
		return apperrors.BadRequest(apperrors.CodeInvalidManifest, fmt.Sprintf("module %q: invalid version predicate %q: %v", name, predicate, err))
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return apperrors.BadRequest(apperrors.CodeInvalidManifest, fmt.Sprintf("module %q: invalid version %q: %v", name, version, err))
	}
	if !constraint.Check(v) {
		return apperrors.ScenarioMissingModules(name)
	}
	return nil
}

func checkEngineVersion(mf moduleManifestFile, engineVersion string) error {
	if mf.EngineVersion == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(mf.EngineVersion)
	if err != nil {
		return apperrors.BadRequest(apperrors.CodeInvalidManifest, fmt.Sprintf("module %q: invalid engine_version %q: %v", mf.Name, mf.EngineVersion, err))
	}
	v, err := semver.NewVersion(engineVersion)
	if err != nil {
		return apperrors.BadRequest(apperrors.CodeInvalidManifest, fmt.Sprintf("running engine version %q is not valid semver: %v", engineVersion, err))
	}
	if !constraint.Check(v) {
		return apperrors.EngineVersionMismatch(mf.Name, mf.EngineVersion, engineVersion)
	}
	return nil
}

func checkFeatures(mf moduleManifestFile) error {
	for _, f := range mf.Features {
		if !builtinFeatures[f] {
			return apperrors.UnsupportedFeature(f)
		}
	}
	return nil
}

func mergeModule(m *SimModel, l Loader, mf moduleManifestFile) error {
	for _, p := range mf.Prefabs {
		m.RegisterEntityPrefab(EntityPrefab{Name: p.Name, Components: p.Components})
	}
	for _, e := range mf.Events {
		m.Events[e.Name] = EventModel{Name: e.Name}
	}
	for _, c := range mf.Components {
		cm, err := buildComponent(l, mf.Name, c)
		if err != nil {
			return err
		}
		m.RegisterComponent(cm)
		for _, ev := range c.Triggers {
			if _, ok := m.Events[ev]; !ok {
				m.Events[ev] = EventModel{Name: ev}
			}
		}
	}
	return nil
}

func buildComponent(l Loader, moduleName string, c componentDecl) (ComponentModel, error) {
	cm := ComponentModel{Name: c.Name, Triggers: c.Triggers}
	for _, vd := range c.Vars {
		t, err := addr.ParseVarType(vd.Type)
		if err != nil {
			return cm, err
		}
		vm := VarModel{Name: vd.Name, Type: t}
		if vd.Default != "" {
			dv, err := vars.Zero(t).SetFromString(vd.Default)
			if err != nil {
				return cm, err
			}
			vm.Default = &dv
		}
		cm.Vars = append(cm.Vars, vm)
	}

	if len(c.Scripts) == 0 {
		return cm, nil
	}

	var protos []script.CommandPrototype
	for _, scriptPath := range c.Scripts {
		pp := script.NewPreprocessor(func(path string) ([]byte, error) {
			return l.ReadModuleScript(moduleName, path)
		})
		p, err := pp.Load(scriptPath)
		if err != nil {
			return cm, err
		}
		protos = append(protos, p...)
	}

	commands, states, procedures, err := script.Build(protos)
	if err != nil {
		return cm, err
	}
	locs := make([]script.LocationInfo, len(commands))
	for i, cmd := range commands {
		locs[i] = cmd.Location
	}
	startState := "main"
	if _, ok := states["main"]; !ok {
		for name := range states {
			startState = name
			break
		}
	}
	cm.Logic = LogicModel{
		StartState:     startState,
		Commands:       commands,
		States:         states,
		Procedures:     procedures,
		CmdLocationMap: locs,
	}
	return cm, nil
}
