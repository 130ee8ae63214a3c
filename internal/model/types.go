// Package model implements the declarative SimModel the engine loads from
// a scenario: prefabs, components, events, data seeds and service
// descriptors (spec §3 "Model", §4.C).
package model

import (
	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/script"
	"outcome.io/sim/internal/vars"
)

// EventModel is a named trigger components match against (spec §3).
type EventModel struct {
	Name string
}

// VarModel declares one variable a component carries, with an optional
// default distinct from the type's zero value (spec §3 "VarModel").
type VarModel struct {
	Name    string
	Type    addr.VarType
	Default *vars.Var
}

// DefaultValue returns the declared default, or the type's zero value if
// none was declared.
func (vm VarModel) DefaultValue() vars.Var {
	if vm.Default != nil {
		return *vm.Default
	}
	return vars.Zero(vm.Type)
}

// LogicModel is a component's compiled script: a flat command vector plus
// the state/procedure line ranges carved out of it (spec §3 "LogicModel").
type LogicModel struct {
	StartState     string
	Commands       []script.Command
	States         map[string]script.LineRange
	Procedures     map[string]script.LineRange
	CmdLocationMap []script.LocationInfo
}

// ComponentModel declares one attachable component: its variables, the
// events it reacts to, and its logic (spec §3 "Component model").
type ComponentModel struct {
	Name     string
	Vars     []VarModel
	Triggers []string
	Logic    LogicModel
}

// VarModel looks up a component's declared variable by name.
func (c ComponentModel) VarModel(name string) (VarModel, bool) {
	for _, v := range c.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return VarModel{}, false
}

// EntityPrefab names a preset set of components used to instantiate an
// entity (spec §3 "Entity prefab").
type EntityPrefab struct {
	Name       string
	Components []string
}

// ServiceDescriptor is a declarative external-service binding a module may
// register (spec §3 "SimModel" lists service descriptors as part of the
// model but leaves their shape to the implementation): a named kind with
// free-form string configuration. The model only stores these; no code in
// this module reads them.
type ServiceDescriptor struct {
	Name   string
	Kind   string
	Config map[string]string
}

// SimModel is the ground truth for what may be instantiated in a
// simulation (spec §3 "SimModel"): the union of every module's
// declarations merged during scenario load.
type SimModel struct {
	Name                string
	EngineVersion        string
	MaxStepInstructions int

	Prefabs    map[string]EntityPrefab
	Components map[string]ComponentModel
	Events     map[string]EventModel
	DataSeeds  map[string]vars.Var
	Services   map[string]ServiceDescriptor
}

// NewSimModel returns an empty model ready for manifest merging.
func NewSimModel(name string) *SimModel {
	return &SimModel{
		Name:       name,
		Prefabs:    make(map[string]EntityPrefab),
		Components: make(map[string]ComponentModel),
		Events:     make(map[string]EventModel),
		DataSeeds:  make(map[string]vars.Var),
		Services:   make(map[string]ServiceDescriptor),
	}
}

// RegisterComponent adds or replaces a component declaration, used both at
// scenario-load time and by the command VM's central-tier Register command
// (spec §4.D "Model assembly").
func (m *SimModel) RegisterComponent(c ComponentModel) {
	m.Components[c.Name] = c
}

// RegisterVar adds var to an already-registered component, creating an
// empty component if needed so a bare "register var" before any
// "register component" still works during incremental scenario bootstrap.
func (m *SimModel) RegisterVar(component string, v VarModel) {
	c, ok := m.Components[component]
	if !ok {
		c = ComponentModel{Name: component}
	}
	c.Vars = append(c.Vars, v)
	m.Components[component] = c
}

// RegisterTrigger adds event to component's trigger list if not already
// present.
func (m *SimModel) RegisterTrigger(component, event string) {
	c, ok := m.Components[component]
	if !ok {
		c = ComponentModel{Name: component}
	}
	for _, t := range c.Triggers {
		if t == event {
			m.Components[component] = c
			return
		}
	}
	c.Triggers = append(c.Triggers, event)
	m.Components[component] = c
	if _, ok := m.Events[event]; !ok {
		m.Events[event] = EventModel{Name: event}
	}
}

// RegisterEntityPrefab adds or replaces a prefab declaration.
func (m *SimModel) RegisterEntityPrefab(p EntityPrefab) {
	m.Prefabs[p.Name] = p
}
