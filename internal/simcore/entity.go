package simcore

import (
	"outcome.io/sim/internal/machine"
	"outcome.io/sim/internal/vars"
)

// Entity is a single simulation object: an id, an optional name, a
// typed variable store, the set of attached components, and the
// VM-transient state the command VM carries per component (spec §3
// "Entity"). Entity implements machine.EntityView so RunComponentStep
// can drive it directly.
type Entity struct {
	id      uint32
	name    string
	storage *vars.Storage

	componentOrder []string // declaration/attach order, for deterministic trigger iteration
	components     map[string]bool
	states         map[string]*machine.ComponentState
}

func newEntity(id uint32, name string) *Entity {
	return &Entity{
		id:         id,
		name:       name,
		storage:    vars.NewStorage(),
		components: make(map[string]bool),
		states:     make(map[string]*machine.ComponentState),
	}
}

// ID returns the entity's simulation-unique identifier.
func (e *Entity) ID() uint32 { return e.id }

// Name returns the entity's optional name ("" if none was assigned).
func (e *Entity) Name() string { return e.name }

// Storage returns the entity's variable store.
func (e *Entity) Storage() *vars.Storage { return e.storage }

// HasComponent reports whether component is currently attached.
func (e *Entity) HasComponent(name string) bool { return e.components[name] }

// Components returns the attached component names in attach order.
func (e *Entity) Components() []string {
	out := make([]string, len(e.componentOrder))
	copy(out, e.componentOrder)
	return out
}

// ComponentState returns the VM-transient state for name, creating one on
// first access (spec §3 "Entity... VM-transient state").
func (e *Entity) ComponentState(name string) *machine.ComponentState {
	s, ok := e.states[name]
	if !ok {
		s = machine.NewComponentState("")
		e.states[name] = s
	}
	return s
}

// AttachComponent attaches component, seeding its storage with defaults.
// A no-op if already attached (spec §8 "Attach of an already-attached
// component is a no-op").
func (e *Entity) AttachComponent(name string, defaults map[vars.Key]vars.Var) {
	if e.components[name] {
		return
	}
	e.components[name] = true
	e.componentOrder = append(e.componentOrder, name)
	for k, v := range defaults {
		e.storage.Init(k, v)
	}
}

// DetachComponent removes component and its storage keys. A no-op if not
// attached (spec §8 "Detach of a missing component is a no-op").
func (e *Entity) DetachComponent(name string) {
	if !e.components[name] {
		return
	}
	delete(e.components, name)
	delete(e.states, name)
	e.storage.DeleteComponent(name)
	for i, c := range e.componentOrder {
		if c == name {
			e.componentOrder = append(e.componentOrder[:i], e.componentOrder[i+1:]...)
			break
		}
	}
}
