package machine

import "outcome.io/sim/internal/vars"

// Registry is a per-execution scratchpad of named intermediate values used
// by Eval and ForIn iteration (spec §4.D "Registry"). It is rebuilt fresh
// for every RunComponentStep call; nothing in it survives past one
// entity-component's pass for one event.
type Registry struct {
	m map[string]vars.Var
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]vars.Var)}
}

// Get returns the named value and whether it is present.
func (r *Registry) Get(name string) (vars.Var, bool) {
	v, ok := r.m[name]
	return v, ok
}

// Set writes name unconditionally; the registry has no type-tag invariant
// of its own (unlike Storage).
func (r *Registry) Set(name string, v vars.Var) {
	r.m[name] = v
}
