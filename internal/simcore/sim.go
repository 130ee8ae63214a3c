// Package simcore implements the local (single-process) simulation
// instance: a model, a clock, an event queue, and the entity set they
// drive (spec §4.F "Local Simulation").
package simcore

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/obslog"
	"outcome.io/sim/internal/vars"
)

// DefaultInstructionBudget is the per-entity-per-step instruction budget
// used when a SimModel does not override it (spec §4.D "Instruction
// budget default"). 0 on SimModel.MaxStepInstructions means "use this
// default", never "unlimited".
const DefaultInstructionBudget = 100_000

// moduleInitEntityName and scrInitEvent name the synthetic entity and
// event a freshly loaded scenario bootstraps (spec §4.F "from_scenario";
// grounded on original_source's "_scr_init" convention).
const (
	moduleInitEntityName = "_scr_init"
	scrInitEvent         = "_scr_init"
)

// Sim is the local simulation instance (spec §4.F). Safe for concurrent
// use: a single mutex serializes Step against the query/spawn/SetVar API
// (§5 "Shared-resource policy").
type Sim struct {
	mu sync.Mutex

	model *model.SimModel
	clock uint64

	eventQueue []string

	entities  map[uint32]*Entity
	entityIdx map[string]uint32

	nextID  uint32
	freeIDs []uint32
}

// NewSim returns a Sim over an already-loaded model, with no entities and
// an empty event queue.
func NewSim(m *model.SimModel) *Sim {
	return &Sim{
		model:     m,
		entities:  make(map[uint32]*Entity),
		entityIdx: make(map[string]uint32),
		nextID:    1,
	}
}

// FromScenario loads a model via loader and bootstraps the module-init
// entity and its triggering event (spec §4.F "from_scenario").
func FromScenario(loader model.Loader, scenarioName, engineVersion string) (*Sim, error) {
	m, err := model.Load(loader, scenarioName, engineVersion)
	if err != nil {
		return nil, err
	}
	s := NewSim(m)
	if _, err := s.spawnEntityLocked(0, "", moduleInitEntityName); err != nil {
		return nil, err
	}
	s.AddEvent(scrInitEvent)
	return s, nil
}

// Clock returns the current step count.
func (s *Sim) Clock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Model returns the simulation's model.
func (s *Sim) Model() *model.SimModel { return s.model }

// Entities returns every entity currently in this Sim, in ascending id
// order, for callers (internal/node's query/data-request handlers) that
// need to scan the whole partition rather than address one entity.
func (s *Sim) Entities() []*Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint32, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*Entity, len(ids))
	for i, id := range ids {
		out[i] = s.entities[id]
	}
	return out
}

// AddEvent enqueues name to fire on the current step (spec §4.F
// "add_event").
func (s *Sim) AddEvent(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventQueue = append(s.eventQueue, name)
}

// SpawnEntity allocates an id, instantiates an entity from prefab (or
// empty if prefab is ""), registers the optional name, and ensures name
// uniqueness (spec §4.F "spawn_entity").
func (s *Sim) SpawnEntity(prefab, name string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnEntityLocked(0, prefab, name)
}

// SpawnEntityWithID instantiates an entity at a caller-chosen id instead of
// allocating one locally (spec §4.H "spawn_entity... allocates a fresh id
// centrally"): the organizer picks the id and tells the owning worker which
// one to use, so routing table and worker partition stay in agreement.
func (s *Sim) SpawnEntityWithID(id uint32, prefab, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entities[id]; exists {
		return apperrors.DuplicateEntityName(fmt.Sprintf("#%d", id))
	}
	_, err := s.spawnEntityLocked(id, prefab, name)
	return err
}

func (s *Sim) spawnEntityLocked(id uint32, prefab, name string) (uint32, error) {
	if name != "" {
		if _, exists := s.entityIdx[name]; exists {
			return 0, apperrors.DuplicateEntityName(name)
		}
	}

	var componentNames []string
	if prefab != "" {
		p, ok := s.model.Prefabs[prefab]
		if !ok {
			return 0, apperrors.UnknownPrefab(prefab)
		}
		componentNames = p.Components
	}

	if id == 0 {
		id = s.allocID()
	} else {
		s.reserveID(id)
	}
	ent := newEntity(id, name)
	for _, cname := range componentNames {
		comp, ok := s.model.Components[cname]
		if !ok {
			obslog.Warn("prefab references unknown component", zap.String("prefab", prefab), zap.String("component", cname))
			continue
		}
		ent.AttachComponent(cname, defaultsFor(comp))
	}

	s.entities[id] = ent
	if name != "" {
		s.entityIdx[name] = id
	}
	return id, nil
}

// reserveID marks id as in-use in the local id pool bookkeeping, for an
// entity whose id was chosen by a caller (the organizer) rather than
// allocated by allocID.
func (s *Sim) reserveID(id uint32) {
	if id >= s.nextID {
		s.nextID = id + 1
	}
	for i, fid := range s.freeIDs {
		if fid == id {
			s.freeIDs = append(s.freeIDs[:i], s.freeIDs[i+1:]...)
			return
		}
	}
}

func (s *Sim) allocID() uint32 {
	if n := len(s.freeIDs); n > 0 {
		id := s.freeIDs[n-1]
		s.freeIDs = s.freeIDs[:n-1]
		return id
	}
	id := s.nextID
	s.nextID++
	return id
}

// destroyEntityLocked removes an entity and returns its id to the pool
// (spec §3 "IDs of dropped entities may be reused by the ID pool").
func (s *Sim) destroyEntityLocked(id uint32) {
	ent, ok := s.entities[id]
	if !ok {
		return
	}
	delete(s.entities, id)
	if ent.name != "" {
		delete(s.entityIdx, ent.name)
	}
	s.freeIDs = append(s.freeIDs, id)
}

func defaultsFor(comp model.ComponentModel) map[vars.Key]vars.Var {
	defaults := make(map[vars.Key]vars.Var, len(comp.Vars))
	for _, v := range comp.Vars {
		defaults[vars.Key{Component: comp.Name, Var: v.Name}] = v.DefaultValue()
	}
	return defaults
}

// GetVar resolves a full entity:component:type:var address against the
// entity's storage (spec §4.F "get_var").
func (s *Sim) GetVar(address string) (vars.Var, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := addr.Parse(address)
	if err != nil {
		return vars.Var{}, err
	}
	ent, err := s.lookupEntity(a.Entity)
	if err != nil {
		return vars.Var{}, err
	}
	return ent.Storage().GetVar(vars.Key{Component: a.Component, Var: a.Var})
}

// SetVar writes v at a full address, enforcing the destination's existing
// type tag (spec §4.B "Writes through a typed setter must match the
// stored tag"); stands in for the original's get_var_mut, which Go's
// value semantics do not have a direct equivalent for.
func (s *Sim) SetVar(address string, v vars.Var) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := addr.Parse(address)
	if err != nil {
		return err
	}
	ent, err := s.lookupEntity(a.Entity)
	if err != nil {
		return err
	}
	return ent.Storage().Set(vars.Key{Component: a.Component, Var: a.Var}, v)
}

func (s *Sim) lookupEntity(ref string) (*Entity, error) {
	if id, ok := s.entityIdx[ref]; ok {
		return s.entities[id], nil
	}
	return nil, apperrors.UnknownEntity(ref)
}

func (s *Sim) instructionBudget() int {
	if s.model.MaxStepInstructions <= 0 {
		return DefaultInstructionBudget
	}
	return s.model.MaxStepInstructions
}
