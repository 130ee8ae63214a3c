package simcore

import (
	"sort"

	"go.uber.org/zap"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/machine"
	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/obslog"
	"outcome.io/sim/internal/vars"
)

// StepResult summarizes one Step call: the events that fired and anything
// printed during it. Runtime VM errors are not included (spec §7: they are
// logged once, at the point they abort an entity-component, and never
// propagate) — callers that need them should watch the logs.
type StepResult struct {
	EventsFired []string
	Prints      []string
}

// Step drives one step across every local entity (spec §4.F "Single step,
// local", the six-point algorithm).
func (s *Sim) Step() (StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked()
}

func (s *Sim) stepLocked() (StepResult, error) {
	events := s.eventQueue
	s.eventQueue = nil

	result := StepResult{EventsFired: events}
	budget := s.instructionBudget()

	ids := make([]uint32, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var extQueue []machine.ExtCommand
	var centralQueue []machine.CentralExtCommand

	// Point 2: for each event, for each entity (ascending id), for each
	// triggered component (attach order), run the command VM.
	for _, event := range events {
		for _, id := range ids {
			ent := s.entities[id]
			for _, compName := range ent.Components() {
				comp, ok := s.model.Components[compName]
				if !ok || !containsString(comp.Triggers, event) {
					continue
				}
				out, merr := machine.RunComponentStep(ent, compName, comp, budget)
				if merr != nil {
					obslog.Error("component step aborted",
						zap.Uint32("entity", id),
						zap.String("component", compName),
						zap.String("event", event),
						zap.String("error_kind", merr.Code),
						zap.String("location", merr.Location),
					)
					continue
				}
				result.Prints = append(result.Prints, out.Prints...)
				extQueue = append(extQueue, out.ExtCommands...)
				centralQueue = append(centralQueue, out.CentralCommands...)
			}
		}
	}

	// Point 3: drain ExecExt, in enqueue order.
	for _, ec := range extQueue {
		s.applyExt(ec)
	}

	// Point 4: drain ExecCentralExt, in enqueue order.
	var nextEvents []string
	for _, cc := range centralQueue {
		s.applyCentral(cc, &nextEvents)
	}

	// Point 5: the next event queue is whatever was invoked during (2)-(4).
	s.eventQueue = nextEvents

	// Point 6.
	s.clock++

	return result, nil
}

func (s *Sim) applyExt(ec machine.ExtCommand) {
	origin, ok := s.entities[ec.OriginEntityID]
	if !ok {
		return
	}
	target := origin
	if ec.TargetEntityName != "" {
		t, err := s.lookupEntity(ec.TargetEntityName)
		if err != nil {
			obslog.Warn("get: unknown target entity", zap.String("entity", ec.TargetEntityName))
			return
		}
		target = t
	}
	v, err := target.Storage().GetVar(vars.Key{Component: ec.SourceComponent, Var: ec.SourceVar})
	if err != nil {
		obslog.Warn("get: source variable missing",
			zap.String("component", ec.SourceComponent), zap.String("var", ec.SourceVar))
		return
	}
	if err := origin.Storage().Set(ec.DestKey, v); err != nil {
		obslog.Warn("get: type mismatch writing result", zap.Error(err))
	}
}

func (s *Sim) applyCentral(cc machine.CentralExtCommand, nextEvents *[]string) {
	switch cc.Kind {
	case machine.CentralInvoke:
		*nextEvents = append(*nextEvents, cc.Events...)

	case machine.CentralSpawn:
		if _, err := s.spawnEntityLocked(0, cc.PrefabName, cc.EntityName); err != nil {
			obslog.Warn("spawn command failed", zap.String("prefab", cc.PrefabName), zap.Error(err))
		}

	case machine.CentralPrefab:
		if _, err := s.spawnEntityLocked(0, cc.PrefabName, ""); err != nil {
			obslog.Warn("prefab command failed", zap.String("prefab", cc.PrefabName), zap.Error(err))
		}

	case machine.CentralRegisterComponent:
		s.model.RegisterComponent(model.ComponentModel{Name: cc.ComponentName})

	case machine.CentralRegisterVar:
		t, err := addr.ParseVarType(cc.VarType)
		if err != nil {
			obslog.Warn("register var: invalid type", zap.String("type", cc.VarType))
			return
		}
		var def *vars.Var
		if cc.VarDefault != "" {
			parsed, perr := vars.Zero(t).SetFromString(cc.VarDefault)
			if perr == nil {
				def = &parsed
			}
		}
		s.model.RegisterVar(cc.ComponentName, model.VarModel{Name: cc.VarName, Type: t, Default: def})

	case machine.CentralRegisterTrigger:
		s.model.RegisterTrigger(cc.ComponentName, cc.TriggerEvent)

	case machine.CentralRegisterEntityPrefab:
		s.model.RegisterEntityPrefab(model.EntityPrefab{Name: cc.PrefabName, Components: cc.PrefabComponents})

	case machine.CentralExtend:
		obslog.Warn("extend command not supported in local simulation", zap.String("path", cc.ExtendPath))
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
