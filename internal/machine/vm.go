package machine

import (
	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/script"
	"outcome.io/sim/internal/vars"
)

// EntityView is the surface RunComponentStep needs from an entity: its
// storage and per-component VM-transient state, plus the attach/detach
// operations the local commands mutate directly (spec §4.D "Attach",
// "Detach" are local, not central-tier, per the original command
// grouping). Defined as an interface so the simulation-owned Entity type
// does not need to live under this package (avoiding an import cycle with
// internal/simcore, which executes RunComponentStep against its own
// Entity).
type EntityView interface {
	ID() uint32
	Storage() *vars.Storage
	// ComponentState returns the VM-transient state for name, creating and
	// persisting an empty one on first access so that mutations made
	// through the returned pointer (state name, call stack) survive past
	// this call.
	ComponentState(name string) *ComponentState
	HasComponent(name string) bool
	AttachComponent(name string, defaults map[vars.Key]vars.Var)
	DetachComponent(name string)
}

// RunOutput collects what a RunComponentStep pass could not apply inline:
// ext commands for the node's post-pass, central commands for the
// organizer, and any Print output.
type RunOutput struct {
	ExtCommands     []ExtCommand
	CentralCommands []CentralExtCommand
	Prints          []string
}

// RunComponentStep executes componentName's current state for one step on
// behalf of ent, up to budget instructions (0 means unlimited within this
// call — callers resolve the configured default before calling in).
// Implements spec §4.D "Execution of a single entity-component in a single
// step".
func RunComponentStep(ent EntityView, componentName string, comp model.ComponentModel, budget int) (RunOutput, *Error) {
	var out RunOutput

	state := ent.ComponentState(componentName)
	if state == nil {
		state = NewComponentState(comp.Logic.StartState)
	}
	if state.StateName == "" {
		state.StateName = comp.Logic.StartState
	}

	rng, ok := comp.Logic.States[state.StateName]
	if !ok {
		rng = script.LineRange{Start: 0, End: len(comp.Logic.Commands)}
	}

	state.CallStack = state.CallStack[:0]
	state.push(CallInfo{Kind: FrameComponent, Name: componentName})
	state.push(CallInfo{Kind: FrameState, Name: state.StateName})

	cursor := rng.Start
	storage := ent.Storage()
	registry := NewRegistry()
	steps := 0

	for {
		if cursor == rng.End && len(state.CallStack) == 2 {
			break
		}
		if cursor < 0 || cursor >= len(comp.Logic.Commands) {
			break
		}
		if budget > 0 && steps >= budget {
			return out, newError(apperrors.CodeRuntimeBudgetExceeded, "",
				"entity %d component %q exceeded instruction budget of %d", ent.ID(), componentName, budget)
		}
		steps++

		cmd := comp.Logic.Commands[cursor]
		res := executeOne(ent, componentName, comp, cmd, cursor, storage, state, registry, &out)

		switch res.Kind {
		case ResultContinue:
			cursor++
		case ResultBreak:
			top, ok := state.peek()
			if !ok {
				cursor++
				continue
			}
			switch top.Kind {
			case FrameForIn:
				state.popIf(FrameForIn)
				cursor = cmd.BlockEndLine + 1
			case FrameIf:
				state.popIf(FrameIf)
				cursor = cmd.BlockEndLine + 1
			default:
				cursor++
			}
		case ResultJumpToLine:
			cursor = res.JumpLine
		case ResultGoto:
			return out, nil
		case ResultExecExt:
			out.ExtCommands = append(out.ExtCommands, *res.Ext)
			cursor++
		case ResultExecCentralExt:
			out.CentralCommands = append(out.CentralCommands, *res.Central)
			cursor++
		case ResultErr:
			return out, res.Err
		}
	}
	return out, nil
}

func executeOne(ent EntityView, componentName string, comp model.ComponentModel, cmd script.Command, cursor int, storage *vars.Storage, state *ComponentState, reg *Registry, out *RunOutput) CommandResult {
	switch cmd.Kind {
	case script.KindSet:
		key, err := resolveKey(cmd.TargetAddr, componentName)
		if err != nil {
			return errResult(newError(apperrors.CodeInvalidAddress, cmd.Location.String(), "%v", err))
		}
		if !storage.Has(key) {
			return errResult(newError(apperrors.CodeUnknownVariable, cmd.Location.String(), "set to nonexistent variable %s:%s", key.Component, key.Var))
		}
		if v, ok := reg.Get(cmd.Literal); ok {
			if err := storage.Set(key, v); err != nil {
				return errResult(newError(apperrors.CodeTypeMismatch, cmd.Location.String(), "%v", err))
			}
			return continueResult()
		}
		if err := storage.SetFromString(key, cmd.Literal); err != nil {
			return errResult(newError(apperrors.CodeTypeMismatch, cmd.Location.String(), "%v", err))
		}
		return continueResult()

	case script.KindEval, script.KindIf:
		left, lerr := resolveOperand(cmd.EvalLeft, componentName, storage, reg)
		if lerr != nil {
			return errResult(lerr)
		}
		right, rerr := resolveOperand(cmd.EvalRight, componentName, storage, reg)
		if rerr != nil {
			return errResult(rerr)
		}
		result, everr := evalExpr(left, cmd.EvalOp, right)
		if everr != nil {
			return errResult(everr)
		}
		if cmd.Kind == script.KindIf {
			state.push(CallInfo{Kind: FrameIf})
			b, _ := result.Bool()
			if b {
				return continueResult()
			}
			return jumpResult(cmd.ElseEndLine)
		}
		if cmd.Output != "" {
			key, err := resolveKey(cmd.Output, componentName)
			if err == nil && storage.Has(key) {
				if err := storage.Set(key, result); err != nil {
					return errResult(newError(apperrors.CodeTypeMismatch, cmd.Location.String(), "%v", err))
				}
			} else {
				reg.Set(cmd.Output, result)
			}
		}
		return continueResult()

	case script.KindElse:
		// Reached by falling through an executed if-branch: skip the
		// else-branch entirely.
		state.popIf(FrameIf)
		return jumpResult(cmd.BlockEndLine)

	case script.KindEnd:
		top, ok := state.peek()
		if !ok {
			return continueResult()
		}
		switch top.Kind {
		case FrameIf:
			state.popIf(FrameIf)
			return continueResult()
		case FrameForIn:
			top.ForCursor++
			if top.ForCursor <= top.ForTo {
				state.CallStack[len(state.CallStack)-1] = top
				reg.Set(top.Name, vars.NewInt(top.ForCursor))
				return jumpResult(top.ReturnLine)
			}
			state.popIf(FrameForIn)
			return continueResult()
		case FrameProcedure:
			state.popIf(FrameProcedure)
			return jumpResult(top.ReturnLine)
		case FrameComponentBlock:
			state.popIf(FrameComponentBlock)
			return continueResult()
		default:
			return continueResult()
		}

	case script.KindForIn:
		if cmd.ForFrom > cmd.ForTo {
			return jumpResult(cmd.BlockEndLine + 1)
		}
		state.push(CallInfo{Kind: FrameForIn, ReturnLine: cursor + 1, Name: cmd.ForVar, ForCursor: cmd.ForFrom, ForTo: cmd.ForTo})
		reg.Set(cmd.ForVar, vars.NewInt(cmd.ForFrom))
		return continueResult()

	case script.KindCall:
		rng, ok := comp.Logic.Procedures[cmd.ProcName]
		if !ok {
			return errResult(newError(apperrors.CodeUnknownCommand, cmd.Location.String(), "unknown procedure %q", cmd.ProcName))
		}
		state.push(CallInfo{Kind: FrameProcedure, ReturnLine: cursor + 1, Name: cmd.ProcName})
		return jumpResult(rng.Start)

	case script.KindRange:
		key, err := resolveKey(cmd.RangeAddr, componentName)
		if err != nil {
			return errResult(newError(apperrors.CodeInvalidAddress, cmd.Location.String(), "%v", err))
		}
		v, gerr := storage.GetVar(key)
		if gerr != nil {
			return errResult(newError(apperrors.CodeUnknownVariable, cmd.Location.String(), "%v", gerr))
		}
		n := collectionLen(v)
		if cmd.Output != "" {
			reg.Set(cmd.Output, vars.NewInt(n))
		}
		return continueResult()

	case script.KindComponent:
		state.push(CallInfo{Kind: FrameComponentBlock, Name: cmd.Name})
		return continueResult()

	case script.KindState, script.KindProcedure:
		// Declarations only reachable by falling into their own range,
		// which never happens (ranges start after the decl line); no-op
		// if ever hit directly.
		return continueResult()

	case script.KindJump:
		return jumpResult(cmd.JumpLine)

	case script.KindGoto:
		state.StateName = cmd.GotoState
		return CommandResult{Kind: ResultGoto}

	case script.KindAttach:
		if !ent.HasComponent(cmd.ComponentName) {
			ent.AttachComponent(cmd.ComponentName, nil)
		}
		return continueResult()

	case script.KindDetach:
		ent.DetachComponent(cmd.ComponentName)
		return continueResult()

	case script.KindPrint:
		msg := renderPrint(cmd.PrintArgs, componentName, storage, reg)
		out.Prints = append(out.Prints, msg)
		return continueResult()

	case script.KindGet:
		a, err := addr.Parse(cmd.SourceAddr)
		if err != nil {
			return errResult(newError(apperrors.CodeInvalidAddress, cmd.Location.String(), "%v", err))
		}
		destKey, err := resolveKey(cmd.Output, componentName)
		if err != nil {
			return errResult(newError(apperrors.CodeInvalidAddress, cmd.Location.String(), "%v", err))
		}
		return extResult(ExtCommand{
			OriginEntityID:   ent.ID(),
			TargetEntityName: a.Entity,
			SourceComponent:  a.Component,
			SourceVarType:    a.Type.String(),
			SourceVar:        a.Var,
			DestKey:          destKey,
		})

	case script.KindInvoke:
		return centralResult(CentralExtCommand{Kind: CentralInvoke, Events: cmd.Events, OriginEntityID: ent.ID()})

	case script.KindSpawn:
		return centralResult(CentralExtCommand{Kind: CentralSpawn, PrefabName: cmd.PrefabName, EntityName: cmd.EntityName, OriginEntityID: ent.ID()})

	case script.KindPrefab:
		return centralResult(CentralExtCommand{Kind: CentralPrefab, PrefabName: cmd.PrefabName, OriginEntityID: ent.ID()})

	case script.KindRegisterComponent:
		return centralResult(CentralExtCommand{Kind: CentralRegisterComponent, ComponentName: cmd.RegisterName, OriginEntityID: ent.ID()})

	case script.KindRegisterVar:
		return centralResult(CentralExtCommand{
			Kind:          CentralRegisterVar,
			ComponentName: currentComponentBlock(state, componentName),
			VarName:       cmd.RegisterName,
			VarType:       cmd.RegisterVarType.String(),
			VarDefault:    cmd.RegisterDefault,
			OriginEntityID: ent.ID(),
		})

	case script.KindRegisterTrigger:
		return centralResult(CentralExtCommand{
			Kind:          CentralRegisterTrigger,
			ComponentName: currentComponentBlock(state, componentName),
			TriggerEvent:  cmd.RegisterTriggerEvent,
			OriginEntityID: ent.ID(),
		})

	case script.KindRegisterEntityPrefab:
		return centralResult(CentralExtCommand{
			Kind:             CentralRegisterEntityPrefab,
			PrefabName:       cmd.RegisterName,
			PrefabComponents: cmd.RegisterComponents,
			OriginEntityID:   ent.ID(),
		})

	case script.KindExtend:
		return centralResult(CentralExtCommand{Kind: CentralExtend, ExtendPath: cmd.ExtendPath, OriginEntityID: ent.ID()})

	default:
		return errResult(newError(apperrors.CodeUnknownCommand, cmd.Location.String(), "unhandled command kind %q", cmd.Kind))
	}
}

// currentComponentBlock returns the name of the innermost script-level
// "component NAME ... end" block still open on the call stack, falling
// back to the entity-component actually executing when no such block is
// open (spec §8 scenario 3 "register var ... inside a component Bar
// block").
func currentComponentBlock(state *ComponentState, fallback string) string {
	for i := len(state.CallStack) - 1; i >= 0; i-- {
		if state.CallStack[i].Kind == FrameComponentBlock {
			return state.CallStack[i].Name
		}
	}
	return fallback
}

// collectionLen returns the element count of a list or grid variable (its
// row count for a grid), for "range" resolving an iteration bound ahead of
// a ForIn over the collection's indices.
func collectionLen(v vars.Var) int64 {
	switch v.Type() {
	case addr.StrList:
		l, _ := v.StrList()
		return int64(len(l))
	case addr.IntList:
		l, _ := v.IntList()
		return int64(len(l))
	case addr.FloatList:
		l, _ := v.FloatList()
		return int64(len(l))
	case addr.BoolList:
		l, _ := v.BoolList()
		return int64(len(l))
	case addr.StrGrid:
		g, _ := v.StrGrid()
		return int64(len(g))
	case addr.IntGrid:
		g, _ := v.IntGrid()
		return int64(len(g))
	case addr.FloatGrid:
		g, _ := v.FloatGrid()
		return int64(len(g))
	case addr.BoolGrid:
		g, _ := v.BoolGrid()
		return int64(len(g))
	default:
		return 0
	}
}

func renderPrint(args []string, component string, storage *vars.Storage, reg *Registry) string {
	msg := ""
	for i, a := range args {
		if i > 0 {
			msg += " "
		}
		if key, err := resolveKey(a, component); err == nil && storage.Has(key) {
			v, _ := storage.GetVar(key)
			msg += v.String()
		} else if v, ok := reg.Get(a); ok {
			msg += v.String()
		} else {
			msg += a
		}
	}
	return msg
}
