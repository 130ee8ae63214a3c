package script

import (
	"strconv"
	"strings"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
)

// CommandKind tags a Command's variant (spec §4.D). Kept as a single
// flat struct rather than a Go interface-per-variant: the VM switches on
// Kind exactly once per execute call and every variant's fields are
// small, so a tagged struct avoids a type-switch-on-interface for every
// field access without losing the "one command, one shape" clarity.
type CommandKind string

const (
	KindSet                  CommandKind = "set"
	KindGet                  CommandKind = "get"
	KindEval                 CommandKind = "eval"
	KindPrint                CommandKind = "print"
	KindIf                   CommandKind = "if"
	KindElse                 CommandKind = "else"
	KindEnd                  CommandKind = "end"
	KindJump                 CommandKind = "jump"
	KindCall                 CommandKind = "call"
	KindForIn                CommandKind = "for"
	KindProcedure            CommandKind = "procedure"
	KindState                CommandKind = "state"
	KindComponent            CommandKind = "component"
	KindGoto                 CommandKind = "goto"
	KindAttach               CommandKind = "attach"
	KindDetach               CommandKind = "detach"
	KindInvoke               CommandKind = "invoke"
	KindSpawn                CommandKind = "spawn"
	KindPrefab               CommandKind = "prefab"
	KindRegisterComponent    CommandKind = "register_component"
	KindRegisterVar          CommandKind = "register_var"
	KindRegisterTrigger      CommandKind = "register_trigger"
	KindRegisterEntityPrefab CommandKind = "register_entity_prefab"
	KindExtend               CommandKind = "extend"
	KindRange                CommandKind = "range"
)

// Command is one compiled instruction in a LogicModel's flat command
// vector (spec §4.D). Only the fields relevant to Kind are populated.
type Command struct {
	Kind     CommandKind
	Location LocationInfo
	Tag      string
	Output   string

	TargetAddr string
	SourceAddr string
	Literal    string

	EvalLeft  string
	EvalOp    string
	EvalRight string

	PrintArgs []string

	JumpLine      int
	ElseEndLine   int // If: line to jump to when the condition is false
	ForEndLine    int // ForIn: line of the matching End, for loop-back
	BlockEndLine  int // If/ForIn: line of the matching End, for Break

	GotoState string
	ProcName  string

	ForVar  string
	ForFrom int64
	ForTo   int64

	Name          string
	ComponentName string
	Events        []string
	PrefabName    string
	EntityName    string

	RegisterName          string
	RegisterVarType       addr.VarType
	RegisterDefault       string
	RegisterTriggerEvent  string
	RegisterComponents    []string // RegisterEntityPrefab: component names making up the prefab
	ExtendPath            string

	RangeAddr string
}

// LineRange is a half-open [Start, End) index range into a LogicModel's
// Commands vector (spec §4.C "LogicModel").
type LineRange struct {
	Start int
	End   int
}

type blockFrame struct {
	kind    CommandKind
	index   int
	name    string
	ifIndex int // for an Else frame, the index of the If command it belongs to
}

// Build turns a preprocessed prototype list into a flat Command vector,
// resolving block nesting (if/else/end, procedure/end, state/end, for/end)
// into line ranges and jump targets (spec §4.D, §4.E).
func Build(protos []CommandPrototype) (commands []Command, states map[string]LineRange, procedures map[string]LineRange, err error) {
	states = make(map[string]LineRange)
	procedures = make(map[string]LineRange)

	var stack []blockFrame
	for _, proto := range protos {
		cmd, err := buildOne(proto)
		if err != nil {
			return nil, nil, nil, err
		}
		idx := len(commands)
		cmd.Tag = proto.Tag

		switch cmd.Kind {
		case KindIf, KindForIn:
			stack = append(stack, blockFrame{kind: cmd.Kind, index: idx})
		case KindProcedure:
			stack = append(stack, blockFrame{kind: cmd.Kind, index: idx, name: cmd.Name})
		case KindState, KindComponent:
			stack = append(stack, blockFrame{kind: cmd.Kind, index: idx, name: cmd.Name})
		case KindElse:
			if len(stack) == 0 || stack[len(stack)-1].kind != KindIf {
				return nil, nil, nil, apperrors.BadRequest(apperrors.CodeControlWithoutValue, "else without matching if: "+proto.Location.String())
			}
			ifFrame := stack[len(stack)-1]
			commands[ifFrame.index].ElseEndLine = idx + 1
			stack[len(stack)-1] = blockFrame{kind: KindElse, index: idx, ifIndex: ifFrame.index}
		case KindEnd:
			if len(stack) == 0 {
				return nil, nil, nil, apperrors.BadRequest(apperrors.CodeControlWithoutValue, "end without matching block: "+proto.Location.String())
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			switch top.kind {
			case KindIf:
				commands[top.index].ElseEndLine = idx
				commands[top.index].BlockEndLine = idx
			case KindElse:
				commands[top.ifIndex].BlockEndLine = idx
				commands[top.index].BlockEndLine = idx
			case KindForIn:
				commands[top.index].ForEndLine = idx
				commands[top.index].BlockEndLine = idx
				cmd.ForEndLine = top.index
			case KindProcedure:
				procedures[top.name] = LineRange{Start: top.index + 1, End: idx}
			case KindState:
				states[top.name] = LineRange{Start: top.index + 1, End: idx}
			case KindComponent:
				// component-block scoping for register commands is
				// resolved at runtime via the call stack, not a static
				// line range.
			}
		}

		commands = append(commands, cmd)
	}

	if len(stack) != 0 {
		return nil, nil, nil, apperrors.BadRequest(apperrors.CodeControlWithoutValue, "unterminated block: "+stack[len(stack)-1].kind.Location())
	}
	return commands, states, procedures, nil
}

// Location is a small helper so the unterminated-block error above can name
// something; block kinds carry no location of their own in this struct, so
// this just renders the kind.
func (k CommandKind) Location() string { return string(k) }

func buildOne(proto CommandPrototype) (Command, error) {
	base := Command{Location: proto.Location, Output: proto.Output}
	switch proto.Name {
	case "set":
		if len(proto.Args) < 2 {
			return base, argErr(proto, "set requires <target> <value>")
		}
		base.Kind = KindSet
		base.TargetAddr = proto.Args[0]
		base.Literal = strings.Join(proto.Args[1:], " ")
		return base, nil

	case "get":
		if len(proto.Args) < 1 {
			return base, argErr(proto, "get requires <source>")
		}
		base.Kind = KindGet
		base.SourceAddr = proto.Args[0]
		return base, nil

	case "eval":
		if len(proto.Args) != 3 {
			return base, argErr(proto, "eval requires <left> <op> <right>")
		}
		base.Kind = KindEval
		base.EvalLeft, base.EvalOp, base.EvalRight = proto.Args[0], proto.Args[1], proto.Args[2]
		return base, nil

	case "print":
		base.Kind = KindPrint
		base.PrintArgs = proto.Args
		return base, nil

	case "if":
		if len(proto.Args) != 3 {
			return base, argErr(proto, "if requires <left> <op> <right>")
		}
		base.Kind = KindIf
		base.EvalLeft, base.EvalOp, base.EvalRight = proto.Args[0], proto.Args[1], proto.Args[2]
		return base, nil

	case "else":
		base.Kind = KindElse
		return base, nil

	case "end":
		base.Kind = KindEnd
		return base, nil

	case "jump":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "jump requires <line>")
		}
		n, err := strconv.Atoi(proto.Args[0])
		if err != nil {
			return base, argErr(proto, "jump target must be an integer line number")
		}
		base.Kind = KindJump
		base.JumpLine = n
		return base, nil

	case "call":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "call requires <procedure>")
		}
		base.Kind = KindCall
		base.ProcName = proto.Args[0]
		return base, nil

	case "for":
		if len(proto.Args) != 2 {
			return base, argErr(proto, "for requires <var> <from..to>")
		}
		bounds := strings.SplitN(proto.Args[1], "..", 2)
		if len(bounds) != 2 {
			return base, argErr(proto, "for range must be <from>..<to>")
		}
		from, err1 := strconv.ParseInt(bounds[0], 10, 64)
		to, err2 := strconv.ParseInt(bounds[1], 10, 64)
		if err1 != nil || err2 != nil {
			return base, argErr(proto, "for range bounds must be integers")
		}
		base.Kind = KindForIn
		base.ForVar = proto.Args[0]
		base.ForFrom = from
		base.ForTo = to
		return base, nil

	case "proc", "procedure":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "procedure requires <name>")
		}
		base.Kind = KindProcedure
		base.Name = proto.Args[0]
		return base, nil

	case "state":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "state requires <name>")
		}
		base.Kind = KindState
		base.Name = proto.Args[0]
		return base, nil

	case "component":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "component requires <name>")
		}
		base.Kind = KindComponent
		base.Name = proto.Args[0]
		return base, nil

	case "goto":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "goto requires <state>")
		}
		base.Kind = KindGoto
		base.GotoState = proto.Args[0]
		return base, nil

	case "attach":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "attach requires <component>")
		}
		base.Kind = KindAttach
		base.ComponentName = proto.Args[0]
		return base, nil

	case "detach":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "detach requires <component>")
		}
		base.Kind = KindDetach
		base.ComponentName = proto.Args[0]
		return base, nil

	case "invoke":
		if len(proto.Args) < 1 {
			return base, argErr(proto, "invoke requires at least one event")
		}
		base.Kind = KindInvoke
		base.Events = proto.Args
		return base, nil

	case "spawn":
		base.Kind = KindSpawn
		if len(proto.Args) > 0 {
			base.PrefabName = proto.Args[0]
		}
		if len(proto.Args) > 1 {
			base.EntityName = proto.Args[1]
		}
		return base, nil

	case "prefab":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "prefab requires <name>")
		}
		base.Kind = KindPrefab
		base.PrefabName = proto.Args[0]
		return base, nil

	case "register":
		return buildRegister(base, proto)

	case "extend":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "extend requires <path>")
		}
		base.Kind = KindExtend
		base.ExtendPath = proto.Args[0]
		return base, nil

	case "range":
		if len(proto.Args) != 1 {
			return base, argErr(proto, "range requires <collection address>")
		}
		base.Kind = KindRange
		base.RangeAddr = proto.Args[0]
		return base, nil

	default:
		return base, apperrors.BadRequest(apperrors.CodeUnknownCommand, "unknown command \""+proto.Name+"\" at "+proto.Location.String())
	}
}

func buildRegister(base Command, proto CommandPrototype) (Command, error) {
	if len(proto.Args) < 2 {
		return base, argErr(proto, "register requires a kind and a name")
	}
	switch proto.Args[0] {
	case "var":
		if len(proto.Args) < 3 {
			return base, argErr(proto, "register var requires <type> <name> [default]")
		}
		t, err := addr.ParseVarType(proto.Args[1])
		if err != nil {
			return base, err
		}
		base.Kind = KindRegisterVar
		base.RegisterVarType = t
		base.RegisterName = proto.Args[2]
		if len(proto.Args) > 3 {
			base.RegisterDefault = strings.Join(proto.Args[3:], " ")
		}
		return base, nil
	case "component":
		base.Kind = KindRegisterComponent
		base.RegisterName = proto.Args[1]
		return base, nil
	case "trigger":
		if len(proto.Args) != 3 {
			return base, argErr(proto, "register trigger requires <component> <event>")
		}
		base.Kind = KindRegisterTrigger
		base.RegisterName = proto.Args[1]
		base.RegisterTriggerEvent = proto.Args[2]
		return base, nil
	case "entity_prefab", "prefab":
		base.Kind = KindRegisterEntityPrefab
		base.RegisterName = proto.Args[1]
		base.RegisterComponents = proto.Args[2:]
		return base, nil
	default:
		return base, argErr(proto, "unknown register target \""+proto.Args[0]+"\"")
	}
}

func argErr(proto CommandPrototype, msg string) error {
	return apperrors.BadRequest(apperrors.CodeInvalidCommandBody, proto.Name+": "+msg+" ("+proto.Location.String()+")")
}
