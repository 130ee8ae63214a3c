package machine

import "outcome.io/sim/internal/vars"

// ExtCommand is a command deferred for a post-pass with mutable access to
// an arbitrary entity on the same node (spec §4.D "ExecExt"). Get is the
// only local command in the base vocabulary that needs this: reading a
// variable that may live on a neighbouring entity.
type ExtCommand struct {
	OriginEntityID   uint32 // entity that issued the Get, whose storage DestKey is written into
	TargetEntityName string // entity named in the source address; "" means local/self
	SourceComponent  string
	SourceVarType    string
	SourceVar        string
	DestKey          vars.Key // where to write the result on the requesting entity
}

// CentralExtCommandKind tags a CentralExtCommand's variant (spec §4.D
// "central tier").
type CentralExtCommandKind int

const (
	CentralInvoke CentralExtCommandKind = iota
	CentralSpawn
	CentralRegisterComponent
	CentralRegisterVar
	CentralRegisterTrigger
	CentralRegisterEntityPrefab
	CentralExtend
	CentralPrefab
)

// CentralExtCommand is a command deferred to the organizer: model
// mutations, spawns, and event invocations that must be applied once,
// centrally, rather than per-worker (spec §4.D, §4.H "Model mutations").
type CentralExtCommand struct {
	Kind CentralExtCommandKind

	Events     []string // Invoke
	PrefabName string   // Spawn, Prefab
	EntityName string   // Spawn

	ComponentName string // RegisterComponent, RegisterVar, RegisterTrigger
	VarName       string // RegisterVar
	VarType       string // RegisterVar
	VarDefault    string // RegisterVar
	TriggerEvent  string // RegisterTrigger

	PrefabComponents []string // RegisterEntityPrefab
	ExtendPath       string   // Extend

	OriginEntityID uint32
}
