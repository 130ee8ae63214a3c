package controlproto

import "outcome.io/sim/internal/vars"

// Signal names (spec §6 "Signals (organizer <-> worker)"), carried as
// transport.Signal.Name and decoded against the matching payload type
// below by whichever side receives them.
const (
	SigInitializeNode         = "InitializeNode"
	SigWorkerConnected        = "WorkerConnected"
	SigWorkerReady            = "WorkerReady"
	SigWorkerNotReady         = "WorkerNotReady"
	SigWorkerStepAdvanceReq   = "WorkerStepAdvanceRequest"
	SigStartProcessStep       = "StartProcessStep"
	SigDataRequestAll         = "DataRequestAll"
	SigDataResponse           = "DataResponse"
	SigSpawnEntities          = "SpawnEntities"
	SigQueryRequest           = "QueryRequest"
	SigQueryResponse          = "QueryResponse"
	SigDataPullRequest        = "DataPullRequest"
	SigSnapshotRequest        = "SnapshotRequest"
	SigEndOfMessages          = "EndOfMessages"
	SigDisconnect             = "Disconnect"
	// SigSnapshotResponse and SigModelUpdate are organizer<->worker signals
	// the distilled spec names in prose (§4.G "worker... reply", §4.H
	// "Model mutations... broadcast to workers as ModelUpdate(delta)")
	// but does not assign a literal name to; these are that name.
	SigSnapshotResponse = "SnapshotResponse"
	SigModelUpdate      = "ModelUpdate"
)

// InitializeNodePayload names, at connect time, the scenario and engine
// version a worker loads its model from; the worker builds its own
// model.SimModel locally through its own loader rather than receive one
// over the wire (spec §4.C "Load" is deterministic given the same
// scenario/module bytes).
type InitializeNodePayload struct {
	ScenarioName  string `cbor:"scenario_name"`
	EngineVersion string `cbor:"engine_version"`
}

// StartProcessStepPayload carries the event queue the organizer wants this
// worker's next step to process (spec §4.H "step barrier").
type StartProcessStepPayload struct {
	EventQueue []string `cbor:"event_queue"`
}

// WorkerStepAdvanceRequestPayload is a worker's request to the organizer to
// advance by Steps once every worker reports ready.
type WorkerStepAdvanceRequestPayload struct {
	Steps uint64 `cbor:"steps"`
}

// DataResponsePayload answers a DataRequestAll: every local variable this
// worker owns, addressed.
type DataResponsePayload struct {
	Vars map[string]vars.Var `cbor:"vars"`
}

// SpawnEntitiesPayload is a placement decision: spawn one entity per
// (IDs[i], Prefabs[i], Names[i]) tuple on the receiving worker (spec §4.H
// "spawn distribution... appends (id, prefab, name) to that worker's
// pending-spawn batch"). IDs is empty when the sender did not allocate ids
// centrally (a worker's own local SpawnEntitiesReq), in which case the
// receiving node allocates ids itself.
type SpawnEntitiesPayload struct {
	IDs     []uint32 `cbor:"ids,omitempty"`
	Prefabs []string `cbor:"prefabs"`
	Names   []string `cbor:"names"`
}

// QueryRequestPayload asks every worker owning a matching entity to report
// Selection addresses; the organizer aggregates replies by TaskID (spec §8
// scenario 4 "Distributed query aggregation").
type QueryRequestPayload struct {
	Selection []string `cbor:"selection"`
}

// QueryResponsePayload is one worker's partial answer to a QueryRequest.
type QueryResponsePayload struct {
	Product map[string]vars.Var `cbor:"product"`
}

// DataPullRequestPayload pushes variable writes down to the worker that
// owns their entities.
type DataPullRequestPayload struct {
	Vars map[string]vars.Var `cbor:"vars"`
}

// SnapshotRequestPayload asks a worker for its local entity partition
// (spec §4.J "parts[] ... each part is a serialized entity partition").
type SnapshotRequestPayload struct {
	SnapshotName string `cbor:"snapshot_name"`
}

// SnapshotResponsePayload answers a SnapshotRequest with this worker's
// serialized entity partition, one of the snapshot's parts[].
type SnapshotResponsePayload struct {
	SnapshotName string `cbor:"snapshot_name"`
	Part         []byte `cbor:"part"`
}

// ModelUpdatePayload carries a model delta broadcast from the organizer to
// every worker after a central-tier model mutation (spec §4.H "Model
// mutations... broadcast to workers as ModelUpdate(delta)"), applied the
// same way the local simulation applies machine.CentralExtCommand between
// steps 4 and 5 of §4.F.
type ModelUpdatePayload struct {
	Kind             string   `cbor:"kind"` // "register_component" | "register_var" | "register_trigger" | "register_prefab"
	ComponentName    string   `cbor:"component_name,omitempty"`
	VarName          string   `cbor:"var_name,omitempty"`
	VarType          string   `cbor:"var_type,omitempty"`
	VarDefault       string   `cbor:"var_default,omitempty"`
	TriggerEvent     string   `cbor:"trigger_event,omitempty"`
	PrefabName       string   `cbor:"prefab_name,omitempty"`
	PrefabComponents []string `cbor:"prefab_components,omitempty"`
}
