// Package controlproto is the client<->server and organizer<->worker
// message catalogue (spec §6 "External Interfaces"). It is pure data: the
// kinds, their fields, and the blocking-client barrier-response constants.
// internal/transport frames and encodes these; internal/node and
// internal/organizer interpret them.
package controlproto

// Message is the client<->server envelope every control message rides in
// (spec §6: "Every message is { type, task_id, payload }").
type Message struct {
	Type    string      `cbor:"type"`
	TaskID  string      `cbor:"task_id"`
	Payload interface{} `cbor:"payload"`
}

// Message type names, used as Message.Type.
const (
	TypeHeartbeat               = "Heartbeat"
	TypeRegisterClient          = "RegisterClient"
	TypeRegisterClientResp      = "RegisterClientResp"
	TypePingReq                 = "PingReq"
	TypePingResp                = "PingResp"
	TypeStatusReq                = "StatusReq"
	TypeStatusResp               = "StatusResp"
	TypeTurnAdvanceReq           = "TurnAdvanceReq"
	TypeTurnAdvanceResp          = "TurnAdvanceResp"
	TypeDataTransferReq          = "DataTransferReq"
	TypeDataTransferResp         = "DataTransferResp"
	TypeDataPullReq              = "DataPullReq"
	TypeDataPullResp             = "DataPullResp"
	TypeSpawnEntitiesReq         = "SpawnEntitiesReq"
	TypeSpawnEntitiesResp        = "SpawnEntitiesResp"
	TypeExportSnapshotReq        = "ExportSnapshotReq"
	TypeExportSnapshotResp       = "ExportSnapshotResp"
	TypeScheduledDataTransferReq = "ScheduledDataTransferReq"
	// TypeListLocalScenariosReq/Resp and TypeLoadRemoteScenarioReq/Resp are
	// supplemented features beyond spec.md's baseline catalogue, letting a
	// client discover and fetch scenarios the server already has on disk
	// or hosted remotely (remote_scenario_transfer engine feature).
	TypeListLocalScenariosReq  = "ListLocalScenariosReq"
	TypeListLocalScenariosResp = "ListLocalScenariosResp"
	TypeLoadRemoteScenarioReq  = "LoadRemoteScenarioReq"
	TypeLoadRemoteScenarioResp = "LoadRemoteScenarioResp"
)

// Blocking-client barrier response codes (spec §6 "Blocking-client
// semantics"). "" means the clock advanced to at least the client's
// requested step.
const (
	BlockedNot        = ""
	BlockedPartially  = "BlockedPartially"
	BlockedFully      = "BlockedFully"
)

// Heartbeat carries no payload; either side may send it as a keepalive.
type Heartbeat struct{}

// RegisterClient opens a session (spec §6 "RegisterClient").
type RegisterClient struct {
	Name       string            `cbor:"name"`
	IsBlocking bool              `cbor:"is_blocking"`
	Encodings  []string          `cbor:"encodings"`
	Transports []string          `cbor:"transports"`
	Auth       map[string]string `cbor:"auth,omitempty"`
}

// RegisterClientResp redirects the client to its dedicated socket.
type RegisterClientResp struct {
	Encoding  string `cbor:"encoding"`
	Transport string `cbor:"transport"`
	Address   string `cbor:"address"`
}

// PingReq/PingResp round-trip arbitrary bytes for an RTT probe.
type PingReq struct {
	Bytes []byte `cbor:"bytes"`
}

type PingResp struct {
	Bytes []byte `cbor:"bytes"`
}

// StatusReq requests server info; StatusResp mirrors the `name`/
// `description` configuration option table (spec §6 "Configuration").
type StatusReq struct{}

type StatusResp struct {
	Name        string `cbor:"name"`
	Description string `cbor:"description"`
	Clock       uint64 `cbor:"clock"`
	WorkerCount int    `cbor:"worker_count"`
	ClientCount int    `cbor:"client_count"`
}

// TurnAdvanceReq requests the step barrier advance by TickCount steps.
type TurnAdvanceReq struct {
	TickCount uint64 `cbor:"tick_count"`
}

// TurnAdvanceResp's Error is one of the three blocking-client barrier
// codes (BlockedNot/BlockedPartially/BlockedFully).
type TurnAdvanceResp struct {
	Error string `cbor:"error"`
}

// TransferType enumerates DataTransferReq's selection strategy.
type TransferType string

const (
	TransferFull             TransferType = "Full"
	TransferSelect           TransferType = "Select"
	TransferSelectVarOrdered TransferType = "SelectVarOrdered"
)

// DataTransferReq pulls variable data from the server.
type DataTransferReq struct {
	TransferType TransferType `cbor:"transfer_type"`
	Selection    []string     `cbor:"selection"`
}

// DataTransferResp carries the pulled data. Exactly one of the three kinds
// is populated, selected by which TransferType the request used: Typed
// groups values by address under their var type (the SPEC_FULL-added
// convenience the original plain `Var` map lacked), Var is the
// address-keyed map the Full/Select transfer types return, and VarOrdered
// additionally tags each entry with the selection's original order.
type DataTransferResp struct {
	Typed      map[string]map[string]interface{} `cbor:"typed,omitempty"`
	Var        map[string]interface{}            `cbor:"var,omitempty"`
	VarOrdered []OrderedVar                      `cbor:"var_ordered,omitempty"`
	Error      string                             `cbor:"error,omitempty"`
}

// OrderedVar pairs a value with the index of the selection entry that
// requested it, for TransferSelectVarOrdered.
type OrderedVar struct {
	OrderID int         `cbor:"order_id"`
	Address string      `cbor:"address"`
	Value   interface{} `cbor:"value"`
}

// DataPullReq pushes variable data to the server.
type DataPullReq struct {
	Data map[string]interface{} `cbor:"data"`
}

type DataPullResp struct {
	Error string `cbor:"error,omitempty"`
}

// SpawnEntitiesReq spawns one entity per (Prefabs[i], Names[i]) pair.
type SpawnEntitiesReq struct {
	Prefabs []string `cbor:"prefabs"`
	Names   []string `cbor:"names"`
}

type SpawnEntitiesResp struct {
	EntityNames []string `cbor:"entity_names"`
	Error       string   `cbor:"error,omitempty"`
}

// ExportSnapshotReq requests a snapshot be taken, optionally persisted and
// optionally returned inline.
type ExportSnapshotReq struct {
	Name        string `cbor:"name"`
	SaveToDisk  bool   `cbor:"save_to_disk"`
	SendBack    bool   `cbor:"send_back"`
}

type ExportSnapshotResp struct {
	Snapshot []byte `cbor:"snapshot,omitempty"`
	Error    string `cbor:"error,omitempty"`
}

// ScheduledDataTransferReq arms a fire-on-event recurring data pull: every
// time one of EventTriggers fires, the server performs the described
// transfer and pushes the result back unsolicited.
type ScheduledDataTransferReq struct {
	EventTriggers []string     `cbor:"event_triggers"`
	TransferType  TransferType `cbor:"transfer_type"`
	Selection     []string     `cbor:"selection"`
}

// ListLocalScenariosReq/Resp let a client discover scenarios already on
// the server's scenarios/ directory (SPEC_FULL §12 supplemented feature).
type ListLocalScenariosReq struct{}

type ListLocalScenariosResp struct {
	Names []string `cbor:"names"`
}

// LoadRemoteScenarioReq/Resp transfer a scenario (and its module
// manifests/scripts) from a remote peer into the server's local scenario
// store, gated by the remote_scenario_transfer engine feature.
type LoadRemoteScenarioReq struct {
	SourceAddress string `cbor:"source_address"`
	ScenarioName  string `cbor:"scenario_name"`
}

type LoadRemoteScenarioResp struct {
	Error string `cbor:"error,omitempty"`
}
