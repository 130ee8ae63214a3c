// Package node implements the distributed worker (spec §4.G "Distributed
// Node"): a process owning a partition of simulated entities, driven by an
// organizer over the Transport Facade. It wraps an internal/simcore.Sim and
// turns the organizer's signals into calls against it, replying with the
// matching signal in turn.
package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/controlproto"
	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/obslog"
	"outcome.io/sim/internal/simcore"
	"outcome.io/sim/internal/transport"
	"outcome.io/sim/internal/vars"
)

// State is the worker state machine (spec §4.G "State machine").
type State int

const (
	Idle State = iota
	Ready
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Node is one worker's connection to its organizer plus the local Sim it
// drives. Safe for a single caller goroutine running Serve; handlers run
// synchronously off the one recv_sig loop, matching the single-threaded
// cooperative scheduling model (spec §5).
type Node struct {
	sock          transport.Socket
	organizerAddr string
	loader        model.Loader
	engineVersion string

	state State
	sim   *simcore.Sim
}

// New returns a worker bound to sock (already Bind-ed to its own address),
// ready to Connect to organizerAddr and Serve.
func New(sock transport.Socket, organizerAddr string, loader model.Loader, engineVersion string) *Node {
	return &Node{
		sock:          sock,
		organizerAddr: organizerAddr,
		loader:        loader,
		engineVersion: engineVersion,
		state:         Idle,
	}
}

// State returns the worker's current state.
func (n *Node) State() State { return n.state }

// Sim returns the worker's local simulation instance, or nil before
// InitializeNode has been processed.
func (n *Node) Sim() *simcore.Sim { return n.sim }

// Connect opens the control connection to the organizer and announces
// this worker (spec §4.G "a worker... may accept a Connect from an
// organizer... forwards to Idle -> Ready on InitializeNode").
func (n *Node) Connect() error {
	if err := n.sock.Connect(n.organizerAddr); err != nil {
		return err
	}
	return n.sendSig(controlproto.SigWorkerConnected, "", nil)
}

// Serve processes signals from the organizer until ctx is cancelled or a
// Disconnect signal is received.
func (n *Node) Serve(ctx context.Context) error {
	for {
		_, sig, err := n.sock.RecvSig(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		done, herr := n.handle(sig)
		if herr != nil {
			obslog.Warn("node: signal handling failed",
				zap.String("signal", sig.Name), zap.String("task_id", sig.TaskID), zap.Error(herr))
		}
		if done {
			return nil
		}
	}
}

// handle dispatches one signal, returning true when Serve should return
// (a Disconnect was received).
func (n *Node) handle(sig transport.Signal) (bool, error) {
	switch sig.Name {
	case controlproto.SigInitializeNode:
		return false, n.handleInitializeNode(sig)
	case controlproto.SigStartProcessStep:
		return false, n.handleStartProcessStep(sig)
	case controlproto.SigQueryRequest:
		return false, n.handleQueryRequest(sig)
	case controlproto.SigSpawnEntities:
		return false, n.handleSpawnEntities(sig)
	case controlproto.SigDataPullRequest:
		return false, n.handleDataPullRequest(sig)
	case controlproto.SigDataRequestAll:
		return false, n.handleDataRequestAll(sig)
	case controlproto.SigSnapshotRequest:
		return false, n.handleSnapshotRequest(sig)
	case controlproto.SigModelUpdate:
		return false, n.handleModelUpdate(sig)
	case controlproto.SigEndOfMessages:
		return false, nil
	case controlproto.SigDisconnect:
		_ = n.sock.Disconnect(n.organizerAddr)
		return true, nil
	default:
		return false, fmt.Errorf("node: unrecognized signal %q", sig.Name)
	}
}

func (n *Node) handleInitializeNode(sig transport.Signal) error {
	var payload controlproto.InitializeNodePayload
	if err := decodeBody(sig.Body, &payload); err != nil {
		return err
	}
	s, err := simcore.FromScenario(n.loader, payload.ScenarioName, payload.EngineVersion)
	if err != nil {
		return err
	}
	n.sim = s
	n.state = Ready
	return nil
}

// handleStartProcessStep runs one local step with the organizer-supplied
// event queue appended, then reports readiness (spec §4.G "Ready -> on
// StartProcessStep(event_queue) -> Running -> emits WorkerReady when done
// -> Ready").
func (n *Node) handleStartProcessStep(sig transport.Signal) error {
	if n.sim == nil {
		return n.sendSig(controlproto.SigWorkerNotReady, sig.TaskID, nil)
	}
	var payload controlproto.StartProcessStepPayload
	if err := decodeBody(sig.Body, &payload); err != nil {
		return n.sendSig(controlproto.SigWorkerNotReady, sig.TaskID, nil)
	}

	n.state = Running
	for _, ev := range payload.EventQueue {
		n.sim.AddEvent(ev)
	}
	if _, err := n.sim.Step(); err != nil {
		n.state = Ready
		return n.sendSig(controlproto.SigWorkerNotReady, sig.TaskID, nil)
	}
	n.state = Ready
	return n.sendSig(controlproto.SigWorkerReady, sig.TaskID, nil)
}

// handleQueryRequest answers a query with this worker's subset of the
// requested variables. Spec §4.G allows this in "any non-running state";
// since the recv_sig loop is single-threaded and never reenters Serve
// while a step is in flight, this handler only ever observes Idle/Ready.
func (n *Node) handleQueryRequest(sig transport.Signal) error {
	var payload controlproto.QueryRequestPayload
	if err := decodeBody(sig.Body, &payload); err != nil {
		return err
	}
	product := map[string]vars.Var{}
	if n.sim != nil {
		n.collectSelection(payload.Selection, product)
	}
	return n.sendSig(controlproto.SigQueryResponse, sig.TaskID, controlproto.QueryResponsePayload{Product: product})
}

func (n *Node) handleSpawnEntities(sig transport.Signal) error {
	if n.sim == nil {
		return apperrors.UnknownEntity("node has no simulation loaded")
	}
	var payload controlproto.SpawnEntitiesPayload
	if err := decodeBody(sig.Body, &payload); err != nil {
		return err
	}
	for i, prefab := range payload.Prefabs {
		name := ""
		if i < len(payload.Names) {
			name = payload.Names[i]
		}
		if i < len(payload.IDs) {
			if err := n.sim.SpawnEntityWithID(payload.IDs[i], prefab, name); err != nil {
				obslog.Warn("node: spawn with id failed",
					zap.Uint32("id", payload.IDs[i]), zap.String("prefab", prefab), zap.String("name", name), zap.Error(err))
			}
			continue
		}
		if _, err := n.sim.SpawnEntity(prefab, name); err != nil {
			obslog.Warn("node: spawn failed", zap.String("prefab", prefab), zap.String("name", name), zap.Error(err))
		}
	}
	return nil
}

func (n *Node) handleDataPullRequest(sig transport.Signal) error {
	if n.sim == nil {
		return apperrors.UnknownEntity("node has no simulation loaded")
	}
	var payload controlproto.DataPullRequestPayload
	if err := decodeBody(sig.Body, &payload); err != nil {
		return err
	}
	for address, v := range payload.Vars {
		if err := n.sim.SetVar(address, v); err != nil {
			obslog.Warn("node: data pull write failed", zap.String("address", address), zap.Error(err))
		}
	}
	return nil
}

func (n *Node) handleDataRequestAll(sig transport.Signal) error {
	all := map[string]vars.Var{}
	if n.sim != nil {
		n.collectSelection(nil, all)
	}
	return n.sendSig(controlproto.SigDataResponse, sig.TaskID, controlproto.DataResponsePayload{Vars: all})
}

func (n *Node) handleSnapshotRequest(sig transport.Signal) error {
	var payload controlproto.SnapshotRequestPayload
	if err := decodeBody(sig.Body, &payload); err != nil {
		return err
	}
	var part []byte
	if n.sim != nil {
		data, err := n.sim.SaveSnapshot(payload.SnapshotName, false)
		if err != nil {
			return err
		}
		part = data
	}
	return n.sendSig(controlproto.SigSnapshotResponse, sig.TaskID,
		controlproto.SnapshotResponsePayload{SnapshotName: payload.SnapshotName, Part: part})
}

// handleModelUpdate applies an organizer-broadcast model delta the same
// way the local simulation applies a central-tier register command (spec
// §4.H "Model mutations... broadcast to workers as ModelUpdate(delta)").
func (n *Node) handleModelUpdate(sig transport.Signal) error {
	if n.sim == nil {
		return nil
	}
	var payload controlproto.ModelUpdatePayload
	if err := decodeBody(sig.Body, &payload); err != nil {
		return err
	}
	m := n.sim.Model()
	switch payload.Kind {
	case "register_component":
		m.RegisterComponent(model.ComponentModel{Name: payload.ComponentName})
	case "register_var":
		t, err := addr.ParseVarType(payload.VarType)
		if err != nil {
			return err
		}
		var def *vars.Var
		if payload.VarDefault != "" {
			parsed, perr := vars.Zero(t).SetFromString(payload.VarDefault)
			if perr == nil {
				def = &parsed
			}
		}
		m.RegisterVar(payload.ComponentName, model.VarModel{Name: payload.VarName, Type: t, Default: def})
	case "register_trigger":
		m.RegisterTrigger(payload.ComponentName, payload.TriggerEvent)
	case "register_prefab":
		m.RegisterEntityPrefab(model.EntityPrefab{Name: payload.PrefabName, Components: payload.PrefabComponents})
	default:
		return fmt.Errorf("node: unrecognized model update kind %q", payload.Kind)
	}
	return nil
}

// collectSelection gathers every (component, var) match named by
// selection (local "component:type:var" addresses) across every entity
// this worker owns, keyed by full address. A nil/empty selection collects
// every variable on every entity (spec §4.G "DataRequestAll... reply
// DataResponse(all_vars)").
func (n *Node) collectSelection(selection []string, out map[string]vars.Var) {
	for _, ent := range n.sim.Entities() {
		ref := ent.Name()
		if ref == "" {
			ref = fmt.Sprintf("#%d", ent.ID())
		}
		if len(selection) == 0 {
			ent.Storage().ForEach(func(k vars.Key, v vars.Var) {
				out[addr.Address{Entity: ref, Component: k.Component, Type: v.Type(), Var: k.Var}.String()] = v
			})
			continue
		}
		for _, sel := range selection {
			a, err := addr.ParseLocal(sel)
			if err != nil {
				continue
			}
			v, err := ent.Storage().GetVar(vars.Key{Component: a.Component, Var: a.Var})
			if err != nil {
				continue
			}
			out[addr.Address{Entity: ref, Component: a.Component, Type: v.Type(), Var: a.Var}.String()] = v
		}
	}
}

func (n *Node) sendSig(name, taskID string, payload interface{}) error {
	var body []byte
	if payload != nil {
		b, err := encodeBody(payload)
		if err != nil {
			return err
		}
		body = b
	}
	return n.sock.SendSig(n.organizerAddr, transport.Signal{TaskID: taskID, Name: name, Body: body})
}

func encodeBody(v interface{}) ([]byte, error) {
	return transport.CBOREncoding.Encode(v)
}

func decodeBody(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return transport.CBOREncoding.Decode(data, v)
}
