// Package organizer implements the central authority of a distributed run
// (spec §4.H "Central Authority"): the model, clock, routing table, and
// task bookkeeping that let a client address a union of workers as if it
// were one local simulation. The organizer itself holds no entity storage;
// every entity lives on exactly one worker.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/controlproto"
	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/obslog"
	"outcome.io/sim/internal/transport"
	"outcome.io/sim/internal/workerpool"
)

// DefaultTaskTimeout is used when Config.TaskTimeout is zero (SPEC_FULL §13
// "Task timeout default... 30s").
const DefaultTaskTimeout = 30 * time.Second

// Config carries the organizer's tunables (engineconfig.OrganizerConfig's
// runtime counterpart).
type Config struct {
	ScenarioName  string
	EngineVersion string
	TaskTimeout   time.Duration
	Policy        Policy

	// Pools fans out signal sends to connected workers off the caller's
	// goroutine (internal/workerpool's Transport pool, backed by ants); nil
	// falls back to sending synchronously in the caller's own goroutine, the
	// correct choice for a colocated MemSocket test cluster with no pool to
	// spare.
	Pools *workerpool.Pools
}

type workerConn struct {
	addr      string
	connected bool

	pendingIDs     []uint32
	pendingPrefabs []string
	pendingNames   []string
}

// Organizer is the central authority: one bound Socket multiplexing every
// worker connection, a model with no entity storage of its own, and the
// task table that correlates fan-out requests with their replies.
type Organizer struct {
	mu sync.Mutex

	sock transport.Socket
	cfg  Config

	model      *model.SimModel
	clock      uint64
	eventQueue []string

	entityIdx    map[string]uint32
	nextID       uint32
	routingTable map[uint32]string // entity id -> worker addr

	order   []string // registration order, for RoundRobin
	workers map[string]*workerConn
	rrIndex int

	tasks   map[string]*task
	taskSeq uint64

	stepRequests chan uint64
}

// New returns an organizer bound to sock, holding m as its copy of the
// model (spec §4.H "Holds: model, clock, ... The organizer does not hold
// entity storage").
func New(sock transport.Socket, m *model.SimModel, cfg Config) *Organizer {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	return &Organizer{
		sock:         sock,
		cfg:          cfg,
		model:        m,
		entityIdx:    make(map[string]uint32),
		nextID:       1,
		routingTable: make(map[uint32]string),
		workers:      make(map[string]*workerConn),
		tasks:        make(map[string]*task),
		stepRequests: make(chan uint64, 8),
	}
}

// Clock returns the organizer's current step count.
func (o *Organizer) Clock() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clock
}

// Model returns the organizer's model.
func (o *Organizer) Model() *model.SimModel { return o.model }

// StepRequests surfaces WorkerStepAdvanceRequest signals a worker sent the
// organizer directly, so the process embedding the organizer can decide
// whether (and by how much) to advance in response; Serve cannot call Step
// itself from inside the dispatch loop it drives (spec §9 "organizer... the
// step thread" is a different execution context than the recv_sig loop).
func (o *Organizer) StepRequests() <-chan uint64 { return o.stepRequests }

// Serve dispatches signals from every connected worker until ctx is done.
func (o *Organizer) Serve(ctx context.Context) error {
	for {
		addrStr, sig, err := o.sock.RecvSig(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := o.dispatch(ctx, addrStr, sig); err != nil {
			obslog.Warn("organizer: signal handling failed",
				zap.String("addr", addrStr), zap.String("signal", sig.Name), zap.Error(err))
		}
	}
}

func (o *Organizer) dispatch(ctx context.Context, fromAddr string, sig transport.Signal) error {
	switch sig.Name {
	case controlproto.SigWorkerConnected:
		return o.onWorkerConnected(ctx, fromAddr)
	case controlproto.SigWorkerReady:
		o.resolveTask(sig.TaskID, true, nil)
		return nil
	case controlproto.SigWorkerNotReady:
		o.resolveTask(sig.TaskID, false, nil)
		return nil
	case controlproto.SigQueryResponse:
		var resp controlproto.QueryResponsePayload
		if err := decodeBody(sig.Body, &resp); err != nil {
			return err
		}
		o.resolveTask(sig.TaskID, true, func(t *task) {
			for k, v := range resp.Product {
				t.queryProduct[k] = v
			}
		})
		return nil
	case controlproto.SigSnapshotResponse:
		var resp controlproto.SnapshotResponsePayload
		if err := decodeBody(sig.Body, &resp); err != nil {
			return err
		}
		o.resolveTask(sig.TaskID, true, func(t *task) {
			t.snapshotParts = append(t.snapshotParts, resp.Part)
		})
		return nil
	case controlproto.SigDataResponse:
		var resp controlproto.DataResponsePayload
		if err := decodeBody(sig.Body, &resp); err != nil {
			return err
		}
		o.resolveTask(sig.TaskID, true, func(t *task) {
			for k, v := range resp.Vars {
				t.dataVars[k] = v
			}
		})
		return nil
	case controlproto.SigWorkerStepAdvanceReq:
		var payload controlproto.WorkerStepAdvanceRequestPayload
		if err := decodeBody(sig.Body, &payload); err != nil {
			return err
		}
		select {
		case o.stepRequests <- payload.Steps:
		default:
			obslog.Warn("organizer: step request channel full, dropping", zap.Uint64("steps", payload.Steps))
		}
		return nil
	case controlproto.SigDisconnect:
		o.onWorkerDisconnected(fromAddr)
		return nil
	default:
		return fmt.Errorf("organizer: unrecognized signal %q from %s", sig.Name, fromAddr)
	}
}

func (o *Organizer) onWorkerConnected(ctx context.Context, addrStr string) error {
	o.mu.Lock()
	if _, exists := o.workers[addrStr]; !exists {
		o.order = append(o.order, addrStr)
	}
	o.workers[addrStr] = &workerConn{addr: addrStr, connected: true}
	o.mu.Unlock()

	if err := o.sock.Connect(addrStr); err != nil {
		return err
	}
	return o.sendSig(addrStr, controlproto.SigInitializeNode, "", controlproto.InitializeNodePayload{
		ScenarioName:  o.cfg.ScenarioName,
		EngineVersion: o.cfg.EngineVersion,
	})
}

func (o *Organizer) onWorkerDisconnected(addrStr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if w, ok := o.workers[addrStr]; ok {
		// Entities already routed to this worker are frozen: the routing
		// table keeps their entries, so the barrier (and any task waiting
		// on this worker) will time out rather than silently drop them
		// (spec §7 "workers are marked unreachable and their entities
		// frozen until reconnect").
		w.connected = false
	}
}

func (o *Organizer) resolveTask(taskID string, ok bool, apply func(*task)) {
	o.mu.Lock()
	t, exists := o.tasks[taskID]
	if exists && apply != nil {
		apply(t)
	}
	o.mu.Unlock()
	if !exists {
		return
	}
	t.arrive(ok)
}

// ConnectedWorkerCount reports how many workers are currently connected,
// for callers (tests, a readiness probe) that need to wait for a union to
// finish forming before issuing the first Step/Query.
func (o *Organizer) ConnectedWorkerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.connectedAddrs())
}

// connectedAddrs returns every currently-connected worker address, in
// registration order.
func (o *Organizer) connectedAddrs() []string {
	out := make([]string, 0, len(o.order))
	for _, a := range o.order {
		if w, ok := o.workers[a]; ok && w.connected {
			out = append(out, a)
		}
	}
	return out
}

// awaitTask blocks until t's participants have all replied, ctx is done, or
// the task timeout elapses. Callers are responsible for removing taskID
// from o.tasks once this returns, on every path.
func (o *Organizer) awaitTask(ctx context.Context, taskID string, t *task) error {
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.cfg.TaskTimeout):
		return apperrors.TaskTimeout(taskID)
	}
	if t.failed {
		return apperrors.TaskTimeout(taskID)
	}
	return nil
}

func (o *Organizer) dropTask(taskID string) {
	o.mu.Lock()
	delete(o.tasks, taskID)
	o.mu.Unlock()
}

func (o *Organizer) newTaskID() string {
	n := atomic.AddUint64(&o.taskSeq, 1)
	return fmt.Sprintf("t-%d", n)
}

// fanOut calls send once per addr, off the caller's goroutine via
// o.cfg.Pools.Transport when a pool is configured (SPEC_FULL §11 grounds
// ants for exactly this: organizer fan-out, never inside the sequential
// per-step loop), falling back to a plain sequential loop otherwise. Blocks
// until every send has been attempted.
func (o *Organizer) fanOut(ctx context.Context, addrs []string, send func(addr string) error) {
	if o.cfg.Pools == nil {
		for _, a := range addrs {
			if err := send(a); err != nil {
				obslog.Warn("organizer: fan-out send failed", zap.String("worker", a), zap.Error(err))
			}
		}
		return
	}
	var wg sync.WaitGroup
	for _, a := range addrs {
		wg.Add(1)
		workerAddr := a
		err := o.cfg.Pools.Transport.Submit(ctx, func(_ context.Context) {
			defer wg.Done()
			if err := send(workerAddr); err != nil {
				obslog.Warn("organizer: fan-out send failed", zap.String("worker", workerAddr), zap.Error(err))
			}
		})
		if err != nil {
			wg.Done()
			obslog.Warn("organizer: fan-out submit failed", zap.String("worker", workerAddr), zap.Error(err))
		}
	}
	wg.Wait()
}

func (o *Organizer) sendSig(addrStr, name, taskID string, payload interface{}) error {
	body, err := encodeBody(payload)
	if err != nil {
		return err
	}
	return o.sock.SendSig(addrStr, transport.Signal{TaskID: taskID, Name: name, Body: body})
}

func encodeBody(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return transport.CBOREncoding.Encode(v)
}

func decodeBody(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return transport.CBOREncoding.Decode(data, v)
}

// entityOf parses a full entity:component:type:var address and returns its
// entity segment, the key DataPullRequest groups writes by.
func entityOf(address string) (string, error) {
	a, err := addr.Parse(address)
	if err != nil {
		return "", err
	}
	return a.Entity, nil
}
