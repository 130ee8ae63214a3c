package organizer

import (
	"context"

	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/controlproto"
	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/vars"
)

func errNoWorkers() error {
	return apperrors.New(apperrors.CodeHostUnreachable, "organizer: no connected workers", 503)
}

// SpawnEntity allocates an id centrally, picks a worker per policy, and
// queues the spawn into that worker's pending batch; the batch is flushed
// on the next Step (spec §4.H "spawn distribution").
func (o *Organizer) SpawnEntity(prefab, name string, policy Policy) (uint32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if name != "" {
		if _, exists := o.entityIdx[name]; exists {
			return 0, apperrors.DuplicateEntityName(name)
		}
	}

	candidates := o.connectedAddrs()
	load := make(map[string]int, len(candidates))
	for _, workerAddr := range o.routingTable {
		load[workerAddr]++
	}
	workerAddr, ok := pick(policy, candidates, &o.rrIndex, load)
	if !ok {
		return 0, errNoWorkers()
	}

	id := o.nextID
	o.nextID++
	o.routingTable[id] = workerAddr
	if name != "" {
		o.entityIdx[name] = id
	}

	w := o.workers[workerAddr]
	w.pendingIDs = append(w.pendingIDs, id)
	w.pendingPrefabs = append(w.pendingPrefabs, prefab)
	w.pendingNames = append(w.pendingNames, name)
	return id, nil
}

// Step flushes pending spawns, broadcasts StartProcessStep with events
// appended to the carried-over event queue, and blocks until every
// connected worker has reported WorkerReady (spec §4.H "Step barrier").
func (o *Organizer) Step(ctx context.Context, events []string) error {
	o.mu.Lock()
	candidates := o.connectedAddrs()
	if len(candidates) == 0 {
		o.mu.Unlock()
		return errNoWorkers()
	}

	flushes := make(map[string]controlproto.SpawnEntitiesPayload)
	var flushAddrs []string
	for _, a := range candidates {
		w := o.workers[a]
		if len(w.pendingPrefabs) == 0 {
			continue
		}
		flushAddrs = append(flushAddrs, a)
		flushes[a] = controlproto.SpawnEntitiesPayload{
			IDs: w.pendingIDs, Prefabs: w.pendingPrefabs, Names: w.pendingNames,
		}
		w.pendingIDs, w.pendingPrefabs, w.pendingNames = nil, nil, nil
	}

	eq := append(append([]string(nil), o.eventQueue...), events...)
	o.eventQueue = nil

	taskID := o.newTaskID()
	t := newTask(taskStepBarrier, len(candidates))
	o.tasks[taskID] = t
	o.mu.Unlock()

	o.fanOut(ctx, flushAddrs, func(a string) error {
		return o.sendSig(a, controlproto.SigSpawnEntities, "", flushes[a])
	})
	o.fanOut(ctx, candidates, func(a string) error {
		return o.sendSig(a, controlproto.SigStartProcessStep, taskID,
			controlproto.StartProcessStepPayload{EventQueue: eq})
	})

	err := o.awaitTask(ctx, taskID, t)
	o.dropTask(taskID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.clock++
	o.mu.Unlock()
	return nil
}

// Query broadcasts a QueryRequest to every connected worker and combines
// their partial products into one addressed map (spec §8 scenario 4
// "Distributed query aggregation").
func (o *Organizer) Query(ctx context.Context, selection []string) (map[string]vars.Var, error) {
	o.mu.Lock()
	candidates := o.connectedAddrs()
	if len(candidates) == 0 {
		o.mu.Unlock()
		return nil, errNoWorkers()
	}
	taskID := o.newTaskID()
	t := newTask(taskQuery, len(candidates))
	o.tasks[taskID] = t
	o.mu.Unlock()

	o.fanOut(ctx, candidates, func(a string) error {
		return o.sendSig(a, controlproto.SigQueryRequest, taskID, controlproto.QueryRequestPayload{Selection: selection})
	})

	err := o.awaitTask(ctx, taskID, t)
	o.dropTask(taskID)
	if err != nil {
		return nil, err
	}
	return t.queryProduct, nil
}

// DataRequestAll broadcasts DataRequestAll and combines every worker's full
// variable set into one addressed map.
func (o *Organizer) DataRequestAll(ctx context.Context) (map[string]vars.Var, error) {
	o.mu.Lock()
	candidates := o.connectedAddrs()
	if len(candidates) == 0 {
		o.mu.Unlock()
		return nil, errNoWorkers()
	}
	taskID := o.newTaskID()
	t := newTask(taskDataAll, len(candidates))
	o.tasks[taskID] = t
	o.mu.Unlock()

	o.fanOut(ctx, candidates, func(a string) error {
		return o.sendSig(a, controlproto.SigDataRequestAll, taskID, nil)
	})

	err := o.awaitTask(ctx, taskID, t)
	o.dropTask(taskID)
	if err != nil {
		return nil, err
	}
	return t.dataVars, nil
}

// DataPullRequest routes each write to the worker owning its entity and
// pushes it down; there is no acknowledgement signal for this in spec §6,
// so this is fire-and-forget once the route is resolved.
func (o *Organizer) DataPullRequest(writes map[string]vars.Var) error {
	o.mu.Lock()
	grouped := make(map[string]map[string]vars.Var)
	for address, v := range writes {
		entity, err := entityOf(address)
		if err != nil {
			o.mu.Unlock()
			return err
		}
		id, ok := o.entityIdx[entity]
		if !ok {
			o.mu.Unlock()
			return apperrors.UnknownEntity(entity)
		}
		workerAddr, ok := o.routingTable[id]
		if !ok {
			o.mu.Unlock()
			return apperrors.UnknownEntity(entity)
		}
		if grouped[workerAddr] == nil {
			grouped[workerAddr] = make(map[string]vars.Var)
		}
		grouped[workerAddr][address] = v
	}
	o.mu.Unlock()

	for workerAddr, payload := range grouped {
		if err := o.sendSig(workerAddr, controlproto.SigDataPullRequest, "",
			controlproto.DataPullRequestPayload{Vars: payload}); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot broadcasts SnapshotRequest, collects every worker's partition
// into one multi-part document, and returns it serialized, optionally
// gzip-compressed (spec §4.J).
func (o *Organizer) Snapshot(ctx context.Context, name string, compress bool) ([]byte, error) {
	o.mu.Lock()
	candidates := o.connectedAddrs()
	if len(candidates) == 0 {
		o.mu.Unlock()
		return nil, errNoWorkers()
	}
	taskID := o.newTaskID()
	t := newTask(taskSnapshot, len(candidates))
	o.tasks[taskID] = t
	header := o.buildHeader(name)
	o.mu.Unlock()

	o.fanOut(ctx, candidates, func(a string) error {
		return o.sendSig(a, controlproto.SigSnapshotRequest, taskID, controlproto.SnapshotRequestPayload{SnapshotName: name})
	})

	err := o.awaitTask(ctx, taskID, t)
	o.dropTask(taskID)
	if err != nil {
		return nil, err
	}
	return encodeSnapshotDoc(snapshotDoc{Header: header, Parts: t.snapshotParts}, compress)
}

// RegisterComponent adds a component to the organizer's model and
// broadcasts the delta to every connected worker (spec §4.H "Model
// mutations").
func (o *Organizer) RegisterComponent(c model.ComponentModel) error {
	o.mu.Lock()
	o.model.RegisterComponent(c)
	addrs := o.connectedAddrs()
	o.mu.Unlock()
	return o.broadcastModelUpdate(addrs, controlproto.ModelUpdatePayload{
		Kind: "register_component", ComponentName: c.Name,
	})
}

// RegisterVar adds a variable to component and broadcasts the delta.
func (o *Organizer) RegisterVar(component string, v model.VarModel) error {
	o.mu.Lock()
	o.model.RegisterVar(component, v)
	addrs := o.connectedAddrs()
	o.mu.Unlock()

	payload := controlproto.ModelUpdatePayload{
		Kind: "register_var", ComponentName: component, VarName: v.Name, VarType: v.Type.String(),
	}
	if v.Default != nil {
		payload.VarDefault = v.Default.String()
	}
	return o.broadcastModelUpdate(addrs, payload)
}

// RegisterTrigger adds an event trigger to component and broadcasts the
// delta.
func (o *Organizer) RegisterTrigger(component, event string) error {
	o.mu.Lock()
	o.model.RegisterTrigger(component, event)
	addrs := o.connectedAddrs()
	o.mu.Unlock()
	return o.broadcastModelUpdate(addrs, controlproto.ModelUpdatePayload{
		Kind: "register_trigger", ComponentName: component, TriggerEvent: event,
	})
}

// RegisterEntityPrefab adds a prefab to the model and broadcasts the
// delta.
func (o *Organizer) RegisterEntityPrefab(p model.EntityPrefab) error {
	o.mu.Lock()
	o.model.RegisterEntityPrefab(p)
	addrs := o.connectedAddrs()
	o.mu.Unlock()
	return o.broadcastModelUpdate(addrs, controlproto.ModelUpdatePayload{
		Kind: "register_prefab", PrefabName: p.Name, PrefabComponents: p.Components,
	})
}

func (o *Organizer) broadcastModelUpdate(addrs []string, payload controlproto.ModelUpdatePayload) error {
	var firstErr error
	for _, a := range addrs {
		if err := o.sendSig(a, controlproto.SigModelUpdate, "", payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
