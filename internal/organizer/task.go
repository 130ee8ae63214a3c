package organizer

import "outcome.io/sim/internal/vars"

// taskKind distinguishes what a task is aggregating (spec §4.H "Task...
// WaitForQueryResponses{remaining, products}, WaitForSnapshotResponses{
// remaining, parts}").
type taskKind int

const (
	taskStepBarrier taskKind = iota
	taskQuery
	taskSnapshot
	taskDataAll
)

// task is a tracked operation awaiting one reply per participating worker.
// A task is finished when remaining reaches 0; the waiter blocked on done
// then reads the aggregated product.
type task struct {
	kind      taskKind
	remaining int

	queryProduct  map[string]vars.Var
	snapshotParts [][]byte
	dataVars      map[string]vars.Var

	failed bool
	done   chan struct{}
}

func newTask(kind taskKind, participants int) *task {
	return &task{
		kind:          kind,
		remaining:     participants,
		queryProduct:  map[string]vars.Var{},
		snapshotParts: make([][]byte, 0, participants),
		dataVars:      map[string]vars.Var{},
		done:          make(chan struct{}),
	}
}

// arrive records one participant's reply and closes done once every
// participant has been heard from. A false ok (WorkerNotReady, or any
// reply indicating failure) marks the task failed without waiting for the
// remaining participants to time out the caller.
func (t *task) arrive(ok bool) {
	if !ok {
		t.failed = true
	}
	t.remaining--
	if t.remaining <= 0 || t.failed {
		select {
		case <-t.done:
		default:
			close(t.done)
		}
	}
}
