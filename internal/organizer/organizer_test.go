package organizer

import (
	"context"
	"testing"
	"time"

	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/node"
	"outcome.io/sim/internal/transport"
)

const counterManifest = `
name = "core"
version = "1.0.0"

[[prefabs]]
name = "P"
components = ["C"]

[[components]]
name = "C"
triggers = ["tick"]
scripts = ["c.os"]

[[components.vars]]
name = "x"
type = "int"
default = "0"
`

func demoLoader() model.Loader {
	scenario := []byte(`
name = "demo"
[[modules]]
name = "core"
`)
	return model.Loader{
		ReadScenario: func(name string) ([]byte, error) { return scenario, nil },
		ReadModuleManifest: func(name string) ([]byte, error) {
			return []byte(counterManifest), nil
		},
		ReadModuleScript: func(module, path string) ([]byte, error) {
			return []byte("set x 7\n"), nil
		},
	}
}

// testCluster wires one organizer to n workers over a shared in-process
// broker, with every Serve loop already running.
type testCluster struct {
	t       *testing.T
	broker  *transport.MemBroker
	org     *Organizer
	cancel  context.CancelFunc
	workers []*node.Node
}

func newTestCluster(t *testing.T, workerCount int, cfg Config) *testCluster {
	t.Helper()
	broker := transport.NewMemBroker()
	orgSock := transport.NewMemSocket(broker, "organizer")

	m, err := model.Load(demoLoader(), "demo", "1.0.0")
	if err != nil {
		t.Fatalf("model.Load() error = %v", err)
	}
	cfg.ScenarioName = "demo"
	cfg.EngineVersion = "1.0.0"
	org := New(orgSock, m, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	c := &testCluster{t: t, broker: broker, org: org, cancel: cancel}

	go func() {
		if err := org.Serve(ctx); err != nil {
			t.Logf("organizer Serve() exited: %v", err)
		}
	}()

	for i := 0; i < workerCount; i++ {
		addr := workerAddr(i)
		sock := transport.NewMemSocket(broker, addr)
		n := node.New(sock, "organizer", demoLoader(), "1.0.0")
		go func() {
			if err := n.Serve(ctx); err != nil {
				t.Logf("node %s Serve() exited: %v", addr, err)
			}
		}()
		if err := n.Connect(); err != nil {
			t.Fatalf("worker %s Connect() error = %v", addr, err)
		}
		c.workers = append(c.workers, n)
	}

	c.waitForWorkers(workerCount)
	return c
}

func workerAddr(i int) string {
	return "worker-" + string(rune('1'+i))
}

// waitForWorkers polls until the organizer has registered every worker's
// WorkerConnected/InitializeNode round trip, since that handshake runs
// across goroutines with no other synchronization point.
func (c *testCluster) waitForWorkers(want int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.org.ConnectedWorkerCount() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	c.t.Fatalf("organizer never saw %d connected workers (has %d)", want, c.org.ConnectedWorkerCount())
}

func (c *testCluster) close() { c.cancel() }

func TestOrganizerStepAdvancesClockAfterBarrier(t *testing.T) {
	c := newTestCluster(t, 2, Config{TaskTimeout: time.Second})
	defer c.close()

	if c.org.Clock() != 0 {
		t.Fatalf("Clock() = %d, want 0", c.org.Clock())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.org.Step(ctx, []string{"tick"}); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if c.org.Clock() != 1 {
		t.Fatalf("Clock() = %d, want 1", c.org.Clock())
	}
}

// TestOrganizerStepTimesOutWithoutAllWorkersReady leaves one worker's Serve
// loop never started: it still completes the WorkerConnected handshake (that
// runs on the organizer's goroutine), so the organizer counts it as
// connected and waits on its WorkerReady, which never arrives.
func TestOrganizerStepTimesOutWithoutAllWorkersReady(t *testing.T) {
	broker := transport.NewMemBroker()
	orgSock := transport.NewMemSocket(broker, "organizer")
	m, err := model.Load(demoLoader(), "demo", "1.0.0")
	if err != nil {
		t.Fatalf("model.Load() error = %v", err)
	}
	org := New(orgSock, m, Config{ScenarioName: "demo", EngineVersion: "1.0.0", TaskTimeout: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = org.Serve(ctx) }()

	liveSock := transport.NewMemSocket(broker, "worker-1")
	liveNode := node.New(liveSock, "organizer", demoLoader(), "1.0.0")
	go func() { _ = liveNode.Serve(ctx) }()
	if err := liveNode.Connect(); err != nil {
		t.Fatalf("live worker Connect() error = %v", err)
	}

	stalledSock := transport.NewMemSocket(broker, "worker-2")
	stalledNode := node.New(stalledSock, "organizer", demoLoader(), "1.0.0")
	if err := stalledNode.Connect(); err != nil {
		t.Fatalf("stalled worker Connect() error = %v", err)
	}
	// stalledNode.Serve is deliberately never started: its InitializeNode
	// and StartProcessStep signals sit unread in its mailbox.

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && org.ConnectedWorkerCount() < 2 {
		time.Sleep(time.Millisecond)
	}
	if org.ConnectedWorkerCount() != 2 {
		t.Fatalf("organizer saw %d connected workers, want 2", org.ConnectedWorkerCount())
	}

	stepCtx, stepCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer stepCancel()
	if err := org.Step(stepCtx, nil); err == nil {
		t.Fatal("Step() error = nil, want a timeout since worker-2 never replies")
	}
}

func TestOrganizerSpawnEntityDistributesAcrossWorkers(t *testing.T) {
	c := newTestCluster(t, 2, Config{TaskTimeout: time.Second, Policy: RoundRobin})
	defer c.close()

	names := []string{"e1", "e2", "e3", "e4"}
	for _, name := range names {
		if _, err := c.org.SpawnEntity("P", name, RoundRobin); err != nil {
			t.Fatalf("SpawnEntity(%s) error = %v", name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.org.Step(ctx, nil); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	total := 0
	for _, w := range c.workers {
		total += len(w.Sim().Entities())
	}
	if total != len(names) {
		t.Fatalf("total entities across workers = %d, want %d", total, len(names))
	}
}

func TestOrganizerQueryAggregatesAcrossWorkers(t *testing.T) {
	c := newTestCluster(t, 2, Config{TaskTimeout: time.Second, Policy: RoundRobin})
	defer c.close()

	for _, name := range []string{"e1", "e2", "e3", "e4"} {
		if _, err := c.org.SpawnEntity("P", name, RoundRobin); err != nil {
			t.Fatalf("SpawnEntity(%s) error = %v", name, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.org.Step(ctx, nil); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	product, err := c.org.Query(ctx, []string{"C:int:x"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(product) != 4 {
		t.Fatalf("Query() returned %d entries, want 4: %+v", len(product), product)
	}
	for _, name := range []string{"e1", "e2", "e3", "e4"} {
		if _, ok := product[name+":C:int:x"]; !ok {
			t.Errorf("Query() missing %s:C:int:x, got %+v", name, product)
		}
	}
}

func TestOrganizerSnapshotAggregatesWorkerParts(t *testing.T) {
	c := newTestCluster(t, 2, Config{TaskTimeout: time.Second, Policy: RoundRobin})
	defer c.close()

	for _, name := range []string{"e1", "e2"} {
		if _, err := c.org.SpawnEntity("P", name, RoundRobin); err != nil {
			t.Fatalf("SpawnEntity(%s) error = %v", name, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.org.Step(ctx, nil); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	doc, err := c.org.Snapshot(ctx, "manual", false)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(doc) == 0 {
		t.Fatal("Snapshot() returned empty document")
	}
}
