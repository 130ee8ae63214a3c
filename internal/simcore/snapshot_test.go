package simcore

import (
	"testing"

	"outcome.io/sim/internal/vars"
)

// TestSnapshotRoundTrip is spec §8 scenario 6: two entities, their
// variable values and queued events survive save/load (with compression).
func TestSnapshotRoundTrip(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e1"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e2"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		s.AddEvent("tick")
	}
	if err := s.SetVar("e2:C:int:x", vars.NewInt(42)); err != nil {
		t.Fatalf("SetVar() error = %v", err)
	}

	data, err := s.SaveSnapshot("demo", true)
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	loaded, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if err := loaded.LoadSnapshot(data); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	if loaded.Clock() != s.Clock() {
		t.Errorf("Clock() = %d, want %d", loaded.Clock(), s.Clock())
	}
	if len(loaded.eventQueue) != len(s.eventQueue) {
		t.Fatalf("eventQueue len = %d, want %d", len(loaded.eventQueue), len(s.eventQueue))
	}
	for i := range s.eventQueue {
		if loaded.eventQueue[i] != s.eventQueue[i] {
			t.Errorf("eventQueue[%d] = %q, want %q", i, loaded.eventQueue[i], s.eventQueue[i])
		}
	}

	v1, err := loaded.GetVar("e1:C:int:x")
	if err != nil {
		t.Fatalf("GetVar(e1) error = %v", err)
	}
	// No step ran before the save, so e1's x still holds its default.
	if got, _ := v1.Int(); got != 0 {
		t.Errorf("e1 x = %d, want 0", got)
	}
	v2, err := loaded.GetVar("e2:C:int:x")
	if err != nil {
		t.Fatalf("GetVar(e2) error = %v", err)
	}
	if got, _ := v2.Int(); got != 42 {
		t.Errorf("e2 x = %d, want 42", got)
	}
}

// TestSnapshotRoundTripUncompressed checks the writer's optional-compression
// path and the reader's fallback both work on the same document.
func TestSnapshotRoundTripUncompressed(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e1"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}

	data, err := s.SaveSnapshot("demo", false)
	if err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	loaded, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if err := loaded.LoadSnapshot(data); err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}
	if _, err := loaded.GetVar("e1:C:int:x"); err != nil {
		t.Fatalf("GetVar() error = %v", err)
	}
}

func TestLoadSnapshotRejectsGarbage(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if err := s.LoadSnapshot([]byte("not a snapshot")); err == nil {
		t.Error("LoadSnapshot() with garbage should fail")
	}
}
