package simcore

import (
	"testing"

	"outcome.io/sim/internal/model"
	"outcome.io/sim/internal/vars"
)

func demoLoader(moduleManifest, script string) model.Loader {
	scenario := []byte(`
name = "demo"
[[modules]]
name = "core"
`)
	return model.Loader{
		ReadScenario: func(name string) ([]byte, error) { return scenario, nil },
		ReadModuleManifest: func(name string) ([]byte, error) {
			return []byte(moduleManifest), nil
		},
		ReadModuleScript: func(module, path string) ([]byte, error) {
			return []byte(script), nil
		},
	}
}

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

// TestSpawnSetAndReadBack is the worked example from the local-simulation
// walkthrough: spawn a prefab entity, fire the event its component reacts
// to, and read the mutated variable back afterward.
func TestSpawnSetAndReadBack(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}

	if _, err := s.SpawnEntity("P", "e1"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	s.AddEvent("tick")

	if _, err := s.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	v, err := s.GetVar("e1:C:int:x")
	if err != nil {
		t.Fatalf("GetVar() error = %v", err)
	}
	if got, _ := v.Int(); got != 7 {
		t.Errorf("x = %d, want 7", got)
	}
	if s.Clock() != 1 {
		t.Errorf("Clock() = %d, want 1", s.Clock())
	}
}

func TestSpawnDuplicateNameRejected(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e1"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e1"); err == nil {
		t.Error("SpawnEntity() with duplicate name should fail")
	}
}

func TestSpawnEntityWithIDReservesThatID(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if err := s.SpawnEntityWithID(50, "P", "e50"); err != nil {
		t.Fatalf("SpawnEntityWithID() error = %v", err)
	}
	if _, err := s.GetVar("e50:C:int:x"); err != nil {
		t.Fatalf("GetVar() error = %v", err)
	}
	// a subsequent auto-allocated spawn must not collide with the
	// explicitly-reserved id.
	id, err := s.SpawnEntity("P", "e-auto")
	if err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	if id == 50 {
		t.Error("auto-allocated id collided with reserved id 50")
	}
}

func TestSpawnEntityWithIDDuplicateRejected(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if err := s.SpawnEntityWithID(50, "P", "e50"); err != nil {
		t.Fatalf("SpawnEntityWithID() error = %v", err)
	}
	if err := s.SpawnEntityWithID(50, "P", "e50b"); err == nil {
		t.Error("SpawnEntityWithID() with an id already in use should fail")
	}
}

func TestSpawnUnknownPrefabRejected(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if _, err := s.SpawnEntity("Nope", "e1"); err == nil {
		t.Error("SpawnEntity() with unknown prefab should fail")
	}
}

// TestStepOnlyFiresMatchingEvent checks that a component is not run for an
// event it does not declare as a trigger.
func TestStepOnlyFiresMatchingEvent(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e1"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	s.AddEvent("not_tick")
	if _, err := s.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	v, err := s.GetVar("e1:C:int:x")
	if err != nil {
		t.Fatalf("GetVar() error = %v", err)
	}
	if got, _ := v.Int(); got != 0 {
		t.Errorf("x = %d, want 0 (unchanged)", got)
	}
}

// TestStepClearsEventQueue checks that an event not re-invoked does not
// persist into the next step (spec §4.F point 5).
func TestStepClearsEventQueue(t *testing.T) {
	loader := demoLoader(counterManifest, "set x 7\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e1"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	s.AddEvent("tick")
	if _, err := s.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	// Reset x, step again without re-adding "tick": it must not fire again.
	if err := s.SetVar("e1:C:int:x", vars.NewInt(0)); err != nil {
		t.Fatalf("SetVar() error = %v", err)
	}
	if _, err := s.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	v, err := s.GetVar("e1:C:int:x")
	if err != nil {
		t.Fatalf("GetVar() error = %v", err)
	}
	if got, _ := v.Int(); got != 0 {
		t.Errorf("x = %d, want 0 (tick did not persist into the next step)", got)
	}
	if s.Clock() != 2 {
		t.Errorf("Clock() = %d, want 2", s.Clock())
	}
}

const invokeManifest = `
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

// TestInvokeDefersEventToNextStep checks that an Invoke command's event only
// fires on the step after the one that issued it (central tier, spec §4.D).
func TestInvokeDefersEventToNextStep(t *testing.T) {
	loader := demoLoader(invokeManifest, "invoke tick\nset x 1\n")
	s, err := FromScenario(loader, "demo", "1.0.0")
	if err != nil {
		t.Fatalf("FromScenario() error = %v", err)
	}
	if _, err := s.SpawnEntity("P", "e1"); err != nil {
		t.Fatalf("SpawnEntity() error = %v", err)
	}
	s.AddEvent("tick")

	if _, err := s.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	v, _ := s.GetVar("e1:C:int:x")
	if got, _ := v.Int(); got != 1 {
		t.Fatalf("after step 1, x = %d, want 1", got)
	}

	if _, err := s.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	v, _ = s.GetVar("e1:C:int:x")
	if got, _ := v.Int(); got != 1 {
		t.Fatalf("after step 2 (invoked tick re-firing), x = %d, want 1 (already set)", got)
	}
	if s.Clock() != 2 {
		t.Errorf("Clock() = %d, want 2", s.Clock())
	}
}
