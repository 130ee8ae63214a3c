package controlproto

import (
	"testing"

	"github.com/fxamacker/cbor/v2"

	"outcome.io/sim/internal/vars"
)

func TestTurnAdvanceRoundTrip(t *testing.T) {
	req := Message{Type: TypeTurnAdvanceReq, TaskID: "t-1", Payload: TurnAdvanceReq{TickCount: 3}}
	data, err := cbor.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var env struct {
		Type    string          `cbor:"type"`
		TaskID  string          `cbor:"task_id"`
		Payload cbor.RawMessage `cbor:"payload"`
	}
	if err := cbor.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal(envelope) error = %v", err)
	}
	if env.Type != TypeTurnAdvanceReq || env.TaskID != "t-1" {
		t.Fatalf("envelope = %+v, want type/task_id preserved", env)
	}

	var payload TurnAdvanceReq
	if err := cbor.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("Unmarshal(payload) error = %v", err)
	}
	if payload.TickCount != 3 {
		t.Errorf("TickCount = %d, want 3", payload.TickCount)
	}
}

func TestQueryResponsePayloadCarriesVars(t *testing.T) {
	in := QueryResponsePayload{Product: map[string]vars.Var{
		"e1:C:int:hp": vars.NewInt(7),
	}}
	data, err := cbor.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out QueryResponsePayload
	if err := cbor.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	v, ok := out.Product["e1:C:int:hp"]
	if !ok {
		t.Fatalf("Product missing key, got %#v", out.Product)
	}
	if got, _ := v.Int(); got != 7 {
		t.Errorf("hp = %d, want 7", got)
	}
}
