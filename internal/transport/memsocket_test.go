package transport

import (
	"context"
	"testing"
	"time"

	"outcome.io/sim/internal/apperrors"
)

func TestMemSocketSendBytesAndRecv(t *testing.T) {
	broker := NewMemBroker()
	a := NewMemSocket(broker, "worker-a")
	b := NewMemSocket(broker, "organizer")

	if err := a.Connect("organizer"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// The peer sees the Connect event first.
	addr, ev, err := b.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv() error = %v", err)
	}
	if addr != "worker-a" || ev.Kind != EventConnect {
		t.Fatalf("TryRecv() = (%q, %v), want connect from worker-a", addr, ev.Kind)
	}

	if err := a.SendBytes([]byte("ping"), ""); err != nil {
		t.Fatalf("SendBytes() error = %v", err)
	}
	addr, ev, err = b.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if addr != "worker-a" || ev.Kind != EventBytes || string(ev.Payload) != "ping" {
		t.Fatalf("Recv() = (%q, %+v), want bytes %q from worker-a", addr, ev, "ping")
	}
}

func TestMemSocketTryRecvWouldBlock(t *testing.T) {
	broker := NewMemBroker()
	a := NewMemSocket(broker, "solo")
	if _, _, err := a.TryRecv(); err != apperrors.ErrWouldBlock {
		t.Fatalf("TryRecv() error = %v, want ErrWouldBlock", err)
	}
}

func TestMemSocketSendSigRecvSig(t *testing.T) {
	broker := NewMemBroker()
	a := NewMemSocket(broker, "organizer")
	bWorker := NewMemSocket(broker, "worker-1")
	if err := bWorker.Connect("organizer"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	// Drain the Connect event the organizer observed.
	if _, _, err := a.TryRecv(); err != nil {
		t.Fatalf("TryRecv() drain error = %v", err)
	}

	if err := bWorker.SendSig("organizer", Signal{TaskID: "t-1", Name: "WorkerReady"}); err != nil {
		t.Fatalf("SendSig() error = %v", err)
	}
	addr, sig, err := a.RecvSig(context.Background())
	if err != nil {
		t.Fatalf("RecvSig() error = %v", err)
	}
	if addr != "worker-1" || sig.TaskID != "t-1" || sig.Name != "WorkerReady" {
		t.Fatalf("RecvSig() = (%q, %+v), want t-1/WorkerReady from worker-1", addr, sig)
	}
}

func TestMemSocketRecvSigBacklogsNonBytesEvents(t *testing.T) {
	broker := NewMemBroker()
	a := NewMemSocket(broker, "organizer")
	bWorker := NewMemSocket(broker, "worker-1")

	if err := bWorker.Connect("organizer"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := bWorker.SendSig("organizer", Signal{TaskID: "t-2", Name: "StartProcessStep"}); err != nil {
		t.Fatalf("SendSig() error = %v", err)
	}

	// RecvSig must skip the leading Connect event, decode the signal, and
	// stash Connect in the backlog for a later plain Recv.
	addr, sig, err := a.RecvSig(context.Background())
	if err != nil {
		t.Fatalf("RecvSig() error = %v", err)
	}
	if sig.Name != "StartProcessStep" || addr != "worker-1" {
		t.Fatalf("RecvSig() = (%q, %+v), want StartProcessStep from worker-1", addr, sig)
	}

	addr, ev, err := a.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv() error = %v", err)
	}
	if addr != "worker-1" || ev.Kind != EventConnect {
		t.Fatalf("TryRecv() = (%q, %v), want the backlogged connect event", addr, ev.Kind)
	}
}

func TestMemSocketRecvTimesOutWithContext(t *testing.T) {
	broker := NewMemBroker()
	a := NewMemSocket(broker, "idle")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := a.Recv(ctx); err == nil {
		t.Error("Recv() should return once the context deadline passes")
	}
}
