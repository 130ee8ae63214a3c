package wsconn

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"outcome.io/sim/internal/transport"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestWSConnSendSigRecvSigRoundTrip(t *testing.T) {
	bindAddr := freeAddr(t)

	organizer := New("organizer", "/ws")
	if err := organizer.Bind(bindAddr); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer organizer.Close()

	worker := New("worker-1", "/ws")
	defer worker.Close()
	if err := worker.Connect(fmt.Sprintf("ws://%s/ws", bindAddr)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The organizer observes the worker's EventConnect frame first.
	addr, ev, err := organizer.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if addr != "worker-1" || ev.Kind != transport.EventConnect {
		t.Fatalf("Recv() = (%q, %v), want connect from worker-1", addr, ev.Kind)
	}

	// A dialed peer is addressed by the URL it was dialed at.
	organizerURL := fmt.Sprintf("ws://%s/ws", bindAddr)
	if err := worker.SendSig(organizerURL, transport.Signal{TaskID: "t-1", Name: "WorkerReady"}); err != nil {
		t.Fatalf("SendSig() error = %v", err)
	}
	addr, sig, err := organizer.RecvSig(ctx)
	if err != nil {
		t.Fatalf("RecvSig() error = %v", err)
	}
	if addr != "worker-1" || sig.TaskID != "t-1" || sig.Name != "WorkerReady" {
		t.Fatalf("RecvSig() = (%q, %+v), want t-1/WorkerReady from worker-1", addr, sig)
	}

	if err := organizer.SendSig("worker-1", transport.Signal{TaskID: "t-1", Name: "InitializeNode"}); err != nil {
		t.Fatalf("SendSig() error = %v", err)
	}
	addr, sig, err = worker.RecvSig(ctx)
	if err != nil {
		t.Fatalf("RecvSig() error = %v", err)
	}
	if addr != organizerURL || sig.Name != "InitializeNode" {
		t.Fatalf("RecvSig() = (%q, %+v), want InitializeNode from organizer", addr, sig)
	}
}

func TestWSConnRecvSigBacklogsNonBytesEvents(t *testing.T) {
	bindAddr := freeAddr(t)

	organizer := New("organizer", "/ws")
	if err := organizer.Bind(bindAddr); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer organizer.Close()

	worker := New("worker-1", "/ws")
	defer worker.Close()
	if err := worker.Connect(fmt.Sprintf("ws://%s/ws", bindAddr)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := worker.SendSig(fmt.Sprintf("ws://%s/ws", bindAddr), transport.Signal{TaskID: "t-2", Name: "StartProcessStep"}); err != nil {
		t.Fatalf("SendSig() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// RecvSig must skip the leading Connect event, decode the signal, and
	// stash Connect in the backlog for a later plain Recv.
	addr, sig, err := organizer.RecvSig(ctx)
	if err != nil {
		t.Fatalf("RecvSig() error = %v", err)
	}
	if sig.Name != "StartProcessStep" || addr != "worker-1" {
		t.Fatalf("RecvSig() = (%q, %+v), want StartProcessStep from worker-1", addr, sig)
	}

	addr, ev, err := organizer.TryRecv()
	if err != nil {
		t.Fatalf("TryRecv() error = %v", err)
	}
	if addr != "worker-1" || ev.Kind != transport.EventConnect {
		t.Fatalf("TryRecv() = (%q, %v), want the backlogged connect event", addr, ev.Kind)
	}
}

func TestWSConnDisconnectDeliversEvent(t *testing.T) {
	bindAddr := freeAddr(t)

	organizer := New("organizer", "/ws")
	if err := organizer.Bind(bindAddr); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer organizer.Close()

	worker := New("worker-1", "/ws")
	if err := worker.Connect(fmt.Sprintf("ws://%s/ws", bindAddr)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := organizer.Recv(ctx); err != nil {
		t.Fatalf("Recv() connect event error = %v", err)
	}

	if err := worker.Disconnect(""); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	addr, ev, err := organizer.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if addr != "worker-1" || ev.Kind != transport.EventDisconnect {
		t.Fatalf("Recv() = (%q, %v), want disconnect from worker-1", addr, ev.Kind)
	}
}
