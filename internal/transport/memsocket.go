package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"outcome.io/sim/internal/apperrors"
)

// MemBroker is an in-process message bus: every MemSocket bound to it
// shares one address space and delivers frames through Go channels rather
// than a real network socket. This is the facade implementation the
// organizer and its workers use when running colocated in one process
// (tests, single-binary demos) instead of over internal/wsconn (spec §5:
// "the transport facade... may run on a separate worker thread; they
// communicate with the step thread via in-process queues").
type MemBroker struct {
	mu    sync.Mutex
	boxes map[string]chan SocketEvent
}

// NewMemBroker returns an empty broker.
func NewMemBroker() *MemBroker {
	return &MemBroker{boxes: make(map[string]chan SocketEvent)}
}

func (b *MemBroker) mailbox(addr string) chan SocketEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.boxes[addr]
	if !ok {
		ch = make(chan SocketEvent, 64)
		b.boxes[addr] = ch
	}
	return ch
}

func (b *MemBroker) deliver(addr string, ev SocketEvent) error {
	b.mu.Lock()
	ch, ok := b.boxes[addr]
	b.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.CodeHostUnreachable, "transport: no such peer: "+addr, http.StatusServiceUnavailable)
	}
	select {
	case ch <- ev:
		return nil
	default:
		return fmt.Errorf("transport: mailbox for %q is full", addr)
	}
}

func (b *MemBroker) remove(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.boxes[addr]; ok {
		close(ch)
		delete(b.boxes, addr)
	}
}

// MemSocket is one endpoint bound to a MemBroker.
type MemSocket struct {
	broker *MemBroker
	addr   string

	mu      sync.Mutex
	peers   map[string]bool
	backlog []taggedEvent
}

type taggedEvent struct {
	addr string
	ev   SocketEvent
}

// NewMemSocket binds a socket to addr on broker. addr must be non-empty and
// is this endpoint's own address, the one peers send to.
func NewMemSocket(broker *MemBroker, addr string) *MemSocket {
	s := &MemSocket{broker: broker, addr: addr, peers: make(map[string]bool)}
	broker.mailbox(addr)
	return s
}

func (s *MemSocket) Bind(addr string) error {
	if addr != "" && addr != s.addr {
		return apperrors.New(apperrors.CodeSocketNotBoundToAddress, "transport: mem socket bound to "+s.addr+", not "+addr, http.StatusInternalServerError)
	}
	return nil
}

func (s *MemSocket) Connect(addr string) error {
	s.mu.Lock()
	s.peers[addr] = true
	s.mu.Unlock()
	return s.broker.deliver(addr, SocketEvent{Kind: EventConnect, Addr: s.addr})
}

func (s *MemSocket) Disconnect(addr string) error {
	s.mu.Lock()
	if addr == "" {
		for p := range s.peers {
			delete(s.peers, p)
			_ = s.broker.deliver(p, SocketEvent{Kind: EventDisconnect, Addr: s.addr})
		}
		s.mu.Unlock()
		return nil
	}
	delete(s.peers, addr)
	s.mu.Unlock()
	return s.broker.deliver(addr, SocketEvent{Kind: EventDisconnect, Addr: s.addr})
}

func (s *MemSocket) solePeer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.peers) != 1 {
		return "", apperrors.New(apperrors.CodeSocketNotConnected, "transport: sole-peer send requires exactly one connected peer", http.StatusServiceUnavailable)
	}
	for p := range s.peers {
		return p, nil
	}
	panic("unreachable")
}

func (s *MemSocket) SendBytes(payload []byte, addr string) error {
	if addr == "" {
		p, err := s.solePeer()
		if err != nil {
			return err
		}
		addr = p
	}
	return s.broker.deliver(addr, SocketEvent{Kind: EventBytes, Addr: s.addr, Payload: payload})
}

func (s *MemSocket) TryRecv() (string, SocketEvent, error) {
	if addr, ev, ok := s.popBacklog(); ok {
		return addr, ev, nil
	}
	return s.channelTryRecv()
}

func (s *MemSocket) Recv(ctx context.Context) (string, SocketEvent, error) {
	if addr, ev, ok := s.popBacklog(); ok {
		return addr, ev, nil
	}
	return s.channelRecv(ctx)
}

func (s *MemSocket) popBacklog() (string, SocketEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.backlog) == 0 {
		return "", SocketEvent{}, false
	}
	te := s.backlog[0]
	s.backlog = s.backlog[1:]
	return te.addr, te.ev, true
}

// channelTryRecv and channelRecv read straight off the mailbox, bypassing
// the backlog: recvSig uses these so it never re-inspects an event it (or a
// prior recvSig call) already shunted aside, which would otherwise loop
// forever re-queuing the same non-Bytes event.
func (s *MemSocket) channelTryRecv() (string, SocketEvent, error) {
	ch := s.broker.mailbox(s.addr)
	select {
	case ev := <-ch:
		return ev.Addr, ev, nil
	default:
		return "", SocketEvent{}, apperrors.ErrWouldBlock
	}
}

func (s *MemSocket) channelRecv(ctx context.Context) (string, SocketEvent, error) {
	ch := s.broker.mailbox(s.addr)
	select {
	case ev, ok := <-ch:
		if !ok {
			return "", SocketEvent{}, fmt.Errorf("transport: mailbox for %q closed", s.addr)
		}
		return ev.Addr, ev, nil
	case <-ctx.Done():
		return "", SocketEvent{}, ctx.Err()
	}
}

func (s *MemSocket) SendSig(addr string, sig Signal) error {
	body, err := CBOREncoding.Encode(sig)
	if err != nil {
		return err
	}
	return s.SendBytes(body, addr)
}

// recvSig pulls events until a Bytes event decodes as a Signal, shunting
// every other event kind to the backlog (spec §4.I: "a non-message event
// received during a recv_msg/recv_sig call is buffered in a backlog FIFO
// and returned by the next recv()").
func (s *MemSocket) recvSig(next func() (string, SocketEvent, error)) (string, Signal, error) {
	for {
		addr, ev, err := next()
		if err != nil {
			return "", Signal{}, err
		}
		if ev.Kind != EventBytes {
			s.mu.Lock()
			s.backlog = append(s.backlog, taggedEvent{addr: addr, ev: ev})
			s.mu.Unlock()
			continue
		}
		var sig Signal
		if err := CBOREncoding.Decode(ev.Payload, &sig); err != nil {
			return "", Signal{}, fmt.Errorf("transport: undecodable signal from %s: %w", addr, err)
		}
		return addr, sig, nil
	}
}

func (s *MemSocket) RecvSig(ctx context.Context) (string, Signal, error) {
	return s.recvSig(func() (string, SocketEvent, error) { return s.channelRecv(ctx) })
}

func (s *MemSocket) TryRecvSig() (string, Signal, error) {
	return s.recvSig(s.channelTryRecv)
}

func (s *MemSocket) Close() error {
	s.broker.remove(s.addr)
	return nil
}
