// Package wsconn implements the Transport Facade (internal/transport.Socket)
// over real WebSocket connections (spec §4.I; SPEC_FULL §11 names
// github.com/gorilla/websocket as the concrete transport for a non-colocated
// organizer/worker pair, a real counterpart to internal/transport.MemSocket).
package wsconn

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"outcome.io/sim/internal/apperrors"
	"outcome.io/sim/internal/transport"
)

// wireFrame envelopes every WebSocket message with the sender's logical
// address and event kind. A raw TCP transport needs internal/transport's
// 4-byte length prefix to recover message boundaries from a byte stream;
// WebSocket already frames each message, so wsconn only needs to carry what
// that framing doesn't: who sent it and what kind of event it is.
type wireFrame struct {
	Kind    transport.SocketEventKind `cbor:"kind"`
	From    string                    `cbor:"from"`
	Payload []byte                    `cbor:"payload,omitempty"`
}

type taggedEvent struct {
	addr string
	ev   transport.SocketEvent
}

type peerConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex // gorilla requires a single writer goroutine per conn
}

// Socket is a WebSocket-backed transport.Socket. One Socket may both Bind
// (accept inbound connections, the organizer's role) and Connect (dial out,
// a worker's role), multiplexing every peer connection behind one facade.
type Socket struct {
	selfAddr string
	path     string

	dialer   *websocket.Dialer
	upgrader websocket.Upgrader
	srv      *http.Server

	mu      sync.Mutex
	peers   map[string]*peerConn
	backlog []taggedEvent

	events chan taggedEvent
}

// New returns a socket identifying itself as selfAddr in every frame it
// sends. path is the HTTP upgrade path used when this socket Binds (default
// "/ws" if empty).
func New(selfAddr, path string) *Socket {
	if path == "" {
		path = "/ws"
	}
	return &Socket{
		selfAddr: selfAddr,
		path:     path,
		dialer:   websocket.DefaultDialer,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		peers:    make(map[string]*peerConn),
		events:   make(chan taggedEvent, 256),
	}
}

// Bind starts accepting WebSocket upgrades at addr (host:port); each
// connecting peer is registered once its first frame names its own logical
// address, matching the organizer's role of listening for workers to dial
// in (spec §4.I "bind... accept").
func (s *Socket) Bind(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleUpgrade)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("wsconn: bind %s: %w", addr, err)
	case <-time.After(50 * time.Millisecond):
		return nil
	}
}

func (s *Socket) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	go s.readLoop(conn, "")
}

// Connect dials addr as a WebSocket URL (e.g. "ws://host:port/ws") and
// announces this socket's address with an EventConnect frame, matching a
// worker's role of dialing out to its organizer (spec §4.I "connect").
func (s *Socket) Connect(addr string) error {
	conn, _, err := s.dialer.Dial(addr, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeHandshakeFailed, "wsconn: dial "+addr, http.StatusServiceUnavailable)
	}
	pc := s.registerPeer(addr, conn)
	go s.readLoop(conn, addr)
	return s.writeFrame(pc, wireFrame{Kind: transport.EventConnect, From: s.selfAddr})
}

func (s *Socket) registerPeer(addr string, conn *websocket.Conn) *peerConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc := &peerConn{conn: conn}
	s.peers[addr] = pc
	return pc
}

// readLoop pumps frames off conn until it closes. knownAddr is set when this
// socket dialed out and already knows the peer's logical address; an
// inbound (Bind-accepted) connection learns it from the first frame's From
// field instead.
func (s *Socket) readLoop(conn *websocket.Conn, knownAddr string) {
	addr := knownAddr
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleClosed(addr, conn)
			return
		}
		var frame wireFrame
		if err := cbor.Unmarshal(data, &frame); err != nil {
			continue
		}
		if addr == "" {
			addr = frame.From
			s.registerPeer(addr, conn)
		}
		s.deliver(taggedEvent{addr: addr, ev: transport.SocketEvent{
			Kind: frame.Kind, Addr: addr, Payload: frame.Payload,
		}})
	}
}

func (s *Socket) handleClosed(addr string, conn *websocket.Conn) {
	s.mu.Lock()
	if addr == "" {
		for a, pc := range s.peers {
			if pc.conn == conn {
				addr = a
				break
			}
		}
	}
	delete(s.peers, addr)
	s.mu.Unlock()
	if addr != "" {
		s.deliver(taggedEvent{addr: addr, ev: transport.SocketEvent{Kind: transport.EventDisconnect, Addr: addr}})
	}
}

func (s *Socket) deliver(te taggedEvent) {
	select {
	case s.events <- te:
	default:
		// events channel saturated; drop rather than block the read loop.
		// A real deployment sizes the channel well above any burst this
		// engine's worker counts (spec §5) would produce.
	}
}

func (s *Socket) writeFrame(pc *peerConn, frame wireFrame) error {
	data, err := cbor.Marshal(frame)
	if err != nil {
		return err
	}
	pc.wmu.Lock()
	defer pc.wmu.Unlock()
	return pc.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Socket) peer(addr string) (*peerConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr == "" {
		if len(s.peers) != 1 {
			return nil, apperrors.New(apperrors.CodeSocketNotConnected,
				"wsconn: sole-peer send requires exactly one connected peer", http.StatusServiceUnavailable)
		}
		for _, pc := range s.peers {
			return pc, nil
		}
	}
	pc, ok := s.peers[addr]
	if !ok {
		return nil, apperrors.New(apperrors.CodeHostUnreachable, "wsconn: no such peer: "+addr, http.StatusServiceUnavailable)
	}
	return pc, nil
}

// Disconnect closes the connection to addr, or every connection when addr
// is "".
func (s *Socket) Disconnect(addr string) error {
	s.mu.Lock()
	var targets []*peerConn
	if addr == "" {
		for a, pc := range s.peers {
			targets = append(targets, pc)
			delete(s.peers, a)
		}
	} else if pc, ok := s.peers[addr]; ok {
		targets = append(targets, pc)
		delete(s.peers, addr)
	}
	s.mu.Unlock()
	for _, pc := range targets {
		_ = pc.conn.Close()
	}
	return nil
}

// SendBytes sends an already-encoded payload to addr ("" for the sole peer).
func (s *Socket) SendBytes(payload []byte, addr string) error {
	pc, err := s.peer(addr)
	if err != nil {
		return err
	}
	return s.writeFrame(pc, wireFrame{Kind: transport.EventBytes, From: s.selfAddr, Payload: payload})
}

// TryRecv returns the next buffered event without blocking.
func (s *Socket) TryRecv() (string, transport.SocketEvent, error) {
	if addr, ev, ok := s.popBacklog(); ok {
		return addr, ev, nil
	}
	select {
	case te := <-s.events:
		return te.addr, te.ev, nil
	default:
		return "", transport.SocketEvent{}, apperrors.ErrWouldBlock
	}
}

// Recv blocks until an event is ready or ctx is done.
func (s *Socket) Recv(ctx context.Context) (string, transport.SocketEvent, error) {
	if addr, ev, ok := s.popBacklog(); ok {
		return addr, ev, nil
	}
	select {
	case te := <-s.events:
		return te.addr, te.ev, nil
	case <-ctx.Done():
		return "", transport.SocketEvent{}, ctx.Err()
	}
}

func (s *Socket) popBacklog() (string, transport.SocketEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.backlog) == 0 {
		return "", transport.SocketEvent{}, false
	}
	te := s.backlog[0]
	s.backlog = s.backlog[1:]
	return te.addr, te.ev, true
}

// SendSig encodes and sends a signal as a Bytes event.
func (s *Socket) SendSig(addr string, sig transport.Signal) error {
	body, err := transport.CBOREncoding.Encode(sig)
	if err != nil {
		return err
	}
	return s.SendBytes(body, addr)
}

// recvSig pulls events until one decodes as a Signal, shunting every other
// event kind to the backlog (same contract as MemSocket's recvSig, spec
// §4.I "backlog FIFO").
func (s *Socket) recvSig(next func() (string, transport.SocketEvent, error)) (string, transport.Signal, error) {
	for {
		addr, ev, err := next()
		if err != nil {
			return "", transport.Signal{}, err
		}
		if ev.Kind != transport.EventBytes {
			s.mu.Lock()
			s.backlog = append(s.backlog, taggedEvent{addr: addr, ev: ev})
			s.mu.Unlock()
			continue
		}
		var sig transport.Signal
		if err := transport.CBOREncoding.Decode(ev.Payload, &sig); err != nil {
			return "", transport.Signal{}, fmt.Errorf("wsconn: undecodable signal from %s: %w", addr, err)
		}
		return addr, sig, nil
	}
}

// RecvSig blocks for the next decodable Bytes event.
func (s *Socket) RecvSig(ctx context.Context) (string, transport.Signal, error) {
	return s.recvSig(func() (string, transport.SocketEvent, error) { return s.channelRecv(ctx) })
}

// TryRecvSig is the non-blocking counterpart of RecvSig.
func (s *Socket) TryRecvSig() (string, transport.Signal, error) {
	return s.recvSig(s.channelTryRecv)
}

func (s *Socket) channelRecv(ctx context.Context) (string, transport.SocketEvent, error) {
	select {
	case te := <-s.events:
		return te.addr, te.ev, nil
	case <-ctx.Done():
		return "", transport.SocketEvent{}, ctx.Err()
	}
}

func (s *Socket) channelTryRecv() (string, transport.SocketEvent, error) {
	select {
	case te := <-s.events:
		return te.addr, te.ev, nil
	default:
		return "", transport.SocketEvent{}, apperrors.ErrWouldBlock
	}
}

// Close shuts down any server this socket Bind-ed and every peer
// connection.
func (s *Socket) Close() error {
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
	return s.Disconnect("")
}

var _ transport.Socket = (*Socket)(nil)
