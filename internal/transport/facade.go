// Package transport abstracts the message-oriented socket every worker and
// organizer communicates over (spec §4.I "Transport Facade"). It defines
// the facade every concrete transport (internal/wsconn, the in-process
// MemSocket used by tests and single-process runs) implements, plus the
// wire framing and encoding both share.
package transport

import (
	"context"
)

// SocketEventKind enumerates the non-payload events a socket can surface
// alongside message bytes.
type SocketEventKind int

const (
	EventBytes SocketEventKind = iota
	EventHeartbeat
	EventConnect
	EventDisconnect
	EventTimeout
)

func (k SocketEventKind) String() string {
	switch k {
	case EventBytes:
		return "bytes"
	case EventHeartbeat:
		return "heartbeat"
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// SocketEvent is one of {Bytes(v), Heartbeat, Connect, Disconnect, Timeout}.
// Payload is only meaningful when Kind is EventBytes.
type SocketEvent struct {
	Kind    SocketEventKind
	Addr    string
	Payload []byte
}

// Signal is the decoded form of a Bytes event: a task-correlated message
// exchanged between organizer and worker (spec §4.I "send_sig/recv_sig").
// Name identifies the signal's concrete type (e.g. "WorkerReady",
// "StartProcessStep") for the caller's own dispatch; Body carries the
// encoded payload for that type.
type Signal struct {
	TaskID string
	Name   string
	Body   []byte
}

// Socket is the pluggable transport facade (spec §4.I). A socket may
// support multiple simultaneous peer connections, addressed by addr; addr
// is "" where a call operates against an already-unique peer, e.g. a
// worker's single connection to its organizer.
type Socket interface {
	// Bind starts listening/accepting at addr.
	Bind(addr string) error
	// Connect establishes an outbound connection to addr.
	Connect(addr string) error
	// Disconnect tears down the connection to addr, or every connection
	// when addr is "".
	Disconnect(addr string) error

	// SendBytes sends an already-encoded payload to addr ("" for the
	// socket's sole peer).
	SendBytes(payload []byte, addr string) error
	// TryRecv returns the next buffered event without blocking, or
	// apperrors.ErrWouldBlock when none is ready.
	TryRecv() (string, SocketEvent, error)
	// Recv blocks until an event is ready or ctx is done. A non-Bytes
	// event observed while the caller is specifically waiting on
	// RecvSig is queued to the backlog and returned by the next Recv.
	Recv(ctx context.Context) (string, SocketEvent, error)

	// SendSig encodes and sends a signal as a Bytes event.
	SendSig(addr string, sig Signal) error
	// RecvSig blocks for the next decodable Bytes event, buffering any
	// other event kind observed along the way to the backlog FIFO.
	RecvSig(ctx context.Context) (string, Signal, error)
	// TryRecvSig is the non-blocking counterpart of RecvSig.
	TryRecvSig() (string, Signal, error)

	// Close releases any resources the socket holds.
	Close() error
}
