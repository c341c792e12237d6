package pipeline

import (
	"context"
	"net"
)

// Verdict tells the pipeline whether a packet keeps flowing.
type Verdict int

const (
	Continue Verdict = iota
	Drop
)

func (v Verdict) String() string {
	if v == Drop {
		return "drop"
	}
	return "continue"
}

type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Peer is the connection view handed to hooks.
type Peer interface {
	ID() string
	Transport() string
	Role() Role
	RemoteAddr() net.Addr
	Group() string
	Tag(key string) (any, bool)
	SetTag(key string, v any)
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Handler is the registration unit. Lower Priority runs first; a non-zero
// MaxPacketSize rejects frames declaring a longer payload.
type Handler interface {
	Priority() int
	MaxPacketSize() int
}

// RawReceiver sees complete frames before unpacking.
type RawReceiver interface {
	OnRawReceive(peer Peer, frame []byte) ([]byte, Verdict)
}

// ProcessedReceiver sees opened payloads before delivery.
type ProcessedReceiver interface {
	OnReceive(peer Peer, payload []byte) ([]byte, Verdict)
}

// ProcessedSender sees payloads before packing.
type ProcessedSender interface {
	OnSend(peer Peer, payload []byte) ([]byte, Verdict)
}

// RawSender sees packed frames just before the write.
type RawSender interface {
	OnRawSend(peer Peer, frame []byte) ([]byte, Verdict)
}

type Connector interface {
	OnConnect(peer Peer)
}

type Disconnector interface {
	OnDisconnect(peer Peer, err error)
}

// Base carries the registration fields; embed it to satisfy Handler.
type Base struct {
	Prio    int
	MaxSize int
}

func (b Base) Priority() int      { return b.Prio }
func (b Base) MaxPacketSize() int { return b.MaxSize }

// Hooks adapts plain funcs to every capability. Nil funcs pass through.
// Register *Hooks so Unregister can match by identity.
type Hooks struct {
	Base
	RawReceive func(peer Peer, frame []byte) ([]byte, Verdict)
	Receive    func(peer Peer, payload []byte) ([]byte, Verdict)
	Send       func(peer Peer, payload []byte) ([]byte, Verdict)
	RawSend    func(peer Peer, frame []byte) ([]byte, Verdict)
	Connect    func(peer Peer)
	Disconnect func(peer Peer, err error)
}

func (h *Hooks) OnRawReceive(peer Peer, frame []byte) ([]byte, Verdict) {
	if h.RawReceive == nil {
		return frame, Continue
	}
	return h.RawReceive(peer, frame)
}

func (h *Hooks) OnReceive(peer Peer, payload []byte) ([]byte, Verdict) {
	if h.Receive == nil {
		return payload, Continue
	}
	return h.Receive(peer, payload)
}

func (h *Hooks) OnSend(peer Peer, payload []byte) ([]byte, Verdict) {
	if h.Send == nil {
		return payload, Continue
	}
	return h.Send(peer, payload)
}

func (h *Hooks) OnRawSend(peer Peer, frame []byte) ([]byte, Verdict) {
	if h.RawSend == nil {
		return frame, Continue
	}
	return h.RawSend(peer, frame)
}

func (h *Hooks) OnConnect(peer Peer) {
	if h.Connect != nil {
		h.Connect(peer)
	}
}

func (h *Hooks) OnDisconnect(peer Peer, err error) {
	if h.Disconnect != nil {
		h.Disconnect(peer, err)
	}
}
