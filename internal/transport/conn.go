package transport

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/frame"
	"github.com/danmuck/netcore/internal/protocol/security"
	"github.com/danmuck/netcore/internal/protocol/value"
	"github.com/google/uuid"
)

const (
	TCP = "tcp"
	UDP = "udp"

	DefaultGroup = "default"
)

type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Receiver consumes payloads that survived the receive pipeline.
type Receiver interface {
	Receive(ctx context.Context, peer pipeline.Peer, payload []byte)
}

type ReceiverFunc func(ctx context.Context, peer pipeline.Peer, payload []byte)

func (f ReceiverFunc) Receive(ctx context.Context, peer pipeline.Peer, payload []byte) {
	f(ctx, peer, payload)
}

// wire is the write/close half of an underlying socket.
type wire interface {
	write(raw []byte, deadline time.Time) error
	close() error
}

// streamWire covers TCP and connected UDP sockets.
type streamWire struct {
	c net.Conn
}

func (w streamWire) write(raw []byte, deadline time.Time) error {
	if err := w.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := w.c.Write(raw)
	return err
}

func (w streamWire) close() error {
	return w.c.Close()
}

// peerWire addresses one remote on a shared server socket. Closing it leaves
// the socket open for other peers.
type peerWire struct {
	pc   net.PacketConn
	addr net.Addr
}

func (w peerWire) write(raw []byte, _ time.Time) error {
	_, err := w.pc.WriteTo(raw, w.addr)
	return err
}

func (w peerWire) close() error {
	return nil
}

// Conn is one logical connection: an accepted or dialed TCP stream, or a UDP
// peer keyed by its remote address.
type Conn struct {
	id        string
	transport string
	role      pipeline.Role
	remote    net.Addr
	local     net.Addr
	createdAt time.Time

	lastActive atomic.Int64
	state      atomic.Int32

	mu    sync.RWMutex
	group string
	tags  map[string]any

	pipe         *pipeline.Pipeline
	sec          *security.Provider
	writeTimeout time.Duration

	writeMu sync.Mutex
	wire    wire

	closeOnce sync.Once
	done      chan struct{}
	cause     error
	onClose   func(*Conn)
}

type connParams struct {
	transport    string
	role         pipeline.Role
	remote       net.Addr
	local        net.Addr
	parent       *pipeline.Pipeline
	sec          *security.Provider
	writeTimeout time.Duration
	wire         wire
	onClose      func(*Conn)
}

func newConn(p connParams) *Conn {
	now := time.Now()
	c := &Conn{
		id:           uuid.NewString(),
		transport:    p.transport,
		role:         p.role,
		remote:       p.remote,
		local:        p.local,
		createdAt:    now,
		group:        DefaultGroup,
		tags:         make(map[string]any),
		pipe:         pipeline.New(p.parent),
		sec:          p.sec,
		writeTimeout: p.writeTimeout,
		wire:         p.wire,
		done:         make(chan struct{}),
		onClose:      p.onClose,
	}
	c.lastActive.Store(now.UnixNano())
	return c
}

func (c *Conn) ID() string                   { return c.id }
func (c *Conn) Transport() string            { return c.transport }
func (c *Conn) Role() pipeline.Role          { return c.role }
func (c *Conn) RemoteAddr() net.Addr         { return c.remote }
func (c *Conn) LocalAddr() net.Addr          { return c.local }
func (c *Conn) CreatedAt() time.Time         { return c.createdAt }
func (c *Conn) State() State                 { return State(c.state.Load()) }
func (c *Conn) Done() <-chan struct{}        { return c.done }
func (c *Conn) Pipeline() *pipeline.Pipeline { return c.pipe }

// Err returns the close cause once Done is closed. A nil cause means an
// orderly close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.cause
	default:
		return nil
	}
}

func (c *Conn) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Conn) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Conn) Group() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.group
}

// SetGroup moves the connection to group; blank names mean DefaultGroup.
func (c *Conn) SetGroup(group string) {
	group = strings.TrimSpace(group)
	if group == "" {
		group = DefaultGroup
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = group
}

func (c *Conn) Tag(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.tags[key]
	return v, ok
}

func (c *Conn) SetTag(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[key] = v
}

func (c *Conn) DeleteTag(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tags, key)
}

func (c *Conn) Tags() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.tags)
}

// Send runs payload through the send pipeline, frames it, and writes it.
// Writes on one connection never interleave. Once closing has begun every
// Send fails with ErrClosed.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if c.State() != StateActive {
		return ErrClosed
	}
	data, verdict := c.pipe.ProcessedSend(c, payload)
	if verdict == pipeline.Drop {
		return ErrDropped
	}
	raw, err := frame.Pack(data, c.sec)
	if err != nil {
		return err
	}
	raw, verdict = c.pipe.RawSend(c, raw)
	if verdict == pipeline.Drop {
		return ErrDropped
	}
	if err := c.write(ctx, raw); err != nil {
		if errors.Is(err, protocol.ErrTransport) && !errors.Is(err, ErrClosed) {
			c.closeWith(err)
		}
		return err
	}
	observability.RecordFrame(c.transport, "out", len(raw))
	return nil
}

func (c *Conn) SendMap(ctx context.Context, m *value.Map) error {
	payload, err := value.Marshal(m)
	if err != nil {
		return err
	}
	return c.Send(ctx, payload)
}

func (c *Conn) write(ctx context.Context, raw []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() != StateActive {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.wire.write(raw, deadline); err != nil {
		return fmt.Errorf("%w: write: %w", protocol.ErrTransport, err)
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeWith(nil)
	return nil
}

// closeWith moves the connection through Closing to Closed exactly once. The
// socket closes first so a blocked read returns, then in-flight writes drain
// before the state reaches Closed.
func (c *Conn) closeWith(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.cause = cause
		if err := c.wire.close(); err != nil {
			l := logging.For("transport")
			l.Debug().Str("conn", c.id).Err(err).Msg("transport.Conn.close socket")
		}
		c.writeMu.Lock()
		c.state.Store(int32(StateClosed))
		c.writeMu.Unlock()
		close(c.done)
		if c.onClose != nil {
			c.onClose(c)
		}
		c.pipe.Disconnected(c, cause)
	})
}

// handleFrame runs one complete inbound frame through the pipeline and hands
// the payload to recv. The returned error is the reason the frame was
// rejected; callers decide whether it ends the connection.
func (c *Conn) handleFrame(ctx context.Context, raw []byte, recv Receiver) error {
	c.touch()
	observability.RecordFrame(c.transport, "in", len(raw))

	raw, verdict := c.pipe.RawReceive(c, raw)
	if verdict == pipeline.Drop {
		return nil
	}
	payload, err := frame.Unpack(raw, c.sec)
	if err != nil {
		return err
	}
	payload, verdict = c.pipe.ProcessedReceive(c, payload)
	if verdict == pipeline.Drop || recv == nil {
		return nil
	}
	c.deliver(ctx, recv, payload)
	return nil
}

func (c *Conn) deliver(ctx context.Context, recv Receiver, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordHandlerPanic("deliver")
			l := logging.For("transport")
			l.Error().Str("conn", c.id).Interface("panic", r).Msg("transport.Conn.deliver receiver panic")
		}
	}()
	recv.Receive(ctx, c, payload)
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s/%s %s", c.transport, c.id, c.remote)
}

// Info is a point-in-time description of a connection.
type Info struct {
	ID         string         `json:"id"`
	Transport  string         `json:"transport"`
	Role       string         `json:"role"`
	RemoteAddr string         `json:"remote_addr"`
	Group      string         `json:"group"`
	State      string         `json:"state"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
	Tags       map[string]any `json:"tags,omitempty"`
}

func (c *Conn) Info() Info {
	remote := ""
	if c.remote != nil {
		remote = c.remote.String()
	}
	return Info{
		ID:         c.id,
		Transport:  c.transport,
		Role:       c.role.String(),
		RemoteAddr: remote,
		Group:      c.Group(),
		State:      c.State().String(),
		CreatedAt:  c.createdAt,
		LastActive: c.LastActive(),
		Tags:       c.Tags(),
	}
}
