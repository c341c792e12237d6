package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/netcore/internal/command"
	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/frame"
	"github.com/danmuck/netcore/internal/protocol/value"
	"github.com/danmuck/netcore/internal/session"
)

// Client is the dialing side of one connection. Replies carrying the id of an
// outstanding Call are consumed by that call; everything else goes to the
// receiver given to Dial.
type Client struct {
	cfg   session.Config
	conn  *Conn
	nc    net.Conn
	recv  Receiver
	calls *session.Calls

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to addr over network (TCP or UDP). TCP dials retry with
// backoff up to cfg.MaxConnectAttempts; a negative value retries until ctx
// ends. ctx bounds only the dial, not the connection's lifetime.
func Dial(ctx context.Context, network, addr string, cfg session.Config, recv Receiver, opts ...Option) (*Client, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	if network != TCP && network != UDP {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	if network == UDP && cfg.TLS.Enabled {
		return nil, session.ErrTLSStreamOnly
	}
	o, err := resolveOptions(cfg, opts)
	if err != nil {
		return nil, err
	}

	nc, err := dialRetry(ctx, network, addr, cfg)
	if err != nil {
		return nil, err
	}

	cl := &Client{
		cfg:   cfg,
		nc:    nc,
		recv:  recv,
		calls: session.NewCalls(),
	}
	cl.conn = newConn(connParams{
		transport:    network,
		role:         pipeline.RoleClient,
		remote:       nc.RemoteAddr(),
		local:        nc.LocalAddr(),
		parent:       o.parent,
		sec:          o.sec,
		writeTimeout: cfg.WriteTimeout,
		wire:         streamWire{c: nc},
		onClose:      cl.onClose,
	})
	observability.RecordConnEvent(network, "dialed")
	l := logging.For("transport")
	l.Debug().Str("conn", cl.conn.id).Str("network", network).Str("remote", addr).Msg("transport.Dial connected")

	runCtx, cancel := context.WithCancel(context.Background())
	cl.cancel = cancel
	cl.conn.pipe.Connected(cl.conn)
	cl.wg.Add(1)
	go cl.readLoop(runCtx)
	return cl, nil
}

func dialRetry(ctx context.Context, network, addr string, cfg session.Config) (net.Conn, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	l := logging.For("transport")
	for attempt := 1; ; attempt++ {
		nc, err := dialOnce(ctx, network, addr, cfg)
		if err == nil {
			return nc, nil
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("%w: %s after %d attempt(s): %w", ErrConnect, addr, attempt, err)
		}
		l.Debug().Str("remote", addr).Int("attempt", attempt).Err(err).Msg("transport.Dial retrying")
		if err := cfg.Backoff.Sleep(ctx, attempt, rng); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
		}
	}
}

// dialOnce makes one connection attempt. ConnectTimeout bounds the whole
// attempt, TLS handshake included.
func dialOnce(ctx context.Context, network, addr string, cfg session.Config) (net.Conn, error) {
	ctx, cancelAttempt := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancelAttempt()
	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if network != TCP || !cfg.TLS.Enabled {
		return nc, nil
	}
	tlsCfg, err := cfg.ClientTLSConfig(addr)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	tc := tls.Client(nc, tlsCfg)
	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := tc.HandshakeContext(hctx); err != nil {
		_ = tc.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tc, nil
}

func (c *Client) Conn() *Conn                  { return c.conn }
func (c *Client) Pipeline() *pipeline.Pipeline { return c.conn.pipe }
func (c *Client) Done() <-chan struct{}        { return c.conn.done }
func (c *Client) Err() error                   { return c.conn.Err() }

// Pending reports how many calls are waiting for a reply.
func (c *Client) Pending() int { return c.calls.Len() }

func (c *Client) Register(h pipeline.Handler)        { c.conn.pipe.Register(h) }
func (c *Client) Unregister(h pipeline.Handler) bool { return c.conn.pipe.Unregister(h) }

func (c *Client) Send(ctx context.Context, payload []byte) error {
	return c.conn.Send(ctx, payload)
}

func (c *Client) SendMap(ctx context.Context, m *value.Map) error {
	return c.conn.SendMap(ctx, m)
}

// Call sends a command envelope tagged with a fresh id and waits for the
// matching reply. Without a ctx deadline the wait is bounded by
// ResponseTimeout. A remote {error} reply comes back as *command.ReplyError.
func (c *Client) Call(ctx context.Context, name string, args ...value.Value) (value.Value, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ResponseTimeout)
		defer cancel()
	}
	call := c.calls.Open(name)
	req, err := command.NewRequest(name, call.ID, args...)
	if err != nil {
		c.calls.Remove(call.ID)
		return value.Value{}, err
	}
	if err := c.conn.SendMap(ctx, req); err != nil {
		c.calls.Remove(call.ID)
		return value.Value{}, err
	}

	reply, err := call.Wait(ctx)
	if err != nil {
		c.calls.Remove(call.ID)
		if errors.Is(err, context.DeadlineExceeded) {
			return value.Value{}, fmt.Errorf("%w: %s", ErrCallTimeout, name)
		}
		return value.Value{}, err
	}
	rep, ok := command.ParseReply(reply)
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s", ErrInvalidResponse, name)
	}
	if rep.IsError {
		return value.Value{}, &command.ReplyError{Command: name, Message: rep.Message}
	}
	return rep.Result, nil
}

// Close shuts the connection and waits for the reader to exit.
func (c *Client) Close() error {
	c.conn.closeWith(nil)
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Client) onClose(conn *Conn) {
	cause := conn.cause
	if cause == nil {
		cause = ErrClosed
	}
	c.calls.FailAll(cause)
	observability.RecordConnEvent(conn.transport, "closed")
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()
	var cause error
	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Errorf("%w: panic: %v", protocol.ErrTransport, r)
		}
		c.conn.closeWith(cause)
	}()
	recv := ReceiverFunc(c.route)
	if c.conn.transport == TCP {
		cause = readStream(ctx, c.conn, c.nc, c.cfg.ReadTimeout, c.cfg.Limits(), recv)
		return
	}
	cause = c.readDatagrams(ctx, recv)
}

// readDatagrams serves a connected UDP socket. A rejected datagram is dropped
// without closing the connection.
func (c *Client) readDatagrams(ctx context.Context, recv Receiver) error {
	buf := make([]byte, maxDatagram)
	limits := c.cfg.Limits()
	l := logging.For("transport")
	for {
		n, err := c.nc.Read(buf)
		if err != nil {
			if c.conn.State() != StateActive || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: udp read: %w", protocol.ErrTransport, err)
		}
		datagram := append([]byte(nil), buf[:n]...)
		err = func() error {
			h, err := frame.DecodeHeader(datagram)
			if err != nil {
				return err
			}
			if err := limits.Check(h); err != nil {
				return err
			}
			if err := c.conn.pipe.CheckSize(int(h.Length)); err != nil {
				return err
			}
			return c.conn.handleFrame(ctx, datagram, recv)
		}()
		if err != nil {
			observability.RecordFrameError(UDP, protocol.Classify(err).String())
			l.Debug().Str("conn", c.conn.id).Err(err).Msg("transport.Client.readDatagrams dropped datagram")
		}
	}
}

// route resolves id-tagged replies against outstanding calls.
func (c *Client) route(ctx context.Context, peer pipeline.Peer, payload []byte) {
	if m, err := value.Unmarshal(payload); err == nil {
		if rep, ok := command.ParseReply(m); ok && rep.HasID {
			if id, err := rep.ID.WidenUint64(rep.ID.Tag()); err == nil && c.calls.Resolve(id, m) {
				return
			}
		}
	}
	if c.recv != nil {
		c.recv.Receive(ctx, peer, payload)
	}
}
