package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/frame"
	"github.com/danmuck/netcore/internal/protocol/security"
	"github.com/danmuck/netcore/internal/session"
	"golang.org/x/sync/errgroup"
)

// maxDatagram is the largest UDP payload the receive loop accepts.
const maxDatagram = 64 * 1024

type ServerConfig struct {
	TCPAddr string
	UDPAddr string
	Session session.Config
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		TCPAddr: ":9400",
		Session: session.DefaultConfig(),
	}
}

// Server accepts TCP connections and UDP peers, runs every inbound frame
// through its pipeline, and reclaims idle connections.
type Server struct {
	cfg  ServerConfig
	sec  *security.Provider
	pipe *pipeline.Pipeline
	recv Receiver

	conns *Registry

	tagsMu sync.RWMutex
	tags   map[string]any

	mu     sync.Mutex
	cancel context.CancelFunc

	active sync.WaitGroup
}

func NewServer(cfg ServerConfig, recv Receiver, opts ...Option) (*Server, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.ValidateServer(); err != nil {
		return nil, err
	}
	o, err := resolveOptions(cfg.Session, opts)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:   cfg,
		sec:   o.sec,
		pipe:  pipeline.New(o.parent),
		recv:  recv,
		conns: NewRegistry(),
		tags:  make(map[string]any),
	}, nil
}

func (s *Server) Config() ServerConfig               { return s.cfg }
func (s *Server) Pipeline() *pipeline.Pipeline       { return s.pipe }
func (s *Server) Register(h pipeline.Handler)        { s.pipe.Register(h) }
func (s *Server) Unregister(h pipeline.Handler) bool { return s.pipe.Unregister(h) }

// Listen binds the configured TCP (optionally TLS) and UDP sockets. Either
// may be nil when its address is blank.
func (s *Server) Listen() (net.Listener, net.PacketConn, error) {
	tcpAddr := strings.TrimSpace(s.cfg.TCPAddr)
	udpAddr := strings.TrimSpace(s.cfg.UDPAddr)
	if tcpAddr == "" && udpAddr == "" {
		return nil, nil, ErrNoListener
	}
	var ln net.Listener
	var pc net.PacketConn
	var err error
	if tcpAddr != "" {
		if ln, err = s.listenTCP(tcpAddr); err != nil {
			return nil, nil, err
		}
	}
	if udpAddr != "" {
		if pc, err = net.ListenPacket("udp", udpAddr); err != nil {
			if ln != nil {
				_ = ln.Close()
			}
			return nil, nil, err
		}
	}
	return ln, pc, nil
}

func (s *Server) listenTCP(addr string) (net.Listener, error) {
	if !s.cfg.Session.TLS.Enabled {
		return net.Listen("tcp", addr)
	}
	tlsCfg, err := s.cfg.Session.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", addr, tlsCfg)
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, pc, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, pc)
}

// Serve runs the accept loop, the UDP receive loop and the idle scanner on
// already-bound sockets until ctx ends or Close is called. Either socket may
// be nil. On return every socket and connection is closed and every
// per-connection goroutine has exited.
func (s *Server) Serve(ctx context.Context, ln net.Listener, pc net.PacketConn) error {
	if ln == nil && pc == nil {
		return ErrNoListener
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	l := logging.For("transport")
	g, gctx := errgroup.WithContext(ctx)
	if ln != nil {
		l.Info().Str("addr", ln.Addr().String()).Msg("transport.Server.Serve tcp listening")
		g.Go(func() error {
			defer cancel()
			return s.acceptLoop(gctx, ln)
		})
	}
	if pc != nil {
		l.Info().Str("addr", pc.LocalAddr().String()).Msg("transport.Server.Serve udp listening")
		g.Go(func() error {
			defer cancel()
			return s.udpLoop(gctx, pc)
		})
	}
	g.Go(func() error {
		return s.reapLoop(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if ln != nil {
			_ = ln.Close()
		}
		if pc != nil {
			_ = pc.Close()
		}
		s.closeAll(ErrServerClosed)
		return nil
	})
	err := g.Wait()
	s.active.Wait()
	return err
}

// Close stops a running Serve. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: accept: %w", protocol.ErrTransport, err)
		}
		c := newConn(connParams{
			transport:    TCP,
			role:         pipeline.RoleServer,
			remote:       nc.RemoteAddr(),
			local:        nc.LocalAddr(),
			parent:       s.pipe,
			sec:          s.sec,
			writeTimeout: s.cfg.Session.WriteTimeout,
			wire:         streamWire{c: nc},
			onClose:      s.untrack,
		})
		s.track(c, "accepted")
		if ctx.Err() != nil {
			// closeAll may already have run without seeing c
			c.closeWith(ErrServerClosed)
			return nil
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConn(ctx, c, nc)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, c *Conn, nc net.Conn) {
	var cause error
	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Errorf("%w: panic: %v", protocol.ErrTransport, r)
			l := logging.For("transport")
			l.Error().Str("conn", c.id).Interface("panic", r).Msg("transport.Server.handleConn recovered")
		}
		c.closeWith(cause)
	}()
	l := logging.For("transport")
	l.Debug().Str("conn", c.id).Str("remote", c.remote.String()).Msg("transport.Server.handleConn connected")
	c.pipe.Connected(c)
	cause = readStream(ctx, c, nc, s.cfg.Session.ReadTimeout, s.cfg.Session.Limits(), s.recv)
}

func (s *Server) udpLoop(ctx context.Context, pc net.PacketConn) error {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: udp read: %w", protocol.ErrTransport, err)
		}
		datagram := append([]byte(nil), buf[:n]...)
		c := s.udpPeer(pc, addr)
		if ctx.Err() != nil {
			c.closeWith(ErrServerClosed)
			return nil
		}
		if err := s.handleDatagram(ctx, c, datagram); err != nil {
			observability.RecordFrameError(UDP, protocol.Classify(err).String())
			l := logging.For("transport")
			l.Debug().Str("conn", c.id).Str("remote", addr.String()).Err(err).Msg("transport.Server.udpLoop dropped datagram")
		}
	}
}

// handleDatagram applies the stream checks to one datagram. Any rejection
// drops only this datagram.
func (s *Server) handleDatagram(ctx context.Context, c *Conn, datagram []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", protocol.ErrTransport, r)
		}
	}()
	h, err := frame.DecodeHeader(datagram)
	if err != nil {
		return err
	}
	if err := s.cfg.Session.Limits().Check(h); err != nil {
		return err
	}
	if err := c.pipe.CheckSize(int(h.Length)); err != nil {
		return err
	}
	return c.handleFrame(ctx, datagram, s.recv)
}

// udpPeer returns the connection for addr, creating and announcing it on
// first contact.
func (s *Server) udpPeer(pc net.PacketConn, addr net.Addr) *Conn {
	if c, ok := s.conns.LookupUDP(addr.String()); ok && c.State() == StateActive {
		return c
	}
	c := newConn(connParams{
		transport: UDP,
		role:      pipeline.RoleServer,
		remote:    addr,
		local:     pc.LocalAddr(),
		parent:    s.pipe,
		sec:       s.sec,
		wire:      peerWire{pc: pc, addr: addr},
		onClose:   s.untrack,
	})
	s.track(c, "accepted")
	c.pipe.Connected(c)
	return c
}

func (s *Server) track(c *Conn, event string) {
	s.conns.Add(c)
	observability.RecordConnEvent(c.transport, event)
	observability.SetActiveConns(c.transport, s.conns.Count(c.transport))
}

func (s *Server) untrack(c *Conn) {
	if !s.conns.Remove(c) {
		return
	}
	observability.RecordConnEvent(c.transport, "closed")
	observability.SetActiveConns(c.transport, s.conns.Count(c.transport))
	l := logging.For("transport")
	l.Debug().Str("conn", c.id).Str("transport", c.transport).AnErr("cause", c.cause).Msg("transport.Server.untrack")
}

func (s *Server) closeAll(cause error) {
	for _, c := range s.conns.List() {
		c.closeWith(cause)
	}
}

func (s *Server) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Session.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Reap(now)
		}
	}
}

// Reap closes every connection idle longer than the idle timeout as of now
// and returns how many it closed.
func (s *Server) Reap(now time.Time) int {
	n := 0
	for _, c := range s.conns.List() {
		if now.Sub(c.LastActive()) > s.cfg.Session.IdleTimeout {
			observability.RecordConnEvent(c.transport, "reaped")
			l := logging.For("transport")
			l.Info().Str("conn", c.id).Str("remote", c.remote.String()).Time("last_active", c.LastActive()).Msg("transport.Server.Reap idle connection")
			c.closeWith(ErrIdle)
			n++
		}
	}
	return n
}

func (s *Server) Conn(id string) (*Conn, bool) {
	return s.conns.Get(id)
}

func (s *Server) Conns() []*Conn {
	return s.conns.List()
}

func (s *Server) Len() int {
	return s.conns.Len()
}

func (s *Server) Group(name string) []*Conn {
	return s.conns.Group(name)
}

func (s *Server) Groups() map[string]int {
	return s.conns.Groups()
}

// Disconnect force-closes connection id.
func (s *Server) Disconnect(id string) error {
	c, ok := s.conns.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	observability.RecordConnEvent(c.transport, "forced")
	c.closeWith(ErrForced)
	return nil
}

// Broadcast sends payload to every connection and returns how many sends
// succeeded along with the joined failures.
func (s *Server) Broadcast(ctx context.Context, payload []byte) (int, error) {
	return broadcast(ctx, s.conns.List(), payload)
}

func (s *Server) BroadcastGroup(ctx context.Context, group string, payload []byte) (int, error) {
	return broadcast(ctx, s.conns.Group(group), payload)
}

func broadcast(ctx context.Context, conns []*Conn, payload []byte) (int, error) {
	sent := 0
	var errs []error
	for _, c := range conns {
		if err := c.Send(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.id, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *Server) SetTag(key string, v any) {
	s.tagsMu.Lock()
	defer s.tagsMu.Unlock()
	s.tags[key] = v
}

func (s *Server) Tag(key string) (any, bool) {
	s.tagsMu.RLock()
	defer s.tagsMu.RUnlock()
	v, ok := s.tags[key]
	return v, ok
}

func (s *Server) Tags() map[string]any {
	s.tagsMu.RLock()
	defer s.tagsMu.RUnlock()
	return maps.Clone(s.tags)
}
