package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/value"
)

// Receiver has the same shape as transport.Receiver.
type Receiver interface {
	Receive(ctx context.Context, peer pipeline.Peer, payload []byte)
}

// Dispatcher decodes command envelopes, invokes the registered callback and
// replies on the same connection. Payloads that are not command envelopes go
// to the fallback receiver when one is set.
type Dispatcher struct {
	reg      *Registry
	fallback Receiver
}

func NewDispatcher(fallback Receiver) *Dispatcher {
	return &Dispatcher{reg: NewRegistry(), fallback: fallback}
}

func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

func (d *Dispatcher) Register(name string, fn HandlerFunc) error {
	return d.reg.Register(name, fn)
}

func (d *Dispatcher) Receive(ctx context.Context, peer pipeline.Peer, payload []byte) {
	l := logging.For("command")
	m, err := value.Unmarshal(payload)
	if err != nil {
		l.Debug().Str("conn", peer.ID()).Err(err).Msg("command.Dispatcher.Receive non-map payload")
		d.passThrough(ctx, peer, payload)
		return
	}
	req, ok, err := ParseRequest(m)
	if !ok {
		d.passThrough(ctx, peer, payload)
		return
	}
	if err != nil {
		observability.RecordCommand("", "invalid", 0)
		d.reply(ctx, peer, NewErrorReply(req, err.Error()))
		return
	}

	result, err := d.Dispatch(ctx, peer, req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrUnknownCommand) {
			msg = "unknown command: " + req.Name
		}
		d.reply(ctx, peer, NewErrorReply(req, msg))
		return
	}
	d.reply(ctx, peer, NewReply(req, result))
}

// Dispatch runs the callback for req. Unknown names fail with
// ErrUnknownCommand; a panicking callback fails with an application error.
func (d *Dispatcher) Dispatch(ctx context.Context, peer pipeline.Peer, req Request) (result value.Value, err error) {
	fn, ok := d.reg.Resolve(req.Name)
	if !ok {
		observability.RecordCommand("unknown", "unknown", 0)
		return value.Value{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Name)
	}
	name := normalize(req.Name)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l := logging.For("command")
			l.Error().Str("command", name).Interface("panic", r).Msg("command.Dispatcher.Dispatch callback panic")
			result, err = value.Value{}, fmt.Errorf("%w: command %s panicked: %v", protocol.ErrApplication, name, r)
		}
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		observability.RecordCommand(name, outcome, time.Since(start))
	}()
	return fn(ctx, &Call{Peer: peer, Name: req.Name, Args: req.Args, Payload: req.Payload})
}

func (d *Dispatcher) passThrough(ctx context.Context, peer pipeline.Peer, payload []byte) {
	if d.fallback != nil {
		d.fallback.Receive(ctx, peer, payload)
	}
}

func (d *Dispatcher) reply(ctx context.Context, peer pipeline.Peer, m *value.Map) {
	payload, err := value.Marshal(m)
	if err == nil {
		err = peer.Send(ctx, payload)
	}
	if err != nil {
		l := logging.For("command")
		l.Warn().Str("conn", peer.ID()).Err(err).Msg("command.Dispatcher.reply send failed")
	}
}
