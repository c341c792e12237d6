package pipeline

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/danmuck/netcore/internal/logging"
	"github.com/danmuck/netcore/internal/observability"
	"github.com/danmuck/netcore/internal/protocol"
)

var ErrPacketTooLarge = fmt.Errorf("%w: pipeline: packet exceeds handler limit", protocol.ErrFraming)

type entry struct {
	h   Handler
	seq uint64
}

// Pipeline is an ordered handler list. Runs iterate a snapshot taken under
// the read lock, so hooks may register or unregister handlers freely.
type Pipeline struct {
	parent *Pipeline

	mu      sync.RWMutex
	entries []entry
	seq     uint64
}

// New returns an empty pipeline. Handlers of parent run alongside this
// pipeline's own, ordered by priority with parent handlers first on ties.
func New(parent *Pipeline) *Pipeline {
	return &Pipeline{parent: parent}
}

func (p *Pipeline) Register(h Handler) {
	if h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	e := entry{h: h, seq: p.seq}
	i, _ := slices.BinarySearchFunc(p.entries, e, func(a, b entry) int {
		if c := cmp.Compare(a.h.Priority(), b.h.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	p.entries = slices.Insert(p.entries, i, e)
}

// Unregister removes h by identity and reports whether it was present.
func (p *Pipeline) Unregister(h Handler) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.h == h {
			p.entries = slices.Delete(p.entries, i, i+1)
			return true
		}
	}
	return false
}

// Len counts this pipeline's own handlers.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Handlers returns the effective run order, parent included.
func (p *Pipeline) Handlers() []Handler {
	return p.snapshot()
}

func (p *Pipeline) own() []Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Handler, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.h
	}
	return out
}

func (p *Pipeline) snapshot() []Handler {
	if p == nil {
		return nil
	}
	mine := p.own()
	if p.parent == nil {
		return mine
	}
	all := append(p.parent.snapshot(), mine...)
	slices.SortStableFunc(all, func(a, b Handler) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return all
}

// CheckSize fails when any handler's limit is below the declared length.
func (p *Pipeline) CheckSize(length int) error {
	for _, h := range p.snapshot() {
		if limit := h.MaxPacketSize(); limit > 0 && length > limit {
			return fmt.Errorf("%w: declared %d, limit %d", ErrPacketTooLarge, length, limit)
		}
	}
	return nil
}

func (p *Pipeline) RawReceive(peer Peer, frame []byte) ([]byte, Verdict) {
	return run(p, "raw_receive", peer, frame, RawReceiver.OnRawReceive)
}

func (p *Pipeline) ProcessedReceive(peer Peer, payload []byte) ([]byte, Verdict) {
	return run(p, "receive", peer, payload, ProcessedReceiver.OnReceive)
}

func (p *Pipeline) ProcessedSend(peer Peer, payload []byte) ([]byte, Verdict) {
	return run(p, "send", peer, payload, ProcessedSender.OnSend)
}

func (p *Pipeline) RawSend(peer Peer, frame []byte) ([]byte, Verdict) {
	return run(p, "raw_send", peer, frame, RawSender.OnRawSend)
}

func (p *Pipeline) Connected(peer Peer) {
	for _, h := range p.snapshot() {
		if c, ok := h.(Connector); ok {
			guard("connect", peer, func() { c.OnConnect(peer) })
		}
	}
}

func (p *Pipeline) Disconnected(peer Peer, cause error) {
	for _, h := range p.snapshot() {
		if d, ok := h.(Disconnector); ok {
			guard("disconnect", peer, func() { d.OnDisconnect(peer, cause) })
		}
	}
}

func run[C any](p *Pipeline, stage string, peer Peer, data []byte, call func(C, Peer, []byte) ([]byte, Verdict)) ([]byte, Verdict) {
	for _, h := range p.snapshot() {
		c, ok := h.(C)
		if !ok {
			continue
		}
		verdict := Drop
		guard(stage, peer, func() {
			data, verdict = call(c, peer, data)
		})
		if verdict == Drop {
			return nil, Drop
		}
	}
	return data, Continue
}

// guard contains a hook panic to the current packet.
func guard(stage string, peer Peer, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordHandlerPanic(stage)
			l := logging.For("pipeline")
			ev := l.Error().Str("stage", stage).Interface("panic", r)
			if peer != nil {
				ev = ev.Str("conn", peer.ID())
			}
			ev.Msg("pipeline.guard handler panic")
		}
	}()
	fn()
}
