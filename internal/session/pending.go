package session

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/netcore/internal/protocol/value"
)

var ErrCallAbandoned = errors.New("session: call abandoned")

type CallResult struct {
	Reply *value.Map
	Err   error
}

// PendingCall tracks one request awaiting a reply with a matching id.
type PendingCall struct {
	ID      uint64
	Command string

	done chan CallResult
}

// Wait blocks until the call resolves or ctx ends.
func (p *PendingCall) Wait(ctx context.Context) (*value.Map, error) {
	select {
	case res := <-p.done:
		return res.Reply, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Calls stores pending calls by id. Ids start at 1 and are never reused
// within one table.
type Calls struct {
	mu    sync.RWMutex
	next  uint64
	items map[uint64]*PendingCall
}

func NewCalls() *Calls {
	return &Calls{items: make(map[uint64]*PendingCall)}
}

func (c *Calls) Open(command string) *PendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	call := &PendingCall{
		ID:      c.next,
		Command: command,
		done:    make(chan CallResult, 1),
	}
	c.items[call.ID] = call
	return call
}

// Resolve completes call id with reply. It reports false for unknown or
// already completed ids.
func (c *Calls) Resolve(id uint64, reply *value.Map) bool {
	return c.finish(id, CallResult{Reply: reply})
}

func (c *Calls) finish(id uint64, res CallResult) bool {
	c.mu.Lock()
	call, ok := c.items[id]
	delete(c.items, id)
	c.mu.Unlock()
	if !ok {
		return false
	}
	call.done <- res
	return true
}

func (c *Calls) Remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
}

func (c *Calls) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// FailAll completes every pending call with err, or ErrCallAbandoned when
// err is nil.
func (c *Calls) FailAll(err error) {
	if err == nil {
		err = ErrCallAbandoned
	}
	c.mu.Lock()
	items := c.items
	c.items = make(map[uint64]*PendingCall)
	c.mu.Unlock()
	for _, call := range items {
		call.done <- CallResult{Err: err}
	}
}
