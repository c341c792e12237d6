package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/netcore/internal/pipeline"
	"github.com/danmuck/netcore/internal/protocol"
	"github.com/danmuck/netcore/internal/protocol/value"
)

var (
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", protocol.ErrApplication)
	ErrInvalidName    = errors.New("command: name is required")
	ErrNilHandler     = errors.New("command: handler is nil")
)

// Call is what a command callback sees.
type Call struct {
	Peer    pipeline.Peer
	Name    string
	Args    []value.Value
	Payload *value.Map
}

// HandlerFunc returns the result value sent back as {result}. A returned
// error is sent back as {error} instead.
type HandlerFunc func(ctx context.Context, call *Call) (value.Value, error)

// Registry maps case-insensitive command names to callbacks. Registering an
// existing name replaces its callback.
type Registry struct {
	mu    sync.RWMutex
	items map[string]entry
}

type entry struct {
	name string
	fn   HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]entry)}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, fn HandlerFunc) error {
	key := normalize(name)
	if key == "" {
		return ErrInvalidName
	}
	if fn == nil {
		return ErrNilHandler
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = entry{name: strings.TrimSpace(name), fn: fn}
	return nil
}

func (r *Registry) Unregister(name string) bool {
	key := normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		return false
	}
	delete(r.items, key)
	return true
}

func (r *Registry) Resolve(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[normalize(name)]
	return e.fn, ok
}

// Names returns registered names as given at registration, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for _, e := range r.items {
		out = append(out, e.name)
	}
	sort.Strings(out)
	return out
}
