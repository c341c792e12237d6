package transport

import (
	"sort"
	"sync"
)

// Registry tracks live connections by id, and UDP peers by remote address.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Conn
	byAddr map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Conn),
		byAddr: make(map[string]*Conn),
	}
}

func addrKey(transport, addr string) string {
	return transport + "|" + addr
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.id] = c
	if c.transport == UDP && c.remote != nil {
		r.byAddr[addrKey(UDP, c.remote.String())] = c
	}
}

// Remove drops c and reports whether it was present.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.id]; !ok {
		return false
	}
	delete(r.byID, c.id)
	if c.transport == UDP && c.remote != nil {
		key := addrKey(UDP, c.remote.String())
		if r.byAddr[key] == c {
			delete(r.byAddr, key)
		}
	}
	return true
}

func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

func (r *Registry) LookupUDP(addr string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byAddr[addrKey(UDP, addr)]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Count returns the number of connections using transport.
func (r *Registry) Count(transport string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.byID {
		if c.transport == transport {
			n++
		}
	}
	return n
}

// List returns a snapshot ordered by creation time.
func (r *Registry) List() []*Conn {
	r.mu.RLock()
	out := make([]*Conn, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].id < out[j].id
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

func (r *Registry) Group(name string) []*Conn {
	all := r.List()
	out := all[:0]
	for _, c := range all {
		if c.Group() == name {
			out = append(out, c)
		}
	}
	return out
}

// Groups returns connection counts per group.
func (r *Registry) Groups() map[string]int {
	out := make(map[string]int)
	for _, c := range r.List() {
		out[c.Group()]++
	}
	return out
}
