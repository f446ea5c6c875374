package client

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// pool is the set of Channels backing one logical service name.
type pool struct {
	channels []*Channel
	next     atomic.Uint64
}

// Router maps a logical service name to a pool of Channels, the client side
// of the endpoint lookup (`GetClient(name) Channel`).
type Router struct {
	mu    sync.RWMutex
	pools map[string]*pool
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{pools: make(map[string]*pool)}
}

// Register adds channels to the pool for service, creating the pool if this
// is its first registration.
func (r *Router) Register(service string, channels ...*Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[service]
	if !ok {
		p = &pool{}
		r.pools[service] = p
	}
	p.channels = append(p.channels, channels...)
}

// Pick round-robins among service's registered channels, regardless of
// connection state — a disconnected channel still fails fast from
// SendReceive rather than Pick silently routing around it, so callers see
// the real error instead of a pool that appears smaller than configured.
func (r *Router) Pick(service string) (*Channel, error) {
	r.mu.RLock()
	p, ok := r.pools[service]
	r.mu.RUnlock()
	if !ok || len(p.channels) == 0 {
		return nil, fmt.Errorf("client: no channels registered for service %q", service)
	}
	idx := p.next.Add(1) - 1
	return p.channels[idx%uint64(len(p.channels))], nil
}

// Close stops every registered channel.
func (r *Router) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, p := range r.pools {
		for _, ch := range p.channels {
			if err := ch.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
