package workers

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize bounds concurrent backend calls per identity when no size is configured.
const DefaultPoolSize = 10

// Pool bounds the number of tasks running against one backend identity.
type Pool struct {
	name string
	size int
	sem  *semaphore.Weighted
}

// NewPool creates a pool with size slots.
func NewPool(name string, size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{name: name, size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Name returns the backend identity the pool serves.
func (p *Pool) Name() string { return p.name }

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Run waits for a free slot, then executes fn. It returns ctx's error when no slot frees up in time.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker pool %s: %w", p.name, err)
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Registry hands out one Pool per backend identity, created lazily and shared by every request.
type Registry struct {
	size int

	mu    sync.Mutex
	pools map[string]*Pool
}

// NewRegistry creates a registry whose pools have size slots each.
func NewRegistry(size int) *Registry {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Registry{size: size, pools: make(map[string]*Pool)}
}

// For returns the pool for identity.
func (r *Registry) For(identity string) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[identity]; ok {
		return p
	}
	p := NewPool(identity, r.size)
	r.pools[identity] = p
	return p
}

// Len returns the number of pools created so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}
