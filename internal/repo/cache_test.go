package repo

import (
	"context"
	"sync"
	"time"

	"github.com/miradorstack/mirador-reliability/internal/cache"
)

// countingProvider is an in-memory cache.Provider that records how the client uses it.
type countingProvider struct {
	mu     sync.Mutex
	store  map[string][]byte
	ttls   map[string]time.Duration
	gets   int
	misses int
	sets   int
	dels   int
}

func newCountingProvider() *countingProvider {
	return &countingProvider{store: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (p *countingProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	value, ok := p.store[key]
	if !ok {
		p.misses++
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

func (p *countingProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets++
	p.store[key] = append([]byte(nil), value...)
	p.ttls[key] = ttl
	return nil
}

func (p *countingProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dels++
	delete(p.store, key)
	delete(p.ttls, key)
	return nil
}

func (p *countingProvider) Close() error { return nil }

// poison overwrites every stored value with bytes that do not decode.
func (p *countingProvider) poison() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key := range p.store {
		p.store[key] = []byte("{not json")
	}
}

func (p *countingProvider) counts() (gets, misses, sets, dels int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets, p.misses, p.sets, p.dels
}
