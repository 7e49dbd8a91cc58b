package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/metrics"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

const defaultMaxEntries = 1000

// LoadFunc computes the value for a missing or stale key.
type LoadFunc[V any] func(ctx context.Context) (V, error)

// MemoOptions configure one memoizing cache instance.
//
// WriteTTL evicts an entry a fixed time after it was created or overwritten. AccessTTL evicts an entry
// unused for that long. RefreshAfter (meaningful together with AccessTTL) makes a hit on an entry older
// than RefreshAfter return the cached value immediately and recompute it in the background.
type MemoOptions struct {
	Name         string
	MaxEntries   int
	WriteTTL     time.Duration
	AccessTTL    time.Duration
	RefreshAfter time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

type entry[V any] struct {
	value      V
	createdAt  time.Time
	accessedAt time.Time
}

type flightState struct {
	stale bool
}

// Memo is a bounded, time-expiring key/value store with single-flight loads and optional
// refresh-ahead. The lock guards LRU bookkeeping only; loaders always run outside it.
type Memo[K cachekey.Key, V any] struct {
	opts   MemoOptions
	clock  clock.Clock
	logger *slog.Logger

	mu         sync.Mutex
	lru        *simplelru.LRU[K, *entry[V]]
	inflight   map[K]*flightState
	refreshing map[K]struct{}
	closed     bool

	flight singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMemo constructs a Memo.
func NewMemo[K cachekey.Key, V any](opts MemoOptions) *Memo[K, V] {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Name == "" {
		opts.Name = "memo"
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// NewLRU only fails for non-positive sizes.
	lru, _ := simplelru.NewLRU[K, *entry[V]](opts.MaxEntries, nil)
	ctx, cancel := context.WithCancel(context.Background())
	return &Memo[K, V]{
		opts:       opts,
		clock:      clk,
		logger:     logger.With(slog.String("cache", opts.Name)),
		lru:        lru,
		inflight:   make(map[K]*flightState),
		refreshing: make(map[K]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Name returns the cache name used in metrics and logs.
func (m *Memo[K, V]) Name() string { return m.opts.Name }

// Get returns the cached value for key, invoking load at most once across concurrent callers when the
// key is missing or expired. Loader failures are returned as *utils.ComputationError (utils.ErrNoData is
// returned as is) and are never cached.
func (m *Memo[K, V]) Get(ctx context.Context, key K, load LoadFunc[V]) (V, error) {
	now := m.clock.Now()

	m.mu.Lock()
	if e, ok := m.lru.Get(key); ok {
		if !m.expired(e, now) {
			e.accessedAt = now
			value := e.value
			stale := m.opts.RefreshAfter > 0 && now.Sub(e.createdAt) >= m.opts.RefreshAfter
			m.mu.Unlock()

			if stale {
				metrics.ObserveCacheRequest(m.opts.Name, metrics.CacheStale)
				m.refresh(key, load)
			} else {
				metrics.ObserveCacheRequest(m.opts.Name, metrics.CacheHit)
			}
			return value, nil
		}
		m.lru.Remove(key)
		metrics.ObserveCacheEviction(m.opts.Name, "expired")
	}
	m.mu.Unlock()

	metrics.ObserveCacheRequest(m.opts.Name, metrics.CacheMiss)
	return m.load(ctx, key, load)
}

// GetIfPresent returns the cached value without ever triggering a computation.
func (m *Memo[K, V]) GetIfPresent(key K) (V, bool) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if m.expired(e, now) {
		m.lru.Remove(key)
		metrics.ObserveCacheEviction(m.opts.Name, "expired")
		var zero V
		return zero, false
	}
	e.accessedAt = now
	return e.value, true
}

// Invalidate removes key so that the next caller recomputes it. A load already in flight for key
// still answers its waiters but does not store its result.
func (m *Memo[K, V]) Invalidate(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.inflight[key]; ok {
		state.stale = true
	}
	if m.lru.Remove(key) {
		metrics.ObserveCacheEviction(m.opts.Name, "invalidated")
	}
}

// Put inserts or overwrites key with a value computed out of band.
func (m *Memo[K, V]) Put(key K, value V) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.inflight[key]; ok {
		state.stale = true
	}
	m.store(key, value, now)
}

// EvictExpired removes every expired entry and returns how many were removed.
func (m *Memo[K, V]) EvictExpired() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, key := range m.lru.Keys() {
		e, ok := m.lru.Peek(key)
		if ok && m.expired(e, now) {
			m.lru.Remove(key)
			removed++
		}
	}
	for i := 0; i < removed; i++ {
		metrics.ObserveCacheEviction(m.opts.Name, "expired")
	}
	return removed
}

// Len returns the number of entries currently held, expired or not.
func (m *Memo[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Purge drops every entry.
func (m *Memo[K, V]) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, state := range m.inflight {
		state.stale = true
	}
	m.lru.Purge()
}

// Close stops accepting background refreshes and waits for running ones until ctx is done.
func (m *Memo[K, V]) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cache %s: waiting for refreshes: %w", m.opts.Name, ctx.Err())
	}
}

// load joins or starts the flight for key. The flight keeps the first caller's context values but not
// its cancellation, so one waiter giving up never fails the others; Close cancels it.
func (m *Memo[K, V]) load(ctx context.Context, key K, load LoadFunc[V]) (V, error) {
	ch := m.flight.DoChan(key.String(), func() (interface{}, error) {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stop := context.AfterFunc(m.ctx, cancel)
		defer func() {
			stop()
			cancel()
		}()
		return m.compute(flightCtx, key, load, false)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		value, _ := res.Val.(V)
		return value, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (m *Memo[K, V]) refresh(key K, load LoadFunc[V]) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if _, busy := m.refreshing[key]; busy {
		m.mu.Unlock()
		return
	}
	m.refreshing[key] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.refreshing, key)
			m.mu.Unlock()
		}()

		_, err, _ := m.flight.Do(key.String(), func() (interface{}, error) {
			return m.compute(m.ctx, key, load, true)
		})
		if err != nil {
			metrics.ObserveCacheRefresh(m.opts.Name, metrics.OutcomeError)
			m.logger.Warn("background refresh failed, keeping previous value", slog.String("key", key.String()), slog.Any("error", err))
			return
		}
		metrics.ObserveCacheRefresh(m.opts.Name, metrics.OutcomeSuccess)
	}()
}

// compute runs inside the single-flight group. Unless force is set it first re-checks for an entry
// stored by a flight that finished after the caller's lookup.
func (m *Memo[K, V]) compute(ctx context.Context, key K, load LoadFunc[V], force bool) (V, error) {
	m.mu.Lock()
	if !force {
		if e, ok := m.lru.Peek(key); ok && !m.expired(e, m.clock.Now()) {
			value := e.value
			m.mu.Unlock()
			return value, nil
		}
	}
	state := &flightState{}
	m.inflight[key] = state
	m.mu.Unlock()

	value, err := m.invoke(ctx, load)

	m.mu.Lock()
	delete(m.inflight, key)
	if err == nil && !state.stale {
		m.store(key, value, m.clock.Now())
	}
	m.mu.Unlock()

	switch {
	case err == nil:
		metrics.ObserveCacheLoad(m.opts.Name, metrics.OutcomeSuccess)
	case utils.IsNoData(err):
		metrics.ObserveCacheLoad(m.opts.Name, metrics.OutcomeNoData)
	default:
		metrics.ObserveCacheLoad(m.opts.Name, metrics.OutcomeError)
	}
	return value, err
}

func (m *Memo[K, V]) invoke(ctx context.Context, load LoadFunc[V]) (value V, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero V
			value = zero
			err = utils.NewComputationError(m.opts.Name, fmt.Errorf("loader panic: %v", r))
		}
	}()

	value, err = load(ctx)
	if err != nil && !utils.IsNoData(err) {
		err = utils.NewComputationError(m.opts.Name, err)
	}
	return value, err
}

// store must be called with m.mu held. Existing entries are replaced in place.
func (m *Memo[K, V]) store(key K, value V, now time.Time) {
	if e, ok := m.lru.Peek(key); ok {
		e.value = value
		e.createdAt = now
		e.accessedAt = now
		return
	}
	if evicted := m.lru.Add(key, &entry[V]{value: value, createdAt: now, accessedAt: now}); evicted {
		metrics.ObserveCacheEviction(m.opts.Name, "size")
	}
}

func (m *Memo[K, V]) expired(e *entry[V], now time.Time) bool {
	if m.opts.WriteTTL > 0 && now.Sub(e.createdAt) >= m.opts.WriteTTL {
		return true
	}
	if m.opts.AccessTTL > 0 && now.Sub(e.accessedAt) >= m.opts.AccessTTL {
		return true
	}
	return false
}
