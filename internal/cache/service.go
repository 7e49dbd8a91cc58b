package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/models"
)

// MemoConfig sizes and expires one memo.
type MemoConfig struct {
	MaxEntries   int
	WriteTTL     time.Duration
	AccessTTL    time.Duration
	RefreshAfter time.Duration
}

// ServiceConfig holds the per-kind memo settings.
type ServiceConfig struct {
	Views             MemoConfig
	Events            MemoConfig
	Graphs            MemoConfig
	Transactions      MemoConfig
	RegressionWindows MemoConfig
	Reports           MemoConfig
	Settings          MemoConfig
	JanitorInterval   time.Duration
}

// DefaultServiceConfig returns the production defaults. Analytics results expire two minutes after
// they were computed, settings after twenty seconds. Regression windows stay while used and are
// refreshed in the background once a minute old.
func DefaultServiceConfig() ServiceConfig {
	analytics := MemoConfig{MaxEntries: 500, WriteTTL: 2 * time.Minute}
	return ServiceConfig{
		Views:             MemoConfig{MaxEntries: 1000, WriteTTL: 2 * time.Minute},
		Events:            analytics,
		Graphs:            analytics,
		Transactions:      analytics,
		RegressionWindows: MemoConfig{MaxEntries: 1000, AccessTTL: 10 * time.Minute, RefreshAfter: time.Minute},
		Reports:           MemoConfig{MaxEntries: 2000, WriteTTL: 2 * time.Minute},
		Settings:          MemoConfig{MaxEntries: 1000, WriteTTL: 20 * time.Second},
		JanitorInterval:   time.Minute,
	}
}

type lifecycle interface {
	Name() string
	EvictExpired() int
	Close(ctx context.Context) error
}

// Service owns one memo per cached result kind. It is shared by every request handler.
type Service struct {
	Views             *Memo[cachekey.View, models.View]
	Events            *Memo[cachekey.Events, []models.Event]
	Graphs            *Memo[cachekey.Graph, []models.GraphPoint]
	Transactions      *Memo[cachekey.Transactions, []models.TransactionData]
	RegressionWindows *Memo[cachekey.RegressionWindow, models.RegressionWindow]
	Reports           *Memo[cachekey.Report, models.RegressionOutput]
	Settings          *Memo[cachekey.Settings, models.ServiceSettings]

	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	all      []lifecycle

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds every memo. A nil clock uses wall time.
func NewService(cfg ServiceConfig, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := func(name string, c MemoConfig) MemoOptions {
		return MemoOptions{
			Name:         name,
			MaxEntries:   c.MaxEntries,
			WriteTTL:     c.WriteTTL,
			AccessTTL:    c.AccessTTL,
			RefreshAfter: c.RefreshAfter,
			Clock:        clk,
			Logger:       logger,
		}
	}

	s := &Service{
		Views:             NewMemo[cachekey.View, models.View](opts("views", cfg.Views)),
		Events:            NewMemo[cachekey.Events, []models.Event](opts("events", cfg.Events)),
		Graphs:            NewMemo[cachekey.Graph, []models.GraphPoint](opts("graphs", cfg.Graphs)),
		Transactions:      NewMemo[cachekey.Transactions, []models.TransactionData](opts("transactions", cfg.Transactions)),
		RegressionWindows: NewMemo[cachekey.RegressionWindow, models.RegressionWindow](opts("regression_windows", cfg.RegressionWindows)),
		Reports:           NewMemo[cachekey.Report, models.RegressionOutput](opts("reports", cfg.Reports)),
		Settings:          NewMemo[cachekey.Settings, models.ServiceSettings](opts("settings", cfg.Settings)),
		clock:             clk,
		logger:            logger,
		interval:          cfg.JanitorInterval,
	}
	s.all = []lifecycle{s.Views, s.Events, s.Graphs, s.Transactions, s.RegressionWindows, s.Reports, s.Settings}
	return s
}

// Init starts the janitor that sweeps expired entries. Calling Init twice is a no-op.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.interval <= 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	ticker := s.clock.Ticker(s.interval)

	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
	return nil
}

// Sweep evicts expired entries from every memo.
func (s *Service) Sweep() int {
	total := 0
	for _, m := range s.all {
		if n := m.EvictExpired(); n > 0 {
			s.logger.Debug("evicted expired cache entries", slog.String("cache", m.Name()), slog.Int("count", n))
			total += n
		}
	}
	return total
}

// Shutdown stops the janitor and waits for background refreshes to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var errs []error
	for _, m := range s.all {
		if err := m.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
