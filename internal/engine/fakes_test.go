package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/miradorstack/mirador-reliability/internal/cache"
	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
	"github.com/miradorstack/mirador-reliability/internal/workers"
)

var testWindowStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu sync.Mutex

	regressions  map[string]models.RegressionOutput
	regressErrs  map[string]error
	transactions map[string][]models.TransactionData
	events       []models.Event
	eventsErr    error
	points       []models.GraphPoint
	deployments  []models.Deployment

	regressionCalls  int
	transactionCalls int
	eventCalls       int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		regressions:  make(map[string]models.RegressionOutput),
		regressErrs:  make(map[string]error),
		transactions: make(map[string][]models.TransactionData),
	}
}

func narrowedKey(f models.QueryFilter) string {
	switch {
	case len(f.Types) == 1:
		return f.Types[0]
	case len(f.Deployments) == 1:
		return f.Deployments[0]
	case len(f.Applications) == 1:
		return f.Applications[0]
	}
	return ""
}

func (f *fakeBackend) Identity() string { return "fake-analytics" }

func (f *fakeBackend) Expand(_ context.Context, _ string, _ cachekey.SetKind, values []string) ([]string, error) {
	return values, nil
}

func (f *fakeBackend) ResolveView(_ context.Context, _ string, viewName string) (models.View, error) {
	return models.View{ID: "P1", Name: viewName}, nil
}

func (f *fakeBackend) ComputeRegressionWindow(_ context.Context, _ string, _ string, baselineMinutes int) (models.RegressionWindow, error) {
	return models.RegressionWindow{
		ActiveStart:     testWindowStart,
		ActiveEnd:       testWindowStart.Add(24 * time.Hour),
		ActiveMinutes:   1440,
		BaselineMinutes: baselineMinutes,
	}, nil
}

func (f *fakeBackend) ComputeRegression(_ context.Context, _ models.View, filter models.QueryFilter, window models.RegressionWindow, _ models.RegressionSettings, _ bool) (models.RegressionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regressionCalls++
	key := narrowedKey(filter)
	if err := f.regressErrs[key]; err != nil {
		return models.RegressionOutput{}, err
	}
	out := f.regressions[key]
	out.Window = window
	return out, nil
}

func (f *fakeBackend) FetchEventVolumeGraph(context.Context, models.View, models.QueryFilter, string, int) ([]models.GraphPoint, error) {
	if len(f.points) == 0 {
		return nil, fmt.Errorf("graph: %w", utils.ErrNoData)
	}
	return f.points, nil
}

func (f *fakeBackend) FetchEvents(context.Context, models.View, models.QueryFilter) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventCalls++
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeBackend) FetchTransactions(_ context.Context, _ models.View, filter models.QueryFilter) ([]models.TransactionData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactionCalls++
	return f.transactions[narrowedKey(filter)], nil
}

func (f *fakeBackend) ListDeployments(context.Context, string) ([]models.Deployment, error) {
	return f.deployments, nil
}

func (f *fakeBackend) calls() (regression, transactions int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regressionCalls, f.transactionCalls
}

type fakeSettings map[string]models.ServiceSettings

func (s fakeSettings) Load(_ context.Context, serviceID string) (models.ServiceSettings, error) {
	doc, ok := s[serviceID]
	if !ok {
		return models.ServiceSettings{}, fmt.Errorf("settings %s: %w", serviceID, utils.ErrNoData)
	}
	return doc, nil
}

func scenarioSettings() fakeSettings {
	w := scenarioWeights()
	return fakeSettings{"S1": {
		ServiceID: "S1",
		Regression: models.RegressionSettings{
			ActiveTimespanMinutes:   1440,
			BaselineTimespanMinutes: 10080,
		},
		Reliability: models.ReliabilitySettings{
			Weights:    &w,
			Thresholds: models.ScoreThresholds{Warning: 85, Critical: 70},
			Postfixes:  models.StatusPostfixes{Warning: " (warning)", Critical: " (critical)"},
		},
		Slowdown: models.SlowdownSettings{OverAvgSlowingPercentage: 30, OverAvgCriticalPercentage: 60},
		KeyTiers: []string{"Backend"},
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps(backend *fakeBackend, settings SettingsSource) Deps {
	clk := clock.NewMock()
	clk.Set(testWindowStart.Add(24 * time.Hour))
	logger := discardLogger()
	return Deps{
		Backend:  backend,
		Caches:   cache.NewService(cache.DefaultServiceConfig(), clk, logger),
		Settings: settings,
		Pools:    workers.NewRegistry(4),
		Clock:    clk,
		Logger:   logger,
	}
}
