package engine

import (
	"context"

	"github.com/miradorstack/mirador-reliability/internal/cache"
	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/models"
)

// Backend is the remote analytics collaborator. Every call may be slow or fail; results are memoized
// by the engine, not by implementations.
type Backend interface {
	cachekey.GroupExpander

	Identity() string
	ResolveView(ctx context.Context, serviceID, viewName string) (models.View, error)
	ComputeRegressionWindow(ctx context.Context, serviceID, timeFilter string, baselineMinutes int) (models.RegressionWindow, error)
	ComputeRegression(ctx context.Context, view models.View, filter models.QueryFilter, window models.RegressionWindow, settings models.RegressionSettings, newOnly bool) (models.RegressionOutput, error)
	FetchEventVolumeGraph(ctx context.Context, view models.View, filter models.QueryFilter, volumeType string, pointsWanted int) ([]models.GraphPoint, error)
	FetchEvents(ctx context.Context, view models.View, filter models.QueryFilter) ([]models.Event, error)
	FetchTransactions(ctx context.Context, view models.View, filter models.QueryFilter) ([]models.TransactionData, error)
	ListDeployments(ctx context.Context, serviceID string) ([]models.Deployment, error)
}

// SettingsSource supplies per-service settings documents.
type SettingsSource interface {
	Load(ctx context.Context, serviceID string) (models.ServiceSettings, error)
}

// dataSource routes backend reads through the memo caches.
type dataSource struct {
	backend Backend
	caches  *cache.Service
	keys    cachekey.Builder
}

func newDataSource(backend Backend, caches *cache.Service) *dataSource {
	return &dataSource{
		backend: backend,
		caches:  caches,
		keys:    cachekey.Builder{Endpoint: backend.Identity(), Expander: backend},
	}
}

func (d *dataSource) view(ctx context.Context, serviceID, viewName string) (models.View, error) {
	return d.caches.Views.Get(ctx, d.keys.View(serviceID, viewName), func(ctx context.Context) (models.View, error) {
		return d.backend.ResolveView(ctx, serviceID, viewName)
	})
}

func (d *dataSource) window(ctx context.Context, f models.QueryFilter, baselineMinutes int) (models.RegressionWindow, error) {
	key := d.keys.RegressionWindow(f.ServiceID, f.TimeFilter, baselineMinutes)
	return d.caches.RegressionWindows.Get(ctx, key, func(ctx context.Context) (models.RegressionWindow, error) {
		return d.backend.ComputeRegressionWindow(ctx, f.ServiceID, f.TimeFilter, baselineMinutes)
	})
}

func (d *dataSource) events(ctx context.Context, f models.QueryFilter) ([]models.Event, error) {
	key, err := d.keys.Events(ctx, f)
	if err != nil {
		return nil, err
	}
	return d.caches.Events.Get(ctx, key, func(ctx context.Context) ([]models.Event, error) {
		view, err := d.view(ctx, f.ServiceID, f.ViewName)
		if err != nil {
			return nil, err
		}
		return d.backend.FetchEvents(ctx, view, f)
	})
}

func (d *dataSource) graph(ctx context.Context, f models.QueryFilter, volumeType string, pointsWanted int) ([]models.GraphPoint, error) {
	key, err := d.keys.Graph(ctx, f, volumeType, pointsWanted)
	if err != nil {
		return nil, err
	}
	return d.caches.Graphs.Get(ctx, key, func(ctx context.Context) ([]models.GraphPoint, error) {
		view, err := d.view(ctx, f.ServiceID, f.ViewName)
		if err != nil {
			return nil, err
		}
		return d.backend.FetchEventVolumeGraph(ctx, view, f, volumeType, pointsWanted)
	})
}

func (d *dataSource) transactions(ctx context.Context, f models.QueryFilter) ([]models.TransactionData, error) {
	key, err := d.keys.Transactions(ctx, f)
	if err != nil {
		return nil, err
	}
	return d.caches.Transactions.Get(ctx, key, func(ctx context.Context) ([]models.TransactionData, error) {
		view, err := d.view(ctx, f.ServiceID, f.ViewName)
		if err != nil {
			return nil, err
		}
		return d.backend.FetchTransactions(ctx, view, f)
	})
}
