package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miradorstack/mirador-reliability/internal/graph"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

const (
	defaultVolumeType   = "hits"
	defaultPointsWanted = 24
	defaultGraphLimit   = 10
)

// GraphResult is a bounded set of time-aligned series for one graph request.
type GraphResult struct {
	Series []graph.Series
	Window models.TimeWindow
}

// GraphRunner builds volume and cost graphs from backend graph points.
type GraphRunner struct {
	data     *dataSource
	settings SettingsSource
	now      func() time.Time
	logger   *slog.Logger
}

// NewGraphRunner constructs a GraphRunner sharing the orchestrator's collaborators.
func NewGraphRunner(deps Deps) *GraphRunner {
	deps = deps.withDefaults()
	return &GraphRunner{
		data:     newDataSource(deps.Backend, deps.Caches),
		settings: deps.Settings,
		now:      deps.Clock.Now,
		logger:   deps.Logger,
	}
}

// Graph fetches the volume graph for req and reduces it to the requested number (or share) of series.
func (g *GraphRunner) Graph(ctx context.Context, req models.GraphRequest) (GraphResult, error) {
	if strings.TrimSpace(req.Filter.ServiceID) == "" {
		return GraphResult{}, &utils.ConfigurationError{Service: "graph", Field: "service_id"}
	}
	volumeType := req.VolumeType
	if volumeType == "" {
		volumeType = defaultVolumeType
	}
	points := req.PointsWanted
	if points <= 0 {
		points = defaultPointsWanted
	}

	graphPoints, err := g.data.graph(ctx, req.Filter, volumeType, points)
	if err != nil {
		return GraphResult{}, fmt.Errorf("fetch volume graph: %w", err)
	}
	events, err := g.data.events(ctx, req.Filter)
	if err != nil {
		return GraphResult{}, fmt.Errorf("fetch graph events: %w", err)
	}
	byID := make(map[string]models.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	var series []graph.Series
	if req.Cost {
		doc, err := g.settings.Load(ctx, req.Filter.ServiceID)
		if err != nil {
			return GraphResult{}, fmt.Errorf("load settings: %w", err)
		}
		pct := req.Limit
		if req.LimitType != models.LimitPercentage {
			pct = 100
		}
		series = graph.CostWeighted(graphPoints, byID, doc.CostFactors, pct)
	} else {
		series = reduce(group(graphPoints, byID, req.GroupBy), req.LimitType, req.Limit)
	}

	g.logger.Debug("graph built",
		slog.String("service_id", req.Filter.ServiceID),
		slog.String("group_by", string(req.GroupBy)),
		slog.Int("points", len(graphPoints)),
		slog.Int("series", len(series)),
	)
	return GraphResult{Series: series, Window: graphWindow(graphPoints, req.Filter.TimeFilter, g.now())}, nil
}

func group(points []models.GraphPoint, events map[string]models.Event, by models.GroupBy) []graph.Series {
	b := graph.NewBuilder()
	for _, p := range points {
		b.Observe(p.Time)
		for _, c := range p.Contributors {
			e, ok := events[c.EventID]
			if !ok {
				continue
			}
			for _, key := range groupKeys(e, by) {
				b.Add(key, p.Time, float64(c.Hits))
			}
		}
	}
	return b.Series()
}

func groupKeys(e models.Event, by models.GroupBy) []string {
	switch by {
	case models.GroupByTier:
		if len(e.Tiers) == 0 {
			return []string{"Other"}
		}
		return e.Tiers
	case models.GroupByType:
		return []string{firstNonBlank(e.Type, "Other")}
	case models.GroupByApplication:
		return []string{firstNonBlank(e.Application, "Other")}
	default:
		return []string{firstNonBlank(e.Class, e.Name)}
	}
}

func reduce(series []graph.Series, limitType models.LimitType, limit float64) []graph.Series {
	if limitType == models.LimitPercentage {
		return graph.ByPercentage(series, limit)
	}
	n := int(limit)
	if n <= 0 {
		n = defaultGraphLimit
	}
	return graph.TopN(series, n)
}

// graphWindow reports the requested window when the time filter parses, so the label matches what was
// asked for. Otherwise it falls back to the span of the returned points.
func graphWindow(points []models.GraphPoint, timeFilter string, now time.Time) models.TimeWindow {
	var w models.TimeWindow
	if tf, err := utils.ParseTimeFilter(timeFilter); err == nil {
		w.From, w.To = tf.Window(now)
		w.Minutes = tf.Minutes()
	} else if len(points) > 0 {
		w.From, w.To = points[0].Time, points[len(points)-1].Time
		w.Minutes = int(utils.DurationMinutes(w.From, w.To))
	}
	w.Label = utils.DurationLabel(w.Minutes)
	return w
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
