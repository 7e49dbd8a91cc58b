package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-reliability/internal/graph"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

func graphBackend() *fakeBackend {
	b := newFakeBackend()
	b.events = []models.Event{
		{ID: "e1", Type: "Logged Error", Class: "Cart", Method: "add", Application: "shop", Tiers: []string{"Web"}},
		{ID: "e2", Type: "Exception", Class: "Payment", Method: "charge", Application: "billing", Tiers: []string{"Backend"}},
		{ID: "e3", Type: "Logged Error", Class: "Cart", Method: "remove", Application: "shop"},
	}
	t0 := testWindowStart
	b.points = []models.GraphPoint{
		{Time: t0, Contributors: []models.Contributor{{EventID: "e1", Hits: 10}, {EventID: "e2", Hits: 2}}},
		{Time: t0.Add(time.Hour), Contributors: []models.Contributor{{EventID: "e3", Hits: 5}, {EventID: "missing", Hits: 99}}},
	}
	return b
}

func seriesKeys(series []graph.Series) []string {
	out := make([]string, 0, len(series))
	for _, s := range series {
		out = append(out, s.Key)
	}
	return out
}

func TestGraphGroupsByApplicationAndLimitsCount(t *testing.T) {
	runner := NewGraphRunner(testDeps(graphBackend(), scenarioSettings()))

	res, err := runner.Graph(context.Background(), models.GraphRequest{
		Filter:    models.QueryFilter{ServiceID: "S1", ViewName: "All Events"},
		GroupBy:   models.GroupByApplication,
		LimitType: models.LimitCount,
		Limit:     1,
	})
	require.NoError(t, err)
	require.Len(t, res.Series, 1)
	assert.Equal(t, "shop", res.Series[0].Key)
	assert.Equal(t, 15.0, res.Series[0].Volume)
	require.Len(t, res.Series[0].Points, 2)
	assert.Equal(t, 10.0, res.Series[0].Points[0].Value)
	assert.Equal(t, 5.0, res.Series[0].Points[1].Value)
	assert.Equal(t, 60, res.Window.Minutes)
	assert.Equal(t, "1h", res.Window.Label)
}

func TestGraphWindowFollowsRequestedTimeFilter(t *testing.T) {
	runner := NewGraphRunner(testDeps(graphBackend(), scenarioSettings()))

	res, err := runner.Graph(context.Background(), models.GraphRequest{
		Filter:  models.QueryFilter{ServiceID: "S1", ViewName: "All Events", TimeFilter: "last 2h"},
		GroupBy: models.GroupByApplication,
	})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Window.Minutes, "two hourly points still describe the full two hour window")
	assert.Equal(t, "2h", res.Window.Label)
	assert.Equal(t, testWindowStart.Add(24*time.Hour), res.Window.To)
	assert.Equal(t, testWindowStart.Add(22*time.Hour), res.Window.From)
}

func TestGraphGroupsByTierWithFallback(t *testing.T) {
	runner := NewGraphRunner(testDeps(graphBackend(), scenarioSettings()))

	res, err := runner.Graph(context.Background(), models.GraphRequest{
		Filter:  models.QueryFilter{ServiceID: "S1"},
		GroupBy: models.GroupByTier,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Web", "Other", "Backend"}, seriesKeys(res.Series))
}

func TestGraphByPercentage(t *testing.T) {
	runner := NewGraphRunner(testDeps(graphBackend(), scenarioSettings()))

	res, err := runner.Graph(context.Background(), models.GraphRequest{
		Filter:    models.QueryFilter{ServiceID: "S1"},
		GroupBy:   models.GroupByType,
		LimitType: models.LimitPercentage,
		Limit:     80,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Logged Error"}, seriesKeys(res.Series))
}

func TestGraphCostWeighted(t *testing.T) {
	settings := scenarioSettings()
	doc := settings["S1"]
	doc.CostFactors = map[string]float64{"Exception": 20, "default": 1}
	settings["S1"] = doc
	runner := NewGraphRunner(testDeps(graphBackend(), settings))

	res, err := runner.Graph(context.Background(), models.GraphRequest{
		Filter:    models.QueryFilter{ServiceID: "S1"},
		Cost:      true,
		LimitType: models.LimitPercentage,
		Limit:     50,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Exception - Payment.charge", graph.CombinedKey}, seriesKeys(res.Series))
	assert.Equal(t, 40.0, res.Series[0].Volume)
	assert.Equal(t, 15.0, res.Series[1].Volume)
}

func TestGraphWithoutPointsIsNoData(t *testing.T) {
	backend := graphBackend()
	backend.points = nil
	runner := NewGraphRunner(testDeps(backend, scenarioSettings()))

	_, err := runner.Graph(context.Background(), models.GraphRequest{Filter: models.QueryFilter{ServiceID: "S1"}})
	assert.True(t, utils.IsNoData(err))
}
