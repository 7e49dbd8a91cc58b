package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-reliability/internal/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seriesWithVolumes(volumes ...float64) []Series {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	out := make([]Series, len(volumes))
	for i, v := range volumes {
		out[i] = Series{Key: names[i], Volume: v}
	}
	return out
}

func keys(series []Series) []string {
	out := make([]string, len(series))
	for i, s := range series {
		out[i] = s.Key
	}
	return out
}

func TestTopN(t *testing.T) {
	in := seriesWithVolumes(10, 50, 30, 5, 40)
	assert.Equal(t, []string{"b", "e", "c"}, keys(TopN(in, 3)))
	assert.Equal(t, []string{"b", "e", "c", "a", "d"}, keys(TopN(in, 10)))
	assert.Empty(t, TopN(in, 0))
	assert.Equal(t, "a", in[0].Key, "input must not be reordered")
}

func TestTopNTiesKeepInsertionOrder(t *testing.T) {
	in := seriesWithVolumes(5, 7, 5, 7)
	assert.Equal(t, []string{"b", "d", "a"}, keys(TopN(in, 3)))
}

func TestByPercentageReturnsSmallestCoveringPrefix(t *testing.T) {
	in := seriesWithVolumes(10, 50, 30, 5, 5)

	// 80% of 100 is reached by 50 + 30.
	assert.Equal(t, []string{"b", "c"}, keys(ByPercentage(in, 80)))
	// 81% needs the next series as well.
	assert.Equal(t, []string{"b", "c", "a"}, keys(ByPercentage(in, 81)))
	assert.Equal(t, []string{"b"}, keys(ByPercentage(in, 1)))
	assert.Len(t, ByPercentage(in, 100), 5)
	assert.Len(t, ByPercentage(in, 250), 5, "percent is clamped to 100")
	assert.Empty(t, ByPercentage(in, 0))
	assert.Empty(t, ByPercentage(in, -5))
}

func TestByPercentageMinimality(t *testing.T) {
	in := seriesWithVolumes(12, 3, 40, 7, 18, 20)
	total := 100.0
	for _, pct := range []float64{5, 25, 50, 60, 77, 90, 99, 100} {
		kept := ByPercentage(in, pct)
		sum := 0.0
		for _, s := range kept {
			sum += s.Volume
		}
		require.GreaterOrEqual(t, sum, total*pct/100, "pct=%v", pct)
		last := kept[len(kept)-1].Volume
		assert.Less(t, sum-last, total*pct/100, "dropping the last series must fall short, pct=%v", pct)
	}
}

func TestBuilderAlignsAndZeroFills(t *testing.T) {
	b := NewBuilder()
	b.Add("x", t0, 1)
	b.Add("y", t0.Add(time.Minute), 2)
	b.Add("x", t0.Add(2*time.Minute), 3)
	b.Add("x", t0.Add(2*time.Minute), 4)
	b.Observe(t0.Add(3 * time.Minute))

	series := b.Series()
	require.Len(t, series, 2)
	assert.Equal(t, []string{"x", "y"}, keys(series))

	for _, s := range series {
		require.Len(t, s.Points, 4)
		for i, p := range s.Points {
			assert.True(t, p.Time.Equal(t0.Add(time.Duration(i)*time.Minute)))
		}
	}
	assert.Equal(t, []float64{1, 0, 7, 0}, values(series[0]))
	assert.Equal(t, []float64{0, 2, 0, 0}, values(series[1]))
	assert.Equal(t, 8.0, series[0].Volume)
}

func values(s Series) []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

func TestCostWeightedCollapsesSmallerItems(t *testing.T) {
	events := map[string]models.Event{
		"1": {ID: "1", Type: "Logged Error", Class: "Cart", Method: "add"},
		"2": {ID: "2", Type: "Exception", Class: "Pay", Method: "charge"},
		"3": {ID: "3", Type: "Logged Warning", Class: "Cart", Method: "view"},
		"4": {ID: "4", Type: "Logged Error", Class: "Cart", Method: "add"},
	}
	costs := map[string]float64{"Exception": 10, "Logged Error": 2, DefaultCostFactorKey: 0.5}
	points := []models.GraphPoint{
		{Time: t0, Contributors: []models.Contributor{{EventID: "1", Hits: 10}, {EventID: "2", Hits: 5}, {EventID: "3", Hits: 20}}},
		{Time: t0.Add(time.Hour), Contributors: []models.Contributor{{EventID: "4", Hits: 5}, {EventID: "unknown", Hits: 100}}},
		{Time: t0.Add(2 * time.Hour)},
	}

	// Costs: Pay.charge 50, Cart.add (1 and 4 grouped) 30, Cart.view 10. Total 90.
	series := CostWeighted(points, events, costs, 50)
	require.Len(t, series, 2)
	assert.Equal(t, "Exception - Pay.charge", series[0].Key)
	assert.Equal(t, 50.0, series[0].Volume)
	assert.Equal(t, CombinedKey, series[1].Key)
	assert.Equal(t, 40.0, series[1].Volume)
	assert.Equal(t, []float64{30, 10, 0}, values(series[1]))

	all := CostWeighted(points, events, costs, 100)
	assert.Equal(t, []string{"Exception - Pay.charge", "Logged Error - Cart.add", "Logged Warning - Cart.view"}, keys(all))
	for _, s := range all {
		assert.Len(t, s.Points, 3)
	}
}

func TestCostKey(t *testing.T) {
	assert.Equal(t, "Exception - Pay.charge", CostKey(models.Event{Type: "Exception", Class: "Pay", Method: "charge"}))
	assert.Equal(t, "Timer", CostKey(models.Event{Name: "Timer"}))
}
