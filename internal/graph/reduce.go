package graph

import (
	"strings"

	"github.com/miradorstack/mirador-reliability/internal/models"
)

// CombinedKey names the synthetic series holding everything below a cost cutoff.
const CombinedKey = "Combined smaller items"

// DefaultCostFactorKey is the cost factor applied to event types without their own factor.
const DefaultCostFactorKey = "default"

// TopN returns the n highest-volume series. Equal volumes keep their input order.
func TopN(series []Series, n int) []Series {
	if n <= 0 || len(series) == 0 {
		return []Series{}
	}
	sorted := byVolume(series)
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// ByPercentage returns the smallest volume-ranked prefix whose combined volume reaches pct percent
// of the total. pct is clamped to [0, 100]; a zero target yields no series.
func ByPercentage(series []Series, pct float64) []Series {
	kept, _ := splitByPercentage(series, pct)
	return kept
}

func splitByPercentage(series []Series, pct float64) (kept, rest []Series) {
	pct = min(100, max(0, pct))
	total := 0.0
	for _, s := range series {
		total += s.Volume
	}
	sorted := byVolume(series)
	target := total * pct / 100
	if target <= 0 {
		return []Series{}, sorted
	}

	running := 0.0
	for i, s := range sorted {
		running += s.Volume
		if running >= target {
			return sorted[:i+1], sorted[i+1:]
		}
	}
	return sorted, nil
}

// CostKey is the (type, class, method) grouping used by cost graphs.
func CostKey(e models.Event) string {
	location := strings.Trim(e.Class+"."+e.Method, ".")
	if location == "" {
		location = e.Name
	}
	if e.Type == "" {
		return location
	}
	return e.Type + " - " + location
}

// CostWeighted groups event hits by CostKey, prices them with the event type's cost factor and keeps
// the groups covering pct percent of the total cost. Everything below the cutoff is folded into one
// CombinedKey series so the displayed total stays accurate. Contributors with unknown events are
// ignored; types without a factor use costs[DefaultCostFactorKey], or 1 when that is unset.
func CostWeighted(points []models.GraphPoint, events map[string]models.Event, costs map[string]float64, pct float64) []Series {
	fallback, ok := costs[DefaultCostFactorKey]
	if !ok {
		fallback = 1
	}

	b := NewBuilder()
	for _, p := range points {
		b.Observe(p.Time)
		for _, c := range p.Contributors {
			e, ok := events[c.EventID]
			if !ok {
				continue
			}
			factor, ok := costs[e.Type]
			if !ok {
				factor = fallback
			}
			b.Add(CostKey(e), p.Time, float64(c.Hits)*factor)
		}
	}

	kept, rest := splitByPercentage(b.Series(), pct)
	if len(rest) == 0 {
		return kept
	}
	return append(kept, combine(CombinedKey, rest))
}

// combine sums time-aligned series point by point.
func combine(key string, series []Series) Series {
	out := Series{Key: key, Points: make([]Point, len(series[0].Points))}
	copy(out.Points, series[0].Points)
	out.Volume = series[0].Volume
	for _, s := range series[1:] {
		out.Volume += s.Volume
		for i := range s.Points {
			out.Points[i].Value += s.Points[i].Value
		}
	}
	return out
}
