// Package graph folds per-event volume points into named, time-aligned series and reduces them to a
// bounded, representative subset.
package graph

import (
	"sort"
	"time"
)

// Point is one timestamped value of a series.
type Point struct {
	Time  time.Time
	Value float64
}

// Series is a named, time-ordered list of points plus its total volume.
type Series struct {
	Key    string
	Volume float64
	Points []Point
}

type accumulator struct {
	key    string
	volume float64
	values map[int64]float64
}

// Builder accumulates contributions per key. Every series it emits has exactly one point for each
// distinct timestamp observed by the builder, zero-filled where the key had no contribution.
type Builder struct {
	order []*accumulator
	byKey map[string]*accumulator
	times map[int64]time.Time
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		byKey: make(map[string]*accumulator),
		times: make(map[int64]time.Time),
	}
}

// Observe records a timestamp even if no key contributes to it.
func (b *Builder) Observe(t time.Time) {
	ts := t.UnixNano()
	if _, ok := b.times[ts]; !ok {
		b.times[ts] = t
	}
}

// Add folds value into key at time t. Keys are emitted in the order they were first added.
func (b *Builder) Add(key string, t time.Time, value float64) {
	b.Observe(t)
	acc, ok := b.byKey[key]
	if !ok {
		acc = &accumulator{key: key, values: make(map[int64]float64)}
		b.byKey[key] = acc
		b.order = append(b.order, acc)
	}
	acc.values[t.UnixNano()] += value
	acc.volume += value
}

// Len returns the number of distinct keys.
func (b *Builder) Len() int { return len(b.order) }

// Series returns the accumulated series in insertion order.
func (b *Builder) Series() []Series {
	stamps := make([]int64, 0, len(b.times))
	for ts := range b.times {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	out := make([]Series, 0, len(b.order))
	for _, acc := range b.order {
		points := make([]Point, len(stamps))
		for i, ts := range stamps {
			points[i] = Point{Time: b.times[ts], Value: acc.values[ts]}
		}
		out = append(out, Series{Key: acc.key, Volume: acc.volume, Points: points})
	}
	return out
}

// byVolume returns a copy of series sorted by descending volume, stable on the input order.
func byVolume(series []Series) []Series {
	sorted := append([]Series(nil), series...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Volume > sorted[j].Volume })
	return sorted
}
