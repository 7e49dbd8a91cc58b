package models

import "time"

// View identifies a saved backend view (a named event query) within a service.
type View struct {
	ID   string
	Name string
}

// Event is one code-location event as reported by the analytics backend.
type Event struct {
	ID          string
	Type        string
	Name        string
	Class       string
	Method      string
	EntryPoint  string
	Application string
	Tiers       []string
	Labels      []string
	Hits        int64
	Invocations int64
}

// Contributor is one event's hit count at a graph point.
type Contributor struct {
	EventID string
	Hits    int64
}

// GraphPoint is one timestamp of an event volume graph.
type GraphPoint struct {
	Time         time.Time
	Contributors []Contributor
}

// Deployment is a named deployment known to a service.
type Deployment struct {
	Name      string
	Active    bool
	FirstSeen time.Time
	LastSeen  time.Time
}

// GroupBy selects the series identity for volume graphs.
type GroupBy string

const (
	GroupByClass       GroupBy = "class"
	GroupByTier        GroupBy = "tier"
	GroupByType        GroupBy = "type"
	GroupByApplication GroupBy = "application"
)

// LimitType selects how graph series are reduced.
type LimitType string

const (
	LimitCount      LimitType = "count"
	LimitPercentage LimitType = "percentage"
)

// GraphRequest asks for a bounded set of named, time-aligned volume series.
type GraphRequest struct {
	Filter       QueryFilter
	GroupBy      GroupBy
	LimitType    LimitType
	Limit        float64
	PointsWanted int
	VolumeType   string
	Cost         bool
}
