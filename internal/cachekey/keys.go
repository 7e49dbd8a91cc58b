// Package cachekey builds normal-form cache keys so that differently phrased but behaviourally identical
// queries share one cache entry, while genuinely different queries never collide.
//
// Keys are plain comparable structs. Two keys are equivalent exactly when they are ==, which makes them
// usable as map and LRU keys directly. Set-valued filters (applications, servers, deployments) are stored
// in a sorted, de-duplicated canonical form so that ordering never influences equality or hashing.
package cachekey

import (
	"strconv"
	"strings"
)

// Key is implemented by every normal-form key. String renders an injective identity used for
// single-flight bookkeeping and log lines: two keys render the same text only when they are ==.
type Key interface {
	comparable
	String() string
}

// Scope holds the identity fields compared first: backend endpoint, service, normalized window, view.
type Scope struct {
	Endpoint  string
	ServiceID string
	Window    string
	View      string
}

func (s Scope) String() string {
	return join(s.Endpoint, s.ServiceID, s.Window, s.View)
}

// Sets holds the effective, group-expanded deployment, server and application sets.
type Sets struct {
	Deployments  string
	Servers      string
	Applications string
}

func (s Sets) String() string {
	return join(s.Deployments, s.Servers, s.Applications)
}

// Shape holds the event-shape filters, compared exactly.
type Shape struct {
	Types        string
	Transactions string
	SearchText   string
	Labels       string
	Locations    string
}

func (s Shape) String() string {
	return join(s.Types, s.Transactions, s.SearchText, s.Labels, s.Locations)
}

// View keys view-name to view-id lookups.
type View struct {
	Endpoint  string
	ServiceID string
	View      string
}

func (k View) String() string { return join("view", k.Endpoint, k.ServiceID, k.View) }

// Events keys event list fetches.
type Events struct {
	Scope Scope
	Sets  Sets
	Shape Shape
}

func (k Events) String() string {
	return join("events", k.Scope.String(), k.Sets.String(), k.Shape.String())
}

// Graph keys event volume graph fetches.
type Graph struct {
	Scope        Scope
	Sets         Sets
	Shape        Shape
	VolumeType   string
	PointsWanted int
}

func (k Graph) String() string {
	return join("graph", k.Scope.String(), k.Sets.String(), k.Shape.String(), k.VolumeType, strconv.Itoa(k.PointsWanted))
}

// Transactions keys transaction volume/performance fetches.
type Transactions struct {
	Scope Scope
	Sets  Sets
	Shape Shape
}

func (k Transactions) String() string {
	return join("transactions", k.Scope.String(), k.Sets.String(), k.Shape.String())
}

// RegressionWindow keys active/baseline window resolution.
type RegressionWindow struct {
	Endpoint        string
	ServiceID       string
	Window          string
	BaselineMinutes int
}

func (k RegressionWindow) String() string {
	return join("regression-window", k.Endpoint, k.ServiceID, k.Window, strconv.Itoa(k.BaselineMinutes))
}

// Report keys per-key regression outputs.
type Report struct {
	Scope   Scope
	Sets    Sets
	Shape   Shape
	NewOnly bool
}

func (k Report) String() string {
	return join("report", k.Scope.String(), k.Sets.String(), k.Shape.String(), strconv.FormatBool(k.NewOnly))
}

// Settings keys per-service settings documents.
type Settings struct {
	ServiceID string
}

func (k Settings) String() string { return join("settings", k.ServiceID) }

// join quotes every part so that separators inside a part never merge with the ones between parts.
func join(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = strconv.Quote(p)
	}
	return strings.Join(quoted, ",")
}
