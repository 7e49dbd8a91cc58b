package cachekey

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

// SetKind names the filter set being expanded.
type SetKind string

const (
	SetApplications SetKind = "applications"
	SetServers      SetKind = "servers"
	SetDeployments  SetKind = "deployments"
)

// allMarker is the canonical form of an unrestricted set.
const allMarker = "*"

// GroupExpander resolves named groups into their member lists. Values that are not groups are
// returned unchanged.
type GroupExpander interface {
	Expand(ctx context.Context, serviceID string, kind SetKind, values []string) ([]string, error)
}

// Builder derives normal-form keys for one backend endpoint.
type Builder struct {
	Endpoint string
	Expander GroupExpander
}

// NormalizeTimeFilter reduces a time filter to its duration class. Look-back and absolute forms with the
// same whole-minute duration normalize identically, so the absolute endpoints of a range are ignored.
// Unparseable filters fall back to their exact text.
func NormalizeTimeFilter(filter string) string {
	tf, err := utils.ParseTimeFilter(filter)
	if err != nil {
		return "raw:" + filter
	}
	return fmt.Sprintf("m:%d", tf.Minutes())
}

// View returns the key for a view lookup.
func (b Builder) View(serviceID, viewName string) View {
	return View{Endpoint: b.Endpoint, ServiceID: serviceID, View: viewName}
}

// Settings returns the key for a settings document.
func (b Builder) Settings(serviceID string) Settings {
	return Settings{ServiceID: serviceID}
}

// RegressionWindow returns the key for an active/baseline window resolution.
func (b Builder) RegressionWindow(serviceID, timeFilter string, baselineMinutes int) RegressionWindow {
	return RegressionWindow{
		Endpoint:        b.Endpoint,
		ServiceID:       serviceID,
		Window:          NormalizeTimeFilter(timeFilter),
		BaselineMinutes: baselineMinutes,
	}
}

// Events returns the key for an event list fetch.
func (b Builder) Events(ctx context.Context, f models.QueryFilter) (Events, error) {
	sets, err := b.sets(ctx, f)
	if err != nil {
		return Events{}, err
	}
	return Events{Scope: b.scope(f), Sets: sets, Shape: shape(f)}, nil
}

// Graph returns the key for an event volume graph fetch.
func (b Builder) Graph(ctx context.Context, f models.QueryFilter, volumeType string, pointsWanted int) (Graph, error) {
	sets, err := b.sets(ctx, f)
	if err != nil {
		return Graph{}, err
	}
	return Graph{
		Scope:        b.scope(f),
		Sets:         sets,
		Shape:        shape(f),
		VolumeType:   volumeType,
		PointsWanted: pointsWanted,
	}, nil
}

// Transactions returns the key for a transaction list fetch.
func (b Builder) Transactions(ctx context.Context, f models.QueryFilter) (Transactions, error) {
	sets, err := b.sets(ctx, f)
	if err != nil {
		return Transactions{}, err
	}
	return Transactions{Scope: b.scope(f), Sets: sets, Shape: shape(f)}, nil
}

// Report returns the key for a per-key regression output.
func (b Builder) Report(ctx context.Context, f models.QueryFilter, newOnly bool) (Report, error) {
	sets, err := b.sets(ctx, f)
	if err != nil {
		return Report{}, err
	}
	return Report{Scope: b.scope(f), Sets: sets, Shape: shape(f), NewOnly: newOnly}, nil
}

func (b Builder) scope(f models.QueryFilter) Scope {
	return Scope{
		Endpoint:  b.Endpoint,
		ServiceID: f.ServiceID,
		Window:    NormalizeTimeFilter(f.TimeFilter),
		View:      f.ViewName,
	}
}

func (b Builder) sets(ctx context.Context, f models.QueryFilter) (Sets, error) {
	deployments, err := b.canonicalSet(ctx, f.ServiceID, SetDeployments, f.Deployments)
	if err != nil {
		return Sets{}, err
	}
	servers, err := b.canonicalSet(ctx, f.ServiceID, SetServers, f.Servers)
	if err != nil {
		return Sets{}, err
	}
	apps, err := b.canonicalSet(ctx, f.ServiceID, SetApplications, f.Applications)
	if err != nil {
		return Sets{}, err
	}
	return Sets{Deployments: deployments, Servers: servers, Applications: apps}, nil
}

func (b Builder) canonicalSet(ctx context.Context, serviceID string, kind SetKind, values []string) (string, error) {
	if !models.Restricted(values) {
		return allMarker, nil
	}
	effective := values
	if b.Expander != nil {
		expanded, err := b.Expander.Expand(ctx, serviceID, kind, values)
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", kind, err)
		}
		effective = expanded
	}
	return CanonicalSet(effective), nil
}

// CanonicalSet renders values as a sorted, de-duplicated set. Blank entries are ignored.
func CanonicalSet(values []string) string {
	seen := make(map[string]struct{}, len(values))
	members := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		members = append(members, v)
	}
	sort.Strings(members)
	return join(members...)
}

func shape(f models.QueryFilter) Shape {
	return Shape{
		Types:        join(f.Types...),
		Transactions: join(f.Transactions...),
		SearchText:   f.SearchText,
		Labels:       join(f.Labels...),
		Locations:    join(f.EventLocations...),
	}
}
