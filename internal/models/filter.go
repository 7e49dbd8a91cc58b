package models

import (
	"strings"
	"time"
)

// AllValues is the dashboard spelling of "no restriction" for list filters.
const AllValues = "All"

// QueryFilter is the typed filter produced by the query dispatcher for one request.
type QueryFilter struct {
	ServiceID      string
	ViewName       string
	TimeFilter     string
	Applications   []string
	Servers        []string
	Deployments    []string
	Transactions   []string
	Types          []string
	Labels         []string
	EventLocations []string
	SearchText     string
}

// Clone returns a deep copy of the filter.
func (f QueryFilter) Clone() QueryFilter {
	out := f
	out.Applications = cloneStrings(f.Applications)
	out.Servers = cloneStrings(f.Servers)
	out.Deployments = cloneStrings(f.Deployments)
	out.Transactions = cloneStrings(f.Transactions)
	out.Types = cloneStrings(f.Types)
	out.Labels = cloneStrings(f.Labels)
	out.EventLocations = cloneStrings(f.EventLocations)
	return out
}

// Narrow returns a clone restricted to a single reporting key for the given mode.
func (f QueryFilter) Narrow(mode ReportMode, key string) QueryFilter {
	out := f.Clone()
	switch mode {
	case ModeDeployments:
		out.Deployments = []string{key}
	case ModeTiers:
		out.Types = []string{key}
	default:
		out.Applications = []string{key}
	}
	return out
}

// Restricted reports whether a list filter narrows the data set. Any "All" entry lifts the restriction.
func Restricted(values []string) bool {
	restricted := false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if strings.EqualFold(v, AllValues) {
			return false
		}
		if v != "" {
			restricted = true
		}
	}
	return restricted
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append([]string(nil), values...)
}

// ReportMode selects how reporting keys are chosen.
type ReportMode string

const (
	ModeDefault      ReportMode = "Default"
	ModeApplications ReportMode = "Applications"
	ModeDeployments  ReportMode = "Deployments"
	ModeTiers        ReportMode = "Tiers"
)

// ParseReportMode maps free text onto a ReportMode, defaulting to ModeDefault.
func ParseReportMode(value string) ReportMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "applications", "apps":
		return ModeApplications
	case "deployments":
		return ModeDeployments
	case "tiers":
		return ModeTiers
	default:
		return ModeDefault
	}
}

// ReportRequest carries the filter plus the report-specific fields of a dashboard query.
type ReportRequest struct {
	Filter     QueryFilter
	Mode       ReportMode
	Keys       []string
	Limit      int
	Weights    *ScoreWeights
	Thresholds *ScoreThresholds
	Postfixes  StatusPostfixes
	NewOnly    bool
	Descending bool
}

// TimeWindow is the resolved active window used by a report, for display.
type TimeWindow struct {
	From    time.Time
	To      time.Time
	Minutes int
	Label   string
}
