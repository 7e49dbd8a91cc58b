package engine

import (
	"github.com/miradorstack/mirador-reliability/internal/models"
)

// StatusFor maps a score onto its reliability band. Scores below Critical are CRITICAL, scores below
// Warning are WARNING.
func StatusFor(score float64, t models.ScoreThresholds) models.Status {
	switch {
	case score < t.Critical:
		return models.StatusCritical
	case score < t.Warning:
		return models.StatusWarning
	default:
		return models.StatusOK
	}
}

// DisplayName appends the status postfix to a key name.
func DisplayName(key string, status models.Status, p models.StatusPostfixes) string {
	switch status {
	case models.StatusCritical:
		return key + p.Critical
	case models.StatusWarning:
		return key + p.Warning
	default:
		return key + p.OK
	}
}

// Column is one named output field of a report row.
type Column struct {
	Name  string
	Value func(models.ReportKeyResult) any
}

// ReportColumns lists the report row fields in output order.
var ReportColumns = []Column{
	{Name: "key", Value: func(r models.ReportKeyResult) any { return r.Key }},
	{Name: "name", Value: func(r models.ReportKeyResult) any { return r.DisplayName }},
	{Name: "new_issues", Value: func(r models.ReportKeyResult) any { return r.Regression.NewIssues }},
	{Name: "severe_new_issues", Value: func(r models.ReportKeyResult) any { return r.Regression.SevereNewIssues }},
	{Name: "regressions", Value: func(r models.ReportKeyResult) any { return r.Regression.Regressions }},
	{Name: "critical_regressions", Value: func(r models.ReportKeyResult) any { return r.Regression.CriticalRegressions }},
	{Name: "slowdowns", Value: func(r models.ReportKeyResult) any { return r.Slowdown.Slowdowns }},
	{Name: "severe_slowdowns", Value: func(r models.ReportKeyResult) any { return r.Slowdown.SevereSlowdowns }},
	{Name: "volume", Value: func(r models.ReportKeyResult) any { return r.Regression.Volume }},
	{Name: "score", Value: func(r models.ReportKeyResult) any { return r.Score }},
	{Name: "status", Value: func(r models.ReportKeyResult) any { return string(r.Status) }},
}

// Row renders a result through ReportColumns.
func Row(r models.ReportKeyResult) map[string]any {
	row := make(map[string]any, len(ReportColumns))
	for _, c := range ReportColumns {
		row[c.Name] = c.Value(r)
	}
	return row
}
