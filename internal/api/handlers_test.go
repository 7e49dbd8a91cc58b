package api

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-reliability/internal/engine"
	"github.com/miradorstack/mirador-reliability/internal/graph"
	"github.com/miradorstack/mirador-reliability/internal/models"
)

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("build struct: %v", err)
	}
	return s
}

func TestFromStructReportRequest(t *testing.T) {
	in := mustStruct(t, map[string]any{
		"service_id":   "S1",
		"applications": []any{"app1", "app2"},
		"servers":      "srv1, srv2",
		"mode":         "deployments",
		"limit":        5,
		"new_only":     true,
		"weights": map[string]any{
			"new_event_score":           1,
			"severe_new_event_score":    5,
			"critical_regression_score": 10,
			"regression_score":          3,
			"score_weight":              1,
		},
		"postfixes": map[string]any{"critical": " !"},
	})

	req, err := FromStructReportRequest(in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.Filter.ServiceID != "S1" || req.Filter.ViewName != "All Events" || req.Filter.TimeFilter != "last 1d" {
		t.Fatalf("unexpected filter: %+v", req.Filter)
	}
	if len(req.Filter.Applications) != 2 || len(req.Filter.Servers) != 2 || req.Filter.Servers[1] != "srv2" {
		t.Fatalf("unexpected lists: %v %v", req.Filter.Applications, req.Filter.Servers)
	}
	if req.Mode != models.ModeDeployments || req.Limit != 5 || !req.NewOnly {
		t.Fatalf("unexpected request fields: %+v", req)
	}
	if req.Weights == nil || req.Weights.SevereNewEvent != 5 {
		t.Fatalf("unexpected weights: %+v", req.Weights)
	}
	if req.Thresholds != nil {
		t.Fatalf("thresholds were not supplied")
	}
	if req.Postfixes.Critical != " !" {
		t.Fatalf("unexpected postfixes: %+v", req.Postfixes)
	}
}

func TestFromStructFilterRequiresService(t *testing.T) {
	if _, err := FromStructFilter(mustStruct(t, map[string]any{"view": "v"})); err == nil {
		t.Fatalf("expected an error for a missing service id")
	}
	if _, err := FromStructFilter(nil); err == nil {
		t.Fatalf("expected an error for a nil request")
	}
}

func TestToStructReport(t *testing.T) {
	report := models.Report{
		RunID: "run-1",
		Mode:  models.ModeDefault,
		Window: models.TimeWindow{
			From:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			To:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
			Minutes: 1440,
			Label:   "1d",
		},
		Results: []models.ReportKeyResult{{
			Key:         "app1",
			DisplayName: "app1",
			Regression:  models.RegressionOutput{NewIssues: 2, Volume: 100},
			Score:       98,
			Status:      models.StatusOK,
		}},
	}

	out, err := ToStructReport(report)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	rows := out.GetFields()["rows"].GetListValue().GetValues()
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	row := rows[0].GetStructValue().GetFields()
	if row["score"].GetNumberValue() != 98 || row["status"].GetStringValue() != "OK" || row["new_issues"].GetNumberValue() != 2 {
		t.Fatalf("unexpected row: %v", row)
	}
	if len(row) != len(engine.ReportColumns) {
		t.Fatalf("expected %d columns, got %d", len(engine.ReportColumns), len(row))
	}
	window := out.GetFields()["window"].GetStructValue().GetFields()
	if window["label"].GetStringValue() != "1d" || window["from"].GetStringValue() != "2026-03-01T00:00:00Z" {
		t.Fatalf("unexpected window: %v", window)
	}
}

func TestFromStructGraphRequestRejectsUnknownGrouping(t *testing.T) {
	_, err := FromStructGraphRequest(mustStruct(t, map[string]any{"service_id": "S1", "group_by": "planet"}))
	if err == nil {
		t.Fatalf("expected an error for an unknown group_by")
	}

	req, err := FromStructGraphRequest(mustStruct(t, map[string]any{
		"service_id": "S1", "group_by": "Tier", "limit_type": "percentage", "limit": 80, "cost": "true",
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if req.GroupBy != models.GroupByTier || req.LimitType != models.LimitPercentage || req.Limit != 80 || !req.Cost {
		t.Fatalf("unexpected graph request: %+v", req)
	}
}

func TestToStructGraph(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out, err := ToStructGraph(engine.GraphResult{Series: []graph.Series{{
		Key: "shop", Volume: 15, Points: []graph.Point{{Time: at, Value: 15}},
	}}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	series := out.GetFields()["series"].GetListValue().GetValues()
	if len(series) != 1 || series[0].GetStructValue().GetFields()["key"].GetStringValue() != "shop" {
		t.Fatalf("unexpected series: %v", series)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	w := models.ScoreWeights{NewEvent: 1, Weight: 2}
	doc := models.ServiceSettings{
		ServiceID:   "S1",
		Reliability: models.ReliabilitySettings{Weights: &w, Thresholds: models.ScoreThresholds{Warning: 85, Critical: 70}},
		KeyTiers:    []string{"Backend"},
	}
	s, err := ToStructSettings(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := FromStructSettings(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.ServiceID != "S1" || back.Reliability.Weights == nil || back.Reliability.Weights.Weight != 2 || back.KeyTiers[0] != "Backend" {
		t.Fatalf("unexpected document: %+v", back)
	}
}
