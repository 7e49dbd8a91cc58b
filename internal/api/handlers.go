package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-reliability/internal/engine"
	"github.com/miradorstack/mirador-reliability/internal/models"
)

// FromStructFilter maps the dashboard filter fields of a request.
func FromStructFilter(in *structpb.Struct) (models.QueryFilter, error) {
	if in == nil {
		return models.QueryFilter{}, fmt.Errorf("request is nil")
	}
	f := fields(in)
	filter := models.QueryFilter{
		ServiceID:      f.str("service_id"),
		ViewName:       f.str("view"),
		TimeFilter:     f.str("time_filter"),
		Applications:   f.list("applications"),
		Servers:        f.list("servers"),
		Deployments:    f.list("deployments"),
		Transactions:   f.list("transactions"),
		Types:          f.list("types"),
		Labels:         f.list("labels"),
		EventLocations: f.list("event_locations"),
		SearchText:     f.str("search_text"),
	}
	if strings.TrimSpace(filter.ServiceID) == "" {
		return models.QueryFilter{}, fmt.Errorf("service_id is required")
	}
	if filter.ViewName == "" {
		filter.ViewName = "All Events"
	}
	if filter.TimeFilter == "" {
		filter.TimeFilter = "last 1d"
	}
	return filter, nil
}

// FromStructReportRequest maps a report request.
func FromStructReportRequest(in *structpb.Struct) (models.ReportRequest, error) {
	filter, err := FromStructFilter(in)
	if err != nil {
		return models.ReportRequest{}, err
	}
	f := fields(in)
	req := models.ReportRequest{
		Filter:     filter,
		Mode:       models.ParseReportMode(f.str("mode")),
		Keys:       f.list("keys"),
		Limit:      int(f.num("limit")),
		NewOnly:    f.boolean("new_only"),
		Descending: f.boolean("descending"),
	}
	if w := f.object("weights"); w != nil {
		req.Weights = &models.ScoreWeights{
			NewEvent:           w.num("new_event_score"),
			SevereNewEvent:     w.num("severe_new_event_score"),
			CriticalRegression: w.num("critical_regression_score"),
			Regression:         w.num("regression_score"),
			Weight:             w.num("score_weight"),
		}
	}
	if t := f.object("thresholds"); t != nil {
		req.Thresholds = &models.ScoreThresholds{Warning: t.num("warning"), Critical: t.num("critical")}
	}
	if p := f.object("postfixes"); p != nil {
		req.Postfixes = models.StatusPostfixes{OK: p.str("ok"), Warning: p.str("warning"), Critical: p.str("critical")}
	}
	return req, nil
}

// ToStructReport renders a report as one row per key, using the report columns.
func ToStructReport(report models.Report) (*structpb.Struct, error) {
	rows := make([]any, 0, len(report.Results))
	for _, r := range report.Results {
		rows = append(rows, engine.Row(r))
	}
	return structpb.NewStruct(map[string]any{
		"run_id": report.RunID,
		"mode":   string(report.Mode),
		"window": windowMap(report.Window),
		"rows":   rows,
	})
}

// FromStructGraphRequest maps a graph request.
func FromStructGraphRequest(in *structpb.Struct) (models.GraphRequest, error) {
	filter, err := FromStructFilter(in)
	if err != nil {
		return models.GraphRequest{}, err
	}
	f := fields(in)
	req := models.GraphRequest{
		Filter:       filter,
		GroupBy:      models.GroupBy(strings.ToLower(f.str("group_by"))),
		LimitType:    models.LimitType(strings.ToLower(f.str("limit_type"))),
		Limit:        f.num("limit"),
		PointsWanted: int(f.num("points")),
		VolumeType:   f.str("volume_type"),
		Cost:         f.boolean("cost"),
	}
	switch req.GroupBy {
	case "", models.GroupByClass, models.GroupByTier, models.GroupByType, models.GroupByApplication:
	default:
		return models.GraphRequest{}, fmt.Errorf("unsupported group_by %q", req.GroupBy)
	}
	switch req.LimitType {
	case "", models.LimitCount, models.LimitPercentage:
	default:
		return models.GraphRequest{}, fmt.Errorf("unsupported limit_type %q", req.LimitType)
	}
	return req, nil
}

// ToStructGraph renders graph series with their points.
func ToStructGraph(res engine.GraphResult) (*structpb.Struct, error) {
	series := make([]any, 0, len(res.Series))
	for _, s := range res.Series {
		points := make([]any, 0, len(s.Points))
		for _, p := range s.Points {
			points = append(points, map[string]any{"time": p.Time.UTC().Format(time.RFC3339), "value": p.Value})
		}
		series = append(series, map[string]any{"key": s.Key, "volume": s.Volume, "points": points})
	}
	return structpb.NewStruct(map[string]any{
		"window": windowMap(res.Window),
		"series": series,
	})
}

// FromStructSettings decodes a settings document.
func FromStructSettings(in *structpb.Struct) (models.ServiceSettings, error) {
	if in == nil {
		return models.ServiceSettings{}, fmt.Errorf("request is nil")
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return models.ServiceSettings{}, fmt.Errorf("encode settings: %w", err)
	}
	var doc models.ServiceSettings
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.ServiceSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	if strings.TrimSpace(doc.ServiceID) == "" {
		return models.ServiceSettings{}, fmt.Errorf("service_id is required")
	}
	return doc, nil
}

// ToStructSettings encodes a settings document.
func ToStructSettings(doc models.ServiceSettings) (*structpb.Struct, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}

func windowMap(w models.TimeWindow) map[string]any {
	out := map[string]any{"minutes": w.Minutes, "label": w.Label}
	if !w.From.IsZero() {
		out["from"] = w.From.UTC().Format(time.RFC3339)
	}
	if !w.To.IsZero() {
		out["to"] = w.To.UTC().Format(time.RFC3339)
	}
	return out
}

type structFields map[string]*structpb.Value

func fields(s *structpb.Struct) structFields {
	if s == nil {
		return nil
	}
	return s.GetFields()
}

func (f structFields) str(name string) string {
	return strings.TrimSpace(f[name].GetStringValue())
}

func (f structFields) num(name string) float64 {
	v := f[name]
	if s := v.GetStringValue(); s != "" {
		var n float64
		if _, err := fmt.Sscan(s, &n); err == nil {
			return n
		}
	}
	return v.GetNumberValue()
}

func (f structFields) boolean(name string) bool {
	v := f[name]
	if s := v.GetStringValue(); s != "" {
		return strings.EqualFold(s, "true") || s == "1"
	}
	return v.GetBoolValue()
}

// list accepts either a JSON array or a comma separated string.
func (f structFields) list(name string) []string {
	v := f[name]
	if v == nil {
		return nil
	}
	if s := v.GetStringValue(); s != "" {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	var out []string
	for _, item := range v.GetListValue().GetValues() {
		if s := strings.TrimSpace(item.GetStringValue()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (f structFields) object(name string) structFields {
	s := f[name].GetStructValue()
	if s == nil {
		return nil
	}
	return s.GetFields()
}
