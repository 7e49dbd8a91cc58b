package extractors

import (
	"testing"

	"github.com/miradorstack/mirador-reliability/internal/models"
)

func testSettings() models.SlowdownSettings {
	return models.SlowdownSettings{
		ActiveInvocationsThreshold:   10,
		BaselineInvocationsThreshold: 10,
		OverAvgSlowingPercentage:     30,
		OverAvgCriticalPercentage:    60,
		StdDevFactor:                 1.5,
		MinDeltaThresholdMs:          5,
	}
}

func TestSlowdownClassifierStates(t *testing.T) {
	c := NewSlowdownClassifier(testSettings())

	cases := []struct {
		name string
		tx   models.TransactionData
		want models.TransactionState
	}{
		{"too few invocations", models.TransactionData{Invocations: 3, BaselineInvocations: 100, AvgTimeMs: 500, BaselineAvgTimeMs: 100}, models.StateNoData},
		{"no baseline", models.TransactionData{Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 500}, models.StateNoData},
		{"faster", models.TransactionData{Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 80, BaselineAvgTimeMs: 100}, models.StateOK},
		{"below min delta", models.TransactionData{Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 14, BaselineAvgTimeMs: 10}, models.StateOK},
		{"within std dev", models.TransactionData{Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 140, BaselineAvgTimeMs: 100, BaselineStdDevMs: 30}, models.StateOK},
		{"slowing", models.TransactionData{Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 140, BaselineAvgTimeMs: 100}, models.StateSlowing},
		{"critical", models.TransactionData{Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 170, BaselineAvgTimeMs: 100}, models.StateCritical},
		{"small regression", models.TransactionData{Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 110, BaselineAvgTimeMs: 100}, models.StateOK},
	}

	for _, tc := range cases {
		if got := c.State(tc.tx); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestClassifyKeepsReportedStates(t *testing.T) {
	c := NewSlowdownClassifier(testSettings())
	in := []models.TransactionData{
		{Name: "reported", State: models.StateCritical},
		{Name: "derived", Invocations: 100, BaselineInvocations: 100, AvgTimeMs: 140, BaselineAvgTimeMs: 100},
	}

	out := c.Classify(in)
	if out[0].State != models.StateCritical {
		t.Fatalf("reported state must be kept, got %s", out[0].State)
	}
	if out[1].State != models.StateSlowing {
		t.Fatalf("expected derived slowing state, got %s", out[1].State)
	}
	if in[1].State != "" {
		t.Fatalf("input must not be mutated")
	}
	if c.Classify(nil) != nil {
		t.Fatalf("expected nil for empty input")
	}
}
