package models

import "time"

// RegressionWindow is the active/baseline window pair a regression computation used.
type RegressionWindow struct {
	ActiveStart     time.Time
	ActiveEnd       time.Time
	ActiveMinutes   int
	BaselineMinutes int
}

// RegressionOutput is the per-key result of the backend regression computation.
type RegressionOutput struct {
	Key                 string
	NewIssues           int
	SevereNewIssues     int
	Regressions         int
	CriticalRegressions int
	Window              RegressionWindow
	Volume              int64
	Empty               bool
}

// TransactionState is the performance state of a transaction relative to its baseline.
type TransactionState string

const (
	StateNoData   TransactionState = "NO_DATA"
	StateOK       TransactionState = "OK"
	StateSlowing  TransactionState = "SLOWING"
	StateCritical TransactionState = "CRITICAL"
)

// TransactionData describes one transaction in the active and baseline windows.
type TransactionData struct {
	Name                string
	State               TransactionState
	Invocations         int64
	AvgTimeMs           float64
	BaselineInvocations int64
	BaselineAvgTimeMs   float64
	BaselineStdDevMs    float64
}

// SlowdownSummary counts degraded transactions for one reporting key.
type SlowdownSummary struct {
	Slowdowns       int
	SevereSlowdowns int
}

// SummariseSlowdowns counts SLOWING and CRITICAL transactions.
func SummariseSlowdowns(txs []TransactionData) SlowdownSummary {
	var s SlowdownSummary
	for _, tx := range txs {
		switch tx.State {
		case StateSlowing:
			s.Slowdowns++
		case StateCritical:
			s.SevereSlowdowns++
		}
	}
	return s
}

// Status is the reliability band derived from a score.
type Status string

const (
	StatusOK       Status = "OK"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// ReportKeyResult joins the regression and slowdown results for one reporting key.
type ReportKeyResult struct {
	Key         string
	DisplayName string
	Regression  RegressionOutput
	Slowdown    SlowdownSummary
	Score       float64
	Status      Status
}

// Report is the ordered result of one report request.
type Report struct {
	RunID   string
	Mode    ReportMode
	Window  TimeWindow
	Results []ReportKeyResult
}
