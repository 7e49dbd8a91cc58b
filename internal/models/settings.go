package models

// ServiceSettings is the per-service configuration document kept by the settings store.
type ServiceSettings struct {
	ServiceID   string              `json:"service_id"`
	Regression  RegressionSettings  `json:"regression"`
	Reliability ReliabilitySettings `json:"reliability"`
	Slowdown    SlowdownSettings    `json:"slowdown"`
	KeyTiers    []string            `json:"key_tiers,omitempty"`
	CostFactors map[string]float64  `json:"cost_factors,omitempty"`
}

// RegressionSettings are passed through to the backend regression computation.
type RegressionSettings struct {
	ActiveTimespanMinutes   int      `json:"active_timespan_minutes"`
	BaselineTimespanMinutes int      `json:"baseline_timespan_minutes"`
	MinVolumeThreshold      int64    `json:"min_volume_threshold"`
	MinErrorRateThreshold   float64  `json:"min_error_rate_threshold"`
	RegressionDelta         float64  `json:"regression_delta"`
	CriticalRegressionDelta float64  `json:"critical_regression_delta"`
	CriticalExceptionTypes  []string `json:"critical_exception_types,omitempty"`
}

// ScoreWeights are the coefficients folded into a reliability score.
type ScoreWeights struct {
	NewEvent           float64 `json:"new_event_score"`
	SevereNewEvent     float64 `json:"severe_new_event_score"`
	CriticalRegression float64 `json:"critical_regression_score"`
	Regression         float64 `json:"regression_score"`
	Weight             float64 `json:"score_weight"`
}

// ScoreThresholds bound the score bands: below Critical is CRITICAL, below Warning is WARNING.
type ScoreThresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// StatusPostfixes are appended to a key's display name according to its status.
type StatusPostfixes struct {
	OK       string `json:"ok,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Critical string `json:"critical,omitempty"`
}

// ReliabilitySettings carry the scoring configuration.
type ReliabilitySettings struct {
	Weights    *ScoreWeights   `json:"weights,omitempty"`
	Thresholds ScoreThresholds `json:"thresholds"`
	Postfixes  StatusPostfixes `json:"postfixes"`
}

// SlowdownSettings drive transaction classification when the backend omits a state.
type SlowdownSettings struct {
	ActiveInvocationsThreshold   int64   `json:"active_invocations_threshold"`
	BaselineInvocationsThreshold int64   `json:"baseline_invocations_threshold"`
	OverAvgSlowingPercentage     float64 `json:"over_avg_slowing_percentage"`
	OverAvgCriticalPercentage    float64 `json:"over_avg_critical_percentage"`
	StdDevFactor                 float64 `json:"std_dev_factor"`
	MinDeltaThresholdMs          float64 `json:"min_delta_threshold_ms"`
}
