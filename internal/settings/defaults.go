package settings

import "github.com/miradorstack/mirador-reliability/internal/models"

// Defaults returns the settings used for a service that never saved a document. Score weights are
// deliberately absent so that reports fail until weights are configured.
func Defaults(serviceID string) models.ServiceSettings {
	return models.ServiceSettings{
		ServiceID: serviceID,
		Regression: models.RegressionSettings{
			ActiveTimespanMinutes:   1440,
			BaselineTimespanMinutes: 10080,
			MinVolumeThreshold:      50,
			MinErrorRateThreshold:   0.1,
			RegressionDelta:         0.5,
			CriticalRegressionDelta: 1,
		},
		Reliability: models.ReliabilitySettings{
			Thresholds: models.ScoreThresholds{Warning: 85, Critical: 70},
		},
		Slowdown: models.SlowdownSettings{
			ActiveInvocationsThreshold:   50,
			BaselineInvocationsThreshold: 50,
			OverAvgSlowingPercentage:     30,
			OverAvgCriticalPercentage:    60,
			StdDevFactor:                 1.5,
			MinDeltaThresholdMs:          5,
		},
	}
}

// DefaultWeights is the documented starting set of score weights written into new settings templates.
func DefaultWeights() models.ScoreWeights {
	return models.ScoreWeights{
		NewEvent:           1,
		SevereNewEvent:     2,
		CriticalRegression: 2,
		Regression:         1,
		Weight:             2.5,
	}
}

// Template is Defaults plus DefaultWeights, suitable as a first document for a new service.
func Template(serviceID string) models.ServiceSettings {
	doc := Defaults(serviceID)
	weights := DefaultWeights()
	doc.Reliability.Weights = &weights
	return doc
}
