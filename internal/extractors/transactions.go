package extractors

import (
	"github.com/miradorstack/mirador-reliability/internal/models"
)

// SlowdownClassifier derives a transaction state from active vs baseline response times when the
// backend did not report one.
type SlowdownClassifier struct {
	settings models.SlowdownSettings
}

// NewSlowdownClassifier constructs a SlowdownClassifier for one service's settings.
func NewSlowdownClassifier(settings models.SlowdownSettings) *SlowdownClassifier {
	return &SlowdownClassifier{settings: settings}
}

// Classify returns a copy of txs where every transaction carries a state. Transactions that already
// have a known state keep it.
func (c *SlowdownClassifier) Classify(txs []models.TransactionData) []models.TransactionData {
	if len(txs) == 0 {
		return nil
	}
	out := make([]models.TransactionData, len(txs))
	for i, tx := range txs {
		if !knownState(tx.State) {
			tx.State = c.State(tx)
		}
		out[i] = tx
	}
	return out
}

// State classifies a single transaction.
func (c *SlowdownClassifier) State(tx models.TransactionData) models.TransactionState {
	s := c.settings
	if tx.Invocations < s.ActiveInvocationsThreshold || tx.BaselineInvocations < s.BaselineInvocationsThreshold {
		return models.StateNoData
	}
	if tx.Invocations == 0 || tx.BaselineInvocations == 0 || tx.BaselineAvgTimeMs <= 0 {
		return models.StateNoData
	}

	delta := tx.AvgTimeMs - tx.BaselineAvgTimeMs
	if delta <= 0 || delta < s.MinDeltaThresholdMs {
		return models.StateOK
	}
	// Slower, but within the baseline's normal spread.
	if s.StdDevFactor > 0 && tx.BaselineStdDevMs > 0 && delta <= s.StdDevFactor*tx.BaselineStdDevMs {
		return models.StateOK
	}

	overPct := delta / tx.BaselineAvgTimeMs * 100
	switch {
	case s.OverAvgCriticalPercentage > 0 && overPct >= s.OverAvgCriticalPercentage:
		return models.StateCritical
	case overPct >= s.OverAvgSlowingPercentage:
		return models.StateSlowing
	default:
		return models.StateOK
	}
}

func knownState(state models.TransactionState) bool {
	switch state {
	case models.StateNoData, models.StateOK, models.StateSlowing, models.StateCritical:
		return true
	default:
		return false
	}
}
