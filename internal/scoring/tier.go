package scoring

import "github.com/miyazaki-CS/bidding-system/internal/model"

// Thresholds maps a score to a priority tier. High ≥ Medium ≥ Low must hold
// (config.Load enforces it).
type Thresholds struct {
	High   int
	Medium int
	Low    int
}

// DefaultThresholds are the tuned production values.
var DefaultThresholds = Thresholds{High: 80, Medium: 60, Low: 30}

// Tier classifies score. Pure function, monotonic in score.
func (t Thresholds) Tier(score int) model.Tier {
	switch {
	case score >= t.High:
		return model.TierHigh
	case score >= t.Medium:
		return model.TierMedium
	case score >= t.Low:
		return model.TierLow
	}
	return model.TierNone
}
