package services

import (
	"math"

	"season-planner-api/pkg/models"
)

const thresholdTolerance = 1e-9

// VarianceThresholds are inclusive upper bounds on |variance| for NORMAL
// and ELEVATED.
type VarianceThresholds struct {
	Elevated float64
	High     float64
}

// DefaultVarianceThresholds is 10% / 20%.
func DefaultVarianceThresholds() VarianceThresholds {
	return VarianceThresholds{Elevated: 0.10, High: 0.20}
}

// ComputeVariance returns (actual - forecast) / forecast. A zero forecast
// yields 1.0 when anything sold and 0 otherwise.
func ComputeVariance(forecast, actual int) float64 {
	if forecast == 0 {
		if actual > 0 {
			return 1.0
		}
		return 0
	}
	return float64(actual-forecast) / float64(forecast)
}

// Classify maps a variance onto a status using its absolute value.
func (t VarianceThresholds) Classify(variance float64) models.VarianceStatus {
	v := math.Abs(variance)
	switch {
	case v <= t.Elevated+thresholdTolerance:
		return models.VarianceNormal
	case v <= t.High+thresholdTolerance:
		return models.VarianceElevated
	default:
		return models.VarianceHigh
	}
}

// ClassifyVariance computes and classifies the variance of one week.
func ClassifyVariance(forecast, actual int, t VarianceThresholds) (float64, models.VarianceStatus) {
	v := ComputeVariance(forecast, actual)
	return v, t.Classify(v)
}
