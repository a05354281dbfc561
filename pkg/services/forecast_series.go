package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"season-planner-api/pkg/models"
)

// SeriesForecaster is a single forecasting backend trained on a weekly series.
type SeriesForecaster interface {
	Name() string
	Train(history models.HistoricalSeries) error
	Forecast(periods int) (models.ForecastResult, error)
	// Confidence of the most recent forecast, in [0,1].
	Confidence() float64
}

// Model names reported in ForecastResult.Model.
const (
	SeasonalModelName = "seasonal"
	TrendModelName    = "trend"
)

// zScoreFor maps a two-sided interval level to a normal quantile.
func zScoreFor(level float64) float64 {
	switch level {
	case 0.80:
		return 1.2816
	case 0.90:
		return 1.645
	case 0.95:
		return 1.96
	case 0.99:
		return 2.576
	default:
		return 1.96
	}
}

// buildForecastResult rounds raw point forecasts and half widths into whole,
// non-negative units with lower <= prediction <= upper.
func buildForecastResult(model string, raw, halfWidth []float64) models.ForecastResult {
	n := len(raw)
	res := models.ForecastResult{
		Model:       model,
		Predictions: make([]int, n),
		LowerBound:  make([]int, n),
		UpperBound:  make([]int, n),
	}
	for i := 0; i < n; i++ {
		res.Predictions[i] = roundUnits(raw[i])
		res.LowerBound[i] = roundUnits(raw[i] - halfWidth[i])
		res.UpperBound[i] = roundUnits(raw[i] + halfWidth[i])
	}
	orderBounds(&res)
	res.Confidence = intervalConfidence(res)
	return res
}

// roundUnits rounds to the nearest whole unit, never below zero.
func roundUnits(v float64) int {
	if !finite(v) || v <= 0 {
		return 0
	}
	return int(math.Round(v))
}

// orderBounds restores lower <= prediction <= upper after rounding.
func orderBounds(res *models.ForecastResult) {
	for i, p := range res.Predictions {
		if res.LowerBound[i] > p {
			res.LowerBound[i] = p
		}
		if res.UpperBound[i] < p {
			res.UpperBound[i] = p
		}
	}
}

// intervalConfidence is 1 - mean interval width / mean prediction, clamped.
func intervalConfidence(res models.ForecastResult) float64 {
	n := len(res.Predictions)
	if n == 0 {
		return 0
	}
	var width, level float64
	for i := 0; i < n; i++ {
		width += float64(res.UpperBound[i] - res.LowerBound[i])
		level += float64(res.Predictions[i])
	}
	if level == 0 {
		return 0
	}
	return clampFloat(1-(width/float64(n))/(level/float64(n)), 0, 1)
}

func checkHistory(history models.HistoricalSeries) error {
	if len(history) < models.MinHistoryWeeks {
		return &InsufficientDataError{Got: len(history), Required: models.MinHistoryWeeks}
	}
	return nil
}

// runWithTimeout runs fn on its own goroutine and gives up after timeout or
// when ctx ends. A panic in fn is returned as an error.
//
// The models cannot be interrupted, so an abandoned fn keeps running until
// it returns on its own. done is buffered and its result is dropped.
func runWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result{val: zero, err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	var zero T
	select {
	case r := <-done:
		return r.val, r.err
	case <-timer.C:
		return zero, fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
