package services

import (
	"context"
	"fmt"
	"math"

	"season-planner-api/pkg/models"
)

const (
	minValidationWeeks = 4
	minModelWeight     = 0.1
	maxModelWeight     = 0.9
	mapeEpsilon        = 1e-6
)

// dynamicWeights fits fresh model copies on the head of the history, scores
// them on the held-out tail and weights each model by inverse MAPE.
func (e *EnsembleForecaster) dynamicWeights(ctx context.Context, history models.HistoricalSeries) (models.ModelWeights, error) {
	n := len(history)
	holdout := int(math.Round(float64(n) * e.cfg.ValidationSplit))
	if holdout < minValidationWeeks {
		holdout = minValidationWeeks
	}
	trainN := n - holdout
	if trainN < models.MinHistoryWeeks {
		return models.ModelWeights{}, fmt.Errorf("validation split leaves %d training weeks, need %d", trainN, models.MinHistoryWeeks)
	}
	head, tail := history[:trainN], history[trainN:].Values()

	seasonal, trend := e.newSeasonal(), e.newTrend()
	sOut, tOut := e.trainPair(ctx, seasonal, trend, head)
	if sOut.Status == OutcomeFailed || tOut.Status == OutcomeFailed {
		return models.ModelWeights{}, fmt.Errorf("validation fit failed: seasonal=%s trend=%s", sOut.Status, tOut.Status)
	}
	sRes, err := e.forecastOne(ctx, seasonal, holdout)
	if err != nil {
		return models.ModelWeights{}, fmt.Errorf("validation forecast: %w", err)
	}
	tRes, err := e.forecastOne(ctx, trend, holdout)
	if err != nil {
		return models.ModelWeights{}, fmt.Errorf("validation forecast: %w", err)
	}

	sMAPE := meanAbsolutePercentageError(tail, sRes.Predictions, mapeEpsilon)
	tMAPE := meanAbsolutePercentageError(tail, tRes.Predictions, mapeEpsilon)
	w := inverseErrorWeights(sMAPE, tMAPE)
	e.logger.Debug("Dynamic ensemble weights",
		"seasonal_mape", sMAPE,
		"trend_mape", tMAPE,
		"seasonal_weight", w.Seasonal,
		"trend_weight", w.Trend)
	return w, nil
}

// inverseErrorWeights turns two validation errors into weights that sum to 1,
// each kept within [0.1, 0.9].
func inverseErrorWeights(seasonalErr, trendErr float64) models.ModelWeights {
	invS := 1 / math.Max(seasonalErr, mapeEpsilon)
	invT := 1 / math.Max(trendErr, mapeEpsilon)
	ws := invS / (invS + invT)
	if !finite(ws) {
		ws = 0.5
	}
	ws = clampFloat(ws, minModelWeight, maxModelWeight)
	return models.ModelWeights{Seasonal: ws, Trend: 1 - ws, Dynamic: true}
}
