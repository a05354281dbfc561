package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"season-planner-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seriesStart = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// syntheticSeries is a trending weekly series with a yearly cycle and a small
// deterministic wobble.
func syntheticSeries(weeks int) models.HistoricalSeries {
	out := make(models.HistoricalSeries, weeks)
	for t := 0; t < weeks; t++ {
		v := 100 + 0.5*float64(t) + 20*math.Sin(2*math.Pi*float64(t)/52) + float64((t*7)%5) - 2
		out[t] = models.WeeklySales{
			WeekStart: seriesStart.AddDate(0, 0, 7*t),
			Quantity:  int(math.Round(v)),
		}
	}
	return out
}

func flatSeries(weeks, units int) models.HistoricalSeries {
	out := make(models.HistoricalSeries, weeks)
	for t := range out {
		out[t] = models.WeeklySales{WeekStart: seriesStart.AddDate(0, 0, 7*t), Quantity: units}
	}
	return out
}

func assertWellFormed(t *testing.T, res models.ForecastResult, periods int) {
	t.Helper()
	require.Len(t, res.Predictions, periods)
	require.Len(t, res.LowerBound, periods)
	require.Len(t, res.UpperBound, periods)
	for i, p := range res.Predictions {
		assert.GreaterOrEqual(t, p, 0, "week %d", i+1)
		assert.LessOrEqual(t, res.LowerBound[i], p, "week %d", i+1)
		assert.GreaterOrEqual(t, res.UpperBound[i], p, "week %d", i+1)
		assert.GreaterOrEqual(t, res.LowerBound[i], 0, "week %d", i+1)
	}
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestForecastersRejectShortHistory(t *testing.T) {
	for _, f := range []SeriesForecaster{
		NewSeasonalForecaster(DefaultSeasonalConfig()),
		NewTrendForecaster(DefaultTrendConfig()),
	} {
		t.Run(f.Name(), func(t *testing.T) {
			err := f.Train(syntheticSeries(10))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInsufficientData))

			var ide *InsufficientDataError
			require.True(t, errors.As(err, &ide))
			assert.Equal(t, 10, ide.Got)
			assert.Equal(t, models.MinHistoryWeeks, ide.Required)
		})
	}
}

func TestForecastersRequireTraining(t *testing.T) {
	_, err := NewSeasonalForecaster(DefaultSeasonalConfig()).Forecast(4)
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = NewTrendForecaster(DefaultTrendConfig()).Forecast(4)
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestSeasonalForecasterProducesBoundedForecast(t *testing.T) {
	f := NewSeasonalForecaster(DefaultSeasonalConfig())
	require.NoError(t, f.Train(syntheticSeries(104)))

	res, err := f.Forecast(12)
	require.NoError(t, err)
	assertWellFormed(t, res, 12)
	assert.Equal(t, SeasonalModelName, res.Model)
	assert.Equal(t, res.Confidence, f.Confidence())

	// Two years of clean history should land near the generating level.
	assert.InDelta(t, 152+20*math.Sin(2*math.Pi*104/52), float64(res.Predictions[0]), 15)
}

func TestSeasonalForecasterAcceptsMinimumHistory(t *testing.T) {
	f := NewSeasonalForecaster(DefaultSeasonalConfig())
	require.NoError(t, f.Train(syntheticSeries(models.MinHistoryWeeks)))

	res, err := f.Forecast(6)
	require.NoError(t, err)
	assertWellFormed(t, res, 6)
}

func TestTrendForecasterFollowsLinearGrowth(t *testing.T) {
	history := make(models.HistoricalSeries, 40)
	for i := range history {
		history[i] = models.WeeklySales{WeekStart: seriesStart.AddDate(0, 0, 7*i), Quantity: 50 + 3*i}
	}
	f := NewTrendForecaster(DefaultTrendConfig())
	require.NoError(t, f.Train(history))

	res, err := f.Forecast(5)
	require.NoError(t, err)
	assertWellFormed(t, res, 5)
	assert.Equal(t, TrendModelName, res.Model)
	for i, p := range res.Predictions {
		assert.InDelta(t, 50+3*(40+i), p, 3, "week %d", i+1)
	}
}

func TestForecastNeverNegative(t *testing.T) {
	// Collapsing sales drive the raw trend below zero.
	history := make(models.HistoricalSeries, 30)
	for i := range history {
		q := 300 - 10*i
		history[i] = models.WeeklySales{WeekStart: seriesStart.AddDate(0, 0, 7*i), Quantity: q}
	}
	f := NewTrendForecaster(DefaultTrendConfig())
	require.NoError(t, f.Train(history))

	res, err := f.Forecast(20)
	require.NoError(t, err)
	assertWellFormed(t, res, 20)
	assert.Equal(t, 0, res.Predictions[19])
}

func TestBuildForecastResultOrdersBounds(t *testing.T) {
	res := buildForecastResult("x", []float64{10.4, -3, 7.6}, []float64{2, 1, 0})

	assert.Equal(t, []int{10, 0, 8}, res.Predictions)
	assert.Equal(t, []int{8, 0, 8}, res.LowerBound)
	assert.Equal(t, []int{12, 0, 8}, res.UpperBound)
}

func TestMeanAbsolutePercentageError(t *testing.T) {
	got := meanAbsolutePercentageError([]float64{100, 200}, []int{110, 180}, 1e-6)
	assert.InDelta(t, 0.1, got, 1e-9)

	assert.True(t, math.IsInf(meanAbsolutePercentageError(nil, nil, 1e-6), 1))
}

func TestSolveSymmetric(t *testing.T) {
	A := [][]float64{{4, 2}, {2, 3}}
	x, err := solveSymmetric(A, []float64{10, 8})
	require.NoError(t, err)
	assert.InDelta(t, 1.75, x[0], 1e-9)
	assert.InDelta(t, 1.5, x[1], 1e-9)
}
