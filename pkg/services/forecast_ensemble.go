package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"season-planner-api/pkg/models"
)

// ForecasterFactory returns a fresh, untrained model instance.
type ForecasterFactory func() SeriesForecaster

// EnsembleConfig controls weighting and per-model time limits.
type EnsembleConfig struct {
	SeasonalWeight  float64
	DynamicWeights  bool
	ValidationSplit float64
	ModelTimeout    time.Duration
}

// DefaultEnsembleConfig is static 0.6/0.4 weighting with a 5s model timeout.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		SeasonalWeight:  0.6,
		ValidationSplit: 0.2,
		ModelTimeout:    5 * time.Second,
	}
}

// OutcomeStatus tags the result of training one model.
type OutcomeStatus string

const (
	OutcomeTrained OutcomeStatus = "trained"
	OutcomeFailed  OutcomeStatus = "failed"
)

// TrainOutcome records whether a model is usable after Train.
type TrainOutcome struct {
	Model  string        `json:"model"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Err    error         `json:"-"`
}

// EnsembleForecaster trains a seasonal and a trend model side by side and
// blends their forecasts. Either model failing degrades to the other one.
type EnsembleForecaster struct {
	cfg         EnsembleConfig
	newSeasonal ForecasterFactory
	newTrend    ForecasterFactory
	logger      *slog.Logger
	metrics     *PlannerMetrics

	mu       sync.Mutex
	seasonal SeriesForecaster
	trend    SeriesForecaster
	outcomes []TrainOutcome
	weights  models.ModelWeights
}

// NewEnsembleForecaster wires the two model constructors.
func NewEnsembleForecaster(cfg EnsembleConfig, newSeasonal, newTrend ForecasterFactory, logger *slog.Logger, metrics *PlannerMetrics) *EnsembleForecaster {
	def := DefaultEnsembleConfig()
	if cfg.SeasonalWeight <= 0 || cfg.SeasonalWeight >= 1 {
		cfg.SeasonalWeight = def.SeasonalWeight
	}
	if cfg.ValidationSplit <= 0 || cfg.ValidationSplit >= 1 {
		cfg.ValidationSplit = def.ValidationSplit
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = def.ModelTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EnsembleForecaster{
		cfg:         cfg,
		newSeasonal: newSeasonal,
		newTrend:    newTrend,
		logger:      logger,
		metrics:     metrics,
	}
}

// NewDefaultEnsemble uses the harmonic and AR(p) models with their defaults.
func NewDefaultEnsemble(cfg EnsembleConfig, logger *slog.Logger, metrics *PlannerMetrics) *EnsembleForecaster {
	return NewEnsembleForecaster(cfg,
		func() SeriesForecaster { return NewSeasonalForecaster(DefaultSeasonalConfig()) },
		func() SeriesForecaster { return NewTrendForecaster(DefaultTrendConfig()) },
		logger, metrics)
}

func (e *EnsembleForecaster) staticWeights() models.ModelWeights {
	return models.ModelWeights{Seasonal: e.cfg.SeasonalWeight, Trend: 1 - e.cfg.SeasonalWeight}
}

// Train fits both models concurrently. It fails only when the history is too
// short or neither model could be trained.
func (e *EnsembleForecaster) Train(ctx context.Context, history models.HistoricalSeries) error {
	if err := checkHistory(history); err != nil {
		return err
	}
	history = history.Clone()

	seasonal, trend := e.newSeasonal(), e.newTrend()
	sOut, tOut := e.trainPair(ctx, seasonal, trend, history)
	for _, o := range []TrainOutcome{sOut, tOut} {
		if o.Status == OutcomeFailed {
			e.metrics.ObserveTrainingFailure(o.Model)
			e.logger.Warn("Model training failed", "model", o.Model, "reason", o.Reason)
		}
	}

	if sOut.Status == OutcomeFailed && tOut.Status == OutcomeFailed {
		e.mu.Lock()
		e.seasonal, e.trend = nil, nil
		e.outcomes = []TrainOutcome{sOut, tOut}
		e.mu.Unlock()
		return &ForecastingError{Reason: "no usable model", Causes: []error{sOut.Err, tOut.Err}}
	}

	weights := e.staticWeights()
	switch {
	case sOut.Status == OutcomeFailed:
		seasonal = nil
		weights = models.ModelWeights{Trend: 1}
	case tOut.Status == OutcomeFailed:
		trend = nil
		weights = models.ModelWeights{Seasonal: 1}
	case e.cfg.DynamicWeights:
		w, err := e.dynamicWeights(ctx, history)
		if err != nil {
			e.logger.Info("Falling back to static ensemble weights", "reason", err.Error())
		} else {
			weights = w
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.seasonal = seasonal
	e.trend = trend
	e.outcomes = []TrainOutcome{sOut, tOut}
	e.weights = weights
	return nil
}

func (e *EnsembleForecaster) trainPair(ctx context.Context, seasonal, trend SeriesForecaster, history models.HistoricalSeries) (TrainOutcome, TrainOutcome) {
	var wg sync.WaitGroup
	var sOut, tOut TrainOutcome
	wg.Add(2)
	go func() {
		defer wg.Done()
		sOut = e.trainOne(ctx, seasonal, history)
	}()
	go func() {
		defer wg.Done()
		tOut = e.trainOne(ctx, trend, history)
	}()
	wg.Wait()
	return sOut, tOut
}

func (e *EnsembleForecaster) trainOne(ctx context.Context, f SeriesForecaster, history models.HistoricalSeries) TrainOutcome {
	_, err := runWithTimeout(ctx, e.cfg.ModelTimeout, func() (struct{}, error) {
		return struct{}{}, f.Train(history)
	})
	if err == nil {
		return TrainOutcome{Model: f.Name(), Status: OutcomeTrained}
	}
	var mte *ModelTrainingError
	if !errors.As(err, &mte) {
		mte = &ModelTrainingError{Model: f.Name(), Reason: err.Error(), Err: err}
	}
	return TrainOutcome{Model: f.Name(), Status: OutcomeFailed, Reason: mte.Reason, Err: mte}
}

// Forecast blends the trained models over the next periods weeks.
func (e *EnsembleForecaster) Forecast(ctx context.Context, periods int) (models.EnsembleForecast, error) {
	if periods <= 0 {
		return models.EnsembleForecast{}, &ForecastingError{Reason: fmt.Sprintf("horizon must be positive, got %d", periods)}
	}
	e.mu.Lock()
	seasonal, trend, weights, outcomes := e.seasonal, e.trend, e.weights, e.outcomes
	e.mu.Unlock()
	if seasonal == nil && trend == nil {
		if outcomes == nil {
			return models.EnsembleForecast{}, ErrNotTrained
		}
		return models.EnsembleForecast{}, &ForecastingError{Reason: "no usable model"}
	}

	start := time.Now()
	var sRes, tRes *models.ForecastResult
	var causes []error
	if seasonal != nil {
		if r, err := e.forecastOne(ctx, seasonal, periods); err != nil {
			causes = append(causes, err)
			e.logger.Warn("Seasonal forecast failed, degrading", "error", err)
		} else {
			sRes = &r
		}
	}
	if trend != nil {
		if r, err := e.forecastOne(ctx, trend, periods); err != nil {
			causes = append(causes, err)
			e.logger.Warn("Trend forecast failed, degrading", "error", err)
		} else {
			tRes = &r
		}
	}

	out, err := combineForecasts(sRes, tRes, weights)
	if err != nil {
		var fe *ForecastingError
		if errors.As(err, &fe) {
			fe.Causes = append(fe.Causes, causes...)
		}
		return models.EnsembleForecast{}, err
	}
	e.metrics.ObserveForecast(out.ModelUsed, time.Since(start))
	return out, nil
}

func (e *EnsembleForecaster) forecastOne(ctx context.Context, f SeriesForecaster, periods int) (models.ForecastResult, error) {
	r, err := runWithTimeout(ctx, e.cfg.ModelTimeout, func() (models.ForecastResult, error) {
		return f.Forecast(periods)
	})
	if err != nil {
		return models.ForecastResult{}, fmt.Errorf("%s forecast: %w", f.Name(), err)
	}
	if len(r.Predictions) != periods {
		return models.ForecastResult{}, fmt.Errorf("%s forecast: got %d periods, want %d", f.Name(), len(r.Predictions), periods)
	}
	return r, nil
}

// Outcomes returns the per-model training outcomes of the last Train.
func (e *EnsembleForecaster) Outcomes() []TrainOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TrainOutcome(nil), e.outcomes...)
}

// Weights returns the weights chosen by the last successful Train.
func (e *EnsembleForecaster) Weights() models.ModelWeights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
}

// combineForecasts merges two optional model results. Nil means the model is
// unavailable.
func combineForecasts(seasonal, trend *models.ForecastResult, w models.ModelWeights) (models.EnsembleForecast, error) {
	switch {
	case seasonal == nil && trend == nil:
		return models.EnsembleForecast{}, &ForecastingError{Reason: "no usable model"}
	case trend == nil:
		return models.EnsembleForecast{
			ForecastResult: cloneResult(*seasonal),
			ModelUsed:      models.ModelUsedSeasonalOnly,
			Weights:        models.ModelWeights{Seasonal: 1},
		}, nil
	case seasonal == nil:
		return models.EnsembleForecast{
			ForecastResult: cloneResult(*trend),
			ModelUsed:      models.ModelUsedTrendOnly,
			Weights:        models.ModelWeights{Trend: 1},
		}, nil
	}
	if len(seasonal.Predictions) != len(trend.Predictions) {
		return models.EnsembleForecast{}, &ForecastingError{Reason: "model horizons differ"}
	}

	n := len(seasonal.Predictions)
	blend := func(a, b int) int {
		return roundUnits(w.Seasonal*float64(a) + w.Trend*float64(b))
	}
	res := models.ForecastResult{
		Model:       string(models.ModelUsedEnsemble),
		Predictions: make([]int, n),
		LowerBound:  make([]int, n),
		UpperBound:  make([]int, n),
		Confidence:  math.Min(seasonal.Confidence, trend.Confidence),
	}
	for i := 0; i < n; i++ {
		res.Predictions[i] = blend(seasonal.Predictions[i], trend.Predictions[i])
		res.LowerBound[i] = blend(seasonal.LowerBound[i], trend.LowerBound[i])
		res.UpperBound[i] = blend(seasonal.UpperBound[i], trend.UpperBound[i])
	}
	orderBounds(&res)
	return models.EnsembleForecast{
		ForecastResult: res,
		ModelUsed:      models.ModelUsedEnsemble,
		Weights:        w,
	}, nil
}

func cloneResult(r models.ForecastResult) models.ForecastResult {
	r.Predictions = append([]int(nil), r.Predictions...)
	r.LowerBound = append([]int(nil), r.LowerBound...)
	r.UpperBound = append([]int(nil), r.UpperBound...)
	return r
}
