package services

import (
	"math"
	"sync"

	"season-planner-api/pkg/models"
)

// SeasonalConfig tunes the harmonic regression model.
type SeasonalConfig struct {
	PeriodWeeks   int
	Harmonics     int
	Ridge         float64
	IntervalLevel float64
}

// DefaultSeasonalConfig is a yearly cycle with three harmonics.
func DefaultSeasonalConfig() SeasonalConfig {
	return SeasonalConfig{PeriodWeeks: 52, Harmonics: 3, Ridge: 1e-6, IntervalLevel: 0.95}
}

// SeasonalForecaster fits level + linear trend + Fourier terms of a fixed
// period by least squares.
type SeasonalForecaster struct {
	cfg SeasonalConfig

	mu         sync.Mutex
	trained    bool
	beta       []float64
	sigma      float64
	n          int
	confidence float64
}

// NewSeasonalForecaster creates an untrained seasonal model.
func NewSeasonalForecaster(cfg SeasonalConfig) *SeasonalForecaster {
	def := DefaultSeasonalConfig()
	if cfg.PeriodWeeks < 2 {
		cfg.PeriodWeeks = def.PeriodWeeks
	}
	if cfg.Harmonics < 0 {
		cfg.Harmonics = def.Harmonics
	}
	if limit := cfg.PeriodWeeks / 2; cfg.Harmonics > limit {
		cfg.Harmonics = limit
	}
	if cfg.Ridge <= 0 {
		cfg.Ridge = def.Ridge
	}
	if cfg.IntervalLevel <= 0 {
		cfg.IntervalLevel = def.IntervalLevel
	}
	return &SeasonalForecaster{cfg: cfg}
}

func (f *SeasonalForecaster) Name() string { return SeasonalModelName }

// regressors returns the design row for time index t.
func (f *SeasonalForecaster) regressors(t float64) []float64 {
	row := make([]float64, 0, 2+2*f.cfg.Harmonics)
	row = append(row, 1, t)
	p := float64(f.cfg.PeriodWeeks)
	for k := 1; k <= f.cfg.Harmonics; k++ {
		w := 2 * math.Pi * float64(k) * t / p
		row = append(row, math.Sin(w), math.Cos(w))
	}
	return row
}

func (f *SeasonalForecaster) Train(history models.HistoricalSeries) error {
	if err := checkHistory(history); err != nil {
		return err
	}
	y := history.Values()
	n := len(y)
	k := 2 + 2*f.cfg.Harmonics
	X := make([][]float64, k)
	for i := range X {
		X[i] = make([]float64, n)
	}
	for t := 0; t < n; t++ {
		for i, v := range f.regressors(float64(t)) {
			X[i][t] = v
		}
	}
	beta, sigma, err := olsFit(y, X, f.cfg.Ridge)
	if err != nil {
		return &ModelTrainingError{Model: f.Name(), Reason: "harmonic regression fit", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.beta = beta
	f.sigma = sigma
	f.n = n
	f.trained = true
	f.confidence = 0
	return nil
}

func (f *SeasonalForecaster) Forecast(periods int) (models.ForecastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.trained {
		return models.ForecastResult{}, ErrNotTrained
	}
	if periods <= 0 {
		return models.ForecastResult{Model: f.Name()}, nil
	}
	z := zScoreFor(f.cfg.IntervalLevel)
	raw := make([]float64, periods)
	half := make([]float64, periods)
	for h := 1; h <= periods; h++ {
		var pred float64
		for i, v := range f.regressors(float64(f.n - 1 + h)) {
			pred += f.beta[i] * v
		}
		raw[h-1] = pred
		half[h-1] = z * f.sigma * math.Sqrt(1+float64(h)/float64(f.n))
	}
	res := buildForecastResult(f.Name(), raw, half)
	f.confidence = res.Confidence
	return res, nil
}

func (f *SeasonalForecaster) Confidence() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confidence
}
