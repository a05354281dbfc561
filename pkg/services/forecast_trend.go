package services

import (
	"math"
	"sync"

	"season-planner-api/pkg/models"
)

// TrendConfig tunes the differenced autoregressive model.
type TrendConfig struct {
	AROrder       int
	Ridge         float64
	IntervalLevel float64
}

// DefaultTrendConfig is an AR(2) on first differences.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{AROrder: 2, Ridge: 1e-6, IntervalLevel: 0.95}
}

// TrendForecaster is an ARIMA(p,1,0) style model: an AR(p) with intercept is
// fitted to first differences and forecasts are integrated back to levels.
type TrendForecaster struct {
	cfg TrendConfig

	mu         sync.Mutex
	trained    bool
	beta       []float64 // intercept, phi_1..phi_p
	sigma      float64
	lastLevel  float64
	lastDiffs  []float64 // most recent first
	confidence float64
}

// NewTrendForecaster creates an untrained trend model.
func NewTrendForecaster(cfg TrendConfig) *TrendForecaster {
	def := DefaultTrendConfig()
	if cfg.AROrder < 0 {
		cfg.AROrder = def.AROrder
	}
	if cfg.AROrder > 8 {
		cfg.AROrder = 8
	}
	if cfg.Ridge <= 0 {
		cfg.Ridge = def.Ridge
	}
	if cfg.IntervalLevel <= 0 {
		cfg.IntervalLevel = def.IntervalLevel
	}
	return &TrendForecaster{cfg: cfg}
}

func (f *TrendForecaster) Name() string { return TrendModelName }

func (f *TrendForecaster) Train(history models.HistoricalSeries) error {
	if err := checkHistory(history); err != nil {
		return err
	}
	levels := history.Values()
	d := firstDifference(levels)
	p := f.cfg.AROrder

	// y_t = c + sum phi_i * d_{t-i}
	rows := len(d) - p
	y := make([]float64, rows)
	X := make([][]float64, p+1)
	for i := range X {
		X[i] = make([]float64, rows)
	}
	for t := p; t < len(d); t++ {
		r := t - p
		y[r] = d[t]
		X[0][r] = 1
		for i := 1; i <= p; i++ {
			X[i][r] = d[t-i]
		}
	}
	beta, sigma, err := olsFit(y, X, f.cfg.Ridge)
	if err != nil {
		return &ModelTrainingError{Model: f.Name(), Reason: "autoregression fit", Err: err}
	}

	last := make([]float64, p)
	for i := 0; i < p; i++ {
		last[i] = d[len(d)-1-i]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.beta = beta
	f.sigma = sigma
	f.lastLevel = levels[len(levels)-1]
	f.lastDiffs = last
	f.trained = true
	f.confidence = 0
	return nil
}

func (f *TrendForecaster) Forecast(periods int) (models.ForecastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.trained {
		return models.ForecastResult{}, ErrNotTrained
	}
	if periods <= 0 {
		return models.ForecastResult{Model: f.Name()}, nil
	}
	p := f.cfg.AROrder
	z := zScoreFor(f.cfg.IntervalLevel)
	recent := make([]float64, p)
	copy(recent, f.lastDiffs)
	level := f.lastLevel

	raw := make([]float64, periods)
	half := make([]float64, periods)
	for h := 1; h <= periods; h++ {
		next := f.beta[0]
		for i := 1; i <= p; i++ {
			next += f.beta[i] * recent[i-1]
		}
		level += next
		raw[h-1] = level
		half[h-1] = z * f.sigma * math.Sqrt(float64(h))
		if p > 0 {
			copy(recent[1:], recent[:p-1])
			recent[0] = next
		}
	}
	res := buildForecastResult(f.Name(), raw, half)
	f.confidence = res.Confidence
	return res, nil
}

func (f *TrendForecaster) Confidence() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confidence
}
