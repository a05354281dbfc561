package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"season-planner-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingProgress collects published events.
type recordingProgress struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (r *recordingProgress) Publish(ev models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingProgress) Events() []models.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ProgressEvent(nil), r.events...)
}

func validDemandOutput() models.DemandAgentOutput {
	return models.DemandAgentOutput{
		TotalDemand:    60,
		ForecastByWeek: []int{10, 20, 30},
		LowerBound:     []int{5, 15, 25},
		UpperBound:     []int{15, 25, 35},
		SafetyStockPct: 0.2,
		Confidence:     0.8,
		ModelUsed:      models.ModelUsedEnsemble,
		StartWeek:      1,
	}
}

func TestSafetyStockPct(t *testing.T) {
	assert.InDelta(t, 0.1, SafetyStockPct(0.9), 1e-9)
	assert.InDelta(t, 0.1, SafetyStockPct(0.95), 1e-9)
	assert.InDelta(t, 0.3, SafetyStockPct(0.7), 1e-9)
	assert.InDelta(t, 0.5, SafetyStockPct(0.2), 1e-9)
	assert.InDelta(t, 0.5, SafetyStockPct(0), 1e-9)
}

func TestValidateDemandOutput(t *testing.T) {
	require.NoError(t, ValidateDemandOutput(validDemandOutput()))

	tests := []struct {
		name   string
		mutate func(o *models.DemandAgentOutput)
		want   string
	}{
		{"empty forecast", func(o *models.DemandAgentOutput) {
			o.ForecastByWeek, o.LowerBound, o.UpperBound, o.TotalDemand = nil, nil, nil, 0
		}, "forecast_by_week is empty"},
		{"total mismatch", func(o *models.DemandAgentOutput) { o.TotalDemand = 61 }, "total_demand 61"},
		{"negative week", func(o *models.DemandAgentOutput) {
			o.ForecastByWeek[0], o.LowerBound[0], o.TotalDemand = -1, -1, 49
		}, "negative"},
		{"bounds length", func(o *models.DemandAgentOutput) { o.UpperBound = o.UpperBound[:2] }, "bounds length"},
		{"bounds order", func(o *models.DemandAgentOutput) { o.UpperBound[1] = 19 }, "out of order"},
		{"confidence", func(o *models.DemandAgentOutput) { o.Confidence = 1.2 }, "confidence"},
		{"safety stock", func(o *models.DemandAgentOutput) { o.SafetyStockPct = 0.6 }, "safety_stock_pct"},
		{"model label", func(o *models.DemandAgentOutput) { o.ModelUsed = "arima" }, "model_used"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := validDemandOutput()
			out.ForecastByWeek = append([]int(nil), out.ForecastByWeek...)
			out.LowerBound = append([]int(nil), out.LowerBound...)
			out.UpperBound = append([]int(nil), out.UpperBound...)
			tt.mutate(&out)

			err := ValidateDemandOutput(out)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOutputValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateDemandOutputReportsAllViolations(t *testing.T) {
	out := validDemandOutput()
	out.TotalDemand = 1
	out.Confidence = -0.5
	out.ModelUsed = ""

	err := ValidateDemandOutput(out)
	var ove *OutputValidationError
	require.True(t, errors.As(err, &ove))
	assert.Len(t, ove.Violations, 3)
}

func TestBuildDemandOutput(t *testing.T) {
	fc := models.EnsembleForecast{
		ForecastResult: models.ForecastResult{
			Predictions: []int{10, 12},
			LowerBound:  []int{8, 9},
			UpperBound:  []int{12, 15},
			Confidence:  0.75,
		},
		ModelUsed: models.ModelUsedSeasonalOnly,
		Weights:   models.ModelWeights{Seasonal: 1},
	}
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	out := BuildDemandOutput(fc, 4, at)
	assert.Equal(t, 22, out.TotalDemand)
	assert.Equal(t, 4, out.StartWeek)
	assert.InDelta(t, 0.25, out.SafetyStockPct, 1e-9)
	assert.Equal(t, at, out.GeneratedAt)

	// the output owns its slices
	out.ForecastByWeek[0] = 0
	assert.Equal(t, 10, fc.Predictions[0])
}

func TestDemandAgentInvoke(t *testing.T) {
	progress := &recordingProgress{}
	agent := NewDemandAgent(func() *EnsembleForecaster {
		return NewDefaultEnsemble(DefaultEnsembleConfig(), nil, nil)
	}, progress, nil)

	res, err := agent.Invoke(context.Background(), models.AgentContext{
		WorkflowID: "wf-1",
		Phase:      models.PhasePreSeasonPlanning,
		History:    syntheticSeries(104),
		Horizon:    12,
		StartWeek:  1,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Demand)
	assert.Len(t, res.Demand.ForecastByWeek, 12)
	assert.Equal(t, models.ModelUsedEnsemble, res.Demand.ModelUsed)
	require.NoError(t, ValidateDemandOutput(*res.Demand))

	events := progress.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, models.ProgressStarted, events[0].Status)
	assert.Equal(t, models.ProgressCompleted, events[len(events)-1].Status)
	for _, ev := range events {
		assert.Equal(t, "wf-1", ev.WorkflowID)
		assert.Equal(t, AgentDemand, ev.AgentName)
		assert.NotEmpty(t, ev.ID)
	}
}

func TestDemandAgentInsufficientHistory(t *testing.T) {
	agent := NewDemandAgent(func() *EnsembleForecaster {
		return NewDefaultEnsemble(DefaultEnsembleConfig(), nil, nil)
	}, nil, nil)

	_, err := agent.Invoke(context.Background(), models.AgentContext{
		History: syntheticSeries(12),
		Horizon: 4,
	})
	assert.ErrorIs(t, err, ErrInsufficientData)
}
