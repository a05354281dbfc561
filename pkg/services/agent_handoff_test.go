package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"season-planner-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoffRegister(t *testing.T) {
	m := NewAgentHandoffManager(nil, nil)
	noop := AgentHandlerFunc(func(context.Context, models.AgentContext) (models.AgentResult, error) {
		return models.AgentResult{}, nil
	})

	require.NoError(t, m.Register(AgentDemand, noop))
	assert.True(t, m.Registered(AgentDemand))
	assert.False(t, m.Registered(AgentPricing))

	assert.Error(t, m.Register(AgentDemand, noop))
	assert.Error(t, m.Register("", noop))
	assert.Error(t, m.Register(AgentPricing, nil))
}

func TestHandoffUnknownAgent(t *testing.T) {
	m := NewAgentHandoffManager(nil, nil)
	_, err := m.Invoke(context.Background(), "forecaster", models.AgentContext{})
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestHandoffPassesContextAndResult(t *testing.T) {
	m := NewAgentHandoffManager(nil, nil)
	var seen models.AgentContext
	require.NoError(t, m.Register(AgentPricing, AgentHandlerFunc(func(_ context.Context, actx models.AgentContext) (models.AgentResult, error) {
		seen = actx
		return models.AgentResult{Pricing: &models.PricingDecision{Week: actx.CurrentWeek}}, nil
	})))

	res, err := m.Invoke(context.Background(), AgentPricing, models.AgentContext{WorkflowID: "wf", CurrentWeek: 6})
	require.NoError(t, err)
	require.NotNil(t, res.Pricing)
	assert.Equal(t, 6, res.Pricing.Week)
	assert.Equal(t, AgentPricing, seen.AgentName)
	assert.Equal(t, "wf", seen.WorkflowID)
}

func TestHandoffMapsErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     string
		sentinel error
	}{
		{"insufficient data", &InsufficientDataError{Got: 3, Required: 26}, KindInsufficientData, ErrInsufficientData},
		{"forecasting", &ForecastingError{Reason: "no usable model"}, KindForecasting, ErrForecasting},
		{"training", &ModelTrainingError{Model: "trend", Reason: "fit"}, KindForecasting, ErrForecasting},
		{"validation", &OutputValidationError{Violations: []string{"x"}}, KindOutputValidation, ErrOutputValidation},
		{"not trained", ErrNotTrained, KindNotTrained, ErrNotTrained},
		{"wrapped", fmt.Errorf("demand: %w", ErrInsufficientData), KindInsufficientData, ErrInsufficientData},
		{"other", errors.New("disk full"), KindAgentFailure, ErrAgentFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAgentHandoffManager(nil, nil)
			require.NoError(t, m.Register(AgentDemand, AgentHandlerFunc(func(context.Context, models.AgentContext) (models.AgentResult, error) {
				return models.AgentResult{Demand: &models.DemandAgentOutput{}}, tt.err
			})))

			res, err := m.Invoke(context.Background(), AgentDemand, models.AgentContext{})
			require.Error(t, err)
			assert.Nil(t, res.Demand)

			var he *HandoffError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, AgentDemand, he.Agent)
			assert.Equal(t, tt.kind, he.Kind)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestHandoffRecoversPanic(t *testing.T) {
	m := NewAgentHandoffManager(nil, NewPlannerMetrics())
	require.NoError(t, m.Register(AgentInventory, AgentHandlerFunc(func(context.Context, models.AgentContext) (models.AgentResult, error) {
		panic("index out of range")
	})))

	_, err := m.Invoke(context.Background(), AgentInventory, models.AgentContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAgentPanic)

	var he *HandoffError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, KindAgentPanic, he.Kind)
	assert.Contains(t, he.Message, "index out of range")
}
