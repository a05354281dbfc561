package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"season-planner-api/pkg/models"
)

const (
	minSafetyStockPct = 0.1
	maxSafetyStockPct = 0.5
)

// DemandAgent turns a history snapshot into a validated demand forecast.
type DemandAgent struct {
	newEnsemble func() *EnsembleForecaster
	progress    ProgressChannel
	logger      *slog.Logger
	now         func() time.Time
}

// NewDemandAgent builds a demand agent. newEnsemble is called once per
// invocation so concurrent workflows never share a fitted model.
func NewDemandAgent(newEnsemble func() *EnsembleForecaster, progress ProgressChannel, logger *slog.Logger) *DemandAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &DemandAgent{
		newEnsemble: newEnsemble,
		progress:    progress,
		logger:      logger,
		now:         time.Now,
	}
}

// Invoke trains the ensemble on actx.History and forecasts actx.Horizon weeks.
func (a *DemandAgent) Invoke(ctx context.Context, actx models.AgentContext) (models.AgentResult, error) {
	a.emit(actx, models.ProgressStarted, 10, "training started")

	ens := a.newEnsemble()
	if err := ens.Train(ctx, actx.History); err != nil {
		return models.AgentResult{}, err
	}
	a.emit(actx, models.ProgressRunning, 50, "training complete")

	fc, err := ens.Forecast(ctx, actx.Horizon)
	if err != nil {
		return models.AgentResult{}, err
	}

	out := BuildDemandOutput(fc, actx.StartWeek, a.now())
	if err := ValidateDemandOutput(out); err != nil {
		return models.AgentResult{}, err
	}
	a.logger.Info("Demand forecast generated",
		"workflow_id", actx.WorkflowID,
		"phase", actx.Phase,
		"horizon", actx.Horizon,
		"total_demand", out.TotalDemand,
		"model_used", out.ModelUsed,
		"confidence", out.Confidence)
	a.emit(actx, models.ProgressCompleted, 100,
		fmt.Sprintf("forecast generated: %d units over %d weeks (%s)", out.TotalDemand, len(out.ForecastByWeek), out.ModelUsed))
	return models.AgentResult{Demand: &out}, nil
}

func (a *DemandAgent) emit(actx models.AgentContext, status models.ProgressStatus, pct int, msg string) {
	safePublish(a.progress, a.logger, models.ProgressEvent{
		WorkflowID:  actx.WorkflowID,
		Phase:       actx.Phase,
		AgentName:   AgentDemand,
		Status:      status,
		ProgressPct: pct,
		Message:     msg,
	})
}

// SafetyStockPct is 1 - confidence kept within [0.1, 0.5].
func SafetyStockPct(confidence float64) float64 {
	return clampFloat(1-confidence, minSafetyStockPct, maxSafetyStockPct)
}

// BuildDemandOutput converts an ensemble forecast into the handoff artifact.
func BuildDemandOutput(fc models.EnsembleForecast, startWeek int, at time.Time) models.DemandAgentOutput {
	r := cloneResult(fc.ForecastResult)
	return models.DemandAgentOutput{
		TotalDemand:    r.Total(),
		ForecastByWeek: r.Predictions,
		LowerBound:     r.LowerBound,
		UpperBound:     r.UpperBound,
		SafetyStockPct: SafetyStockPct(r.Confidence),
		Confidence:     r.Confidence,
		ModelUsed:      fc.ModelUsed,
		Weights:        fc.Weights,
		StartWeek:      startWeek,
		GeneratedAt:    at,
	}
}

// ValidateDemandOutput checks every invariant of a demand forecast and
// reports all violations at once.
func ValidateDemandOutput(out models.DemandAgentOutput) error {
	var v []string
	n := len(out.ForecastByWeek)
	if n == 0 {
		v = append(v, "forecast_by_week is empty")
	}
	sum := 0
	for i, p := range out.ForecastByWeek {
		if p < 0 {
			v = append(v, fmt.Sprintf("week %d forecast is negative (%d)", i, p))
		}
		sum += p
	}
	if sum != out.TotalDemand {
		v = append(v, fmt.Sprintf("total_demand %d does not equal sum of weekly forecasts %d", out.TotalDemand, sum))
	}
	if len(out.LowerBound) != n || len(out.UpperBound) != n {
		v = append(v, fmt.Sprintf("bounds length %d/%d does not match forecast length %d", len(out.LowerBound), len(out.UpperBound), n))
	} else {
		for i := 0; i < n; i++ {
			if out.LowerBound[i] < 0 {
				v = append(v, fmt.Sprintf("week %d lower bound is negative (%d)", i, out.LowerBound[i]))
			}
			if out.LowerBound[i] > out.ForecastByWeek[i] || out.ForecastByWeek[i] > out.UpperBound[i] {
				v = append(v, fmt.Sprintf("week %d bounds out of order (%d <= %d <= %d)", i, out.LowerBound[i], out.ForecastByWeek[i], out.UpperBound[i]))
			}
		}
	}
	if math.IsNaN(out.Confidence) || out.Confidence < 0 || out.Confidence > 1 {
		v = append(v, fmt.Sprintf("confidence %.4f outside [0,1]", out.Confidence))
	}
	if math.IsNaN(out.SafetyStockPct) || out.SafetyStockPct < minSafetyStockPct || out.SafetyStockPct > maxSafetyStockPct {
		v = append(v, fmt.Sprintf("safety_stock_pct %.4f outside [%.1f,%.1f]", out.SafetyStockPct, minSafetyStockPct, maxSafetyStockPct))
	}
	if !out.ModelUsed.Valid() {
		v = append(v, fmt.Sprintf("unknown model_used %q", out.ModelUsed))
	}
	if len(v) > 0 {
		return &OutputValidationError{Violations: v}
	}
	return nil
}
