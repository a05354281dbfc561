package services

import (
	"context"
	"fmt"
	"log/slog"

	"season-planner-api/pkg/models"
)

// PlannerOptions configures NewPlanner. Zero values fall back to defaults;
// Explainer, Archive, Progress and Metrics are optional.
type PlannerOptions struct {
	Ensemble    EnsembleConfig
	Seasonal    SeasonalConfig
	Trend       TrendConfig
	Coordinator CoordinatorConfig
	Stores      []models.StoreProfile
	History     *SalesHistoryStore
	Explainer   MarkdownExplainer
	Archive     SeasonArchiver
	Progress    ProgressChannel
	Metrics     *PlannerMetrics
	Logger      *slog.Logger
}

// Planner is the assembled planning system shared by the HTTP server and
// the CLI.
type Planner struct {
	History     *SalesHistoryStore
	Broker      *ProgressBroker
	Handoff     *AgentHandoffManager
	Coordinator *WorkflowCoordinator
	Workflows   *WorkflowService
	Metrics     *PlannerMetrics
	Progress    ProgressChannel

	newEnsemble func() *EnsembleForecaster
	logger      *slog.Logger
}

// NewPlanner wires the forecasters, the three agents and the coordinator.
func NewPlanner(opts PlannerOptions) (*Planner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	history := opts.History
	if history == nil {
		history = NewSalesHistoryStore()
	}
	if opts.Ensemble == (EnsembleConfig{}) {
		opts.Ensemble = DefaultEnsembleConfig()
	}
	if opts.Seasonal == (SeasonalConfig{}) {
		opts.Seasonal = DefaultSeasonalConfig()
	}
	if opts.Trend == (TrendConfig{}) {
		opts.Trend = DefaultTrendConfig()
	}
	if opts.Coordinator.ReviewConfidence == 0 {
		opts.Coordinator.ReviewConfidence = DefaultCoordinatorConfig().ReviewConfidence
	}

	broker := NewProgressBroker()
	var progress ProgressChannel = broker
	if opts.Progress != nil {
		progress = MultiProgress{broker, opts.Progress}
	}

	p := &Planner{
		History:  history,
		Broker:   broker,
		Metrics:  opts.Metrics,
		Progress: progress,
		logger:   logger,
	}
	seasonal, trend, ensemble := opts.Seasonal, opts.Trend, opts.Ensemble
	p.newEnsemble = func() *EnsembleForecaster {
		return NewEnsembleForecaster(ensemble,
			func() SeriesForecaster { return NewSeasonalForecaster(seasonal) },
			func() SeriesForecaster { return NewTrendForecaster(trend) },
			logger, opts.Metrics)
	}

	p.Handoff = NewAgentHandoffManager(logger, opts.Metrics)
	agents := map[string]AgentHandler{
		AgentDemand:    NewDemandAgent(p.newEnsemble, progress, logger),
		AgentInventory: NewInventoryAgent(progress, logger),
		AgentPricing:   NewPricingAgent(opts.Explainer, progress, logger),
	}
	for _, name := range []string{AgentDemand, AgentInventory, AgentPricing} {
		if err := p.Handoff.Register(name, agents[name]); err != nil {
			return nil, fmt.Errorf("register %s agent: %w", name, err)
		}
	}

	p.Coordinator = NewWorkflowCoordinator(opts.Coordinator, CoordinatorDeps{
		Handoff:   p.Handoff,
		Assembler: NewContextAssembler(history, opts.Stores),
		Progress:  progress,
		Archive:   opts.Archive,
		Metrics:   opts.Metrics,
		Logger:    logger,
	})
	p.Workflows = NewWorkflowService(p.Coordinator, logger)
	p.Workflows.OnSeasonFinished(func(id string) {
		broker.Compact(id, finishedHistoryLimit)
	})
	return p, nil
}

// Forecast runs the demand agent once, outside any workflow, on the stored
// history for category.
func (p *Planner) Forecast(ctx context.Context, category string, horizon int) (*models.DemandAgentOutput, error) {
	history, _ := p.History.Get(category)
	return p.ForecastSeries(ctx, category, history, horizon)
}

// ForecastSeries runs the demand agent once on an explicit history.
func (p *Planner) ForecastSeries(ctx context.Context, category string, history models.HistoricalSeries, horizon int) (*models.DemandAgentOutput, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be positive", ErrInvalidInput)
	}
	res, err := p.Handoff.Invoke(ctx, AgentDemand, models.AgentContext{
		Phase:     models.PhasePreSeasonPlanning,
		Category:  category,
		History:   history.Clone(),
		Horizon:   horizon,
		StartWeek: 1,
	})
	if err != nil {
		return nil, err
	}
	return res.Demand, nil
}
