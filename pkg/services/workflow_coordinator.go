package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"season-planner-api/pkg/models"
)

// Workflow errors. None of these record a phase failure.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrTriggerNotReady  = errors.New("trigger not ready")
	ErrWeekOutOfOrder   = errors.New("actuals week out of order")
	ErrPhaseCompleted   = errors.New("phase already completed")
	ErrWorkflowTerminal = errors.New("workflow has ended")
	ErrWrongPhase       = errors.New("operation not valid in current phase")
	ErrInvalidInput     = errors.New("invalid input")
	ErrReportNotReady   = errors.New("season report not available yet")
)

// SeasonArchiver stores finished seasons for later similarity search.
type SeasonArchiver interface {
	ArchiveSeason(ctx context.Context, report models.SeasonReport, actuals []int) error
}

// CoordinatorConfig holds the tunable coordinator rules.
type CoordinatorConfig struct {
	Thresholds       VarianceThresholds
	ReviewConfidence float64
}

// DefaultCoordinatorConfig uses 10%/20% variance bands and a 0.70 review bar.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{Thresholds: DefaultVarianceThresholds(), ReviewConfidence: 0.70}
}

// WorkflowCoordinator drives a season through its phases. It holds no
// per-workflow state; every method works on the state it is given.
type WorkflowCoordinator struct {
	cfg       CoordinatorConfig
	handoff   *AgentHandoffManager
	assembler *ContextAssembler
	progress  ProgressChannel
	archive   SeasonArchiver
	metrics   *PlannerMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// CoordinatorDeps bundles the coordinator's collaborators. Progress,
// Archive and Metrics are optional.
type CoordinatorDeps struct {
	Handoff   *AgentHandoffManager
	Assembler *ContextAssembler
	Progress  ProgressChannel
	Archive   SeasonArchiver
	Metrics   *PlannerMetrics
	Logger    *slog.Logger
}

func NewWorkflowCoordinator(cfg CoordinatorConfig, deps CoordinatorDeps) *WorkflowCoordinator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Thresholds == (VarianceThresholds{}) {
		cfg.Thresholds = DefaultVarianceThresholds()
	}
	return &WorkflowCoordinator{
		cfg:       cfg,
		handoff:   deps.Handoff,
		assembler: deps.Assembler,
		progress:  deps.Progress,
		archive:   deps.Archive,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// NewWorkflowState validates params and returns a workflow in
// PreSeasonPlanning.
func NewWorkflowState(category string, params models.SeasonParameters) (*models.WorkflowState, error) {
	if strings.TrimSpace(category) == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	now := time.Now()
	return &models.WorkflowState{
		ID:              uuid.NewString(),
		Category:        category,
		Params:          cloneParams(params),
		Phase:           models.PhasePreSeasonPlanning,
		CompletedPhases: make(map[models.WorkflowPhase]bool),
		Timeline:        []models.PhaseTransition{{Phase: models.PhasePreSeasonPlanning, At: now}},
		SeasonLength:    params.ForecastHorizonWeeks,
		WeeklyPlan:      make(map[int]int),
		Actuals:         make(map[int]int),
		NextTrigger:     models.NextTrigger{Kind: models.TriggerNone},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// checkPhase guards entry into a non-repeating phase.
func checkPhase(st *models.WorkflowState, phase models.WorkflowPhase) error {
	if st.Terminal() {
		return ErrWorkflowTerminal
	}
	if st.CompletedPhases[phase] {
		return fmt.Errorf("%w: %s", ErrPhaseCompleted, phase)
	}
	if st.Phase != phase {
		return fmt.Errorf("%w: workflow is in %s, not %s", ErrWrongPhase, st.Phase, phase)
	}
	return nil
}

// RunPreSeason forecasts the whole season and sizes manufacturing.
func (c *WorkflowCoordinator) RunPreSeason(ctx context.Context, st *models.WorkflowState) error {
	if err := checkPhase(st, models.PhasePreSeasonPlanning); err != nil {
		return err
	}
	return c.transact(st, func(work *models.WorkflowState) error {
		c.emit(work, "", models.ProgressStarted, 0, "pre-season planning started")

		if err := c.runDemand(ctx, work); err != nil {
			return err
		}
		plan, err := c.runInventory(ctx, work, models.PlanManufacturing)
		if err != nil {
			return err
		}
		work.ManufacturingPlan = plan
		work.Inventory.ManufacturedUnits = plan.ManufacturingUnits
		work.Inventory.DCUnits = plan.DCUnits

		c.complete(work, models.PhasePreSeasonPlanning)
		c.transition(work, models.PhaseInitialAllocation)
		work.NextTrigger = models.NextTrigger{Kind: models.TriggerSeasonStart, Due: work.Params.SeasonStartDate}
		c.emit(work, "", models.ProgressCompleted, 100,
			fmt.Sprintf("pre-season planning complete: %d units forecast, %d to manufacture",
				work.Forecast.TotalDemand, plan.ManufacturingUnits))
		return nil
	})
}

// RunInitialAllocation ships the first allocation once the season starts.
func (c *WorkflowCoordinator) RunInitialAllocation(ctx context.Context, st *models.WorkflowState, now time.Time) error {
	if err := checkPhase(st, models.PhaseInitialAllocation); err != nil {
		return err
	}
	if now.Before(st.Params.SeasonStartDate) {
		return fmt.Errorf("%w: season starts %s", ErrTriggerNotReady, st.Params.SeasonStartDate.Format("2006-01-02"))
	}
	return c.transact(st, func(work *models.WorkflowState) error {
		c.emit(work, "", models.ProgressStarted, 0, "initial allocation started")
		plan, err := c.runInventory(ctx, work, models.PlanAllocation)
		if err != nil {
			return err
		}
		work.AllocationPlan = plan
		work.Inventory.DCUnits = plan.DCUnits
		work.Inventory.StoreUnits = plan.StoreUnits()

		c.complete(work, models.PhaseInitialAllocation)
		c.transition(work, models.PhaseInSeasonMonitoring)
		work.NextTrigger = c.weeklyTrigger(work, 1)
		c.emit(work, "", models.ProgressCompleted, 100,
			fmt.Sprintf("initial allocation complete: %d units to stores, %d held at DC", work.Inventory.StoreUnits, work.Inventory.DCUnits))
		return nil
	})
}

// SubmitActuals records one week of sales and reacts to it. Weeks must be
// submitted in order. Nothing is committed unless every step succeeds.
func (c *WorkflowCoordinator) SubmitActuals(ctx context.Context, st *models.WorkflowState, week, units int) (*models.VarianceRecord, error) {
	if st.Terminal() {
		return nil, ErrWorkflowTerminal
	}
	if st.Phase != models.PhaseInSeasonMonitoring {
		if st.Phase == models.PhaseSeasonEnd {
			return nil, ErrWorkflowTerminal
		}
		return nil, fmt.Errorf("%w: workflow is in %s", ErrWrongPhase, st.Phase)
	}
	if week != st.CurrentWeek+1 || week > st.SeasonLength {
		return nil, fmt.Errorf("%w: expected week %d, got %d", ErrWeekOutOfOrder, st.CurrentWeek+1, week)
	}
	if units < 0 {
		return nil, fmt.Errorf("%w: actual units must not be negative", ErrInvalidInput)
	}

	var record models.VarianceRecord
	err := c.transact(st, func(work *models.WorkflowState) error {
		forecast := work.WeeklyPlan[week]
		variance, status := ClassifyVariance(forecast, units, c.cfg.Thresholds)
		record = models.VarianceRecord{
			WeekNumber:    week,
			ForecastUnits: forecast,
			ActualUnits:   units,
			VariancePct:   variance,
			Status:        status,
			RecordedAt:    c.now(),
		}
		work.VarianceHistory = append(work.VarianceHistory, record)
		work.Actuals[week] = units
		work.CurrentWeek = week
		sellThrough(&work.Inventory, units)
		c.metrics.ObserveVariance(status)
		c.emit(work, "", models.ProgressRunning, weekProgress(week, work.SeasonLength),
			fmt.Sprintf("week %d actuals %d vs forecast %d (%+.1f%%, %s)", week, units, forecast, variance*100, status))

		if week == work.SeasonLength {
			c.transition(work, models.PhaseSeasonEnd)
			work.NextTrigger = models.NextTrigger{Kind: models.TriggerNone}
			return nil
		}

		if status == models.VarianceHigh {
			if err := c.reforecast(ctx, work, week, "variance", variance, status); err != nil {
				return err
			}
		} else if replenishDue(work.Params.ReplenishmentStrategy, week) {
			if err := c.replenish(ctx, work); err != nil {
				return err
			}
		}

		if cp := work.Params.MarkdownCheckpointWeek; cp != nil && *cp == week && !work.CompletedPhases[models.PhaseMidSeasonPricing] {
			if err := c.runPricing(ctx, work); err != nil {
				return err
			}
		}
		work.NextTrigger = c.weeklyTrigger(work, week+1)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FinishSeason aggregates the season report and archives the season.
func (c *WorkflowCoordinator) FinishSeason(ctx context.Context, st *models.WorkflowState) (*models.SeasonReport, error) {
	if st.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrPhaseCompleted, models.PhaseSeasonEnd)
	}
	if st.Phase != models.PhaseSeasonEnd {
		return nil, fmt.Errorf("%w: workflow is in %s", ErrWrongPhase, st.Phase)
	}
	report := BuildSeasonReport(st, c.now())
	st.Report = &report
	st.CompletedPhases[models.PhaseInSeasonMonitoring] = true
	st.CompletedPhases[models.PhaseSeasonEnd] = true
	st.NextTrigger = models.NextTrigger{Kind: models.TriggerNone}
	st.Failure = nil
	st.UpdatedAt = c.now()

	if c.archive != nil {
		if err := c.archive.ArchiveSeason(ctx, report, ActualCurve(st)); err != nil {
			c.logger.Warn("Failed to archive season", "workflow_id", st.ID, "error", err)
		}
	}
	c.emit(st, "", models.ProgressCompleted, 100,
		fmt.Sprintf("season complete: %d units sold, MAPE %.1f%%", report.ActualUnits, report.MAPE*100))
	return &report, nil
}

// transact runs fn on a copy of st and commits it only on success. Agent
// failures are recorded on st so the caller can inspect and retry.
func (c *WorkflowCoordinator) transact(st *models.WorkflowState, fn func(work *models.WorkflowState) error) error {
	work := st.Clone()
	work.Failure = nil
	if err := fn(work); err != nil {
		c.fail(st, work, err)
		return err
	}
	work.UpdatedAt = c.now()
	*st = *work
	return nil
}

func (c *WorkflowCoordinator) fail(st, work *models.WorkflowState, err error) {
	f := &models.PhaseFailure{
		Phase:   work.Phase,
		Kind:    KindAgentFailure,
		Message: err.Error(),
		Week:    work.CurrentWeek,
		At:      c.now(),
	}
	var he *HandoffError
	if errors.As(err, &he) {
		f.Agent = he.Agent
		f.Kind = he.Kind
	}
	st.Failure = f
	st.UpdatedAt = f.At
	c.logger.Error("Workflow phase failed",
		"workflow_id", st.ID,
		"phase", f.Phase,
		"agent", f.Agent,
		"kind", f.Kind,
		"error", err)
	c.emit(work, f.Agent, models.ProgressFailed, 0, fmt.Sprintf("%s failed: %s", f.Phase, f.Message))
}

// runDemand invokes the demand agent and adopts its forecast.
func (c *WorkflowCoordinator) runDemand(ctx context.Context, work *models.WorkflowState) error {
	actx := c.assembler.Build(work, AgentDemand)
	res, err := c.handoff.Invoke(ctx, AgentDemand, actx)
	if err != nil {
		return err
	}
	if res.Demand == nil {
		return &HandoffError{Agent: AgentDemand, Kind: KindAgentFailure, Message: "demand agent returned no forecast"}
	}
	work.DemandCalls++
	out := res.Demand
	work.Forecast = out
	if work.InitialForecast == nil {
		work.InitialForecast = out.Clone()
	}
	for i, units := range out.ForecastByWeek {
		work.WeeklyPlan[out.StartWeek+i] = units
	}
	if out.Confidence < c.cfg.ReviewConfidence {
		msg := fmt.Sprintf("forecast confidence %.2f below %.2f, review recommended", out.Confidence, c.cfg.ReviewConfidence)
		work.ReviewFlags = append(work.ReviewFlags, models.ReviewFlag{
			Week:       work.CurrentWeek,
			Confidence: out.Confidence,
			Message:    msg,
			At:         c.now(),
		})
		c.emit(work, AgentDemand, models.ProgressReviewRequired, 100, msg)
	}
	return nil
}

func (c *WorkflowCoordinator) runInventory(ctx context.Context, work *models.WorkflowState, kind models.InventoryPlanKind) (*models.InventoryPlan, error) {
	actx := c.assembler.Build(work, AgentInventory)
	actx.PlanKind = kind
	res, err := c.handoff.Invoke(ctx, AgentInventory, actx)
	if err != nil {
		return nil, err
	}
	if res.Inventory == nil {
		return nil, &HandoffError{Agent: AgentInventory, Kind: KindAgentFailure, Message: "inventory agent returned no plan"}
	}
	return res.Inventory, nil
}

// replenish moves next week's top-up from the DC to the stores.
func (c *WorkflowCoordinator) replenish(ctx context.Context, work *models.WorkflowState) error {
	plan, err := c.runInventory(ctx, work, models.PlanReplenishment)
	if err != nil {
		return err
	}
	work.Inventory.DCUnits -= plan.ReplenishmentUnits
	work.Inventory.StoreUnits += plan.ReplenishmentUnits
	work.ReplenishmentPlans = append(work.ReplenishmentPlans, *plan)
	return nil
}

// reforecast re-runs demand over the remaining weeks, then replenishment.
func (c *WorkflowCoordinator) reforecast(ctx context.Context, work *models.WorkflowState, week int, reason string, variance float64, status models.VarianceStatus) error {
	c.emit(work, AgentDemand, models.ProgressStarted, 0,
		fmt.Sprintf("re-forecast weeks %d-%d (%s)", week+1, work.SeasonLength, reason))
	if err := c.runDemand(ctx, work); err != nil {
		return err
	}
	work.Reforecasts = append(work.Reforecasts, models.ReforecastRecord{
		TriggerWeek: week,
		Reason:      reason,
		FromWeek:    week + 1,
		ToWeek:      work.SeasonLength,
		VariancePct: variance,
		ModelUsed:   work.Forecast.ModelUsed,
		TotalDemand: work.Forecast.TotalDemand,
		Status:      status,
		At:          c.now(),
	})
	c.metrics.ObserveReforecast()
	return c.replenish(ctx, work)
}

// runPricing runs the MidSeasonPricing phase and returns to monitoring.
func (c *WorkflowCoordinator) runPricing(ctx context.Context, work *models.WorkflowState) error {
	c.transition(work, models.PhaseMidSeasonPricing)
	actx := c.assembler.Build(work, AgentPricing)
	res, err := c.handoff.Invoke(ctx, AgentPricing, actx)
	if err != nil {
		return err
	}
	if res.Pricing == nil {
		return &HandoffError{Agent: AgentPricing, Kind: KindAgentFailure, Message: "pricing agent returned no decision"}
	}
	work.Pricing = res.Pricing
	if res.Pricing.MarkdownRecommended {
		work.UnitPrice = res.Pricing.NewPrice
		if err := c.reforecast(ctx, work, work.CurrentWeek, "markdown", 0, ""); err != nil {
			return err
		}
	}
	c.complete(work, models.PhaseMidSeasonPricing)
	c.transition(work, models.PhaseInSeasonMonitoring)
	return nil
}

func (c *WorkflowCoordinator) complete(work *models.WorkflowState, phase models.WorkflowPhase) {
	work.CompletedPhases[phase] = true
}

func (c *WorkflowCoordinator) transition(work *models.WorkflowState, phase models.WorkflowPhase) {
	work.Phase = phase
	work.Timeline = append(work.Timeline, models.PhaseTransition{Phase: phase, Week: work.CurrentWeek, At: c.now()})
}

func (c *WorkflowCoordinator) weeklyTrigger(work *models.WorkflowState, week int) models.NextTrigger {
	return models.NextTrigger{
		Kind: models.TriggerWeeklyActuals,
		Week: week,
		Due:  work.Params.SeasonStartDate.AddDate(0, 0, 7*week),
	}
}

func (c *WorkflowCoordinator) emit(st *models.WorkflowState, agent string, status models.ProgressStatus, pct int, msg string) {
	safePublish(c.progress, c.logger, models.ProgressEvent{
		WorkflowID:  st.ID,
		Phase:       st.Phase,
		AgentName:   agent,
		Status:      status,
		ProgressPct: pct,
		Message:     msg,
	})
}

// replenishDue applies the replenishment strategy to a completed week.
func replenishDue(strategy models.ReplenishmentStrategy, week int) bool {
	switch strategy {
	case models.ReplenishWeekly:
		return true
	case models.ReplenishBiWeekly:
		return week%2 == 0
	default:
		return false
	}
}

// sellThrough fills demand from store stock first, then from the DC.
func sellThrough(pos *models.InventoryPosition, demand int) {
	fromStores := min(demand, pos.StoreUnits)
	pos.StoreUnits -= fromStores
	fromDC := min(demand-fromStores, pos.DCUnits)
	pos.DCUnits -= fromDC
	pos.SoldUnits += fromStores + fromDC
	pos.LostSales += demand - fromStores - fromDC
}

func weekProgress(week, length int) int {
	if length <= 0 {
		return 0
	}
	return week * 100 / length
}

// ActualCurve returns the submitted actuals indexed by week-1.
func ActualCurve(st *models.WorkflowState) []int {
	out := make([]int, st.SeasonLength)
	for w := 1; w <= st.SeasonLength; w++ {
		out[w-1] = st.Actuals[w]
	}
	return out
}
