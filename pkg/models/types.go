package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MinHistoryWeeks is the shortest weekly history a forecaster will train on.
const MinHistoryWeeks = 26

// ReplenishmentStrategy controls how often in-season replenishment runs.
type ReplenishmentStrategy string

const (
	ReplenishWeekly   ReplenishmentStrategy = "weekly"
	ReplenishBiWeekly ReplenishmentStrategy = "bi-weekly"
	ReplenishNone     ReplenishmentStrategy = "none"
)

// Valid reports whether s is a known strategy.
func (s ReplenishmentStrategy) Valid() bool {
	switch s {
	case ReplenishWeekly, ReplenishBiWeekly, ReplenishNone:
		return true
	}
	return false
}

// SeasonParameters are fixed for the lifetime of a workflow.
type SeasonParameters struct {
	ForecastHorizonWeeks   int                   `json:"forecast_horizon_weeks" yaml:"forecast_horizon_weeks"`
	SeasonStartDate        time.Time             `json:"season_start_date" yaml:"season_start_date"`
	ReplenishmentStrategy  ReplenishmentStrategy `json:"replenishment_strategy" yaml:"replenishment_strategy"`
	DCHoldbackPct          float64               `json:"dc_holdback_pct" yaml:"dc_holdback_pct"`
	MarkdownCheckpointWeek *int                  `json:"markdown_checkpoint_week,omitempty" yaml:"markdown_checkpoint_week,omitempty"`
}

// Validate checks the parameter ranges.
func (p SeasonParameters) Validate() error {
	if p.ForecastHorizonWeeks <= 0 {
		return fmt.Errorf("forecast_horizon_weeks must be positive, got %d", p.ForecastHorizonWeeks)
	}
	if p.SeasonStartDate.IsZero() {
		return fmt.Errorf("season_start_date is required")
	}
	if !p.ReplenishmentStrategy.Valid() {
		return fmt.Errorf("unknown replenishment_strategy %q", p.ReplenishmentStrategy)
	}
	if p.DCHoldbackPct < 0 || p.DCHoldbackPct > 1 {
		return fmt.Errorf("dc_holdback_pct must be within [0,1], got %.3f", p.DCHoldbackPct)
	}
	if p.MarkdownCheckpointWeek != nil {
		w := *p.MarkdownCheckpointWeek
		// the final week closes the season without a pricing step
		if w < 1 || w >= p.ForecastHorizonWeeks {
			return fmt.Errorf("markdown_checkpoint_week %d must fall before the last week of a %d week season", w, p.ForecastHorizonWeeks)
		}
	}
	return nil
}

// WeeklySales is one observation of a weekly sales series.
type WeeklySales struct {
	WeekStart time.Time `json:"week_start"`
	Quantity  int       `json:"quantity"`
}

// HistoricalSeries is ordered by WeekStart with unique week starts.
type HistoricalSeries []WeeklySales

// Values returns the quantities as float64 in series order.
func (h HistoricalSeries) Values() []float64 {
	out := make([]float64, len(h))
	for i, w := range h {
		out[i] = float64(w.Quantity)
	}
	return out
}

// Clone returns an independent copy of the series.
func (h HistoricalSeries) Clone() HistoricalSeries {
	if h == nil {
		return nil
	}
	out := make(HistoricalSeries, len(h))
	copy(out, h)
	return out
}

// SalesRecord is a single imported sales row (daily or weekly grain).
type SalesRecord struct {
	Date        time.Time `json:"date"`
	ProductID   string    `json:"product_id,omitempty"`
	ProductName string    `json:"product_name,omitempty"`
	Category    string    `json:"category"`
	StoreID     string    `json:"store_id,omitempty"`
	Quantity    int       `json:"quantity"`
}

// StoreProfile describes a store taking part in allocation.
type StoreProfile struct {
	StoreID string  `json:"store_id" yaml:"store_id"`
	Name    string  `json:"name" yaml:"name"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// ForecastResult is produced fresh by every forecast call.
type ForecastResult struct {
	Model       string  `json:"model"`
	Predictions []int   `json:"predictions"`
	LowerBound  []int   `json:"lower_bound"`
	UpperBound  []int   `json:"upper_bound"`
	Confidence  float64 `json:"confidence"`
}

// Total returns the sum of the predictions.
func (r ForecastResult) Total() int {
	total := 0
	for _, p := range r.Predictions {
		total += p
	}
	return total
}

// ModelUsed names which models produced a demand forecast.
type ModelUsed string

const (
	ModelUsedEnsemble     ModelUsed = "seasonal_trend_ensemble"
	ModelUsedSeasonalOnly ModelUsed = "seasonal_only"
	ModelUsedTrendOnly    ModelUsed = "trend_only"
)

// Valid reports whether m is one of the known labels.
func (m ModelUsed) Valid() bool {
	switch m {
	case ModelUsedEnsemble, ModelUsedSeasonalOnly, ModelUsedTrendOnly:
		return true
	}
	return false
}

// ModelWeights records how much each model contributed.
type ModelWeights struct {
	Seasonal float64 `json:"seasonal"`
	Trend    float64 `json:"trend"`
	Dynamic  bool    `json:"dynamic"`
}

// EnsembleForecast is the combined output of the ensemble forecaster.
type EnsembleForecast struct {
	ForecastResult
	ModelUsed ModelUsed    `json:"model_used"`
	Weights   ModelWeights `json:"weights"`
}

// DemandAgentOutput is the handoff artifact consumed by inventory planning.
type DemandAgentOutput struct {
	TotalDemand    int          `json:"total_demand"`
	ForecastByWeek []int        `json:"forecast_by_week"`
	LowerBound     []int        `json:"lower_bound"`
	UpperBound     []int        `json:"upper_bound"`
	SafetyStockPct float64      `json:"safety_stock_pct"`
	Confidence     float64      `json:"confidence"`
	ModelUsed      ModelUsed    `json:"model_used"`
	Weights        ModelWeights `json:"weights"`
	// StartWeek is the season week of ForecastByWeek[0].
	StartWeek   int       `json:"start_week"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ForecastForWeek returns the forecast for a season week, if covered.
func (o *DemandAgentOutput) ForecastForWeek(week int) (int, bool) {
	if o == nil {
		return 0, false
	}
	idx := week - o.StartWeek
	if idx < 0 || idx >= len(o.ForecastByWeek) {
		return 0, false
	}
	return o.ForecastByWeek[idx], true
}

// Clone returns a deep copy, or nil for a nil receiver.
func (o *DemandAgentOutput) Clone() *DemandAgentOutput {
	if o == nil {
		return nil
	}
	c := *o
	c.ForecastByWeek = append([]int(nil), o.ForecastByWeek...)
	c.LowerBound = append([]int(nil), o.LowerBound...)
	c.UpperBound = append([]int(nil), o.UpperBound...)
	return &c
}

// VarianceStatus classifies a forecast-vs-actual deviation.
type VarianceStatus string

const (
	VarianceNormal   VarianceStatus = "NORMAL"
	VarianceElevated VarianceStatus = "ELEVATED"
	VarianceHigh     VarianceStatus = "HIGH"
)

// VarianceRecord is appended once per week with actuals.
type VarianceRecord struct {
	WeekNumber    int            `json:"week_number"`
	ForecastUnits int            `json:"forecast_units"`
	ActualUnits   int            `json:"actual_units"`
	VariancePct   float64        `json:"variance_pct"`
	Status        VarianceStatus `json:"status"`
	RecordedAt    time.Time      `json:"recorded_at"`
}

// InventoryPlanKind distinguishes the inventory agent's outputs.
type InventoryPlanKind string

const (
	PlanManufacturing InventoryPlanKind = "manufacturing"
	PlanAllocation    InventoryPlanKind = "allocation"
	PlanReplenishment InventoryPlanKind = "replenishment"
)

// StoreAllocation is the unit quantity sent to one store.
type StoreAllocation struct {
	StoreID string `json:"store_id"`
	Units   int    `json:"units"`
}

// InventoryPlan is returned by the inventory agent.
type InventoryPlan struct {
	Kind               InventoryPlanKind `json:"kind"`
	Week               int               `json:"week"`
	ManufacturingUnits int               `json:"manufacturing_units,omitempty"`
	DCUnits            int               `json:"dc_units"`
	StoreAllocations   []StoreAllocation `json:"store_allocations,omitempty"`
	ReplenishmentUnits int               `json:"replenishment_units,omitempty"`
	Note               string            `json:"note,omitempty"`
}

// StoreUnits sums the store allocations.
func (p *InventoryPlan) StoreUnits() int {
	total := 0
	for _, a := range p.StoreAllocations {
		total += a.Units
	}
	return total
}

// Clone returns a deep copy, or nil for a nil receiver.
func (p *InventoryPlan) Clone() *InventoryPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.StoreAllocations = append([]StoreAllocation(nil), p.StoreAllocations...)
	return &c
}

// InventoryPosition is the coordinator's running view of stock.
type InventoryPosition struct {
	ManufacturedUnits int `json:"manufactured_units"`
	DCUnits           int `json:"dc_units"`
	StoreUnits        int `json:"store_units"`
	SoldUnits         int `json:"sold_units"`
	LostSales         int `json:"lost_sales"`
}

// PricingDecision is returned by the pricing agent.
type PricingDecision struct {
	Week                int             `json:"week"`
	SellThrough         float64         `json:"sell_through"`
	TargetSellThrough   float64         `json:"target_sell_through"`
	MarkdownRecommended bool            `json:"markdown_recommended"`
	MarkdownPct         float64         `json:"markdown_pct"`
	CurrentPrice        decimal.Decimal `json:"current_price"`
	NewPrice            decimal.Decimal `json:"new_price"`
	Rationale           string          `json:"rationale"`
}

// AgentResult carries the output of one agent invocation.
type AgentResult struct {
	Demand    *DemandAgentOutput `json:"demand,omitempty"`
	Inventory *InventoryPlan     `json:"inventory,omitempty"`
	Pricing   *PricingDecision   `json:"pricing,omitempty"`
}

// AgentContext is a read-only snapshot passed to an agent invocation.
type AgentContext struct {
	WorkflowID  string             `json:"workflow_id"`
	Phase       WorkflowPhase      `json:"phase"`
	AgentName   string             `json:"agent_name"`
	Category    string             `json:"category"`
	Params      SeasonParameters   `json:"params"`
	History     HistoricalSeries   `json:"history"`
	Horizon     int                `json:"horizon"`
	StartWeek   int                `json:"start_week"`
	CurrentWeek int                `json:"current_week"`
	Actuals     map[int]int        `json:"actuals,omitempty"`
	Plan        map[int]int        `json:"plan,omitempty"`
	Forecast    *DemandAgentOutput `json:"forecast,omitempty"`
	PlanKind    InventoryPlanKind  `json:"plan_kind,omitempty"`
	Inventory   InventoryPosition  `json:"inventory"`
	Stores      []StoreProfile     `json:"stores,omitempty"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
}

// ProgressStatus is the lifecycle state reported in a progress event.
type ProgressStatus string

const (
	ProgressStarted        ProgressStatus = "started"
	ProgressRunning        ProgressStatus = "running"
	ProgressCompleted      ProgressStatus = "completed"
	ProgressFailed         ProgressStatus = "failed"
	ProgressReviewRequired ProgressStatus = "review_required"
)

// ProgressEvent is pushed to the progress channel.
type ProgressEvent struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Phase       WorkflowPhase  `json:"phase"`
	AgentName   string         `json:"agent_name,omitempty"`
	Status      ProgressStatus `json:"status"`
	ProgressPct int            `json:"progress_pct"`
	Message     string         `json:"message"`
	Timestamp   time.Time      `json:"timestamp"`
}
