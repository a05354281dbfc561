package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkflowPhase identifies a phase of the seasonal state machine.
type WorkflowPhase string

const (
	PhasePreSeasonPlanning  WorkflowPhase = "PreSeasonPlanning"
	PhaseInitialAllocation  WorkflowPhase = "InitialAllocation"
	PhaseInSeasonMonitoring WorkflowPhase = "InSeasonMonitoring"
	PhaseMidSeasonPricing   WorkflowPhase = "MidSeasonPricing"
	PhaseSeasonEnd          WorkflowPhase = "SeasonEnd"
)

// TriggerKind describes what the coordinator is waiting for next.
type TriggerKind string

const (
	TriggerSeasonStart   TriggerKind = "season_start"
	TriggerWeeklyActuals TriggerKind = "weekly_actuals"
	TriggerNone          TriggerKind = "none"
)

// NextTrigger is the next event the workflow expects.
type NextTrigger struct {
	Kind TriggerKind `json:"kind"`
	Week int         `json:"week,omitempty"`
	Due  time.Time   `json:"due,omitempty"`
}

// ReforecastRecord logs a variance- or markdown-triggered demand re-run.
type ReforecastRecord struct {
	TriggerWeek int            `json:"trigger_week"`
	Reason      string         `json:"reason"`
	FromWeek    int            `json:"from_week"`
	ToWeek      int            `json:"to_week"`
	VariancePct float64        `json:"variance_pct,omitempty"`
	ModelUsed   ModelUsed      `json:"model_used"`
	TotalDemand int            `json:"total_demand"`
	Status      VarianceStatus `json:"status,omitempty"`
	At          time.Time      `json:"at"`
}

// PhaseFailure is recorded when a phase halts on an agent failure.
type PhaseFailure struct {
	Phase   WorkflowPhase `json:"phase"`
	Agent   string        `json:"agent"`
	Kind    string        `json:"kind"`
	Message string        `json:"message"`
	Week    int           `json:"week,omitempty"`
	At      time.Time     `json:"at"`
}

// ReviewFlag marks a degraded but accepted forecast for human review.
type ReviewFlag struct {
	Week       int       `json:"week"`
	Confidence float64   `json:"confidence"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// PhaseTransition is one entry of the phase timeline.
type PhaseTransition struct {
	Phase WorkflowPhase `json:"phase"`
	Week  int           `json:"week"`
	At    time.Time     `json:"at"`
}

// WorkflowState is owned and mutated exclusively by the workflow coordinator.
type WorkflowState struct {
	ID              string                 `json:"id"`
	Category        string                 `json:"category"`
	Params          SeasonParameters       `json:"params"`
	Phase           WorkflowPhase          `json:"phase"`
	CompletedPhases map[WorkflowPhase]bool `json:"completed_phases"`
	Timeline        []PhaseTransition      `json:"timeline"`
	CurrentWeek     int                    `json:"current_week"`
	SeasonLength    int                    `json:"season_length"`
	UnitPrice       decimal.Decimal        `json:"unit_price"`

	Forecast        *DemandAgentOutput `json:"forecast,omitempty"`
	InitialForecast *DemandAgentOutput `json:"initial_forecast,omitempty"`
	WeeklyPlan      map[int]int        `json:"weekly_plan"`
	Actuals         map[int]int        `json:"actuals"`
	VarianceHistory []VarianceRecord   `json:"variance_history"`
	Reforecasts     []ReforecastRecord `json:"reforecasts"`
	DemandCalls     int                `json:"demand_calls"`

	ManufacturingPlan  *InventoryPlan    `json:"manufacturing_plan,omitempty"`
	AllocationPlan     *InventoryPlan    `json:"allocation_plan,omitempty"`
	ReplenishmentPlans []InventoryPlan   `json:"replenishment_plans"`
	Pricing            *PricingDecision  `json:"pricing,omitempty"`
	Inventory          InventoryPosition `json:"inventory"`

	NextTrigger NextTrigger   `json:"next_trigger"`
	ReviewFlags []ReviewFlag  `json:"review_flags"`
	Failure     *PhaseFailure `json:"failure,omitempty"`
	Report      *SeasonReport `json:"report,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the workflow has reached SeasonEnd.
func (s *WorkflowState) Terminal() bool {
	return s.CompletedPhases[PhaseSeasonEnd]
}

// RemainingWeeks is the number of season weeks after the current week.
func (s *WorkflowState) RemainingWeeks() int {
	if r := s.SeasonLength - s.CurrentWeek; r > 0 {
		return r
	}
	return 0
}

// SeasonReport is the SeasonEnd aggregation.
type SeasonReport struct {
	WorkflowID           string                 `json:"workflow_id"`
	Category             string                 `json:"category"`
	SeasonLength         int                    `json:"season_length"`
	InitialForecastUnits int                    `json:"initial_forecast_units"`
	FinalPlanUnits       int                    `json:"final_plan_units"`
	ActualUnits          int                    `json:"actual_units"`
	ForecastAccuracyPct  float64                `json:"forecast_accuracy_pct"`
	MAPE                 float64                `json:"mape"`
	BiasPct              float64                `json:"bias_pct"`
	StatusCounts         map[VarianceStatus]int `json:"status_counts"`
	Reforecasts          int                    `json:"reforecasts"`
	ManufacturedUnits    int                    `json:"manufactured_units"`
	SellThrough          float64                `json:"sell_through"`
	EndingInventory      int                    `json:"ending_inventory"`
	LostSales            int                    `json:"lost_sales"`
	MarkdownApplied      bool                   `json:"markdown_applied"`
	MarkdownPct          float64                `json:"markdown_pct,omitempty"`
	ReviewFlags          int                    `json:"review_flags"`
	Timeline             []PhaseTransition      `json:"timeline"`
	GeneratedAt          time.Time              `json:"generated_at"`
}

// SimilarSeason is a search hit from the season archive.
type SimilarSeason struct {
	WorkflowID  string  `json:"workflow_id"`
	Category    string  `json:"category"`
	Score       float32 `json:"score"`
	ActualUnits int64   `json:"actual_units"`
	MAPE        float64 `json:"mape"`
	SellThrough float64 `json:"sell_through"`
}

// Clone returns a deep copy of the state.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	if s.Params.MarkdownCheckpointWeek != nil {
		w := *s.Params.MarkdownCheckpointWeek
		c.Params.MarkdownCheckpointWeek = &w
	}
	c.CompletedPhases = make(map[WorkflowPhase]bool, len(s.CompletedPhases))
	for k, v := range s.CompletedPhases {
		c.CompletedPhases[k] = v
	}
	c.Timeline = append([]PhaseTransition(nil), s.Timeline...)
	c.Forecast = s.Forecast.Clone()
	c.InitialForecast = s.InitialForecast.Clone()
	c.WeeklyPlan = cloneIntMap(s.WeeklyPlan)
	c.Actuals = cloneIntMap(s.Actuals)
	c.VarianceHistory = append([]VarianceRecord(nil), s.VarianceHistory...)
	c.Reforecasts = append([]ReforecastRecord(nil), s.Reforecasts...)
	c.ManufacturingPlan = s.ManufacturingPlan.Clone()
	c.AllocationPlan = s.AllocationPlan.Clone()
	c.ReplenishmentPlans = make([]InventoryPlan, len(s.ReplenishmentPlans))
	for i := range s.ReplenishmentPlans {
		c.ReplenishmentPlans[i] = *s.ReplenishmentPlans[i].Clone()
	}
	if s.Pricing != nil {
		p := *s.Pricing
		c.Pricing = &p
	}
	c.ReviewFlags = append([]ReviewFlag(nil), s.ReviewFlags...)
	if s.Failure != nil {
		f := *s.Failure
		c.Failure = &f
	}
	if s.Report != nil {
		r := *s.Report
		r.StatusCounts = make(map[VarianceStatus]int, len(s.Report.StatusCounts))
		for k, v := range s.Report.StatusCounts {
			r.StatusCounts[k] = v
		}
		r.Timeline = append([]PhaseTransition(nil), s.Report.Timeline...)
		c.Report = &r
	}
	return &c
}

func cloneIntMap(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
