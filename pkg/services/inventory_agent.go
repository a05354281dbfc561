package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"season-planner-api/pkg/models"
)

var errNoForecast = errors.New("inventory planning requires a demand forecast")

// InventoryAgent produces manufacturing, allocation and replenishment plans
// from the current demand forecast with fixed rules.
type InventoryAgent struct {
	progress ProgressChannel
	logger   *slog.Logger
}

// NewInventoryAgent creates the rule-based inventory agent.
func NewInventoryAgent(progress ProgressChannel, logger *slog.Logger) *InventoryAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryAgent{progress: progress, logger: logger}
}

func (a *InventoryAgent) Invoke(ctx context.Context, actx models.AgentContext) (models.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AgentResult{}, err
	}
	if actx.Forecast == nil || len(actx.Forecast.ForecastByWeek) == 0 {
		return models.AgentResult{}, errNoForecast
	}

	var plan models.InventoryPlan
	switch actx.PlanKind {
	case models.PlanManufacturing:
		plan = ManufacturingPlan(*actx.Forecast)
	case models.PlanAllocation:
		plan = AllocationPlan(actx.Inventory.ManufacturedUnits, actx.Params.DCHoldbackPct, actx.Stores)
	case models.PlanReplenishment:
		plan = ReplenishmentPlan(*actx.Forecast, actx.CurrentWeek+1, actx.Inventory, actx.Stores)
	default:
		return models.AgentResult{}, fmt.Errorf("unknown inventory plan kind %q", actx.PlanKind)
	}

	a.logger.Info("Inventory plan created",
		"workflow_id", actx.WorkflowID,
		"kind", plan.Kind,
		"week", plan.Week,
		"manufacturing_units", plan.ManufacturingUnits,
		"replenishment_units", plan.ReplenishmentUnits,
		"dc_units", plan.DCUnits)
	safePublish(a.progress, a.logger, models.ProgressEvent{
		WorkflowID:  actx.WorkflowID,
		Phase:       actx.Phase,
		AgentName:   AgentInventory,
		Status:      models.ProgressCompleted,
		ProgressPct: 100,
		Message:     fmt.Sprintf("%s plan ready", plan.Kind),
	})
	return models.AgentResult{Inventory: &plan}, nil
}

// ceilUnits rounds up, ignoring float noise below 1e-9.
func ceilUnits(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Ceil(v - 1e-9))
}

// ManufacturingPlan orders the forecast total plus safety stock.
func ManufacturingPlan(fc models.DemandAgentOutput) models.InventoryPlan {
	units := ceilUnits(float64(fc.TotalDemand) * (1 + fc.SafetyStockPct))
	return models.InventoryPlan{
		Kind:               models.PlanManufacturing,
		Week:               0,
		ManufacturingUnits: units,
		DCUnits:            units,
		Note:               fmt.Sprintf("%d forecast units + %.0f%% safety stock", fc.TotalDemand, fc.SafetyStockPct*100),
	}
}

// AllocationPlan keeps holdbackPct of the manufactured units at the DC and
// ships the rest to stores by weight.
func AllocationPlan(manufactured int, holdbackPct float64, stores []models.StoreProfile) models.InventoryPlan {
	holdback := int(math.Round(float64(manufactured) * holdbackPct))
	if len(stores) == 0 {
		return models.InventoryPlan{
			Kind:    models.PlanAllocation,
			Week:    1,
			DCUnits: manufactured,
			Note:    "no stores configured, all units held at DC",
		}
	}
	allocs := splitByWeight(manufactured-holdback, stores)
	return models.InventoryPlan{
		Kind:             models.PlanAllocation,
		Week:             1,
		DCUnits:          holdback,
		StoreAllocations: allocs,
		Note:             fmt.Sprintf("%.0f%% held back at DC", holdbackPct*100),
	}
}

// ReplenishmentPlan tops stores up to next week's forecast plus safety
// stock, limited by what the DC still holds.
func ReplenishmentPlan(fc models.DemandAgentOutput, week int, pos models.InventoryPosition, stores []models.StoreProfile) models.InventoryPlan {
	plan := models.InventoryPlan{Kind: models.PlanReplenishment, Week: week, DCUnits: pos.DCUnits}
	next, ok := fc.ForecastForWeek(week)
	if !ok {
		plan.Note = fmt.Sprintf("no forecast for week %d", week)
		return plan
	}
	need := ceilUnits(float64(next)*(1+fc.SafetyStockPct)) - pos.StoreUnits
	if need < 0 {
		need = 0
	}
	if need > pos.DCUnits {
		need = pos.DCUnits
	}
	plan.ReplenishmentUnits = need
	plan.DCUnits = pos.DCUnits - need
	if need > 0 && len(stores) > 0 {
		plan.StoreAllocations = splitByWeight(need, stores)
	}
	plan.Note = fmt.Sprintf("week %d forecast %d, store stock %d", week, next, pos.StoreUnits)
	return plan
}

// splitByWeight distributes units over stores with the largest remainder
// method so the parts always sum to units.
func splitByWeight(units int, stores []models.StoreProfile) []models.StoreAllocation {
	if units < 0 {
		units = 0
	}
	var total float64
	for _, s := range stores {
		if s.Weight > 0 {
			total += s.Weight
		}
	}
	type share struct {
		idx  int
		frac float64
	}
	out := make([]models.StoreAllocation, len(stores))
	shares := make([]share, len(stores))
	assigned := 0
	for i, s := range stores {
		w := 1.0 / float64(len(stores))
		if total > 0 {
			w = math.Max(s.Weight, 0) / total
		}
		exact := float64(units) * w
		whole := int(math.Floor(exact))
		out[i] = models.StoreAllocation{StoreID: s.StoreID, Units: whole}
		shares[i] = share{idx: i, frac: exact - float64(whole)}
		assigned += whole
	}
	sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })
	for r := 0; r < units-assigned; r++ {
		out[shares[r%len(shares)].idx].Units++
	}
	return out
}
