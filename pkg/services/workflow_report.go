package services

import (
	"math"
	"time"

	"season-planner-api/pkg/models"
)

// BuildSeasonReport aggregates a finished season. It does not modify st.
func BuildSeasonReport(st *models.WorkflowState, at time.Time) models.SeasonReport {
	r := models.SeasonReport{
		WorkflowID:        st.ID,
		Category:          st.Category,
		SeasonLength:      st.SeasonLength,
		StatusCounts:      make(map[models.VarianceStatus]int),
		Reforecasts:       len(st.Reforecasts),
		ManufacturedUnits: st.Inventory.ManufacturedUnits,
		EndingInventory:   st.Inventory.DCUnits + st.Inventory.StoreUnits,
		LostSales:         st.Inventory.LostSales,
		ReviewFlags:       len(st.ReviewFlags),
		Timeline:          append([]models.PhaseTransition(nil), st.Timeline...),
		GeneratedAt:       at,
	}
	if st.InitialForecast != nil {
		r.InitialForecastUnits = st.InitialForecast.TotalDemand
	}
	for w := 1; w <= st.SeasonLength; w++ {
		r.FinalPlanUnits += st.WeeklyPlan[w]
	}

	var absPct float64
	var pctWeeks, forecastSum, actualSum int
	for _, v := range st.VarianceHistory {
		r.StatusCounts[v.Status]++
		r.ActualUnits += v.ActualUnits
		forecastSum += v.ForecastUnits
		actualSum += v.ActualUnits
		if v.ActualUnits > 0 {
			absPct += math.Abs(float64(v.ActualUnits-v.ForecastUnits)) / float64(v.ActualUnits)
			pctWeeks++
		}
	}
	if pctWeeks > 0 {
		r.MAPE = absPct / float64(pctWeeks)
		r.ForecastAccuracyPct = math.Max(0, 1-r.MAPE) * 100
	}
	if actualSum > 0 {
		r.BiasPct = float64(forecastSum-actualSum) / float64(actualSum)
	}
	if st.Inventory.ManufacturedUnits > 0 {
		r.SellThrough = float64(st.Inventory.SoldUnits) / float64(st.Inventory.ManufacturedUnits)
	}
	if st.Pricing != nil && st.Pricing.MarkdownRecommended {
		r.MarkdownApplied = true
		r.MarkdownPct = st.Pricing.MarkdownPct
	}
	return r
}
