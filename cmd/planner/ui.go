package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"season-planner-api/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	reviewStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B5CF6")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	statusStyles = map[models.VarianceStatus]lipgloss.Style{
		models.VarianceNormal:   completedStyle,
		models.VarianceElevated: runningStyle,
		models.VarianceHigh:     errorStyle,
	}
)

func progressLine(ev models.ProgressEvent) string {
	style := runningStyle
	switch ev.Status {
	case models.ProgressCompleted:
		style = completedStyle
	case models.ProgressFailed:
		style = errorStyle
	case models.ProgressReviewRequired:
		style = reviewStyle
	}
	agent := ev.AgentName
	if agent == "" {
		agent = "coordinator"
	}
	return fmt.Sprintf("%s %s %s",
		labelStyle.Render(fmt.Sprintf("[%-18s %-9s %3d%%]", ev.Phase, agent, ev.ProgressPct)),
		style.Render(string(ev.Status)),
		ev.Message)
}

func renderForecast(w io.Writer, category string, out *models.DemandAgentOutput) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("model:"), out.ModelUsed)
	fmt.Fprintf(&b, "%s seasonal %.2f / trend %.2f (dynamic: %t)\n", labelStyle.Render("weights:"), out.Weights.Seasonal, out.Weights.Trend, out.Weights.Dynamic)
	fmt.Fprintf(&b, "%s %.2f   %s %.0f%%\n", labelStyle.Render("confidence:"), out.Confidence, labelStyle.Render("safety stock:"), out.SafetyStockPct*100)
	fmt.Fprintf(&b, "%s %d units\n\n", labelStyle.Render("total demand:"), out.TotalDemand)
	fmt.Fprintf(&b, "%-6s %8s %8s %8s\n", "week", "low", "units", "high")
	for i, units := range out.ForecastByWeek {
		fmt.Fprintf(&b, "%-6d %8d %8d %8d\n", out.StartWeek+i, out.LowerBound[i], units, out.UpperBound[i])
	}
	fmt.Fprintln(w, titleStyle.Render("Demand forecast: "+category))
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func renderVariance(w io.Writer, rec *models.VarianceRecord) {
	style, ok := statusStyles[rec.Status]
	if !ok {
		style = labelStyle
	}
	fmt.Fprintf(w, "week %2d  forecast %6d  actual %6d  %+7.1f%%  %s\n",
		rec.WeekNumber, rec.ForecastUnits, rec.ActualUnits, rec.VariancePct*100, style.Render(string(rec.Status)))
}

func renderReport(w io.Writer, r *models.SeasonReport) {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-22s", label)), value)
	}
	row("initial forecast", fmt.Sprintf("%d units", r.InitialForecastUnits))
	row("final plan", fmt.Sprintf("%d units", r.FinalPlanUnits))
	row("actual sales", fmt.Sprintf("%d units", r.ActualUnits))
	row("forecast accuracy", fmt.Sprintf("%.1f%% (MAPE %.1f%%, bias %+.1f%%)", r.ForecastAccuracyPct, r.MAPE*100, r.BiasPct*100))
	row("variance weeks", fmt.Sprintf("%d normal, %d elevated, %d high",
		r.StatusCounts[models.VarianceNormal], r.StatusCounts[models.VarianceElevated], r.StatusCounts[models.VarianceHigh]))
	row("re-forecasts", fmt.Sprintf("%d", r.Reforecasts))
	row("manufactured", fmt.Sprintf("%d units", r.ManufacturedUnits))
	row("sell-through", fmt.Sprintf("%.1f%%", r.SellThrough*100))
	row("ending inventory", fmt.Sprintf("%d units", r.EndingInventory))
	row("lost sales", fmt.Sprintf("%d units", r.LostSales))
	if r.MarkdownApplied {
		row("markdown", fmt.Sprintf("%.0f%%", r.MarkdownPct*100))
	} else {
		row("markdown", "none")
	}
	if r.ReviewFlags > 0 {
		row("review flags", reviewStyle.Render(fmt.Sprintf("%d", r.ReviewFlags)))
	}
	fmt.Fprintln(w, titleStyle.Render("Season report: "+r.Category))
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}
