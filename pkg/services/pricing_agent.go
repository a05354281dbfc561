package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"season-planner-api/pkg/models"
)

const (
	markdownGapThreshold = 0.10
	minMarkdownPct       = 0.10
	maxMarkdownPct       = 0.40
	markdownStep         = 0.05
)

// PricingAgent decides at the checkpoint week whether a markdown is needed.
type PricingAgent struct {
	explainer MarkdownExplainer
	progress  ProgressChannel
	logger    *slog.Logger
}

// NewPricingAgent creates a pricing agent. explainer may be nil.
func NewPricingAgent(explainer MarkdownExplainer, progress ProgressChannel, logger *slog.Logger) *PricingAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricingAgent{explainer: explainer, progress: progress, logger: logger}
}

func (a *PricingAgent) Invoke(ctx context.Context, actx models.AgentContext) (models.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AgentResult{}, err
	}
	if actx.Inventory.ManufacturedUnits <= 0 {
		return models.AgentResult{}, fmt.Errorf("pricing requires a manufacturing plan")
	}

	planned := 0
	for w := 1; w <= actx.CurrentWeek; w++ {
		planned += actx.Plan[w]
	}
	d := DecideMarkdown(actx.CurrentWeek, actx.Inventory.SoldUnits, planned, actx.Inventory.ManufacturedUnits, actx.UnitPrice)

	if d.MarkdownRecommended && a.explainer != nil {
		text, err := a.explainer.ExplainMarkdown(ctx, actx.Category, d)
		if err != nil {
			a.logger.Warn("Markdown explainer failed, using built-in rationale", "workflow_id", actx.WorkflowID, "error", err)
		} else {
			d.Rationale = text
		}
	}

	a.logger.Info("Pricing decision",
		"workflow_id", actx.WorkflowID,
		"week", d.Week,
		"sell_through", d.SellThrough,
		"target", d.TargetSellThrough,
		"markdown_pct", d.MarkdownPct)
	safePublish(a.progress, a.logger, models.ProgressEvent{
		WorkflowID:  actx.WorkflowID,
		Phase:       actx.Phase,
		AgentName:   AgentPricing,
		Status:      models.ProgressCompleted,
		ProgressPct: 100,
		Message:     fmt.Sprintf("markdown recommended: %t (%.0f%%)", d.MarkdownRecommended, d.MarkdownPct*100),
	})
	return models.AgentResult{Pricing: &d}, nil
}

// DecideMarkdown compares sell-through against the plan-implied target and
// sizes a markdown by the relative shortfall.
func DecideMarkdown(week, sold, planned, manufactured int, price decimal.Decimal) models.PricingDecision {
	d := models.PricingDecision{
		Week:         week,
		CurrentPrice: price,
		NewPrice:     price,
	}
	if manufactured > 0 {
		d.SellThrough = float64(sold) / float64(manufactured)
		d.TargetSellThrough = float64(planned) / float64(manufactured)
	}
	if d.TargetSellThrough <= 0 {
		d.Rationale = "no planned sales through the checkpoint, price unchanged"
		return d
	}

	gap := (d.TargetSellThrough - d.SellThrough) / d.TargetSellThrough
	if gap <= markdownGapThreshold+1e-9 {
		d.Rationale = fmt.Sprintf("sell-through %.1f%% is within 10%% of target %.1f%%, price unchanged",
			d.SellThrough*100, d.TargetSellThrough*100)
		return d
	}

	pct := math.Round(gap/markdownStep) * markdownStep
	pct = clampFloat(pct, minMarkdownPct, maxMarkdownPct)
	pct = math.Round(pct*100) / 100

	d.MarkdownRecommended = true
	d.MarkdownPct = pct
	d.NewPrice = price.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(pct))).Round(2)
	d.Rationale = fmt.Sprintf("sell-through %.1f%% trails target %.1f%% by %.0f%%, markdown %.0f%% from %s to %s",
		d.SellThrough*100, d.TargetSellThrough*100, gap*100, pct*100,
		price.StringFixed(2), d.NewPrice.StringFixed(2))
	return d
}
