package services

import (
	"context"
	"errors"
	"testing"

	"season-planner-api/pkg/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExplainer struct {
	text string
	err  error
}

func (f fakeExplainer) ExplainMarkdown(context.Context, string, models.PricingDecision) (string, error) {
	return f.text, f.err
}

func TestDecideMarkdown(t *testing.T) {
	price := decimal.RequireFromString("50.00")

	tests := []struct {
		name      string
		sold      int
		wantPct   float64
		wantPrice string
	}{
		{"on plan", 500, 0, "50"},
		{"inside threshold", 460, 0, "50"},
		{"gap 12% rounds to minimum", 440, 0.10, "45"},
		{"gap 14% rounds to 15%", 430, 0.15, "42.5"},
		{"gap 40%", 300, 0.40, "30"},
		{"gap 90% clamps to 40%", 50, 0.40, "30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecideMarkdown(6, tt.sold, 500, 1000, price)
			assert.Equal(t, 6, d.Week)
			assert.InDelta(t, 0.5, d.TargetSellThrough, 1e-9)
			assert.Equal(t, tt.wantPct > 0, d.MarkdownRecommended)
			assert.InDelta(t, tt.wantPct, d.MarkdownPct, 1e-9)
			assert.True(t, d.NewPrice.Equal(decimal.RequireFromString(tt.wantPrice)), "new price %s", d.NewPrice)
			assert.True(t, d.CurrentPrice.Equal(price))
			assert.NotEmpty(t, d.Rationale)
		})
	}
}

func TestDecideMarkdownWithoutPlannedSales(t *testing.T) {
	d := DecideMarkdown(3, 0, 0, 1000, decimal.NewFromInt(20))
	assert.False(t, d.MarkdownRecommended)
	assert.Contains(t, d.Rationale, "no planned sales")
}

func TestPricingAgentInvoke(t *testing.T) {
	actx := models.AgentContext{
		Category:    "outerwear",
		CurrentWeek: 2,
		Plan:        map[int]int{1: 250, 2: 250, 3: 250},
		Inventory:   models.InventoryPosition{ManufacturedUnits: 1000, SoldUnits: 300},
		UnitPrice:   decimal.NewFromInt(40),
	}

	t.Run("explainer rationale", func(t *testing.T) {
		agent := NewPricingAgent(fakeExplainer{text: "Sales are behind plan."}, nil, nil)
		res, err := agent.Invoke(context.Background(), actx)
		require.NoError(t, err)
		require.NotNil(t, res.Pricing)
		assert.True(t, res.Pricing.MarkdownRecommended)
		assert.Equal(t, "Sales are behind plan.", res.Pricing.Rationale)
	})

	t.Run("explainer failure keeps built-in rationale", func(t *testing.T) {
		agent := NewPricingAgent(fakeExplainer{err: errors.New("429")}, nil, nil)
		res, err := agent.Invoke(context.Background(), actx)
		require.NoError(t, err)
		assert.Contains(t, res.Pricing.Rationale, "trails target")
	})

	t.Run("requires manufacturing", func(t *testing.T) {
		agent := NewPricingAgent(nil, nil, nil)
		bare := actx
		bare.Inventory = models.InventoryPosition{}
		_, err := agent.Invoke(context.Background(), bare)
		assert.Error(t, err)
	})
}
