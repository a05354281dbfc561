package services

import (
	"context"
	"fmt"
	"time"

	"season-planner-api/pkg/azure"
	"season-planner-api/pkg/models"
)

// MarkdownExplainer writes a human readable rationale for a pricing decision.
type MarkdownExplainer interface {
	ExplainMarkdown(ctx context.Context, category string, d models.PricingDecision) (string, error)
}

// chatCompleter is the part of the Azure client the explainer needs.
type chatCompleter interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
}

// AzureOpenAIService explains markdown decisions with Azure OpenAI.
type AzureOpenAIService struct {
	client  chatCompleter
	timeout time.Duration
}

// NewAzureOpenAIService returns nil when the client is not configured so
// callers can treat the explainer as optional.
func NewAzureOpenAIService(client *azure.OpenAIClient) *AzureOpenAIService {
	if !client.Configured() {
		return nil
	}
	return &AzureOpenAIService{client: client, timeout: 30 * time.Second}
}

const markdownSystemPrompt = "You are a retail merchandise planner. Explain pricing decisions for a seasonal category in one short paragraph using only the numbers given. Do not invent figures."

func (s *AzureOpenAIService) ExplainMarkdown(ctx context.Context, category string, d models.PricingDecision) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Category: %s\nWeek: %d\nActual sell-through: %.1f%%\nTarget sell-through: %.1f%%\nMarkdown recommended: %t\nMarkdown: %.0f%%\nCurrent price: %s\nNew price: %s\n\nExplain the decision.",
		category, d.Week, d.SellThrough*100, d.TargetSellThrough*100, d.MarkdownRecommended,
		d.MarkdownPct*100, d.CurrentPrice.StringFixed(2), d.NewPrice.StringFixed(2))

	text, err := s.client.Complete(ctx, markdownSystemPrompt, prompt, 300)
	if err != nil {
		return "", fmt.Errorf("markdown rationale: %w", err)
	}
	return text, nil
}
