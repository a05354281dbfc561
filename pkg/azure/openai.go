package azure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIClient talks to the Azure OpenAI chat completions REST API. The
// endpoint may point at Azure directly or at a forwarding proxy.
type OpenAIClient struct {
	endpoint           string
	apiKey             string
	apiVersion         string
	chatDeploymentName string
	http               *resty.Client
}

// NewOpenAIClient creates a client with a 60s request timeout.
func NewOpenAIClient(endpoint, apiKey, apiVersion, chatDeploymentName string) *OpenAIClient {
	client := resty.New()
	client.SetTimeout(60 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	return &OpenAIClient{
		endpoint:           strings.TrimSuffix(endpoint, "/"),
		apiKey:             apiKey,
		apiVersion:         apiVersion,
		chatDeploymentName: chatDeploymentName,
		http:               client,
	}
}

// Configured reports whether endpoint, key and deployment are all set.
func (c *OpenAIClient) Configured() bool {
	return c != nil && c.endpoint != "" && c.apiKey != "" && c.chatDeploymentName != ""
}

// ChatMessage is one message of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body for chat completions.
type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

// ChatCompletionResponse is the subset of the response the planner reads.
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ErrorResponse is the error envelope returned by the API.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatCompletion runs a chat completion.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float32) (*ChatCompletionResponse, error) {
	if !c.Configured() {
		return nil, errors.New("azure openai client is not configured")
	}
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, c.chatDeploymentName, c.apiVersion)

	var result ChatCompletionResponse
	var apiErr ErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("api-key", c.apiKey).
		SetBody(ChatCompletionRequest{
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        0.95,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("azure openai request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("azure openai error (status: %d): %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return nil, fmt.Errorf("azure openai error (status: %d): %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// Complete returns the first choice's content for a system + user prompt.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := c.ChatCompletion(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, maxTokens, 0.3)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("azure openai returned an empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
