package azure

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/chat-dep/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"  Cut price by 15%.  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/", "secret", "2024-02-15-preview", "chat-dep")
	require.True(t, c.Configured())

	out, err := c.Complete(context.Background(), "system prompt", "user prompt", 200)
	require.NoError(t, err)
	assert.Equal(t, "Cut price by 15%.", out)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user prompt", got.Messages[1].Content)
	assert.Equal(t, 200, got.MaxTokens)
}

func TestChatCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":"429","message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "secret", "v", "chat-dep")
	_, err := c.ChatCompletion(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestCompleteEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "secret", "v", "chat-dep")
	_, err := c.Complete(context.Background(), "s", "u", 10)
	assert.ErrorContains(t, err, "empty response")
}

func TestNotConfigured(t *testing.T) {
	c := NewOpenAIClient("", "", "v", "")
	assert.False(t, c.Configured())
	_, err := c.Complete(context.Background(), "s", "u", 10)
	assert.ErrorContains(t, err, "not configured")

	var nilClient *OpenAIClient
	assert.False(t, nilClient.Configured())
}
