package aiconnectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livereview/reviewbridge/internal/config"
)

func TestNewConnector_UnsupportedProvider(t *testing.T) {
	_, err := NewConnector(context.Background(), ConnectorOptions{Provider: "mystery"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(config.LLMConfig{
		Provider:    "anthropic",
		APIKey:      "key",
		Model:       "claude",
		BaseURL:     "http://llm",
		Temperature: 0.3,
	})

	assert.Equal(t, ProviderAnthropic, opts.Provider)
	assert.Equal(t, "key", opts.APIKey)
	assert.Equal(t, "http://llm", opts.BaseURL)
	assert.Equal(t, "claude", opts.ModelConfig.Model)
	assert.InDelta(t, 0.3, opts.ModelConfig.Temperature, 1e-9)
}

func TestComplete_OpenAICompatibleBackend(t *testing.T) {
	var gotMessages []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)

		var body struct {
			Messages []map[string]interface{} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotMessages = body.Messages

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"summary\":\"ok\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	c, err := NewConnector(context.Background(), ConnectorOptions{
		Provider:    ProviderOpenAI,
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		ModelConfig: ModelConfig{Model: "gpt-4o-mini"},
	})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "be terse", "review this")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)

	require.Len(t, gotMessages, 2)
	assert.Equal(t, "system", gotMessages[0]["role"])
	assert.Equal(t, "user", gotMessages[1]["role"])
	assert.NoError(t, c.Check(context.Background()))
}

func TestCheck_Ollama(t *testing.T) {
	var models atomic.Value
	models.Store(`{"models":[{"name":"llama3","size":1}]}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(models.Load().(string)))
	}))
	defer srv.Close()

	c, err := NewConnector(context.Background(), ConnectorOptions{
		Provider:    ProviderOllama,
		BaseURL:     srv.URL,
		ModelConfig: ModelConfig{Model: "llama3"},
	})
	require.NoError(t, err)
	assert.NoError(t, c.Check(context.Background()))

	models.Store(`{"models":[]}`)
	assert.Error(t, c.Check(context.Background()))
}

func TestCheck_OllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewConnector(context.Background(), ConnectorOptions{Provider: ProviderOllama, BaseURL: srv.URL})
	require.NoError(t, err)

	err = c.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
