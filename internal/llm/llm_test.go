package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/healthspend/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIServer(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func openAIConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider: ProviderOpenAI,
		Model:    "gpt-5",
		APIKey:   "test-key",
		BaseURL:  baseURL + "/v1",
		Timeout:  5 * time.Second,
	}
}

func TestOpenAI_Complete(t *testing.T) {
	srv, captured := openAIServer(t, http.StatusOK,
		`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Risk Assessment: Low"}}]}`)

	c, err := New(openAIConfig(srv.URL))
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Risk Assessment: Low", text)

	assert.Equal(t, "gpt-5", (*captured)["model"])
	messages, ok := (*captured)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "hello", messages[1].(map[string]any)["content"])
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv, _ := openAIServer(t, http.StatusOK, `{"choices":[]}`)

	_, err := NewOpenAI(openAIConfig(srv.URL)).Complete(context.Background(), "sys", "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAI_UpstreamError(t *testing.T) {
	srv, _ := openAIServer(t, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`)

	_, err := NewOpenAI(openAIConfig(srv.URL)).Complete(context.Background(), "sys", "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAI_MissingKey(t *testing.T) {
	cfg := openAIConfig("http://127.0.0.1:1")
	cfg.APIKey = ""

	_, err := NewOpenAI(cfg).Complete(context.Background(), "sys", "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorContains(t, err, "missing API key")
}

func TestAnthropic_Complete(t *testing.T) {
	var captured anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"  Travel \n"}]}`))
	}))
	defer srv.Close()

	c, err := New(config.LLMConfig{
		Provider: ProviderAnthropic,
		Model:    "claude-3-7-sonnet-20250219",
		APIKey:   "test-key",
		BaseURL:  srv.URL,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), "categorize", "Categorize this expense: flight")
	require.NoError(t, err)
	assert.Equal(t, "  Travel \n", text)
	assert.Equal(t, "categorize", captured.System)
	assert.Equal(t, "claude-3-7-sonnet-20250219", captured.Model)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestAnthropic_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"upstream error", http.StatusTooManyRequests, `{"type":"error"}`},
		{"empty content", http.StatusOK, `{"content":[]}`},
		{"bad json", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewAnthropic(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second})
			_, err := a.Complete(context.Background(), "s", "p")
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestAnthropic_Unreachable(t *testing.T) {
	a := NewAnthropic(config.LLMConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := a.Complete(context.Background(), "s", "p")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "mistral"})
	assert.Error(t, err)
}
