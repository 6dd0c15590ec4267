package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/healthspend/apiserver/config"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI completes prompts with the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	apiKey string
	model  string
}

func NewOpenAI(cfg config.LLMConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (o *OpenAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	if strings.TrimSpace(o.apiKey) == "" {
		return "", unavailable("missing API key")
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", unavailable("%v", err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable("no response from model")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", unavailable("empty response from model")
	}
	return content, nil
}
