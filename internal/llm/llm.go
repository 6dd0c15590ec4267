// Package llm wraps the chat-completion APIs of the supported model
// providers behind a single Completer interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/healthspend/apiserver/config"
	"github.com/healthspend/apiserver/internal/metrics"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrUnavailable is wrapped by every Complete failure: missing credential,
// transport or upstream error, or an empty completion.
var ErrUnavailable = errors.New("ai service unavailable")

// Completer sends one system/user message pair and returns the text of the
// first completion.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// New returns the Completer for cfg.Provider.
func New(cfg config.LLMConfig) (Completer, error) {
	var c Completer
	switch cfg.Provider {
	case ProviderOpenAI:
		c = NewOpenAI(cfg)
	case ProviderAnthropic:
		c = NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	return &instrumented{provider: cfg.Provider, next: c}, nil
}

type instrumented struct {
	provider string
	next     Completer
}

func (i *instrumented) Complete(ctx context.Context, system, prompt string) (string, error) {
	text, err := i.next.Complete(ctx, system, prompt)
	if err != nil {
		metrics.LLMRequests.WithLabelValues(i.provider, "error").Inc()
		slog.WarnContext(ctx, "llm completion failed", "provider", i.provider, "error", err)
		return "", err
	}
	metrics.LLMRequests.WithLabelValues(i.provider, "ok").Inc()
	return text, nil
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, fmt.Sprintf(format, args...))
}
