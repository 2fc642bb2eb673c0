package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Config selects and configures a text generation provider
type Config struct {
	Provider string // "gemini" or "openai"
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// New returns the LLM client for cfg.Provider
func New(ctx context.Context, cfg Config) (domain.LLMClient, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiClient(ctx, cfg)
	case "openai":
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", domain.ErrInvalidRequest, cfg.Provider)
	}
}

// withTimeout bounds a single generation call
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// mapError turns a generation deadline into a TimeoutExceeded
func mapError(provider string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutExceeded{Operation: provider + " generation", After: timeout, Err: err}
	}
	return fmt.Errorf("%s generation failed: %w", provider, err)
}
