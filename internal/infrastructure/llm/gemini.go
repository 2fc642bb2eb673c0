package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// GeminiClient generates text with the Gemini API
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini client
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", domain.ErrInvalidRequest)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{client: client, model: model, timeout: cfg.Timeout}, nil
}

func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, &genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
}

func (c *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, prompt, nil)
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", mapError("gemini", c.timeout, err)
	}

	text := strings.TrimSpace(result.Text())
	logrus.WithFields(logrus.Fields{
		"model":    c.model,
		"duration": time.Since(start).String(),
		"chars":    len(text),
	}).Debug("[LLM] gemini generation done")

	if text == "" {
		return "", fmt.Errorf("%w: empty gemini response", domain.ErrUpstreamFailure)
	}
	return text, nil
}
