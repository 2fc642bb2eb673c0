package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

// OpenAIClient generates text with any OpenAI-compatible chat completions API
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIClient creates an OpenAI-compatible client
func NewOpenAIClient(cfg Config) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model, timeout: cfg.Timeout}
}

func (c *OpenAIClient) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	params := c.params(prompt)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
	}
	return c.generate(ctx, params)
}

func (c *OpenAIClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, c.params(prompt))
}

func (c *OpenAIClient) params(prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
}

func (c *OpenAIClient) generate(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapError("openai", c.timeout, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in openai response", domain.ErrUpstreamFailure)
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	logrus.WithFields(logrus.Fields{
		"model":    c.model,
		"duration": time.Since(start).String(),
		"chars":    len(text),
	}).Debug("[LLM] openai generation done")

	if text == "" {
		return "", fmt.Errorf("%w: empty openai response", domain.ErrUpstreamFailure)
	}
	return text, nil
}
