package embedding

import (
	"context"
	"errors"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
)

// FallbackEmbedder uses primary and degrades to the hash embedding when primary fails,
// so callers always get a vector of the configured dimension.
type FallbackEmbedder struct {
	primary  domain.Embedder
	fallback *HashEmbedder
}

// NewFallbackEmbedder wraps primary with a hash fallback of the same dimension
func NewFallbackEmbedder(primary domain.Embedder) *FallbackEmbedder {
	return &FallbackEmbedder{primary: primary, fallback: NewHashEmbedder(primary.Dimension())}
}

func (f *FallbackEmbedder) Dimension() int { return f.primary.Dimension() }

func (f *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := f.primary.Embed(ctx, text)
	if err == nil {
		return vector, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}

	logrus.WithError(err).Warn("[EMBEDDING] primary provider failed, using hash embedding")
	return f.fallback.Embed(ctx, text)
}

// New builds the embedder for provider ("openai" with hash fallback, or "hash")
func New(provider, apiKey, baseURL, model string, dimension int) (domain.Embedder, error) {
	if provider == "hash" {
		return NewHashEmbedder(dimension), nil
	}

	primary, err := NewOpenAIEmbedder(apiKey, baseURL, model, dimension)
	if err != nil {
		logrus.WithError(err).Warn("[EMBEDDING] embedding provider not configured, using hash embedding")
		return NewHashEmbedder(dimension), nil
	}
	return NewFallbackEmbedder(primary), nil
}
