package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIEmbedder creates an embedder for baseURL; vectors are padded or truncated to dimension
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension int) (*OpenAIEmbedder, error) {
	if baseURL == "" || apiKey == "" {
		return nil, errors.New("invalid embedding config: base url and api key are required")
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(config),
		model:     openai.EmbeddingModel(model),
		dimension: dimension,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: invalid embedding response", domain.ErrUpstreamFailure)
	}

	return fitDimension(resp.Data[0].Embedding, e.dimension), nil
}

func fitDimension(vector []float32, dimension int) []float32 {
	if len(vector) >= dimension {
		return vector[:dimension]
	}
	padded := make([]float32, dimension)
	copy(padded, vector)
	return padded
}
