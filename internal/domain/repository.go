package domain

import (
	"context"
	"encoding/json"
	"time"
)

// CacheRepository defines the interface for key/value caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CounterStore counts events per key inside a fixed window
type CounterStore interface {
	// Incr increments the key and returns the new count and the time left in its window
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// SearchProxy fetches a destination URL through a named proxy zone
type SearchProxy interface {
	Fetch(ctx context.Context, targetURL, zone string) (string, error)
}

// PageFetcher returns the raw HTML of a page
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (string, error)
}

// DatasetScraper runs asynchronous scrape jobs addressed by a snapshot handle
type DatasetScraper interface {
	Trigger(ctx context.Context, datasetID string, urls []string) (string, error)
	// Snapshot returns the job's records, or an empty slice while the job is still running
	Snapshot(ctx context.Context, snapshotID string) ([]json.RawMessage, error)
}

// Embedder turns text into a fixed-dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// LLMClient generates text from a prompt
type LLMClient interface {
	// GenerateJSON asks for a response that parses as JSON
	GenerateJSON(ctx context.Context, prompt string) (string, error)
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// StoreExtractor turns a product URL into a Product (specifications not yet enriched)
type StoreExtractor interface {
	Store() Store
	Extract(ctx context.Context, url string) (*Product, error)
}

// ReviewFetcher collects reviews for one store's product
type ReviewFetcher interface {
	FetchReviews(ctx context.Context, product Product, limit int) ([]Review, error)
}

// VectorRecord is a single entry written to a vector index
type VectorRecord struct {
	ID        string
	Vector    []float32
	Kind      string
	Scope     string
	ExpiresAt time.Time
	Payload   []byte
}

// VectorMatch is a record returned by a similarity query
type VectorMatch struct {
	ID        string
	Score     float32
	Kind      string
	Scope     string
	ExpiresAt time.Time
	Payload   []byte
}

// VectorFilter restricts a similarity query; zero fields are ignored
type VectorFilter struct {
	Kind          string
	Scope         string
	ExpiresAfter  time.Time
	ExpiresBefore time.Time
}

// VectorIndex is the vector database collaborator
type VectorIndex interface {
	EnsureIndex(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, index string, records []VectorRecord) error
	Query(ctx context.Context, index string, vector []float32, topK int, filter VectorFilter) ([]VectorMatch, error)
	Delete(ctx context.Context, index string, ids []string) error
}
