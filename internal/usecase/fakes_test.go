package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/embedding"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/retry"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/vectorindex"
)

const testDimension = 16

var testRetry = retry.New("test", 2, time.Millisecond)

// countingIndex wraps the memory index with call counters and injectable failures
type countingIndex struct {
	*vectorindex.MemoryIndex
	ensureCalls atomic.Int32
	upsertCalls atomic.Int32
	queryErr    error
	upsertErr   error

	mu       sync.Mutex
	payloads [][]byte
}

func newCountingIndex() *countingIndex {
	return &countingIndex{MemoryIndex: vectorindex.NewMemoryIndex()}
}

func (c *countingIndex) EnsureIndex(ctx context.Context, name string, dimension int) error {
	c.ensureCalls.Add(1)
	return c.MemoryIndex.EnsureIndex(ctx, name, dimension)
}

func (c *countingIndex) Upsert(ctx context.Context, index string, records []domain.VectorRecord) error {
	c.upsertCalls.Add(1)
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.mu.Lock()
	for _, r := range records {
		c.payloads = append(c.payloads, r.Payload)
	}
	c.mu.Unlock()
	return c.MemoryIndex.Upsert(ctx, index, records)
}

func (c *countingIndex) upsertedPayloads() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte{}, c.payloads...)
}

func (c *countingIndex) Query(ctx context.Context, index string, vector []float32, topK int, filter domain.VectorFilter) ([]domain.VectorMatch, error) {
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.MemoryIndex.Query(ctx, index, vector, topK, filter)
}

func newTestCacheStore(index domain.VectorIndex) *VectorCacheStore {
	return NewVectorCacheStore(index, testEmbedder(), VectorCacheStoreConfig{
		TTL:             time.Hour,
		UpsertBatchSize: 100,
		Retry:           testRetry,
	})
}

// fakeLLM answers prompts with a function and counts calls
type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	respond func(prompt string) (string, error)
}

func (f *fakeLLM) record(prompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return "", errors.New("no response configured")
	}
	return respond(prompt)
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return f.record(prompt)
}

func (f *fakeLLM) GenerateText(ctx context.Context, prompt string) (string, error) {
	return f.record(prompt)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeExtractor returns canned products per URL
type fakeExtractor struct {
	store    domain.Store
	products map[string]*domain.Product
	errs     map[string]error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakeExtractor) Store() domain.Store { return f.store }

func (f *fakeExtractor) Extract(ctx context.Context, url string) (*domain.Product, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if p, ok := f.products[url]; ok {
		return p.Clone(), nil
	}
	return nil, &domain.ExtractionError{Store: f.store, URL: url, Reason: "not found"}
}

// fakeURLSource returns fixed URLs per store
type fakeURLSource struct {
	urls  map[domain.Store][]string
	calls atomic.Int32
}

func (f *fakeURLSource) DiscoverURLs(ctx context.Context, query string, maxPerStore int) map[domain.Store][]string {
	f.calls.Add(1)
	out := make(map[domain.Store][]string, len(domain.Stores))
	for _, store := range domain.Stores {
		urls := f.urls[store]
		if len(urls) > maxPerStore {
			urls = urls[:maxPerStore]
		}
		out[store] = append([]string{}, urls...)
	}
	return out
}

// fakeReviewFetcher returns canned reviews or an error
type fakeReviewFetcher struct {
	reviews []domain.Review
	err     error
	calls   atomic.Int32
}

func (f *fakeReviewFetcher) FetchReviews(ctx context.Context, product domain.Product, limit int) ([]domain.Review, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.reviews) > limit {
		return f.reviews[:limit], nil
	}
	return f.reviews, nil
}

func price(v float64) *float64 { return &v }

func makeReviews(n int, rating int, text string) []domain.Review {
	reviews := make([]domain.Review, 0, n)
	for i := 0; i < n; i++ {
		reviews = append(reviews, domain.Review{
			Text:        text + " " + strings.Repeat("x", i),
			Title:       "title",
			Rating:      rating,
			ProductName: "Mouse",
		})
	}
	return reviews
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func testEmbedder() *embedding.HashEmbedder {
	return embedding.NewHashEmbedder(testDimension)
}
