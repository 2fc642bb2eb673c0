package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// SpecificationEnricherConfig holds configuration for the specification enricher
type SpecificationEnricherConfig struct {
	ChunkSize    int
	Concurrency  int
	ChunkTimeout time.Duration
	MaxSpecChars int
}

// SpecificationEnricher turns raw specification text into short label/value tags with an LLM
type SpecificationEnricher struct {
	llm          domain.LLMClient
	chunkSize    int
	chunkTimeout time.Duration
	maxSpecChars int
	sem          *semaphore.Weighted
}

// NewSpecificationEnricher creates an enricher; at most cfg.Concurrency chunks call the LLM at once
func NewSpecificationEnricher(llm domain.LLMClient, cfg SpecificationEnricherConfig) *SpecificationEnricher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.ChunkTimeout == 0 {
		cfg.ChunkTimeout = 30 * time.Second
	}
	if cfg.MaxSpecChars <= 0 {
		cfg.MaxSpecChars = 1500
	}

	return &SpecificationEnricher{
		llm:          llm,
		chunkSize:    cfg.ChunkSize,
		chunkTimeout: cfg.ChunkTimeout,
		maxSpecChars: cfg.MaxSpecChars,
		sem:          semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// Enrich returns one specification map per product, in input order. The result always has
// len(products) entries; a chunk that fails or times out contributes empty maps.
func (e *SpecificationEnricher) Enrich(ctx context.Context, products []*domain.Product) []map[string]string {
	results := make([]map[string]string, len(products))
	for i := range results {
		results[i] = map[string]string{}
	}

	var wg sync.WaitGroup
	for start := 0; start < len(products); start += e.chunkSize {
		end := min(start+e.chunkSize, len(products))

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()

			specs, err := e.enrichChunk(ctx, products[start:end])
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{"chunk_start": start, "size": end - start}).Warn("[ENRICH] chunk failed, leaving specifications empty")
				return
			}
			// chunks write disjoint ranges
			copy(results[start:end], specs)
		}(start, end)
	}
	wg.Wait()

	return results
}

func (e *SpecificationEnricher) enrichChunk(ctx context.Context, chunk []*domain.Product) ([]map[string]string, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, e.chunkTimeout)
	defer cancel()

	text, err := e.llm.GenerateJSON(ctx, e.buildPrompt(chunk))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &domain.TimeoutExceeded{Operation: "specification enrichment", After: e.chunkTimeout, Err: err}
		}
		return nil, err
	}

	specs, err := parseSpecifications(text)
	if err != nil {
		return nil, err
	}
	return fitLength(specs, len(chunk)), nil
}

func (e *SpecificationEnricher) buildPrompt(chunk []*domain.Product) string {
	var b strings.Builder
	b.WriteString("For each product below, extract concise, tag-like specifications as a JSON object of label: value pairs. ")
	b.WriteString("Keep tags short, relevant, and to the point for product cards. ")
	b.WriteString(`Example: {"Brand": "Apple", "Color": "Green", "Material": "Sisal Rope"}` + "\n\nProducts:\n")
	for i, p := range chunk {
		fmt.Fprintf(&b, "Product %d:\nName: %s\nSpecs:\n%s\n\n", i+1, p.Name, truncate(p.SpecificationsRaw, e.maxSpecChars))
	}
	b.WriteString(`Return a JSON object {"products": [...]} whose array holds one object of label: value pairs per product, in order.`)
	return b.String()
}

// parseSpecifications accepts either a bare JSON array or an object wrapping it under "products"
func parseSpecifications(text string) ([]map[string]string, error) {
	var raw []map[string]any
	if err := decodeLLMJSON(text, &raw); err != nil {
		var wrapped struct {
			Products []map[string]any `json:"products"`
		}
		if werr := decodeLLMJSON(text, &wrapped); werr != nil || wrapped.Products == nil {
			return nil, err
		}
		raw = wrapped.Products
	}

	specs := make([]map[string]string, 0, len(raw))
	for _, item := range raw {
		m := make(map[string]string, len(item))
		for label, value := range item {
			if s := specValue(value); s != "" {
				m[label] = s
			}
		}
		specs = append(specs, m)
	}
	return specs, nil
}

func specValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any, map[string]any:
		data, _ := json.Marshal(val)
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

// fitLength pads with empty maps or truncates so len(specs) == n
func fitLength(specs []map[string]string, n int) []map[string]string {
	if len(specs) > n {
		return specs[:n]
	}
	for len(specs) < n {
		specs = append(specs, map[string]string{})
	}
	return specs
}
