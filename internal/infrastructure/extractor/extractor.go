package extractor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

// Registry dispatches product URLs to the extractor of their store
type Registry struct {
	extractors map[domain.Store]domain.StoreExtractor
}

// NewRegistry builds a registry from extractors; later entries win for the same store
func NewRegistry(extractors ...domain.StoreExtractor) *Registry {
	r := &Registry{extractors: make(map[domain.Store]domain.StoreExtractor, len(extractors))}
	for _, e := range extractors {
		r.extractors[e.Store()] = e
	}
	return r
}

// NewDefaultRegistry wires every supported store to one page fetcher
func NewDefaultRegistry(fetcher domain.PageFetcher) *Registry {
	return NewRegistry(
		NewAmazonExtractor(fetcher),
		NewWalmartExtractor(fetcher),
		NewTargetExtractor(fetcher),
	)
}

// Get returns the extractor registered for store
func (r *Registry) Get(store domain.Store) (domain.StoreExtractor, bool) {
	e, ok := r.extractors[store]
	return e, ok
}

// ForURL detects the store of url and returns its extractor
func (r *Registry) ForURL(url string) (domain.StoreExtractor, error) {
	store, err := domain.DetectStore(url)
	if err != nil {
		return nil, err
	}
	e, ok := r.extractors[store]
	if !ok {
		return nil, &domain.StoreNotSupportedError{Store: string(store)}
	}
	return e, nil
}

// page fetches and parses a product page, shared by every store extractor
type page struct {
	store   domain.Store
	fetcher domain.PageFetcher
}

func (p page) load(ctx context.Context, url string) (*goquery.Document, error) {
	html, err := p.fetcher.FetchPage(ctx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &domain.ExtractionError{Store: p.store, URL: url, Reason: err.Error()}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &domain.ExtractionError{Store: p.store, URL: url, Reason: "unparseable HTML: " + err.Error()}
	}
	return doc, nil
}

func (p page) newProduct(url string) *domain.Product {
	now := time.Now()
	return &domain.Product{
		ID:             uuid.NewString(),
		Source:         p.store,
		URL:            url,
		Specifications: map[string]string{},
		LastScraped:    &now,
	}
}

// finish enforces the name/url invariant on an extracted product
func (p page) finish(product *domain.Product) (*domain.Product, error) {
	if !product.Valid() {
		return nil, &domain.ExtractionError{Store: p.store, URL: product.URL, Reason: "product name not found"}
	}
	return product, nil
}
