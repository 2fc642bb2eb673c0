package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ExtractorRegistry resolves the extractor responsible for a store or URL
type ExtractorRegistry interface {
	Get(store domain.Store) (domain.StoreExtractor, bool)
	ForURL(url string) (domain.StoreExtractor, error)
}

// ProductServiceConfig holds configuration for the product service
type ProductServiceConfig struct {
	MaxPerStore         int
	ExtractConcurrency  int
	ExtractTimeout      time.Duration
	PhaseTimeout        time.Duration
	SingleTimeout       time.Duration
	EnrichTimeout       time.Duration
	MaxHistoryItems     int
	SimilarityThreshold float32
}

// ProductService discovers, extracts, registers and enriches products
type ProductService struct {
	cache      *VectorCacheStore
	urls       URLSource
	extractors ExtractorRegistry
	enricher   *SpecificationEnricher
	registry   *ProductRegistry
	tasks      *TaskRegistry
	config     ProductServiceConfig

	historyMu sync.Mutex
	history   []domain.SearchHistory
}

// NewProductService creates a new product service with dependencies
func NewProductService(
	cache *VectorCacheStore,
	urls URLSource,
	extractors ExtractorRegistry,
	enricher *SpecificationEnricher,
	registry *ProductRegistry,
	tasks *TaskRegistry,
	config ProductServiceConfig,
) *ProductService {
	if config.MaxPerStore <= 0 {
		config.MaxPerStore = 3
	}
	if config.ExtractConcurrency <= 0 {
		config.ExtractConcurrency = 6
	}
	if config.ExtractTimeout == 0 {
		config.ExtractTimeout = 30 * time.Second
	}
	if config.PhaseTimeout == 0 {
		config.PhaseTimeout = 45 * time.Second
	}
	if config.SingleTimeout == 0 {
		config.SingleTimeout = 30 * time.Second
	}
	if config.EnrichTimeout == 0 {
		config.EnrichTimeout = 120 * time.Second
	}
	if config.MaxHistoryItems <= 0 {
		config.MaxHistoryItems = 50
	}

	return &ProductService{
		cache:      cache,
		urls:       urls,
		extractors: extractors,
		enricher:   enricher,
		registry:   registry,
		tasks:      tasks,
		config:     config,
	}
}

// DiscoverProducts returns up to maxPerStore products per store for query.
// Flow: exact cache -> optional similarity cache -> discover URLs -> extract -> return,
// with specification enrichment and re-caching left to a background task.
func (s *ProductService) DiscoverProducts(ctx context.Context, query string, maxPerStore int) (domain.DiscoverySet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	if maxPerStore <= 0 {
		maxPerStore = s.config.MaxPerStore
	}

	cacheKey := DiscoveryCacheKey(query)

	if cached, ok := s.cache.LookupExactDiscovery(ctx, cacheKey); ok {
		if cached.Covers(maxPerStore) {
			logrus.WithField("cache_key", cacheKey).Infof("[DISCOVERY] cache hit for %q", query)
			return s.fromCache(query, cached, maxPerStore), nil
		}
		logrus.WithFields(logrus.Fields{"cached_cap": cached.MaxPerStore, "requested": maxPerStore}).
			Infof("[DISCOVERY] cached entry for %q was built with a smaller cap, discovering again", query)
	}

	if s.config.SimilarityThreshold > 0 {
		if cached, ok := s.cache.LookupSimilarDiscovery(ctx, query, s.config.SimilarityThreshold); ok && cached.Covers(maxPerStore) {
			logrus.WithFields(logrus.Fields{"cached_query": cached.Query, "similarity": cached.Similarity}).Infof("[DISCOVERY] similar cache hit for %q", query)
			return s.fromCache(query, cached, maxPerStore), nil
		}
	}

	urls := s.urls.DiscoverURLs(ctx, query, maxPerStore)
	total := 0
	for _, list := range urls {
		total += len(list)
	}
	if total == 0 {
		logrus.Warnf("[DISCOVERY] no product URLs found for %q", query)
		s.recordHistory(query)
		return emptyDiscoverySet(), nil
	}

	set := s.extractAll(ctx, urls, maxPerStore)
	for _, products := range set {
		for _, p := range products {
			s.registry.Put(p)
		}
	}

	if set.Count() > 0 {
		if err := s.cache.StoreDiscovery(ctx, cacheKey, query, set, maxPerStore); err != nil {
			logrus.WithError(err).Warn("[DISCOVERY] failed to cache discovery result")
		}

		snapshot := set.Clone()
		s.tasks.Go("enrich "+cacheKey, s.config.EnrichTimeout, func(ctx context.Context) error {
			return s.enrichAndCache(ctx, cacheKey, query, snapshot, maxPerStore)
		})
	}

	s.recordHistory(query)
	logrus.WithField("products", set.Count()).Infof("[DISCOVERY] discovered products for %q", query)
	return set.Clone(), nil
}

func (s *ProductService) fromCache(query string, cached *CachedDiscovery, maxPerStore int) domain.DiscoverySet {
	set := emptyDiscoverySet()
	var toRegister []*domain.Product
	for store, products := range cached.Products {
		for _, p := range products {
			if !p.Valid() || len(set[store]) >= maxPerStore {
				continue
			}
			if p.Specifications == nil {
				p.Specifications = map[string]string{}
			}
			set[store] = append(set[store], p)
			toRegister = append(toRegister, p.Clone())
		}
	}

	s.tasks.Go("register cached products", 0, func(ctx context.Context) error {
		for _, p := range toRegister {
			// existence check outside the lock is fine, Put re-locks
			if !s.registry.Has(p.ID) {
				s.registry.Put(p)
			}
		}
		return nil
	})

	s.recordHistory(query)
	return set
}

type extractionJob struct {
	store domain.Store
	url   string
}

// extractAll runs one extraction per URL under the concurrency gate. Results keep
// job order. When the phase timeout fires, finished extractions are kept.
func (s *ProductService) extractAll(ctx context.Context, urls map[domain.Store][]string, maxPerStore int) domain.DiscoverySet {
	var jobs []extractionJob
	for _, store := range domain.Stores {
		for _, u := range urls[store] {
			jobs = append(jobs, extractionJob{store: store, url: u})
		}
	}

	phaseCtx, cancel := context.WithTimeout(ctx, s.config.PhaseTimeout)
	defer cancel()

	sem := semaphore.NewWeighted(int64(s.config.ExtractConcurrency))
	var mu sync.Mutex
	slots := make([]*domain.Product, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job extractionJob) {
			defer wg.Done()

			if err := sem.Acquire(phaseCtx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			p, err := s.extractOne(phaseCtx, job.store, job.url)
			if err != nil {
				logrus.WithError(err).WithField("store", job.store).Warnf("[EXTRACT] dropping %s", job.url)
				return
			}

			mu.Lock()
			slots[i] = p
			mu.Unlock()
		}(i, job)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-phaseCtx.Done():
		logrus.WithField("after", s.config.PhaseTimeout.String()).Warn("[EXTRACT] extraction phase timed out, keeping finished products")
	}

	mu.Lock()
	results := append([]*domain.Product(nil), slots...)
	mu.Unlock()

	set := emptyDiscoverySet()
	for i, p := range results {
		store := jobs[i].store
		if !p.Valid() || len(set[store]) >= maxPerStore {
			continue
		}
		set[store] = append(set[store], p)
	}
	return set
}

func (s *ProductService) extractOne(ctx context.Context, store domain.Store, url string) (*domain.Product, error) {
	extractor, ok := s.extractors.Get(store)
	if !ok {
		return nil, &domain.StoreNotSupportedError{Store: string(store)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ExtractTimeout)
	defer cancel()

	p, err := extractor.Extract(ctx, url)
	if err != nil {
		return nil, err
	}
	if p.Specifications == nil {
		p.Specifications = map[string]string{}
	}
	return p, nil
}

func (s *ProductService) enrichAndCache(ctx context.Context, cacheKey, query string, set domain.DiscoverySet, maxPerStore int) error {
	var products []*domain.Product
	for _, store := range domain.Stores {
		products = append(products, set[store]...)
	}

	specs := s.enricher.Enrich(ctx, products)
	enriched := 0
	for i, p := range products {
		p.Specifications = specs[i]
		if len(specs[i]) > 0 {
			enriched++
		}
		s.registry.UpdateSpecifications(p.ID, specs[i])
	}
	logrus.WithFields(logrus.Fields{"products": len(products), "enriched": enriched}).Info("[DISCOVERY] specification enrichment finished")

	if err := ctx.Err(); err != nil {
		return err
	}
	if current, ok := s.cache.LookupExactDiscovery(ctx, cacheKey); ok && current.MaxPerStore > maxPerStore {
		logrus.WithField("cache_key", cacheKey).Info("[DISCOVERY] a wider discovery replaced this entry, keeping it")
		return nil
	}
	return s.cache.StoreDiscovery(ctx, cacheKey, query, set, maxPerStore)
}

// AddCustomProduct extracts a single product URL and registers it
func (s *ProductService) AddCustomProduct(ctx context.Context, url string) (*domain.Product, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", domain.ErrInvalidRequest)
	}

	extractor, err := s.extractors.ForURL(url)
	if err != nil {
		return nil, err
	}

	p, err := s.extractSingle(ctx, extractor, url, "custom product extraction")
	if err != nil {
		return nil, err
	}

	s.registry.Put(p)
	s.scheduleEnrichment(p)

	logrus.WithFields(logrus.Fields{"store": p.Source, "product_id": p.ID}).Info("[EXTRACT] added custom product")
	return p, nil
}

// RefreshProduct re-extracts a registered product keeping its ID, selection and known specifications
func (s *ProductService) RefreshProduct(ctx context.Context, productID string) (*domain.Product, error) {
	current, ok := s.registry.Get(productID)
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	extractor, ok := s.extractors.Get(current.Source)
	if !ok {
		return nil, &domain.StoreNotSupportedError{Store: string(current.Source)}
	}

	p, err := s.extractSingle(ctx, extractor, current.URL, "product refresh")
	if err != nil {
		return nil, err
	}

	p.ID = current.ID
	p.IsSelected = current.IsSelected
	if len(p.Specifications) == 0 {
		p.Specifications = current.Specifications
	}
	s.registry.Put(p)
	if len(p.Specifications) == 0 {
		s.scheduleEnrichment(p)
	}
	return p, nil
}

func (s *ProductService) extractSingle(ctx context.Context, extractor domain.StoreExtractor, url, operation string) (*domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SingleTimeout)
	defer cancel()

	p, err := extractor.Extract(ctx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.TimeoutExceeded{Operation: operation, After: s.config.SingleTimeout, Err: err}
		}
		return nil, err
	}
	if !p.Valid() {
		return nil, &domain.ExtractionError{Store: extractor.Store(), URL: url, Reason: "product name not found"}
	}
	if p.Specifications == nil {
		p.Specifications = map[string]string{}
	}
	return p, nil
}

func (s *ProductService) scheduleEnrichment(p *domain.Product) {
	product := p.Clone()
	s.tasks.Go("enrich product "+product.ID, s.config.EnrichTimeout, func(ctx context.Context) error {
		specs := s.enricher.Enrich(ctx, []*domain.Product{product})
		s.registry.UpdateSpecifications(product.ID, specs[0])
		return nil
	})
}

// SelectProduct marks a registered product as the comparison pick for its store
func (s *ProductService) SelectProduct(ctx context.Context, store domain.Store, productID string) (*domain.Product, error) {
	p, ok := s.registry.SetSelected(store, productID)
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	s.updateLatestHistorySelection()
	return p, nil
}

// GetSelectedProducts returns the selected product per store
func (s *ProductService) GetSelectedProducts() map[domain.Store]domain.Product {
	return s.registry.Selected()
}

// GetSpecificationsForProducts returns specifications for registered products.
// Products that already have specifications are served from the registry.
func (s *ProductService) GetSpecificationsForProducts(ctx context.Context, productIDs []string) (map[string]map[string]string, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: product_ids is required", domain.ErrInvalidRequest)
	}

	result := make(map[string]map[string]string, len(productIDs))
	var pending []*domain.Product
	for _, id := range productIDs {
		p, ok := s.registry.Get(id)
		if !ok {
			logrus.WithField("product_id", id).Debug("[DISCOVERY] specifications requested for unknown product")
			continue
		}
		if len(p.Specifications) > 0 {
			result[id] = p.Specifications
			continue
		}
		pending = append(pending, p)
	}

	if len(pending) > 0 {
		specs := s.enricher.Enrich(ctx, pending)
		for i, p := range pending {
			result[p.ID] = specs[i]
			if len(specs[i]) > 0 {
				s.registry.UpdateSpecifications(p.ID, specs[i])
			}
		}
	}

	if len(result) == 0 {
		return nil, domain.ErrProductNotFound
	}
	return result, nil
}

// GetHistory returns recorded searches, newest first
func (s *ProductService) GetHistory() []domain.SearchHistory {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	out := make([]domain.SearchHistory, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0; i-- {
		out = append(out, s.history[i])
	}
	return out
}

func (s *ProductService) recordHistory(query string) {
	entry := domain.SearchHistory{
		Query:            query,
		Timestamp:        time.Now(),
		SelectedProducts: s.registry.Selected(),
	}

	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append(s.history, entry)
	if len(s.history) > s.config.MaxHistoryItems {
		s.history = s.history[len(s.history)-s.config.MaxHistoryItems:]
	}
}

func (s *ProductService) updateLatestHistorySelection() {
	selected := s.registry.Selected()

	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if n := len(s.history); n > 0 {
		s.history[n-1].SelectedProducts = selected
	}
}

func emptyDiscoverySet() domain.DiscoverySet {
	set := make(domain.DiscoverySet, len(domain.Stores))
	for _, store := range domain.Stores {
		set[store] = []*domain.Product{}
	}
	return set
}
