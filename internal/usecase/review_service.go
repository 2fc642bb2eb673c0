package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const cachedReviewsQuery = "product reviews"

// ReviewServiceConfig holds configuration for the review extraction service
type ReviewServiceConfig struct {
	MaxPerStore      int
	StorageBatchSize int
	CachedTopK       int
}

// ReviewService collects reviews for selected products, cache-first by comparison identity
type ReviewService struct {
	cache    *VectorCacheStore
	fetchers map[domain.Store]domain.ReviewFetcher
	config   ReviewServiceConfig
}

// NewReviewService creates a new review service with one fetcher per store
func NewReviewService(cache *VectorCacheStore, fetchers map[domain.Store]domain.ReviewFetcher, config ReviewServiceConfig) *ReviewService {
	if config.MaxPerStore <= 0 {
		config.MaxPerStore = 100
	}
	if config.StorageBatchSize <= 0 {
		config.StorageBatchSize = 50
	}
	if config.CachedTopK <= 0 {
		config.CachedTopK = 1000
	}
	return &ReviewService{cache: cache, fetchers: fetchers, config: config}
}

// ExtractReviews returns up to MaxPerStore reviews for each selected product.
// Flow: comparison flag -> cached reviews, otherwise fresh extraction -> store -> flag.
// Every selected store has an entry in the result, empty when its extraction failed.
func (s *ReviewService) ExtractReviews(ctx context.Context, selected map[domain.Store]domain.Product) (*domain.ReviewExtraction, error) {
	if len(selected) == 0 {
		return nil, domain.ErrNoSelection
	}

	comparisonID := domain.ComparisonID(selected)
	log := logrus.WithField("comparison_id", comparisonID)

	if s.cache.CheckComparisonExists(ctx, comparisonID) {
		if cached := s.cachedReviews(ctx, comparisonID, selected); cached.TotalReviews > 0 {
			log.WithField("reviews", cached.TotalReviews).Info("[REVIEWS] serving cached reviews")
			return cached, nil
		}
		log.Warn("[REVIEWS] comparison flag present but no cached reviews, extracting fresh")
	}

	result := s.extractFresh(ctx, comparisonID, selected)
	if result.TotalReviews == 0 {
		log.Warn("[REVIEWS] no reviews extracted for any store")
		return result, nil
	}

	if err := s.storeReviews(ctx, comparisonID, selected, result.Reviews); err != nil {
		log.WithError(err).Error("[REVIEWS] failed to cache reviews, returning fresh reviews uncached")
		return result, nil
	}
	if err := s.cache.CacheComparisonFlag(ctx, comparisonID, result.TotalReviews); err != nil {
		log.WithError(err).Warn("[REVIEWS] failed to record comparison flag")
	}

	return result, nil
}

func (s *ReviewService) cachedReviews(ctx context.Context, comparisonID string, selected map[domain.Store]domain.Product) *domain.ReviewExtraction {
	result := &domain.ReviewExtraction{
		ComparisonID: comparisonID,
		Reviews:      make(map[domain.Store][]domain.Review, len(selected)),
		FromCache:    true,
	}
	for store := range selected {
		result.Reviews[store] = []domain.Review{}
	}

	for _, stored := range s.cache.SearchReviewsByComparison(ctx, comparisonID, cachedReviewsQuery, s.config.CachedTopK) {
		list, ok := result.Reviews[stored.Store]
		if !ok || len(list) >= s.config.MaxPerStore {
			continue
		}
		result.Reviews[stored.Store] = append(list, stored.Review)
		result.TotalReviews++
	}
	return result
}

func (s *ReviewService) extractFresh(ctx context.Context, comparisonID string, selected map[domain.Store]domain.Product) *domain.ReviewExtraction {
	result := &domain.ReviewExtraction{
		ComparisonID: comparisonID,
		Reviews:      make(map[domain.Store][]domain.Review, len(selected)),
		Failures:     map[domain.Store]string{},
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for store, product := range selected {
		wg.Add(1)
		go func(store domain.Store, product domain.Product) {
			defer wg.Done()

			reviews, err := s.fetchStore(ctx, store, product)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logrus.WithError(err).WithField("store", store).Warn("[REVIEWS] extraction failed")
				result.Failures[store] = err.Error()
				reviews = nil
			}
			if reviews == nil {
				reviews = []domain.Review{}
			}
			result.Reviews[store] = reviews
			result.TotalReviews += len(reviews)
		}(store, product)
	}
	wg.Wait()

	if len(result.Failures) == 0 {
		result.Failures = nil
	}
	logrus.WithFields(logrus.Fields{"comparison_id": comparisonID, "reviews": result.TotalReviews}).Info("[REVIEWS] fresh extraction finished")
	return result
}

func (s *ReviewService) fetchStore(ctx context.Context, store domain.Store, product domain.Product) ([]domain.Review, error) {
	fetcher, ok := s.fetchers[store]
	if !ok {
		return nil, &domain.StoreNotSupportedError{Store: string(store)}
	}

	reviews, err := fetcher.FetchReviews(ctx, product, s.config.MaxPerStore)
	if err != nil {
		return nil, err
	}
	if len(reviews) > s.config.MaxPerStore {
		reviews = reviews[:s.config.MaxPerStore]
	}
	return reviews, nil
}

// storeReviews persists every store's reviews in concurrent sub-batches; the first failure is returned
func (s *ReviewService) storeReviews(ctx context.Context, comparisonID string, selected map[domain.Store]domain.Product, reviews map[domain.Store][]domain.Review) error {
	g, gctx := errgroup.WithContext(ctx)

	for store, list := range reviews {
		productID := selected[store].ID
		for start := 0; start < len(list); start += s.config.StorageBatchSize {
			batch := list[start:min(start+s.config.StorageBatchSize, len(list))]
			g.Go(func() error {
				if _, err := s.cache.StoreReviews(gctx, batch, comparisonID, productID, store); err != nil {
					return fmt.Errorf("storing %s reviews: %w", store, err)
				}
				return nil
			})
		}
	}

	return g.Wait()
}
