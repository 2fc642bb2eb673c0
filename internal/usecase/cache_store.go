package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/retry"
	"github.com/sirupsen/logrus"
)

// Entry kinds stored in the vector indexes
const (
	KindDiscovery      = "discovery"
	KindReview         = "review"
	KindComparisonFlag = "comparison_flag"

	flagPrefix       = "FLAG_"
	cleanupPageSize  = 1000
	maxCleanupRounds = 100
)

// Lengths review fields are truncated to before they are persisted
const (
	maxProductNameLen = 200
	maxReviewTextLen  = 1500
	maxReviewTitleLen = 150
	maxAuthorLen      = 80
)

// VectorCacheStoreConfig holds configuration for the vector cache store
type VectorCacheStoreConfig struct {
	DiscoveryIndex  string
	ReviewIndex     string
	TTL             time.Duration
	UpsertBatchSize int
	Retry           retry.Policy
}

// CachedDiscovery is a discovery result read back from the cache.
// MaxPerStore is the per-store cap the entry was built with, 0 when unknown.
type CachedDiscovery struct {
	Query       string
	Products    domain.DiscoverySet
	MaxPerStore int
	CachedAt    time.Time
	Similarity  float32
}

// Covers reports whether the entry can serve a request for up to maxPerStore products per store
func (c *CachedDiscovery) Covers(maxPerStore int) bool {
	return c.MaxPerStore == 0 || c.MaxPerStore >= maxPerStore
}

type discoveryPayload struct {
	CacheKey     string              `json:"cache_key"`
	Query        string              `json:"query"`
	Products     domain.DiscoverySet `json:"products"`
	ProductCount int                 `json:"product_count"`
	MaxPerStore  int                 `json:"max_per_store"`
	CreatedAt    time.Time           `json:"created_at"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

type flagPayload struct {
	ComparisonID string    `json:"comparison_id"`
	ReviewCount  int       `json:"review_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// VectorCacheStore persists discovery results, comparison reviews and comparison flags
// in two vector index partitions. Reads fail soft; writes return CacheWriteFailure.
type VectorCacheStore struct {
	index    domain.VectorIndex
	embedder domain.Embedder
	cfg      VectorCacheStoreConfig

	ensureMu sync.Mutex
	ensured  bool
}

// NewVectorCacheStore creates a cache store over index
func NewVectorCacheStore(index domain.VectorIndex, embedder domain.Embedder, cfg VectorCacheStoreConfig) *VectorCacheStore {
	if cfg.DiscoveryIndex == "" {
		cfg.DiscoveryIndex = "opinionflow_discovery"
	}
	if cfg.ReviewIndex == "" {
		cfg.ReviewIndex = "opinionflow_reviews"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 100
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.New("vector-cache", 3, time.Second)
	}

	return &VectorCacheStore{index: index, embedder: embedder, cfg: cfg}
}

// ensureIndexes creates both indexes once per process. A failed attempt is retried on the next call.
func (s *VectorCacheStore) ensureIndexes(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	if s.ensured {
		return nil
	}
	for _, name := range []string{s.cfg.DiscoveryIndex, s.cfg.ReviewIndex} {
		if err := s.index.EnsureIndex(ctx, name, s.embedder.Dimension()); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrIndexUnavailable, name, err)
		}
	}
	s.ensured = true
	logrus.Info("[CACHE] vector indexes ready")
	return nil
}

// unitVector is the placeholder vector for entries looked up by metadata only
func (s *VectorCacheStore) unitVector() []float32 {
	v := make([]float32, s.embedder.Dimension())
	if len(v) > 0 {
		v[0] = 1
	}
	return v
}

// LookupExactDiscovery returns the unexpired discovery entry stored under cacheKey
func (s *VectorCacheStore) LookupExactDiscovery(ctx context.Context, cacheKey string) (*CachedDiscovery, bool) {
	now := time.Now()
	matches, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]domain.VectorMatch, error) {
		if err := s.ensureIndexes(ctx); err != nil {
			return nil, err
		}
		return s.index.Query(ctx, s.cfg.DiscoveryIndex, s.unitVector(), 1, domain.VectorFilter{
			Kind:         KindDiscovery,
			Scope:        cacheKey,
			ExpiresAfter: now,
		})
	})
	if err != nil {
		logrus.WithError(err).WithField("cache_key", cacheKey).Warn("[CACHE] discovery lookup failed")
		return nil, false
	}

	for _, m := range matches {
		payload, ok := decodeDiscovery(m)
		if !ok || payload.CacheKey != cacheKey || !payload.ExpiresAt.After(now) {
			continue
		}
		return &CachedDiscovery{Query: payload.Query, Products: payload.Products, MaxPerStore: payload.MaxPerStore, CachedAt: payload.CreatedAt, Similarity: 1}, true
	}
	return nil, false
}

// LookupSimilarDiscovery returns the unexpired discovery entry whose query embedding is
// closest to query, when its similarity reaches minScore
func (s *VectorCacheStore) LookupSimilarDiscovery(ctx context.Context, query string, minScore float32) (*CachedDiscovery, bool) {
	now := time.Now()
	matches, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]domain.VectorMatch, error) {
		if err := s.ensureIndexes(ctx); err != nil {
			return nil, err
		}
		vector, err := s.embedder.Embed(ctx, NormalizeQuery(query))
		if err != nil {
			return nil, err
		}
		return s.index.Query(ctx, s.cfg.DiscoveryIndex, vector, 1, domain.VectorFilter{Kind: KindDiscovery, ExpiresAfter: now})
	})
	if err != nil {
		logrus.WithError(err).Warn("[CACHE] similar discovery lookup failed")
		return nil, false
	}

	if len(matches) == 0 || matches[0].Score < minScore {
		return nil, false
	}
	payload, ok := decodeDiscovery(matches[0])
	if !ok || !payload.ExpiresAt.After(now) {
		return nil, false
	}

	logrus.WithFields(logrus.Fields{"query": query, "cached_query": payload.Query, "score": matches[0].Score}).Info("[CACHE] similar discovery hit")
	return &CachedDiscovery{Query: payload.Query, Products: payload.Products, MaxPerStore: payload.MaxPerStore, CachedAt: payload.CreatedAt, Similarity: matches[0].Score}, true
}

func decodeDiscovery(m domain.VectorMatch) (discoveryPayload, bool) {
	var payload discoveryPayload
	if err := json.Unmarshal(m.Payload, &payload); err != nil {
		logrus.WithError(err).WithField("id", m.ID).Warn("[CACHE] undecodable discovery entry")
		return payload, false
	}
	return payload, true
}

// StoreDiscovery writes products, discovered with a cap of maxPerStore per store, under cacheKey
// with expiry now + TTL, replacing any previous entry
func (s *VectorCacheStore) StoreDiscovery(ctx context.Context, cacheKey, query string, products domain.DiscoverySet, maxPerStore int) error {
	now := time.Now()
	payload := discoveryPayload{
		CacheKey:     cacheKey,
		Query:        query,
		Products:     products,
		ProductCount: products.Count(),
		MaxPerStore:  maxPerStore,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.TTL),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return &domain.CacheWriteFailure{Operation: "store discovery", Err: err}
	}

	err = s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if err := s.ensureIndexes(ctx); err != nil {
			return err
		}
		vector, err := s.embedder.Embed(ctx, NormalizeQuery(query))
		if err != nil {
			return err
		}
		return s.index.Upsert(ctx, s.cfg.DiscoveryIndex, []domain.VectorRecord{{
			ID:        cacheKey,
			Vector:    vector,
			Kind:      KindDiscovery,
			Scope:     cacheKey,
			ExpiresAt: payload.ExpiresAt,
			Payload:   data,
		}})
	})
	if err != nil {
		return &domain.CacheWriteFailure{Operation: "store discovery", Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"cache_key": cacheKey,
		"products":  payload.ProductCount,
		"expires":   humanize.Time(payload.ExpiresAt),
	}).Info("[CACHE] discovery cached")
	return nil
}

// StoreReviews embeds and persists reviews for one store of a comparison and returns the new IDs.
// Reviews without text or whose embedding fails are skipped. Any failed upsert batch fails the call.
func (s *VectorCacheStore) StoreReviews(ctx context.Context, reviews []domain.Review, comparisonID, productID string, store domain.Store) ([]string, error) {
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, &domain.CacheWriteFailure{Operation: "store reviews", Err: err}
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.TTL)
	records := make([]domain.VectorRecord, 0, len(reviews))
	ids := make([]string, 0, len(reviews))

	for _, review := range reviews {
		if review.Text == "" {
			continue
		}

		vector, err := s.embedder.Embed(ctx, fmt.Sprintf("Title: %s Review: %s", review.Title, review.Text))
		if err != nil {
			if ctx.Err() != nil {
				return nil, &domain.CacheWriteFailure{Operation: "store reviews", Err: ctx.Err()}
			}
			logrus.WithError(err).WithField("store", store).Debug("[CACHE] skipping review with failed embedding")
			continue
		}

		stored := domain.StoredReview{
			Review:       truncateReview(review),
			ID:           uuid.NewString(),
			Store:        store,
			ProductID:    productID,
			ComparisonID: comparisonID,
		}
		data, err := json.Marshal(stored)
		if err != nil {
			continue
		}

		records = append(records, domain.VectorRecord{
			ID:        stored.ID,
			Vector:    vector,
			Kind:      KindReview,
			Scope:     comparisonID,
			ExpiresAt: expiresAt,
			Payload:   data,
		})
		ids = append(ids, stored.ID)
	}

	if len(records) == 0 {
		return nil, &domain.CacheWriteFailure{Operation: "store reviews", Err: fmt.Errorf("no reviews to store for %s", store)}
	}

	failed := 0
	var lastErr error
	for start := 0; start < len(records); start += s.cfg.UpsertBatchSize {
		batch := records[start:min(start+s.cfg.UpsertBatchSize, len(records))]
		// IDs are fixed before the first attempt, so a retried batch overwrites itself
		if err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
			return s.index.Upsert(ctx, s.cfg.ReviewIndex, batch)
		}); err != nil {
			failed++
			lastErr = err
			logrus.WithError(err).WithFields(logrus.Fields{"store": store, "batch_start": start}).Warn("[CACHE] review upsert batch failed")
		}
	}
	if failed > 0 {
		return nil, &domain.CacheWriteFailure{
			Operation: "store reviews",
			Err:       fmt.Errorf("%d upsert batch(es) failed for %s: %w", failed, store, lastErr),
		}
	}

	logrus.WithFields(logrus.Fields{"store": store, "comparison_id": comparisonID, "count": len(ids)}).Info("[CACHE] reviews stored")
	return ids, nil
}

func truncateReview(r domain.Review) domain.Review {
	r.ProductName = truncate(r.ProductName, maxProductNameLen)
	r.Text = truncate(r.Text, maxReviewTextLen)
	r.Title = truncate(r.Title, maxReviewTitleLen)
	r.Author = truncate(r.Author, maxAuthorLen)
	return r
}

// SearchReviewsByComparison returns up to topK reviews of a comparison ordered by similarity to queryText.
// Any failure yields an empty slice.
func (s *VectorCacheStore) SearchReviewsByComparison(ctx context.Context, comparisonID, queryText string, topK int) []domain.StoredReview {
	matches, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]domain.VectorMatch, error) {
		if err := s.ensureIndexes(ctx); err != nil {
			return nil, err
		}
		vector, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			return nil, err
		}
		return s.index.Query(ctx, s.cfg.ReviewIndex, vector, topK, domain.VectorFilter{Kind: KindReview, Scope: comparisonID, ExpiresAfter: time.Now()})
	})
	if err != nil {
		logrus.WithError(err).WithField("comparison_id", comparisonID).Warn("[CACHE] review search failed")
		return []domain.StoredReview{}
	}

	reviews := make([]domain.StoredReview, 0, len(matches))
	for _, m := range matches {
		var r domain.StoredReview
		if err := json.Unmarshal(m.Payload, &r); err != nil {
			continue
		}
		if r.ID == "" {
			r.ID = m.ID
		}
		r.Similarity = float64(m.Score)
		reviews = append(reviews, r)
	}
	return reviews
}

// CheckComparisonExists reports whether an unexpired review flag exists for comparisonID
func (s *VectorCacheStore) CheckComparisonExists(ctx context.Context, comparisonID string) bool {
	matches, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]domain.VectorMatch, error) {
		if err := s.ensureIndexes(ctx); err != nil {
			return nil, err
		}
		return s.index.Query(ctx, s.cfg.ReviewIndex, s.unitVector(), 1, domain.VectorFilter{
			Kind:         KindComparisonFlag,
			Scope:        comparisonID,
			ExpiresAfter: time.Now(),
		})
	})
	if err != nil {
		logrus.WithError(err).WithField("comparison_id", comparisonID).Warn("[CACHE] comparison flag check failed")
		return false
	}
	return len(matches) > 0
}

// CacheComparisonFlag records that reviewCount reviews are stored for comparisonID.
// The flag ID derives from the comparison, so repeated writes overwrite one entry.
func (s *VectorCacheStore) CacheComparisonFlag(ctx context.Context, comparisonID string, reviewCount int) error {
	now := time.Now()
	data, err := json.Marshal(flagPayload{ComparisonID: comparisonID, ReviewCount: reviewCount, CreatedAt: now})
	if err != nil {
		return &domain.CacheWriteFailure{Operation: "cache comparison flag", Err: err}
	}

	err = s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if err := s.ensureIndexes(ctx); err != nil {
			return err
		}
		return s.index.Upsert(ctx, s.cfg.ReviewIndex, []domain.VectorRecord{{
			ID:        flagPrefix + comparisonID,
			Vector:    s.unitVector(),
			Kind:      KindComparisonFlag,
			Scope:     comparisonID,
			ExpiresAt: now.Add(s.cfg.TTL),
			Payload:   data,
		}})
	})
	if err != nil {
		return &domain.CacheWriteFailure{Operation: "cache comparison flag", Err: err}
	}
	return nil
}

// CleanupExpiredCache deletes every expired entry from both indexes and returns how many were removed
func (s *VectorCacheStore) CleanupExpiredCache(ctx context.Context) (int, error) {
	if err := s.ensureIndexes(ctx); err != nil {
		return 0, err
	}

	total := 0
	var errs []error
	for _, name := range []string{s.cfg.DiscoveryIndex, s.cfg.ReviewIndex} {
		n, err := s.cleanupIndex(ctx, name)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", name, err))
		}
	}

	logrus.WithField("removed", humanize.Comma(int64(total))).Info("[CACHE] expired entries cleaned up")
	return total, errors.Join(errs...)
}

func (s *VectorCacheStore) cleanupIndex(ctx context.Context, name string) (int, error) {
	removed := 0
	for round := 0; round < maxCleanupRounds; round++ {
		matches, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) ([]domain.VectorMatch, error) {
			return s.index.Query(ctx, name, s.unitVector(), cleanupPageSize, domain.VectorFilter{ExpiresBefore: time.Now()})
		})
		if err != nil {
			return removed, err
		}
		if len(matches) == 0 {
			return removed, nil
		}

		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.ID)
		}
		if err := s.cfg.Retry.Do(ctx, func(ctx context.Context) error {
			return s.index.Delete(ctx, name, ids)
		}); err != nil {
			return removed, err
		}
		removed += len(ids)

		if len(matches) < cleanupPageSize {
			return removed, nil
		}
	}
	return removed, nil
}
