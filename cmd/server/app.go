package main

import (
	"context"
	"fmt"
	"io"

	"github.com/meshivanshsinghh/opinionflow/config"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/brightdata"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/cache"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/embedding"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/extractor"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/llm"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/retry"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/vectorindex"
	"github.com/meshivanshsinghh/opinionflow/internal/usecase"
	"github.com/sirupsen/logrus"
)

// keyValueStore is the cache backend: key/value storage plus rate-limit counters
type keyValueStore interface {
	domain.CacheRepository
	domain.CounterStore
	io.Closer
}

// app holds the wired services and the resources that need closing
type app struct {
	kv       keyValueStore
	index    domain.VectorIndex
	store    *usecase.VectorCacheStore
	tasks    *usecase.TaskRegistry
	products *usecase.ProductService
	reviews  *usecase.ReviewService
	analysis *usecase.AnalysisService
	closers  []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logrus.WithError(err).Warn("[SERVER] failed to release resource")
		}
	}
}

func newKeyValueStore(ctx context.Context, cc config.CacheConfig) (keyValueStore, error) {
	if cc.Type == "redis" {
		logrus.Info("[CACHE] using redis")
		return cache.NewRedisCache(ctx, cc.RedisURL)
	}
	logrus.Info("[CACHE] using in-memory cache")
	return cache.NewMemoryCache(), nil
}

func newVectorIndex(ctx context.Context, vc config.VectorStoreConfig) (domain.VectorIndex, io.Closer, error) {
	if vc.Type == "milvus" {
		idx, err := vectorindex.NewMilvusIndex(ctx, vectorindex.MilvusConfig{
			Address:  vc.Address,
			Username: vc.Username,
			Password: vc.Password,
		})
		if err != nil {
			return nil, nil, err
		}
		logrus.WithField("address", vc.Address).Info("[MILVUS] connected")
		return idx, idx, nil
	}
	logrus.Warn("[CACHE] using in-memory vector index, cached data is lost on restart")
	return vectorindex.NewMemoryIndex(), nil, nil
}

// buildApp wires infrastructure and services from configuration
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	kv, err := newKeyValueStore(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	a.kv = kv
	a.closers = append(a.closers, kv)

	index, closer, err := newVectorIndex(ctx, cfg.VectorStore)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}
	a.index = index
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	embedder, err := embedding.New(cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("embedding: %w", err)
	}

	llmClient, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	bd := brightdata.NewClient(brightdata.Config{
		APIKey:            cfg.BrightData.APIKey,
		BaseURL:           cfg.BrightData.BaseURL,
		UnlockerZone:      cfg.BrightData.UnlockerZone,
		RequestsPerSecond: cfg.BrightData.RequestsPerSecond,
		Burst:             cfg.BrightData.Burst,
		Timeout:           cfg.BrightData.Timeout,
		Retry:             retry.New("brightdata", cfg.Scraping.MaxRetries, cfg.Scraping.RetryDelay),
	})

	a.store = usecase.NewVectorCacheStore(index, embedder, usecase.VectorCacheStoreConfig{
		DiscoveryIndex:  cfg.VectorStore.DiscoveryIndex,
		ReviewIndex:     cfg.VectorStore.ReviewIndex,
		TTL:             cfg.VectorStore.TTL,
		UpsertBatchSize: cfg.VectorStore.UpsertBatchSize,
		Retry:           retry.New("vector-cache", cfg.Scraping.MaxRetries, cfg.Scraping.RetryDelay),
	})

	a.tasks = usecase.NewTaskRegistry()

	enricher := usecase.NewSpecificationEnricher(llmClient, usecase.SpecificationEnricherConfig{
		ChunkSize:    cfg.LLM.EnrichChunkSize,
		Concurrency:  cfg.LLM.EnrichConcurrency,
		ChunkTimeout: cfg.LLM.EnrichChunkTimeout,
		MaxSpecChars: cfg.LLM.MaxSpecChars,
	})

	discovery := usecase.NewDiscoveryClient(bd, usecase.DiscoveryClientConfig{
		SerpZone:     cfg.BrightData.SerpZone,
		StoreTimeout: cfg.Scraping.DiscoveryStoreTimeout,
		Timeout:      cfg.Scraping.DiscoveryTimeout,
	})

	a.products = usecase.NewProductService(
		a.store,
		discovery,
		extractor.NewDefaultRegistry(bd),
		enricher,
		usecase.NewProductRegistry(cfg.Scraping.RegistrySize),
		a.tasks,
		usecase.ProductServiceConfig{
			MaxPerStore:         cfg.Scraping.MaxProductsPerStore,
			ExtractConcurrency:  cfg.Scraping.ExtractConcurrency,
			ExtractTimeout:      cfg.Scraping.ExtractTimeout,
			PhaseTimeout:        cfg.Scraping.PhaseTimeout,
			SingleTimeout:       cfg.Scraping.SingleTimeout,
			EnrichTimeout:       cfg.Scraping.EnrichTimeout,
			MaxHistoryItems:     cfg.Scraping.MaxHistoryItems,
			SimilarityThreshold: float32(cfg.VectorStore.SimilarityThreshold),
		},
	)

	a.reviews = usecase.NewReviewService(a.store, map[domain.Store]domain.ReviewFetcher{
		domain.StoreAmazon: usecase.NewAmazonReviewFetcher(bd, usecase.AmazonReviewFetcherConfig{
			DatasetID: cfg.BrightData.ReviewDatasetID,
			MaxWait:   cfg.Reviews.AmazonMaxWait,
		}),
		domain.StoreWalmart: usecase.NewWalmartReviewFetcher(bd, usecase.WalmartReviewFetcherConfig{
			MaxPages:    cfg.Reviews.WalmartMaxPages,
			Concurrency: cfg.Reviews.WalmartConcurrency,
		}),
	}, usecase.ReviewServiceConfig{
		MaxPerStore:      cfg.Reviews.MaxPerStore,
		StorageBatchSize: cfg.Reviews.StorageBatchSize,
		CachedTopK:       cfg.Reviews.CachedTopK,
	})

	a.analysis = usecase.NewAnalysisService(a.store, kv, llmClient, usecase.AnalysisServiceConfig{
		ReportTTL: cfg.Cache.AnalysisTTL,
	})

	return a, nil
}
