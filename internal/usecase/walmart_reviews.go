package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/extractor"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

var walmartProductIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/ip/[^/]+/(\d+)`),
	regexp.MustCompile(`/reviews/product/(\d+)`),
	regexp.MustCompile(`walmart\.com/ip/.*?/(\d+)`),
}

const walmartReviewsURL = "https://www.walmart.com/reviews/product/%s?entryPoint=viewAllReviewsBottom"

// WalmartReviewFetcherConfig holds configuration for the Walmart review fetcher
type WalmartReviewFetcherConfig struct {
	MaxPages    int
	Concurrency int
}

// WalmartReviewFetcher scrapes paginated Walmart review listings
type WalmartReviewFetcher struct {
	fetcher     domain.PageFetcher
	maxPages    int
	concurrency int64
}

// NewWalmartReviewFetcher creates a new Walmart review fetcher
func NewWalmartReviewFetcher(fetcher domain.PageFetcher, cfg WalmartReviewFetcherConfig) *WalmartReviewFetcher {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &WalmartReviewFetcher{fetcher: fetcher, maxPages: cfg.MaxPages, concurrency: int64(cfg.Concurrency)}
}

// FetchReviews reads the first review page, then the remaining pages up to the page cap concurrently.
// A page that fails to load is skipped.
func (f *WalmartReviewFetcher) FetchReviews(ctx context.Context, product domain.Product, limit int) ([]domain.Review, error) {
	productID := WalmartProductID(product.URL)
	if productID == "" {
		return nil, &domain.ExtractionError{Store: domain.StoreWalmart, URL: product.URL, Reason: "walmart product id not found in url"}
	}

	baseURL := fmt.Sprintf(walmartReviewsURL, productID)
	firstPage, err := f.fetcher.FetchPage(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	pages := min(extractor.ParseWalmartPageCount(firstPage), f.maxPages)
	perPage := make([][]domain.Review, pages)
	perPage[0] = extractor.ParseWalmartReviews(firstPage, product.Name)

	sem := semaphore.NewWeighted(f.concurrency)
	var wg sync.WaitGroup
	for page := 2; page <= pages; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			html, err := f.fetcher.FetchPage(ctx, fmt.Sprintf("%s&page=%d", baseURL, page))
			if err != nil {
				logrus.WithError(err).WithField("page", page).Warnf("[REVIEWS] walmart review page failed for %s", productID)
				return
			}
			// each goroutine owns its slot
			perPage[page-1] = extractor.ParseWalmartReviews(html, product.Name)
		}(page)
	}
	wg.Wait()

	var reviews []domain.Review
	for _, pageReviews := range perPage {
		reviews = append(reviews, pageReviews...)
	}
	if len(reviews) > limit {
		reviews = reviews[:limit]
	}

	logrus.WithFields(logrus.Fields{"product_id": productID, "pages": pages, "reviews": len(reviews)}).Info("[REVIEWS] walmart scrape finished")
	return reviews, nil
}

// WalmartProductID extracts the numeric item ID from a Walmart product or review URL
func WalmartProductID(url string) string {
	for _, pattern := range walmartProductIDPatterns {
		if m := pattern.FindStringSubmatch(url); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
