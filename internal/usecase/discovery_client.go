package usecase

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/brightdata"
	"github.com/sirupsen/logrus"
)

// productURLPatterns match the product page URL shape of each store
var productURLPatterns = map[domain.Store]*regexp.Regexp{
	domain.StoreAmazon:  regexp.MustCompile(`amazon\.com.*/(dp|gp/product)/[A-Z0-9]{10}`),
	domain.StoreWalmart: regexp.MustCompile(`walmart\.com/ip/[^/]+/\d+`),
	domain.StoreTarget:  regexp.MustCompile(`target\.com/p/[^/]+/-/A-\d+`),
}

// URLSource turns a query into candidate product URLs per store
type URLSource interface {
	DiscoverURLs(ctx context.Context, query string, maxPerStore int) map[domain.Store][]string
}

// DiscoveryClientConfig holds configuration for the discovery client
type DiscoveryClientConfig struct {
	SerpZone     string
	StoreTimeout time.Duration
	Timeout      time.Duration
}

// DiscoveryClient finds product URLs with store-scoped web searches through a search proxy
type DiscoveryClient struct {
	proxy        domain.SearchProxy
	serpZone     string
	storeTimeout time.Duration
	timeout      time.Duration
}

// NewDiscoveryClient creates a discovery client
func NewDiscoveryClient(proxy domain.SearchProxy, cfg DiscoveryClientConfig) *DiscoveryClient {
	storeTimeout := cfg.StoreTimeout
	if storeTimeout == 0 {
		storeTimeout = 20 * time.Second
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 40 * time.Second
	}

	return &DiscoveryClient{
		proxy:        proxy,
		serpZone:     cfg.SerpZone,
		storeTimeout: storeTimeout,
		timeout:      timeout,
	}
}

// DiscoverURLs searches every store concurrently. A store that fails or times out maps to an
// empty list; every supported store is present in the result.
func (c *DiscoveryClient) DiscoverURLs(ctx context.Context, query string, maxPerStore int) map[domain.Store][]string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make(map[domain.Store][]string, len(domain.Stores))
	for _, store := range domain.Stores {
		results[store] = []string{}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, store := range domain.Stores {
		wg.Add(1)
		go func(store domain.Store) {
			defer wg.Done()

			urls, err := c.searchStore(ctx, store, query, maxPerStore)
			if err != nil {
				logrus.WithError(err).WithField("store", store).Warn("[DISCOVERY] store search failed")
				return
			}

			mu.Lock()
			results[store] = urls
			mu.Unlock()
		}(store)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logrus.WithField("timeout", c.timeout.String()).Warn("[DISCOVERY] discovery phase timed out, returning partial results")
	}

	mu.Lock()
	defer mu.Unlock()
	snapshot := make(map[domain.Store][]string, len(results))
	for store, urls := range results {
		snapshot[store] = append([]string{}, urls...)
	}
	return snapshot
}

func (c *DiscoveryClient) searchStore(ctx context.Context, store domain.Store, query string, maxPerStore int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(fmt.Sprintf("%s site:%s", query, store.Domain()))
	raw, err := c.proxy.Fetch(ctx, searchURL, c.serpZone)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &domain.TimeoutExceeded{Operation: "discovery " + string(store), After: c.storeTimeout, Err: err}
		}
		return nil, err
	}

	urls, err := ExtractProductURLs(brightdata.UnwrapBody(raw), store, maxPerStore)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{"store": store, "count": len(urls)}).Info("[DISCOVERY] product urls found")
	return urls, nil
}

// ExtractProductURLs collects absolute links in html that look like product pages of store,
// strips tracking parameters, dedupes in first-seen order and keeps at most limit.
func ExtractProductURLs(html string, store domain.Store, limit int) ([]string, error) {
	pattern, ok := productURLPatterns[store]
	if !ok {
		return nil, &domain.StoreNotSupportedError{Store: string(store)}
	}

	if limit <= 0 {
		return []string{}, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	urls := make([]string, 0, limit)
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http") || !pattern.MatchString(href) {
			return true
		}

		clean := stripTracking(href)
		if seen[clean] {
			return true
		}
		seen[clean] = true
		urls = append(urls, clean)
		return len(urls) < limit
	})

	return urls, nil
}

func stripTracking(u string) string {
	if i := strings.Index(u, "&utm_"); i >= 0 {
		u = u[:i]
	}
	if i := strings.Index(u, "?utm_"); i >= 0 {
		u = u[:i]
	}
	return u
}
