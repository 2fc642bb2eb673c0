package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/extractor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tagsResponse = `[{"Color":"Black"},{"Color":"Black"},{"Color":"Black"},{"Color":"Black"},{"Color":"Black"}]`

type productFixture struct {
	svc      *ProductService
	cache    *VectorCacheStore
	urls     *fakeURLSource
	llm      *fakeLLM
	tasks    *TaskRegistry
	registry *ProductRegistry
	amazon   *fakeExtractor
	walmart  *fakeExtractor
}

func storeProduct(store domain.Store, id string) *domain.Product {
	return &domain.Product{
		ID:             id,
		Source:         store,
		URL:            "https://www." + store.Domain() + "/p/" + id,
		Name:           strings.ToUpper(string(store)) + " " + id,
		Price:          price(19.99),
		Rating:         4.2,
		ReviewCount:    10,
		Specifications: map[string]string{},
	}
}

func newProductFixture(t *testing.T, cfg ProductServiceConfig) *productFixture {
	t.Helper()

	f := &productFixture{
		cache:    newTestCacheStore(newCountingIndex()),
		urls:     &fakeURLSource{urls: map[domain.Store][]string{}},
		llm:      &fakeLLM{respond: func(string) (string, error) { return tagsResponse, nil }},
		tasks:    NewTaskRegistry(),
		registry: NewProductRegistry(100),
		amazon:   &fakeExtractor{store: domain.StoreAmazon, products: map[string]*domain.Product{}, errs: map[string]error{}},
		walmart:  &fakeExtractor{store: domain.StoreWalmart, products: map[string]*domain.Product{}, errs: map[string]error{}},
	}
	enricher := NewSpecificationEnricher(f.llm, SpecificationEnricherConfig{})
	f.svc = NewProductService(f.cache, f.urls, extractor.NewRegistry(f.amazon, f.walmart), enricher, f.registry, f.tasks, cfg)

	t.Cleanup(func() {
		f.tasks.Drain(context.Background())
	})
	return f
}

func (f *productFixture) addProduct(ext *fakeExtractor, id string) string {
	p := storeProduct(ext.store, id)
	ext.products[p.URL] = p
	f.urls.urls[ext.store] = append(f.urls.urls[ext.store], p.URL)
	return p.URL
}

func TestDiscoverProducts_FreshExtraction(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	f.addProduct(f.amazon, "a1")
	f.addProduct(f.amazon, "a2")
	f.addProduct(f.walmart, "w1")

	set, err := f.svc.DiscoverProducts(context.Background(), "wireless mouse", 3)
	require.NoError(t, err)

	require.Len(t, set[domain.StoreAmazon], 2)
	assert.Equal(t, "a1", set[domain.StoreAmazon][0].ID)
	assert.Equal(t, "a2", set[domain.StoreAmazon][1].ID)
	require.Len(t, set[domain.StoreWalmart], 1)
	assert.Contains(t, set, domain.StoreTarget)
	assert.Empty(t, set[domain.StoreTarget])
	for _, p := range set[domain.StoreAmazon] {
		assert.Empty(t, p.Specifications)
	}
	assert.Equal(t, 3, f.registry.Len())

	require.NoError(t, f.tasks.Drain(context.Background()))

	p, ok := f.registry.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "Black", p.Specifications["Color"])

	cached, ok := f.cache.LookupExactDiscovery(context.Background(), DiscoveryCacheKey("wireless mouse"))
	require.True(t, ok)
	assert.Equal(t, "Black", cached.Products[domain.StoreWalmart][0].Specifications["Color"])
}

func TestDiscoverProducts_CapsPerStoreAndFiltersInvalid(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	for i := 0; i < 4; i++ {
		f.addProduct(f.amazon, fmt.Sprintf("a%d", i))
	}
	nameless := f.addProduct(f.walmart, "w1")
	f.walmart.products[nameless].Name = ""

	set, err := f.svc.DiscoverProducts(context.Background(), "usb hub", 2)
	require.NoError(t, err)

	assert.Len(t, set[domain.StoreAmazon], 2)
	assert.Empty(t, set[domain.StoreWalmart])
	for _, products := range set {
		for _, p := range products {
			assert.True(t, p.Valid())
		}
	}
}

func TestDiscoverProducts_PartialFailureIsolation(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	f.addProduct(f.amazon, "a1")
	bad := f.addProduct(f.amazon, "a2")
	f.addProduct(f.amazon, "a3")
	f.amazon.errs[bad] = &domain.ExtractionError{Store: domain.StoreAmazon, URL: bad, Reason: "captcha"}

	set, err := f.svc.DiscoverProducts(context.Background(), "keyboard", 3)
	require.NoError(t, err)

	require.Len(t, set[domain.StoreAmazon], 2)
	assert.Equal(t, "a1", set[domain.StoreAmazon][0].ID)
	assert.Equal(t, "a3", set[domain.StoreAmazon][1].ID)
	assert.Equal(t, 19.99, *set[domain.StoreAmazon][1].Price)
}

func TestDiscoverProducts_PhaseTimeoutKeepsFinishedProducts(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{PhaseTimeout: 50 * time.Millisecond, ExtractTimeout: time.Second})
	f.amazon.delay = time.Second
	f.addProduct(f.amazon, "slow")
	f.addProduct(f.walmart, "fast")

	start := time.Now()
	set, err := f.svc.DiscoverProducts(context.Background(), "monitor", 3)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, set[domain.StoreAmazon])
	require.Len(t, set[domain.StoreWalmart], 1)
	assert.Equal(t, "fast", set[domain.StoreWalmart][0].ID)
}

func TestDiscoverProducts_CacheHitSkipsDiscovery(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	ctx := context.Background()

	cachedSet := domain.DiscoverySet{
		domain.StoreAmazon: {{
			ID: "p1", Source: domain.StoreAmazon, Name: "Mouse", URL: "https://amazon.com/dp/B000000001",
			Price: price(19.99), Rating: 4.2, ReviewCount: 10, Specifications: map[string]string{},
		}},
	}
	require.NoError(t, f.cache.StoreDiscovery(ctx, DiscoveryCacheKey("wireless mouse"), "wireless mouse", cachedSet, 3))

	set, err := f.svc.DiscoverProducts(ctx, "Wireless  Mouse", 3)
	require.NoError(t, err)

	assert.Equal(t, int32(0), f.urls.calls.Load())
	require.Len(t, set[domain.StoreAmazon], 1)
	got := set[domain.StoreAmazon][0]
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, "Mouse", got.Name)
	assert.Equal(t, 19.99, *got.Price)
	assert.Equal(t, 4.2, got.Rating)
	assert.Equal(t, 10, got.ReviewCount)

	waitFor(t, func() bool { return f.registry.Has("p1") })
}

func TestDiscoverProducts_SecondCallHitsCache(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	f.addProduct(f.amazon, "a1")

	_, err := f.svc.DiscoverProducts(context.Background(), "the gaming mouse", 3)
	require.NoError(t, err)
	set, err := f.svc.DiscoverProducts(context.Background(), "mouse gaming", 3)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.urls.calls.Load())
	assert.Equal(t, int32(1), f.amazon.calls.Load())
	require.Len(t, set[domain.StoreAmazon], 1)
}

func TestDiscoverProducts_LargerCapBypassesNarrowerCacheEntry(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		f.addProduct(f.amazon, fmt.Sprintf("a%d", i))
	}

	set, err := f.svc.DiscoverProducts(ctx, "wireless mouse", 1)
	require.NoError(t, err)
	require.Len(t, set[domain.StoreAmazon], 1)

	set, err = f.svc.DiscoverProducts(ctx, "wireless mouse", 3)
	require.NoError(t, err)
	assert.Len(t, set[domain.StoreAmazon], 3)
	assert.Equal(t, int32(2), f.urls.calls.Load())

	require.NoError(t, f.tasks.Drain(ctx))

	cached, ok := f.cache.LookupExactDiscovery(ctx, DiscoveryCacheKey("wireless mouse"))
	require.True(t, ok)
	assert.Equal(t, 3, cached.MaxPerStore)
	assert.Len(t, cached.Products[domain.StoreAmazon], 3)

	set, err = f.svc.DiscoverProducts(ctx, "wireless mouse", 2)
	require.NoError(t, err)
	assert.Len(t, set[domain.StoreAmazon], 2)
	assert.Equal(t, int32(2), f.urls.calls.Load(), "a narrower request is served from the wider entry")
}

func TestCachedDiscoveryCovers(t *testing.T) {
	tests := []struct {
		name      string
		cachedCap int
		requested int
		want      bool
	}{
		{"unknown cap", 0, 10, true},
		{"same cap", 3, 3, true},
		{"wider entry", 5, 2, true},
		{"narrower entry", 1, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &CachedDiscovery{MaxPerStore: tt.cachedCap}
			assert.Equal(t, tt.want, c.Covers(tt.requested))
		})
	}
}

func TestDiscoverProducts_NoURLs(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})

	set, err := f.svc.DiscoverProducts(context.Background(), "nothing matches", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Count())
	assert.Len(t, set, len(domain.Stores))
}

func TestDiscoverProducts_EmptyQuery(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})

	_, err := f.svc.DiscoverProducts(context.Background(), "   ", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestAddCustomProduct(t *testing.T) {
	t.Run("registers the product", func(t *testing.T) {
		f := newProductFixture(t, ProductServiceConfig{})
		url := f.addProduct(f.walmart, "w9")

		p, err := f.svc.AddCustomProduct(context.Background(), url)
		require.NoError(t, err)
		assert.Equal(t, "w9", p.ID)
		assert.True(t, f.registry.Has("w9"))
	})

	t.Run("unsupported store", func(t *testing.T) {
		f := newProductFixture(t, ProductServiceConfig{})

		_, err := f.svc.AddCustomProduct(context.Background(), "https://www.ebay.com/itm/1")
		var unsupported *domain.StoreNotSupportedError
		assert.True(t, errors.As(err, &unsupported))
	})

	t.Run("timeout is surfaced", func(t *testing.T) {
		f := newProductFixture(t, ProductServiceConfig{SingleTimeout: 20 * time.Millisecond})
		f.amazon.delay = time.Second
		url := f.addProduct(f.amazon, "a1")

		_, err := f.svc.AddCustomProduct(context.Background(), url)
		var timeout *domain.TimeoutExceeded
		require.True(t, errors.As(err, &timeout))
		assert.Equal(t, "custom product extraction", timeout.Operation)
	})

	t.Run("extraction failure is surfaced", func(t *testing.T) {
		f := newProductFixture(t, ProductServiceConfig{})

		_, err := f.svc.AddCustomProduct(context.Background(), "https://www.amazon.com/dp/unknown")
		var extraction *domain.ExtractionError
		assert.True(t, errors.As(err, &extraction))
	})
}

func TestRefreshProduct_KeepsIdentityAndSelection(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	url := f.addProduct(f.amazon, "a1")
	f.registry.Put(storeProduct(domain.StoreAmazon, "a1"))
	_, err := f.svc.SelectProduct(context.Background(), domain.StoreAmazon, "a1")
	require.NoError(t, err)

	f.amazon.products[url].Price = price(9.99)
	f.amazon.products[url].ID = "fresh-id"

	p, err := f.svc.RefreshProduct(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", p.ID)
	assert.True(t, p.IsSelected)
	assert.Equal(t, 9.99, *p.Price)

	_, err = f.svc.RefreshProduct(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestSelectProduct(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	f.registry.Put(storeProduct(domain.StoreAmazon, "a1"))
	f.registry.Put(storeProduct(domain.StoreWalmart, "w1"))

	_, err := f.svc.SelectProduct(context.Background(), domain.StoreAmazon, "a1")
	require.NoError(t, err)
	_, err = f.svc.SelectProduct(context.Background(), domain.StoreWalmart, "w1")
	require.NoError(t, err)

	selected := f.svc.GetSelectedProducts()
	assert.Len(t, selected, 2)

	_, err = f.svc.SelectProduct(context.Background(), domain.StoreTarget, "a1")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestGetSpecificationsForProducts_CacheFirst(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{})
	f.registry.Put(storeProduct(domain.StoreAmazon, "a1"))

	first, err := f.svc.GetSpecificationsForProducts(context.Background(), []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, "Black", first["a1"]["Color"])
	assert.Equal(t, 1, f.llm.callCount())

	second, err := f.svc.GetSpecificationsForProducts(context.Background(), []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.llm.callCount())

	_, err = f.svc.GetSpecificationsForProducts(context.Background(), []string{"nope"})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.svc.GetSpecificationsForProducts(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGetHistory_NewestFirstAndBounded(t *testing.T) {
	f := newProductFixture(t, ProductServiceConfig{MaxHistoryItems: 2})

	for _, q := range []string{"first", "second", "third"} {
		_, err := f.svc.DiscoverProducts(context.Background(), q, 3)
		require.NoError(t, err)
	}

	history := f.svc.GetHistory()
	require.Len(t, history, 2)
	assert.Equal(t, "third", history[0].Query)
	assert.Equal(t, "second", history[1].Query)
}
