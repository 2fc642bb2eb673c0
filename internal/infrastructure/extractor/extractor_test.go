package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages map[string]string
	err   error
}

func (f *fakeFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	html, ok := f.pages[url]
	if !ok {
		return "", errors.New("page not found")
	}
	return html, nil
}

const walmartProductHTML = `<html><body>
<h1 id="main-title">Logitech M510 Wireless Mouse</h1>
<span itemprop="price">Now $24.99</span>
<div data-testid="reviews-and-ratings"><span>4.6 stars out of 1,234 ratings</span></div>
<img data-testid="hero-image" src="https://i5.walmartimages.com/mouse.jpg"/>
<section>
  <h2>About this item</h2>
  <ul><li>Wireless 2.4 GHz</li><li>  Battery life 24 months </li></ul>
</section>
</body></html>`

const targetProductHTML = `<html><body>
<h1 data-test="product-title">Logitech Pebble Mouse</h1>
<span data-test="product-price">$19.99</span>
<div data-test="ratingFeedbackContainer">
  <span class="styles__ScreenReaderOnly-sc-1">4.4 out of 5 stars with 2,310 reviews</span>
</div>
<img src="https://example.com/logo.png"/>
<img src="https://target.scene7.com/is/image/Target/mouse"/>
<div data-test="@web/ProductDetailPageHighlights"><ul><li>Silent clicks</li></ul></div>
<div data-test="item-details-description">Slim design</div>
</body></html>`

const amazonProductHTML = `<html><body>
<span id="productTitle">  Logitech MX Master 3S  </span>
<div id="corePrice_feature_div"><span class="a-price"><span class="a-offscreen">$1,099.00</span></span></div>
<span id="acrPopover" title="4.7 out of 5 stars"></span>
<span id="acrCustomerReviewText">12,345 ratings</span>
<img id="landingImage" data-old-hires="https://m.media-amazon.com/big.jpg" src="https://m.media-amazon.com/small.jpg"/>
<div id="feature-bullets"><ul><li><span class="a-list-item">8K DPI sensor</span></li></ul></div>
<table id="productDetails_techSpec_section_1"><tr><th>Brand</th><td>Logitech</td></tr></table>
</body></html>`

func TestWalmartExtractor(t *testing.T) {
	url := "https://www.walmart.com/ip/Logitech-M510/123456"
	e := NewWalmartExtractor(&fakeFetcher{pages: map[string]string{url: walmartProductHTML}})

	p, err := e.Extract(context.Background(), url)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.StoreWalmart, p.Source)
	assert.Equal(t, "Logitech M510 Wireless Mouse", p.Name)
	require.NotNil(t, p.Price)
	assert.Equal(t, 24.99, *p.Price)
	assert.Equal(t, 4.6, p.Rating)
	assert.Equal(t, 1234, p.ReviewCount)
	assert.Equal(t, "https://i5.walmartimages.com/mouse.jpg", p.ImageURL)
	assert.Equal(t, "Wireless 2.4 GHz\nBattery life 24 months", p.SpecificationsRaw)
	assert.NotNil(t, p.LastScraped)
	assert.Empty(t, p.Specifications)
}

func TestTargetExtractor(t *testing.T) {
	url := "https://www.target.com/p/pebble/-/A-1234"
	e := NewTargetExtractor(&fakeFetcher{pages: map[string]string{url: targetProductHTML}})

	p, err := e.Extract(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, "Logitech Pebble Mouse", p.Name)
	require.NotNil(t, p.Price)
	assert.Equal(t, 19.99, *p.Price)
	assert.Equal(t, 4.4, p.Rating)
	assert.Equal(t, 2310, p.ReviewCount)
	assert.Equal(t, "https://target.scene7.com/is/image/Target/mouse", p.ImageURL)
	assert.Equal(t, "Silent clicks\nSlim design", p.SpecificationsRaw)
}

func TestAmazonExtractor(t *testing.T) {
	url := "https://www.amazon.com/Logitech/dp/B09HM94VDS"
	e := NewAmazonExtractor(&fakeFetcher{pages: map[string]string{url: amazonProductHTML}})

	p, err := e.Extract(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, "Logitech MX Master 3S", p.Name)
	require.NotNil(t, p.Price)
	assert.Equal(t, 1099.0, *p.Price)
	assert.Equal(t, 4.7, p.Rating)
	assert.Equal(t, 12345, p.ReviewCount)
	assert.Equal(t, "https://m.media-amazon.com/big.jpg", p.ImageURL)
	assert.Equal(t, "8K DPI sensor\nBrand: Logitech", p.SpecificationsRaw)
}

func TestExtractor_MissingOptionalFieldsUseDefaults(t *testing.T) {
	url := "https://www.walmart.com/ip/bare/1"
	e := NewWalmartExtractor(&fakeFetcher{pages: map[string]string{url: `<h1 id="main-title">Bare Product</h1>`}})

	p, err := e.Extract(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, "Bare Product", p.Name)
	assert.Nil(t, p.Price)
	assert.Equal(t, 0.0, p.Rating)
	assert.Equal(t, 0, p.ReviewCount)
	assert.Empty(t, p.ImageURL)
}

func TestExtractor_MissingNameIsExtractionError(t *testing.T) {
	url := "https://www.target.com/p/x/-/A-1"
	e := NewTargetExtractor(&fakeFetcher{pages: map[string]string{url: `<html><body>nothing</body></html>`}})

	_, err := e.Extract(context.Background(), url)

	var extractionErr *domain.ExtractionError
	require.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, domain.StoreTarget, extractionErr.Store)
	assert.Equal(t, url, extractionErr.URL)
}

func TestExtractor_FetchFailures(t *testing.T) {
	t.Run("fetch error becomes extraction error", func(t *testing.T) {
		e := NewAmazonExtractor(&fakeFetcher{err: errors.New("proxy down")})
		_, err := e.Extract(context.Background(), "https://www.amazon.com/x/dp/B000000001")

		var extractionErr *domain.ExtractionError
		require.True(t, errors.As(err, &extractionErr))
		assert.Contains(t, extractionErr.Reason, "proxy down")
	})

	t.Run("deadline passes through untouched", func(t *testing.T) {
		e := NewAmazonExtractor(&fakeFetcher{err: context.DeadlineExceeded})
		_, err := e.Extract(context.Background(), "https://www.amazon.com/x/dp/B000000001")
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(&fakeFetcher{})

	tests := []struct {
		url     string
		want    domain.Store
		wantErr bool
	}{
		{url: "https://www.amazon.com/x/dp/B000000001", want: domain.StoreAmazon},
		{url: "https://www.walmart.com/ip/x/1", want: domain.StoreWalmart},
		{url: "https://www.target.com/p/x/-/A-1", want: domain.StoreTarget},
		{url: "https://www.ebay.com/itm/1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			e, err := r.ForURL(tt.url)
			if tt.wantErr {
				var notSupported *domain.StoreNotSupportedError
				assert.True(t, errors.As(err, &notSupported))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Store())
		})
	}

	_, ok := NewRegistry().Get(domain.StoreAmazon)
	assert.False(t, ok)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"$24.99", 24.99, true},
		{"Now $1,299.00", 1299, true},
		{"19", 19, true},
		{"Price unavailable", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := parsePrice(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
