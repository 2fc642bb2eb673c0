package extractor

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

var (
	walmartRatingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`([0-5](?:\.\d)?)\s*stars?`),
		regexp.MustCompile(`\((\d(?:\.\d)?)\)`),
		regexp.MustCompile(`\b([0-5](?:\.\d)?)\b`),
	}
	walmartCountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`out of\s+([\d,]+)`),
		regexp.MustCompile(`([\d,]+)\s+(?:ratings|reviews)`),
	}
)

// WalmartExtractor parses walmart.com product pages
type WalmartExtractor struct {
	page page
}

// NewWalmartExtractor creates a Walmart extractor
func NewWalmartExtractor(fetcher domain.PageFetcher) *WalmartExtractor {
	return &WalmartExtractor{page: page{store: domain.StoreWalmart, fetcher: fetcher}}
}

func (e *WalmartExtractor) Store() domain.Store { return domain.StoreWalmart }

// Extract fetches url and reads name, price, rating, review count, image and the "About this item" list
func (e *WalmartExtractor) Extract(ctx context.Context, url string) (*domain.Product, error) {
	doc, err := e.page.load(ctx, url)
	if err != nil {
		return nil, err
	}
	return e.page.finish(parseWalmartProduct(doc.Selection, e.page.newProduct(url)))
}

func parseWalmartProduct(doc *goquery.Selection, product *domain.Product) *domain.Product {
	product.Name, _ = FirstMatch(doc, "walmart.name", []Strategy[string]{
		{Name: "main-title", Find: func(s *goquery.Selection) (string, bool) { return textOf(s, "h1#main-title") }},
		{Name: "itemprop-name", Find: func(s *goquery.Selection) (string, bool) { return textOf(s, `h1[itemprop="name"]`) }},
	})

	if price, ok := FirstMatch(doc, "walmart.price", []Strategy[float64]{
		{Name: "itemprop-price", Find: func(s *goquery.Selection) (float64, bool) {
			text, ok := textOf(s, `span[itemprop="price"]`)
			if !ok {
				return 0, false
			}
			return parsePrice(text)
		}},
		{Name: "itemprop-price-content", Find: func(s *goquery.Selection) (float64, bool) {
			v, ok := attrOf(s, `[itemprop="price"]`, "content")
			if !ok {
				return 0, false
			}
			return parsePrice(v)
		}},
	}); ok {
		product.Price = &price
	}

	if block := doc.Find(`div[data-testid="reviews-and-ratings"]`).First(); block.Length() > 0 {
		text := cleanText(block.Text())
		if rating, ok := firstFloat(text, walmartRatingPatterns...); ok && rating <= 5 {
			product.Rating = rating
		}
		if count, ok := firstInt(text, walmartCountPatterns...); ok {
			product.ReviewCount = count
		}
	}

	product.ImageURL, _ = attrOf(doc, `img[data-testid="hero-image"]`, "src")

	product.SpecificationsRaw, _ = FirstMatch(doc, "walmart.about", []Strategy[string]{
		{Name: "about-this-item", Find: func(s *goquery.Selection) (string, bool) {
			var spec string
			s.Find("h2").EachWithBreak(func(_ int, h2 *goquery.Selection) bool {
				if !strings.Contains(strings.ToLower(h2.Text()), "about this item") {
					return true
				}
				spec = joinListItems(h2.Closest("section").Find("ul").First())
				return false
			})
			return spec, spec != ""
		}},
	})

	return product
}
