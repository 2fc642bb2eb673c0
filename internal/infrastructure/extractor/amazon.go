package extractor

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

var (
	amazonRatingRegex = regexp.MustCompile(`([0-5](?:\.\d)?)\s*out of 5`)
	amazonCountRegex  = regexp.MustCompile(`([\d,]+)`)
)

// AmazonExtractor parses amazon.com product pages
type AmazonExtractor struct {
	page page
}

// NewAmazonExtractor creates an Amazon extractor
func NewAmazonExtractor(fetcher domain.PageFetcher) *AmazonExtractor {
	return &AmazonExtractor{page: page{store: domain.StoreAmazon, fetcher: fetcher}}
}

func (e *AmazonExtractor) Store() domain.Store { return domain.StoreAmazon }

func (e *AmazonExtractor) Extract(ctx context.Context, url string) (*domain.Product, error) {
	doc, err := e.page.load(ctx, url)
	if err != nil {
		return nil, err
	}
	return e.page.finish(parseAmazonProduct(doc.Selection, e.page.newProduct(url)))
}

func parseAmazonProduct(doc *goquery.Selection, product *domain.Product) *domain.Product {
	product.Name, _ = FirstMatch(doc, "amazon.name", []Strategy[string]{
		{Name: "product-title", Find: func(s *goquery.Selection) (string, bool) { return textOf(s, "#productTitle") }},
		{Name: "title", Find: func(s *goquery.Selection) (string, bool) { return textOf(s, "#title") }},
	})

	if price, ok := FirstMatch(doc, "amazon.price", []Strategy[float64]{
		{Name: "core-price", Find: func(s *goquery.Selection) (float64, bool) {
			text, ok := textOf(s, "#corePrice_feature_div .a-offscreen")
			if !ok {
				return 0, false
			}
			return parsePrice(text)
		}},
		{Name: "a-price", Find: func(s *goquery.Selection) (float64, bool) {
			text, ok := textOf(s, ".a-price .a-offscreen")
			if !ok {
				return 0, false
			}
			return parsePrice(text)
		}},
		{Name: "priceblock", Find: func(s *goquery.Selection) (float64, bool) {
			text, ok := textOf(s, "#priceblock_ourprice")
			if !ok {
				return 0, false
			}
			return parsePrice(text)
		}},
	}); ok {
		product.Price = &price
	}

	product.Rating, _ = FirstMatch(doc, "amazon.rating", []Strategy[float64]{
		{Name: "acr-popover-title", Find: func(s *goquery.Selection) (float64, bool) {
			title, ok := attrOf(s, "#acrPopover", "title")
			if !ok {
				return 0, false
			}
			return firstFloat(title, amazonRatingRegex)
		}},
		{Name: "rating-out-of-text", Find: func(s *goquery.Selection) (float64, bool) {
			text, ok := textOf(s, `[data-hook="rating-out-of-text"]`)
			if !ok {
				return 0, false
			}
			return firstFloat(text, amazonRatingRegex)
		}},
	})

	if text, ok := textOf(doc, "#acrCustomerReviewText"); ok {
		product.ReviewCount, _ = firstInt(text, amazonCountRegex)
	}

	product.ImageURL, _ = FirstMatch(doc, "amazon.image", []Strategy[string]{
		{Name: "old-hires", Find: func(s *goquery.Selection) (string, bool) { return attrOf(s, "#landingImage", "data-old-hires") }},
		{Name: "landing-src", Find: func(s *goquery.Selection) (string, bool) { return attrOf(s, "#landingImage", "src") }},
	})

	var parts []string
	if bullets := joinListItems(doc.Find("#feature-bullets ul").First()); bullets != "" {
		parts = append(parts, bullets)
	}
	doc.Find("#productDetails_techSpec_section_1 tr").Each(func(_ int, row *goquery.Selection) {
		label := cleanText(row.Find("th").Text())
		value := cleanText(row.Find("td").Text())
		if label != "" && value != "" {
			parts = append(parts, label+": "+value)
		}
	})
	product.SpecificationsRaw = strings.Join(parts, "\n")

	return product
}
