package extractor

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

var targetRatingRegex = regexp.MustCompile(`([0-5](?:\.\d)?)\s*out of 5 stars with ([\d,]+) reviews`)

// TargetExtractor parses target.com product pages
type TargetExtractor struct {
	page page
}

// NewTargetExtractor creates a Target extractor
func NewTargetExtractor(fetcher domain.PageFetcher) *TargetExtractor {
	return &TargetExtractor{page: page{store: domain.StoreTarget, fetcher: fetcher}}
}

func (e *TargetExtractor) Store() domain.Store { return domain.StoreTarget }

func (e *TargetExtractor) Extract(ctx context.Context, url string) (*domain.Product, error) {
	doc, err := e.page.load(ctx, url)
	if err != nil {
		return nil, err
	}
	return e.page.finish(parseTargetProduct(doc.Selection, e.page.newProduct(url)))
}

func parseTargetProduct(doc *goquery.Selection, product *domain.Product) *domain.Product {
	product.Name, _ = textOf(doc, `h1[data-test="product-title"]`)

	if text, ok := textOf(doc, `span[data-test="product-price"]`); ok {
		if price, ok := parsePrice(text); ok {
			product.Price = &price
		}
	}

	container := doc.Find(`div[data-test="ratingFeedbackContainer"]`).First()
	container.Find(`span[class*="ScreenReaderOnly"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := targetRatingRegex.FindStringSubmatch(cleanText(s.Text()))
		if m == nil {
			return true
		}
		if rating, err := strconv.ParseFloat(m[1], 64); err == nil {
			product.Rating = rating
		}
		if count, err := strconv.Atoi(strings.ReplaceAll(m[2], ",", "")); err == nil {
			product.ReviewCount = count
		}
		return false
	})

	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if strings.Contains(src, "target.scene7.com") {
			product.ImageURL = src
			return false
		}
		return true
	})

	var parts []string
	if highlights := joinListItems(doc.Find(`div[data-test="@web/ProductDetailPageHighlights"]`).First()); highlights != "" {
		parts = append(parts, highlights)
	}
	if details, ok := textOf(doc, `div[data-test="item-details-description"]`); ok {
		parts = append(parts, details)
	}
	product.SpecificationsRaw = strings.Join(parts, "\n")

	return product
}
