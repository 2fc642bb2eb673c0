package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

var helpfulVotesRegex = regexp.MustCompile(`\((\d+)\)`)

// walmartReviewContainers lists the ways of locating review blocks, strictest first
var walmartReviewContainers = []Strategy[*goquery.Selection]{
	{Name: "review-card", Find: func(s *goquery.Selection) (*goquery.Selection, bool) {
		found := s.Find("div.overflow-visible.b--none.dark-gray")
		return found, found.Length() > 0
	}},
	{Name: "overflow-with-date", Find: func(s *goquery.Selection) (*goquery.Selection, bool) {
		found := s.Find("div.overflow-visible").FilterFunction(func(_ int, c *goquery.Selection) bool {
			return c.Find("div.f7.gray.justify-end").Length() > 0
		})
		return found, found.Length() > 0
	}},
}

// ParseWalmartPageCount reads the highest page number from a review page's pagination
func ParseWalmartPageCount(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	maxPage := 1
	doc.Find(`nav[aria-label="pagination"] a[data-automation-id="page-number"]`).Each(func(_ int, a *goquery.Selection) {
		if n, err := strconv.Atoi(cleanText(a.Text())); err == nil && n > maxPage {
			maxPage = n
		}
	})
	return maxPage
}

// ParseWalmartReviews extracts the reviews on one review page.
// Blocks that fail to parse or lack text or rating are skipped.
func ParseWalmartReviews(html, productName string) []domain.Review {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	containers, ok := FirstMatch(doc.Selection, "walmart.review-containers", walmartReviewContainers)
	if !ok {
		return nil
	}

	var reviews []domain.Review
	containers.Each(func(_ int, c *goquery.Selection) {
		if review, ok := parseWalmartReview(c, productName); ok {
			reviews = append(reviews, review)
		}
	})
	return reviews
}

func parseWalmartReview(c *goquery.Selection, productName string) (domain.Review, bool) {
	review := domain.Review{ProductName: productName}

	review.Date, _ = textOf(c, "div.f7.gray.flex.justify-end")
	review.Author, _ = textOf(c, "span.f7.b.mv0")
	review.Title, _ = textOf(c, "h3.w_kV33.w_Sl3f.w_mvVb")
	review.Rating = c.Find("div.w_ExHd.w_y6ym svg.w_1jp4").Length()

	if body := c.Find("span.tl-m.db-m").First(); body.Length() > 0 {
		body = body.Clone()
		body.Find("b").Remove()
		review.Text = cleanText(body.Text())
	}

	c.Find(`button[aria-label*="Upvote"] span.ml1.f7.dark-gray`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := helpfulVotesRegex.FindStringSubmatch(s.Text()); m != nil {
			review.HelpfulVotes, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})

	c.Find("span.b.f7.dark-gray").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "Verified Purchase") {
			review.Verified = true
			return false
		}
		return true
	})

	if review.Text == "" || review.Rating <= 0 {
		return domain.Review{}, false
	}
	if review.Rating > 5 {
		review.Rating = 5
	}
	return review, true
}
