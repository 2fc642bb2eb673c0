package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
)

var amazonCanonicalURL = regexp.MustCompile(`https://www\.amazon\.com/[^/]+/dp/[A-Z0-9]{10}`)

// amazonPollIntervals is the backoff schedule between snapshot polls
var amazonPollIntervals = []time.Duration{
	2 * time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second, 5 * time.Second,
	10 * time.Second, 10 * time.Second, 15 * time.Second, 15 * time.Second, 20 * time.Second,
}

// AmazonReviewFetcherConfig holds configuration for the Amazon review fetcher
type AmazonReviewFetcherConfig struct {
	DatasetID string
	MaxWait   time.Duration
	Intervals []time.Duration
}

// AmazonReviewFetcher collects Amazon reviews through an asynchronous dataset scrape job
type AmazonReviewFetcher struct {
	scraper   domain.DatasetScraper
	datasetID string
	maxWait   time.Duration
	intervals []time.Duration
}

// NewAmazonReviewFetcher creates a new Amazon review fetcher
func NewAmazonReviewFetcher(scraper domain.DatasetScraper, cfg AmazonReviewFetcherConfig) *AmazonReviewFetcher {
	if cfg.DatasetID == "" {
		cfg.DatasetID = "gd_le8e811kzy4ggddlq"
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 120 * time.Second
	}
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = amazonPollIntervals
	}
	return &AmazonReviewFetcher{
		scraper:   scraper,
		datasetID: cfg.DatasetID,
		maxWait:   cfg.MaxWait,
		intervals: cfg.Intervals,
	}
}

type amazonReviewRecord struct {
	ReviewText   string `json:"review_text"`
	ReviewHeader string `json:"review_header"`
	Rating       any    `json:"rating"`
	PostedDate   string `json:"review_posted_date"`
	HelpfulCount any    `json:"helpful_count"`
	AuthorName   string `json:"author_name"`
	IsVerified   bool   `json:"is_verified"`
}

// FetchReviews triggers a scrape job for the product and polls until it yields records.
// A job that never completes within the wait budget returns a TimeoutExceeded wrapping
// ErrReviewPollTimeout, distinct from a finished job with zero reviews.
func (f *AmazonReviewFetcher) FetchReviews(ctx context.Context, product domain.Product, limit int) ([]domain.Review, error) {
	snapshotID, err := f.scraper.Trigger(ctx, f.datasetID, []string{CleanAmazonURL(product.URL)})
	if err != nil {
		return nil, err
	}

	records, err := f.poll(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	reviews := make([]domain.Review, 0, min(len(records), limit))
	for _, raw := range records {
		if len(reviews) >= limit {
			break
		}
		var rec amazonReviewRecord
		if err := json.Unmarshal(raw, &rec); err != nil || strings.TrimSpace(rec.ReviewText) == "" {
			continue
		}
		reviews = append(reviews, domain.Review{
			Text:         rec.ReviewText,
			Title:        rec.ReviewHeader,
			Rating:       looseInt(rec.Rating),
			Date:         rec.PostedDate,
			HelpfulVotes: looseInt(rec.HelpfulCount),
			ProductName:  product.Name,
			Author:       rec.AuthorName,
			Verified:     rec.IsVerified,
		})
	}

	logrus.WithFields(logrus.Fields{"snapshot_id": snapshotID, "records": len(records), "reviews": len(reviews)}).Info("[REVIEWS] amazon scrape finished")
	return reviews, nil
}

// poll checks the snapshot once, then once more after each interval that fits the wait budget.
// It never sleeps without polling afterwards.
func (f *AmazonReviewFetcher) poll(ctx context.Context, snapshotID string) ([]json.RawMessage, error) {
	var waited time.Duration
	for attempt := 1; ; attempt++ {
		records, err := f.scraper.Snapshot(ctx, snapshotID)
		switch {
		case err == nil && len(records) > 0:
			return records, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case err != nil:
			logrus.WithError(err).WithField("attempt", attempt).Warnf("[REVIEWS] polling snapshot %s failed", snapshotID)
		default:
			logrus.WithField("attempt", attempt).Debugf("[REVIEWS] snapshot %s still running", snapshotID)
		}

		if attempt > len(f.intervals) {
			break
		}
		interval := f.intervals[attempt-1]
		if waited+interval >= f.maxWait {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		waited += interval
	}

	return nil, &domain.TimeoutExceeded{Operation: "amazon review scrape", After: f.maxWait, Err: domain.ErrReviewPollTimeout}
}

// CleanAmazonURL reduces a product URL to its canonical /dp/<ASIN> form, or strips query and fragment
func CleanAmazonURL(url string) string {
	if m := amazonCanonicalURL.FindString(url); m != "" {
		return m
	}
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i]
	}
	return url
}

// looseInt reads numbers that scrapers emit as numbers or numeric strings
func looseInt(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		fields := strings.Fields(strings.ReplaceAll(val, ",", ""))
		if len(fields) == 0 {
			return 0
		}
		if f, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return int(f)
		}
	}
	return 0
}
