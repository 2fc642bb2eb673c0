package brightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const defaultRetryAfter = 60

// Config holds Bright Data client settings
type Config struct {
	APIKey            string
	BaseURL           string
	UnlockerZone      string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Retry             retry.Policy
}

// Client talks to the Bright Data request and dataset APIs.
// It serves as the search proxy, the page fetcher and the dataset scraper.
type Client struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	unlockerZone string
	rateLimiter  *rate.Limiter
	retry        retry.Policy
}

// NewClient creates a new Bright Data client
func NewClient(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.New("brightdata", 3, time.Second)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		unlockerZone: cfg.UnlockerZone,
		rateLimiter:  rate.NewLimiter(rate.Limit(rps), burst),
		retry:        policy,
	}
}

type requestBody struct {
	Zone   string `json:"zone"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

// Fetch requests targetURL through the given zone and returns the raw response text.
// The text is usually a JSON envelope whose "body" field holds the page HTML.
func (c *Client) Fetch(ctx context.Context, targetURL, zone string) (string, error) {
	payload, err := json.Marshal(requestBody{Zone: zone, URL: targetURL, Format: "json"})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) (string, error) {
		body, _, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/request", payload)
		if err != nil {
			logrus.WithError(err).WithField("zone", zone).Warnf("[BRIGHTDATA] request for %s failed", targetURL)
			return "", err
		}
		return string(body), nil
	})
}

// FetchPage returns the HTML of url fetched through the unlocker zone
func (c *Client) FetchPage(ctx context.Context, url string) (string, error) {
	raw, err := c.Fetch(ctx, url, c.unlockerZone)
	if err != nil {
		return "", err
	}

	html := UnwrapBody(raw)
	if strings.TrimSpace(html) == "" {
		return "", fmt.Errorf("%w: no HTML content in response body for %s", domain.ErrUpstreamFailure, url)
	}
	return html, nil
}

// UnwrapBody extracts the "body" field of a JSON envelope, or returns raw unchanged when it is not one
func UnwrapBody(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw
	}

	var envelope struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return raw
	}
	return envelope.Body
}

// doRequest executes an authenticated request and maps throttling and failures to domain errors
func (c *Client) doRequest(ctx context.Context, method, reqURL string, payload []byte) ([]byte, int, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter error: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: reading body: %v", domain.ErrUpstreamFailure, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, &domain.RateLimitExceeded{WaitSeconds: retryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d, body: %s", domain.ErrUpstreamFailure, resp.StatusCode, truncate(string(body), 200))
	}

	return body, resp.StatusCode, nil
}

func retryAfter(header string) int {
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return secs
	}
	if at, err := http.ParseTime(header); err == nil {
		if secs := int(time.Until(at).Seconds()); secs > 0 {
			return secs
		}
	}
	return defaultRetryAfter
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
