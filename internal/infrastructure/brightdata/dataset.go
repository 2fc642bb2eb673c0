package brightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
)

type triggerInput struct {
	URL string `json:"url"`
}

// Trigger starts a dataset scrape job for urls and returns its snapshot ID
func (c *Client) Trigger(ctx context.Context, datasetID string, urls []string) (string, error) {
	inputs := make([]triggerInput, 0, len(urls))
	for _, u := range urls {
		inputs = append(inputs, triggerInput{URL: u})
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("failed to encode trigger input: %w", err)
	}

	params := url.Values{}
	params.Add("dataset_id", datasetID)
	params.Add("include_errors", "true")
	reqURL := fmt.Sprintf("%s/datasets/v3/trigger?%s", c.baseURL, params.Encode())

	// Triggering is not idempotent, so it is attempted once
	body, _, err := c.doRequest(ctx, http.MethodPost, reqURL, payload)
	if err != nil {
		return "", err
	}

	var result struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode trigger response: %w", err)
	}
	if result.SnapshotID == "" {
		return "", fmt.Errorf("%w: trigger response has no snapshot_id", domain.ErrUpstreamFailure)
	}

	logrus.WithField("snapshot_id", result.SnapshotID).Infof("[BRIGHTDATA] triggered dataset %s for %d url(s)", datasetID, len(urls))
	return result.SnapshotID, nil
}

// Snapshot fetches a job's records. A job that is still running yields an empty slice.
func (c *Client) Snapshot(ctx context.Context, snapshotID string) ([]json.RawMessage, error) {
	reqURL := fmt.Sprintf("%s/datasets/v3/snapshot/%s?format=json", c.baseURL, url.PathEscape(snapshotID))

	body, status, err := c.doRequest(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusAccepted {
		return nil, nil
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		// {"status":"running"} and similar progress objects
		return nil, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return records, nil
}
