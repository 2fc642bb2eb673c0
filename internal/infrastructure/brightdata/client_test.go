package brightdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/meshivanshsinghh/opinionflow/internal/infrastructure/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		APIKey:            "test-api-key",
		BaseURL:           serverURL,
		UnlockerZone:      "test_unlocker",
		RequestsPerSecond: 1000,
		Burst:             100,
		Timeout:           5 * time.Second,
		Retry:             retry.New("test", 3, time.Millisecond),
	})
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{APIKey: "key", BaseURL: "https://api.example.com/"})

	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
	assert.Equal(t, "https://api.example.com", client.baseURL)
	assert.Equal(t, 3, client.retry.MaxAttempts)
}

func TestFetch_SendsZoneAndAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/request", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var body requestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "serp_zone", body.Zone)
		assert.Equal(t, "https://www.google.com/search?q=mouse", body.URL)
		assert.Equal(t, "json", body.Format)

		w.Write([]byte(`{"status_code":200,"body":"<html>ok</html>"}`))
	}))
	defer server.Close()

	raw, err := newTestClient(server.URL).Fetch(context.Background(), "https://www.google.com/search?q=mouse", "serp_zone")
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", UnwrapBody(raw))
}

func TestFetch_RetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"body":"<html></html>"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), "https://example.com", "zone")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_RateLimitIsTypedAndNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), "https://example.com", "zone")

	var rl *domain.RateLimitExceeded
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 17, rl.WaitSeconds)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_ExhaustedRetriesReturnUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), "https://example.com", "zone")
	assert.True(t, errors.Is(err, domain.ErrUpstreamFailure))
}

func TestFetchPage(t *testing.T) {
	t.Run("unwraps the json envelope", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body requestBody
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "test_unlocker", body.Zone)
			w.Write([]byte(`{"body":"<h1>Product</h1>"}`))
		}))
		defer server.Close()

		html, err := newTestClient(server.URL).FetchPage(context.Background(), "https://www.walmart.com/ip/x/1")
		require.NoError(t, err)
		assert.Equal(t, "<h1>Product</h1>", html)
	})

	t.Run("empty body is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"body":""}`))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).FetchPage(context.Background(), "https://www.walmart.com/ip/x/1")
		assert.True(t, errors.Is(err, domain.ErrUpstreamFailure))
	})
}

func TestUnwrapBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"json envelope", `{"body":"<p>hi</p>"}`, "<p>hi</p>"},
		{"plain html", "<html></html>", "<html></html>"},
		{"broken json", `{"body":`, `{"body":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UnwrapBody(tt.raw))
		})
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 60, retryAfter(""))
	assert.Equal(t, 5, retryAfter("5"))
	assert.Equal(t, 60, retryAfter("soon"))
}
