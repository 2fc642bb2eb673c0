package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrProductNotFound is returned when a product ID is not in the registry
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrIndexUnavailable is returned when the vector index could not be initialized
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrNoSelection is returned when an operation needs selected products and none are given
	ErrNoSelection = errors.New("no products selected")

	// ErrUpstreamFailure is returned when an external collaborator request fails
	ErrUpstreamFailure = errors.New("upstream request failed")

	// ErrReviewPollTimeout is returned when an async review scrape job did not finish within its budget
	ErrReviewPollTimeout = errors.New("review scrape job did not complete in time")
)

// ExtractionError reports a failed extraction for a single URL
type ExtractionError struct {
	Store  Store
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract product from %s (%s): %s", e.Store, e.URL, e.Reason)
}

func (e *ExtractionError) StatusCode() int { return http.StatusUnprocessableEntity }

func (e *ExtractionError) Details() map[string]any {
	return map[string]any{"store": e.Store, "url": e.URL, "reason": e.Reason}
}

// StoreNotSupportedError is returned for URLs outside the known store domains
type StoreNotSupportedError struct {
	Store string
}

func (e *StoreNotSupportedError) Error() string {
	return fmt.Sprintf("store %s not supported", e.Store)
}

func (e *StoreNotSupportedError) StatusCode() int { return http.StatusBadRequest }

func (e *StoreNotSupportedError) Details() map[string]any {
	return map[string]any{"store": e.Store}
}

// RateLimitExceeded is returned when a collaborator or client is throttled
type RateLimitExceeded struct {
	WaitSeconds int
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %ds", e.WaitSeconds)
}

func (e *RateLimitExceeded) StatusCode() int { return http.StatusTooManyRequests }

func (e *RateLimitExceeded) Details() map[string]any {
	return map[string]any{"wait_seconds": e.WaitSeconds}
}

// TimeoutExceeded is returned when a bounded operation ran out of time
type TimeoutExceeded struct {
	Operation string
	After     time.Duration
	Err       error
}

func (e *TimeoutExceeded) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.After)
}

func (e *TimeoutExceeded) Unwrap() error { return e.Err }

func (e *TimeoutExceeded) StatusCode() int { return http.StatusGatewayTimeout }

func (e *TimeoutExceeded) Details() map[string]any {
	return map[string]any{"operation": e.Operation, "timeout_seconds": e.After.Seconds()}
}

// CacheWriteFailure wraps a failed write to the vector cache
type CacheWriteFailure struct {
	Operation string
	Err       error
}

func (e *CacheWriteFailure) Error() string {
	return fmt.Sprintf("cache write %s failed: %v", e.Operation, e.Err)
}

func (e *CacheWriteFailure) Unwrap() error { return e.Err }

func (e *CacheWriteFailure) StatusCode() int { return http.StatusInternalServerError }

func (e *CacheWriteFailure) Details() map[string]any {
	return map[string]any{"operation": e.Operation}
}

// StatusError is implemented by every typed error crossing the service boundary
type StatusError interface {
	error
	StatusCode() int
	Details() map[string]any
}
