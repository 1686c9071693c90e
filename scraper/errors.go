package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvable is returned when a URL names neither a seller nor a brand.
	ErrUnresolvable = errors.New("could not resolve seller or brand identifier")
	// ErrInvalidProductURL is returned when no product ID can be read from a URL.
	ErrInvalidProductURL = errors.New("could not extract product id from url")
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the upstream rate-limited the request (HTTP 429).
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrHTTPStatus indicates any other non-success status.
type ErrHTTPStatus struct {
	Code int
}

func (e ErrHTTPStatus) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

// ErrMalformed indicates a body the page validator rejected.
type ErrMalformed struct {
	Reason string
	Detail string
}

func (e ErrMalformed) Error() string {
	if e.Detail == "" {
		return "malformed: " + e.Reason
	}
	return fmt.Sprintf("malformed: %s: %s", e.Reason, e.Detail)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var status ErrHTTPStatus
	if errors.As(err, &status) {
		return "http_status"
	}
	var malformed ErrMalformed
	if errors.As(err, &malformed) {
		return "malformed"
	}
	return "other"
}
