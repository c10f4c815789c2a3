package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrRateLimited matches every *RateLimitedError via errors.Is.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrUpstreamUnavailable means transient retries were exhausted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotFound is returned by upstream SDKs for unknown resources.
	ErrNotFound = errors.New("upstream resource not found")
)

// RateLimitedError is the distinguished rate-limit outcome. RetryAfter is the
// advertised time until the quota resets.
type RateLimitedError struct {
	Op         string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Op, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// APIError carries a non-success upstream status.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsTransient reports whether err is worth retrying: network failures,
// and 5xx responses. Rate limits, client errors and context cancellation or
// expiry are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return true
}

// ParseRetryAfter reads the reset hint of a 429 response. It understands the
// x-rate-limit-reset epoch header and the standard Retry-After seconds or
// HTTP-date forms, falling back to def.
func ParseRetryAfter(h http.Header, now time.Time, def time.Duration) time.Duration {
	if reset := h.Get("x-rate-limit-reset"); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	if ra := h.Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseInt(ra, 10, 64); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(ra); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}
	return def
}
