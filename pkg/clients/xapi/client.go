// Package xapi is a thin client for the upstream content source (X API v2
// user lookup and user timeline endpoints). Every request goes through a
// clients.RateLimitedClient so at most one call is in flight process-wide.
package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fortuneofweb3/blabz/pkg/clients"
)

const (
	DefaultBaseURL = "https://api.twitter.com/2"

	userFields  = "created_at,description,location,profile_image_url,public_metrics"
	tweetFields = "created_at,public_metrics,referenced_tweets,entities,author_id"

	minPageSize = 5
	maxPageSize = 100
)

type Config struct {
	BaseURL     string
	BearerToken string
	// DefaultRetryAfter is assumed for a 429 without reset headers.
	DefaultRetryAfter time.Duration
}

type Client struct {
	baseURL    string
	token      string
	defaultRA  time.Duration
	httpClient *http.Client
	limiter    *clients.RateLimitedClient
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func NewClient(cfg Config, limiter *clients.RateLimitedClient, opts ...Option) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limiter == nil {
		limiter = clients.NewRateLimitedClient(clients.RateLimitedConfig{Name: "xapi"})
	}
	ra := cfg.DefaultRetryAfter
	if ra <= 0 {
		ra = 15 * time.Minute
	}
	c := &Client{
		baseURL:    baseURL,
		token:      cfg.BearerToken,
		defaultRA:  ra,
		httpClient: clients.NewHTTPClient(15 * time.Second),
		limiter:    limiter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LookupAccount resolves a handle. Unknown handles return clients.ErrNotFound.
func (c *Client) LookupAccount(ctx context.Context, handle string, policy clients.RateLimitPolicy) (*User, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, fmt.Errorf("lookup account: %w", clients.ErrNotFound)
	}

	q := url.Values{}
	q.Set("user.fields", userFields)
	endpoint := fmt.Sprintf("%s/users/by/username/%s?%s", c.baseURL, url.PathEscape(handle), q.Encode())

	return clients.Execute(ctx, c.limiter, "lookup_account", policy, func(ctx context.Context) (*User, error) {
		var out userResponse
		if err := c.get(ctx, "lookup_account", endpoint, &out); err != nil {
			return nil, err
		}
		if out.Data == nil {
			return nil, fmt.Errorf("lookup account %s: %w", handle, clients.ErrNotFound)
		}
		return out.Data, nil
	})
}

// FetchTimeline returns the user's posts newest first.
func (c *Client) FetchTimeline(ctx context.Context, userID string, opts TimelineOptions, policy clients.RateLimitPolicy) ([]Tweet, error) {
	if userID == "" {
		return nil, fmt.Errorf("fetch timeline: %w", clients.ErrNotFound)
	}

	q := url.Values{}
	q.Set("tweet.fields", tweetFields)
	q.Set("max_results", strconv.Itoa(clampPageSize(opts.MaxResults)))
	if !opts.Since.IsZero() {
		q.Set("start_time", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.ExcludeReshares {
		q.Set("exclude", "retweets")
	}
	endpoint := fmt.Sprintf("%s/users/%s/tweets?%s", c.baseURL, url.PathEscape(userID), q.Encode())

	return clients.Execute(ctx, c.limiter, "fetch_timeline", policy, func(ctx context.Context) ([]Tweet, error) {
		var out timelineResponse
		if err := c.get(ctx, "fetch_timeline", endpoint, &out); err != nil {
			return nil, err
		}
		if out.Data == nil {
			return []Tweet{}, nil
		}
		return out.Data, nil
	})
}

func (c *Client) get(ctx context.Context, op, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &clients.RateLimitedError{
			Op:         op,
			RetryAfter: clients.ParseRetryAfter(resp.Header, c.now(), c.defaultRA),
		}
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, clients.ErrNotFound)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &clients.APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func clampPageSize(n int) int {
	if n <= 0 {
		return maxPageSize
	}
	if n < minPageSize {
		return minPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}
