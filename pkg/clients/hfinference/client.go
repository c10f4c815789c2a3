// Package hfinference calls hosted text-classification models: a sentiment
// model and a zero-shot topic model. Calls are guarded by a circuit breaker
// so a failing classifier is skipped quickly and callers fall back to
// their constant scores.
package hfinference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/fortuneofweb3/blabz/pkg/clients"
	"github.com/fortuneofweb3/blabz/pkg/logging"
)

const (
	DefaultBaseURL        = "https://api-inference.huggingface.co/models"
	DefaultSentimentModel = "cardiffnlp/twitter-roberta-base-sentiment-latest"
	DefaultTopicModel     = "facebook/bart-large-mnli"
)

type Config struct {
	BaseURL        string
	Token          string
	SentimentModel string
	TopicModel     string
	Timeout        time.Duration
	Retry          clients.RetryConfig
	Logger         logging.Logger

	// OnBreakerStateChange is called after every circuit transition.
	OnBreakerStateChange func(name string, from, to clients.CircuitBreakerState)
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	sentimentModel string
	topicModel     string
	retry          retrypolicy.RetryPolicy[[]byte]
	breaker        *clients.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if cfg.SentimentModel == "" {
		cfg.SentimentModel = DefaultSentimentModel
	}
	if cfg.TopicModel == "" {
		cfg.TopicModel = DefaultTopicModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Retry == (clients.RetryConfig{}) {
		cfg.Retry = clients.RetryConfig{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	}
	breakerCfg := clients.DefaultCircuitBreakerConfig("classifier")
	breakerCfg.Logger = cfg.Logger
	breakerCfg.OnStateChange = cfg.OnBreakerStateChange
	return &Client{
		httpClient:     clients.NewHTTPClient(cfg.Timeout),
		baseURL:        baseURL,
		token:          cfg.Token,
		sentimentModel: cfg.SentimentModel,
		topicModel:     cfg.TopicModel,
		retry:          clients.NewRetryPolicy[[]byte](cfg.Retry, nil),
		breaker:        clients.NewCircuitBreaker(breakerCfg),
	}
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// ClassifySentiment returns a positivity score in [0,1]: P(positive) plus
// half of P(neutral) for three-class models.
func (c *Client) ClassifySentiment(ctx context.Context, text string) (float64, error) {
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return 0, fmt.Errorf("sentiment: marshal: %w", err)
	}
	body, err := c.post(ctx, "sentiment", c.sentimentModel, payload)
	if err != nil {
		return 0, fmt.Errorf("sentiment: %w", err)
	}

	// The API wraps per-input results in an outer array.
	var nested [][]labelScore
	if err := json.Unmarshal(body, &nested); err != nil || len(nested) == 0 {
		var flat []labelScore
		if err2 := json.Unmarshal(body, &flat); err2 != nil {
			return 0, fmt.Errorf("sentiment: decode response: %w", err2)
		}
		nested = [][]labelScore{flat}
	}

	var positive, neutral float64
	var seen bool
	threeClass := isThreeClass(nested[0])
	for _, ls := range nested[0] {
		switch normalizeSentimentLabel(ls.Label, threeClass) {
		case "positive":
			positive, seen = ls.Score, true
		case "neutral":
			neutral, seen = ls.Score, true
		case "negative":
			seen = true
		}
	}
	if !seen {
		return 0, errors.New("sentiment: response carried no known labels")
	}
	return clamp01(positive + neutral/2), nil
}

// ClassifyTopics scores text against each candidate label independently.
func (c *Client) ClassifyTopics(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	if len(labels) == 0 {
		return map[string]float64{}, nil
	}
	payload, err := json.Marshal(zeroShotRequest{
		Inputs:     text,
		Parameters: zeroShotParameters{CandidateLabels: labels, MultiLabel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("topics: marshal: %w", err)
	}
	body, err := c.post(ctx, "topics", c.topicModel, payload)
	if err != nil {
		return nil, fmt.Errorf("topics: %w", err)
	}

	var resp zeroShotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("topics: decode response: %w", err)
	}
	if len(resp.Labels) != len(resp.Scores) {
		return nil, fmt.Errorf("topics: %d labels but %d scores", len(resp.Labels), len(resp.Scores))
	}
	out := make(map[string]float64, len(resp.Labels))
	for i, label := range resp.Labels {
		out[label] = resp.Scores[i]
	}
	return out, nil
}

// HealthCheck fails while the breaker keeps calls away from the upstream.
func (c *Client) HealthCheck(context.Context) error {
	if c.breaker.IsOpen() {
		return fmt.Errorf("circuit %s is %s", c.breaker.Name(), c.breaker.State())
	}
	return nil
}

func (c *Client) post(ctx context.Context, op, model string, payload []byte) ([]byte, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		return failsafe.With(c.retry).WithContext(ctx).Get(func() ([]byte, error) {
			return c.do(ctx, op, model, payload)
		})
	})
	if err != nil {
		return nil, err
	}
	body, _ := res.([]byte)
	return body, nil
}

func (c *Client) do(ctx context.Context, op, model string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &clients.RateLimitedError{Op: op, RetryAfter: clients.ParseRetryAfter(resp.Header, time.Now(), time.Minute)}
	}
	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(body))
		msg = truncate(msg, 256)
		return nil, &clients.APIError{Op: op, StatusCode: resp.StatusCode, Body: msg}
	}
	return body, nil
}

// isThreeClass reports whether generic LABEL_n outputs follow the
// negative/neutral/positive layout rather than negative/positive.
func isThreeClass(results []labelScore) bool {
	if len(results) >= 3 {
		return true
	}
	for _, ls := range results {
		if strings.EqualFold(strings.TrimSpace(ls.Label), "label_2") {
			return true
		}
	}
	return false
}

func normalizeSentimentLabel(label string, threeClass bool) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "pos", "label_2":
		return "positive"
	case "neutral", "neu":
		return "neutral"
	case "label_1":
		if threeClass {
			return "neutral"
		}
		return "positive"
	case "negative", "neg", "label_0":
		return "negative"
	default:
		return ""
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
