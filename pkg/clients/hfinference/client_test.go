package hfinference

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fortuneofweb3/blabz/pkg/clients"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		BaseURL: url,
		Token:   "hf-test",
		Retry:   clients.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
}

func TestClassifySentiment_ThreeClass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+DefaultSentimentModel {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer hf-test" {
			t.Fatalf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req["inputs"] != "shipping the mainnet today" {
			t.Fatalf("unexpected input: %q", req["inputs"])
		}
		_, _ = w.Write([]byte(`[[{"label":"positive","score":0.7},{"label":"neutral","score":0.2},{"label":"negative","score":0.1}]]`))
	}))
	defer srv.Close()

	score, err := newTestClient(srv.URL).ClassifySentiment(context.Background(), "shipping the mainnet today")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if math.Abs(score-0.8) > 1e-9 {
		t.Fatalf("expected 0.8, got %v", score)
	}
}

func TestClassifySentiment_FlatBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"NEGATIVE","score":0.9},{"label":"POSITIVE","score":0.1}]`))
	}))
	defer srv.Close()

	score, err := newTestClient(srv.URL).ClassifySentiment(context.Background(), "meh")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if math.Abs(score-0.1) > 1e-9 {
		t.Fatalf("expected 0.1, got %v", score)
	}
}

func TestClassifySentiment_GenericLabels(t *testing.T) {
	cases := []struct {
		name string
		body string
		want float64
	}{
		{"two class", `[[{"label":"LABEL_0","score":0.25},{"label":"LABEL_1","score":0.75}]]`, 0.75},
		{"three class", `[[{"label":"LABEL_0","score":0.1},{"label":"LABEL_1","score":0.6},{"label":"LABEL_2","score":0.3}]]`, 0.6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			score, err := newTestClient(srv.URL).ClassifySentiment(context.Background(), "gm")
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if math.Abs(score-tc.want) > 1e-9 {
				t.Fatalf("expected %v, got %v", tc.want, score)
			}
		})
	}
}

func TestClassifySentiment_ErrorBodyKeepsWholeRunes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("x" + strings.Repeat("é", 200)))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ClassifySentiment(context.Background(), "gm")
	var apiErr *clients.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !utf8.ValidString(apiErr.Body) || len(apiErr.Body) > 256 {
		t.Fatalf("expected valid body of at most 256 bytes, got %d bytes", len(apiErr.Body))
	}
	if len(apiErr.Body) != 255 {
		t.Fatalf("expected cut before the split rune, got %d bytes", len(apiErr.Body))
	}
}

func TestClassifySentiment_UnknownLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[[{"label":"joy","score":0.9}]]`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).ClassifySentiment(context.Background(), "x"); err == nil {
		t.Fatal("expected error for unknown labels")
	}
}

func TestClassifyTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+DefaultTopicModel {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req zeroShotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !req.Parameters.MultiLabel || len(req.Parameters.CandidateLabels) != 2 {
			t.Fatalf("unexpected parameters: %+v", req.Parameters)
		}
		_, _ = w.Write([]byte(`{"sequence":"x","labels":["informative","hype"],"scores":[0.91,0.12]}`))
	}))
	defer srv.Close()

	scores, err := newTestClient(srv.URL).ClassifyTopics(context.Background(), "x", []string{"hype", "informative"})
	if err != nil {
		t.Fatalf("topics: %v", err)
	}
	if scores["informative"] != 0.91 || scores["hype"] != 0.12 {
		t.Fatalf("unexpected scores: %v", scores)
	}
}

func TestClassifyTopics_NoLabelsSkipsCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	scores, err := newTestClient(srv.URL).ClassifyTopics(context.Background(), "x", nil)
	if err != nil || len(scores) != 0 {
		t.Fatalf("expected empty result, got %v %v", scores, err)
	}
	if hits != 0 {
		t.Fatalf("expected no upstream call")
	}
}

func TestClassifier_BreakerOpensOnRepeatedFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var transitions []clients.CircuitBreakerState
	c := NewClient(Config{
		BaseURL: srv.URL,
		Retry:   clients.RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		OnBreakerStateChange: func(_ string, _, to clients.CircuitBreakerState) {
			transitions = append(transitions, to)
		},
	})
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy classifier, got %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := c.ClassifySentiment(context.Background(), "x"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if err := c.HealthCheck(context.Background()); err == nil || !strings.Contains(err.Error(), "classifier is open") {
		t.Fatalf("expected open breaker to fail the health check, got %v", err)
	}
	if len(transitions) == 0 || transitions[len(transitions)-1] != clients.StateOpen {
		t.Fatalf("expected transition to open, got %v", transitions)
	}

	before := atomic.LoadInt32(&hits)
	_, _ = c.ClassifySentiment(context.Background(), "x")
	if atomic.LoadInt32(&hits) != before {
		t.Fatal("expected open breaker to skip the upstream")
	}
}
