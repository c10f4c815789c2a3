package kafka

import (
	"context"
	"time"
)

const (
	EventTypePostCurated = "post.curated"
	SchemaVersion        = "1.0"
)

// PostCuratedEvent is published once per newly persisted post.
type PostCuratedEvent struct {
	EventID       string             `json:"event_id"`
	EventType     string             `json:"event_type"`
	Timestamp     time.Time          `json:"timestamp"`
	Source        string             `json:"source"`
	RunID         string             `json:"run_id,omitempty"`
	PostID        string             `json:"post_id"`
	AccountID     string             `json:"account_id"`
	Handle        string             `json:"handle"`
	Projects      []string           `json:"projects"`
	Rewards       map[string]float64 `json:"rewards"`
	Score         int                `json:"score"`
	RewardTotal   float64            `json:"reward_total"`
	Permalink     string             `json:"permalink,omitempty"`
	PostedAt      time.Time          `json:"posted_at"`
	SchemaVersion string             `json:"schema_version"`
}

// Publisher is the producer surface the curation pipeline depends on.
type Publisher interface {
	PublishPostCurated(ctx context.Context, events []PostCuratedEvent) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishPostCurated(context.Context, []PostCuratedEvent) error { return nil }
func (NoopPublisher) HealthCheck(context.Context) error { return nil }
func (NoopPublisher) Close() error { return nil }
