package curation

import (
	"time"

	"github.com/fortuneofweb3/blabz/api_curation/internal/filter"
	"github.com/fortuneofweb3/blabz/api_curation/internal/scoring"
	"github.com/fortuneofweb3/blabz/pkg/config"
)

type Config struct {
	Filter  filter.Config
	Scoring scoring.Config
	Reward  scoring.RewardPolicy

	// Window bounds both the timeline fetch and the merge with stored posts.
	Window             time.Duration
	TimelineMaxResults int
	ExcludeReshares    bool

	AccountCacheTTL  time.Duration
	ProjectCacheTTL  time.Duration
	TimelineCacheTTL time.Duration
	FeedCacheTTL     time.Duration
	// IngestCacheTTL caches whole ingestion results per option set; zero disables it.
	IngestCacheTTL time.Duration

	FeedLimit       int64
	GlobalFeedLimit int64
	MergeLimit      int64

	PermalinkBase string
}

func DefaultConfig() Config {
	return Config{
		Filter:             filter.DefaultConfig(),
		Scoring:            scoring.DefaultConfig(),
		Reward:             scoring.DefaultRewardPolicy(),
		Window:             7 * 24 * time.Hour,
		TimelineMaxResults: 100,
		ExcludeReshares:    true,
		AccountCacheTTL:    5 * time.Minute,
		ProjectCacheTTL:    2 * time.Minute,
		TimelineCacheTTL:   30 * time.Minute,
		FeedCacheTTL:       10 * time.Minute,
		IngestCacheTTL:     time.Minute,
		FeedLimit:          50,
		GlobalFeedLimit:    100,
		MergeLimit:         500,
		PermalinkBase:      "https://x.com",
	}
}

// LoadConfig reads the curation settings from the environment on top of DefaultConfig.
func LoadConfig() Config {
	cfg := DefaultConfig()

	minLen := config.GetEnvInt("MIN_TEXT_LENGTH", cfg.Filter.MinTextLength)
	cfg.Filter.MinTextLength = minLen
	cfg.Filter.MentionRatioThreshold = config.GetEnvFloat("MENTION_RATIO_THRESHOLD", cfg.Filter.MentionRatioThreshold)
	cfg.Filter.MinStrippedLength = config.GetEnvInt("MIN_STRIPPED_LENGTH", cfg.Filter.MinStrippedLength)
	cfg.Filter.RejectReplies = config.GetEnvBool("REJECT_REPLIES", cfg.Filter.RejectReplies)

	cfg.Scoring.Strategy = config.GetEnv("SCORING_STRATEGY", cfg.Scoring.Strategy)
	cfg.Scoring.MinTextLength = minLen
	cfg.Scoring.SentimentEnabled = config.GetEnvBool("SENTIMENT_ENABLED", cfg.Scoring.SentimentEnabled)

	cfg.Reward.Divisor = config.GetEnvFloat("REWARD_DIVISOR", cfg.Reward.Divisor)
	cfg.Reward.Floor = config.GetEnvBool("REWARD_FLOOR", cfg.Reward.Floor)

	cfg.Window = config.GetEnvDuration("CURATION_WINDOW", cfg.Window)
	cfg.TimelineMaxResults = config.GetEnvInt("TIMELINE_MAX_RESULTS", cfg.TimelineMaxResults)
	cfg.ExcludeReshares = config.GetEnvBool("EXCLUDE_RESHARES", cfg.ExcludeReshares)

	cfg.AccountCacheTTL = config.GetEnvDuration("ACCOUNT_CACHE_TTL", cfg.AccountCacheTTL)
	cfg.ProjectCacheTTL = config.GetEnvDuration("PROJECT_CACHE_TTL", cfg.ProjectCacheTTL)
	cfg.TimelineCacheTTL = config.GetEnvDuration("TIMELINE_CACHE_TTL", cfg.TimelineCacheTTL)
	cfg.FeedCacheTTL = config.GetEnvDuration("FEED_CACHE_TTL", cfg.FeedCacheTTL)
	cfg.IngestCacheTTL = config.GetEnvDuration("INGEST_CACHE_TTL", cfg.IngestCacheTTL)

	cfg.FeedLimit = int64(config.GetEnvInt("FEED_LIMIT", int(cfg.FeedLimit)))
	cfg.GlobalFeedLimit = int64(config.GetEnvInt("GLOBAL_FEED_LIMIT", int(cfg.GlobalFeedLimit)))
	cfg.PermalinkBase = config.GetEnv("PERMALINK_BASE", cfg.PermalinkBase)
	return cfg
}
