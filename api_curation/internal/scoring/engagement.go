package scoring

import (
	"context"
	"math"
	"unicode/utf8"
)

// EngagementScorer blends sentiment, text length and engagement relative to
// follower count. It never fails and always lands in [MinScore, MaxScore].
type EngagementScorer struct {
	cfg       Config
	sentiment SentimentSource
}

func NewEngagementScorer(cfg Config, sentiment SentimentSource) *EngagementScorer {
	if cfg.LengthSpan <= 0 {
		cfg.LengthSpan = 200
	}
	if sentiment == nil {
		sentiment = ConstantSentiment(NeutralSentiment)
	}
	return &EngagementScorer{cfg: cfg, sentiment: sentiment}
}

func (s *EngagementScorer) Name() string { return StrategyEngagement }

func (s *EngagementScorer) Score(ctx context.Context, in Input) (int, error) {
	length := float64(utf8.RuneCountInString(in.Text) - s.cfg.MinTextLength)
	lengthScore := clamp(length/s.cfg.LengthSpan, 0, 1)

	raw := float64(in.Likes + 2*in.Reshares + 3*in.Quotes)
	engagementScore := clamp(raw/math.Max(1, float64(in.Followers)), 0, 1)

	sentimentScore := clamp(s.sentiment.Sentiment(ctx, in.Text), 0, 1)

	combined := s.cfg.SentimentWeight*sentimentScore +
		s.cfg.LengthWeight*lengthScore +
		s.cfg.EngagementWeight*engagementScore
	combined = clamp(combined, 0, 1)

	return clampScore(int(math.Round(combined*99)) + 1), nil
}
