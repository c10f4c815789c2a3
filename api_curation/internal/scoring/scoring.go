package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

const (
	MinScore = 1
	MaxScore = 100
)

// Strategy names accepted by New.
const (
	StrategyEngagement = "engagement"
	StrategyClassifier = "classifier"
)

// Input is everything a strategy may look at for one post.
type Input struct {
	Text      string
	Likes     int64
	Reshares  int64
	Replies   int64
	Quotes    int64
	Followers int64
}

// Scorer computes a quality score in [MinScore, MaxScore].
type Scorer interface {
	Score(ctx context.Context, in Input) (int, error)
	Name() string
}

// Classifier is the optional upstream text classifier.
type Classifier interface {
	ClassifySentiment(ctx context.Context, text string) (float64, error)
	ClassifyTopics(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

type Config struct {
	Strategy string
	// MinTextLength is the offset subtracted before the length score.
	MinTextLength int
	// LengthSpan is the number of runes past MinTextLength that earns a full length score.
	LengthSpan       float64
	SentimentWeight  float64
	LengthWeight     float64
	EngagementWeight float64
	// SentimentEnabled sends engagement-strategy sentiment to the classifier.
	SentimentEnabled bool
	Classifier       ClassifierConfig
}

func DefaultConfig() Config {
	return Config{
		Strategy:         StrategyEngagement,
		MinTextLength:    50,
		LengthSpan:       200,
		SentimentWeight:  0.5,
		LengthWeight:     0.25,
		EngagementWeight: 0.25,
		Classifier:       DefaultClassifierConfig(),
	}
}

// New builds the configured strategy. A nil classifier is allowed; the
// classifier strategy then scores on its fallbacks alone.
func New(cfg Config, classifier Classifier, logger logging.Logger) (Scorer, error) {
	var sentiment SentimentSource = ConstantSentiment(NeutralSentiment)
	if cfg.SentimentEnabled && classifier != nil {
		sentiment = &ClassifierSentiment{Classifier: classifier, Fallback: NeutralSentiment, Logger: logger}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", StrategyEngagement:
		return NewEngagementScorer(cfg, sentiment), nil
	case StrategyClassifier:
		return NewClassifierScorer(cfg.Classifier, classifier).WithLogger(logger), nil
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q", cfg.Strategy)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clampScore(v int) int {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
