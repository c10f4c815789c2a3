package scoring

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// Topic labels sent to the zero-shot classifier.
const (
	LabelInformative = "informative"
	LabelHype        = "hype"
	LabelLogical     = "logical"
	LabelSpam        = "spam"
	LabelIncoherent  = "incoherent"
)

var (
	linkPattern    = regexp.MustCompile(`(?i)https?://|www\.`)
	percentPattern = regexp.MustCompile(`\d+(\.\d+)?\s?%`)
)

type ClassifierConfig struct {
	SentimentPoints   float64
	InformativePoints float64
	HypePoints        float64
	LogicalPoints     float64

	SignalBonus       float64
	HowToBonus        float64
	AnnouncementBonus float64

	SpamPenalty        float64
	IncoherencePenalty float64
	// PenaltyThreshold is the label confidence above which a penalty applies.
	PenaltyThreshold float64

	DomainKeywords      []string
	HowToPhrases        []string
	AnnouncementPhrases []string
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		SentimentPoints:    50,
		InformativePoints:  20,
		HypePoints:         15,
		LogicalPoints:      15,
		SignalBonus:        10,
		HowToBonus:         10,
		AnnouncementBonus:  5,
		SpamPenalty:        20,
		IncoherencePenalty: 15,
		PenaltyThreshold:   0.6,
		DomainKeywords: []string{
			"defi", "protocol", "mainnet", "testnet", "token", "blockchain",
			"staking", "liquidity", "governance", "airdrop", "tvl", "dao",
		},
		HowToPhrases:        []string{"how to", "tutorial", "step by step", "guide", "walkthrough"},
		AnnouncementPhrases: []string{"announcing", "introducing", "launch", "live now", "now live", "we're excited"},
	}
}

// ClassifierScorer weights live sentiment and topic confidences and adds
// phrase bonuses. Classifier failures degrade to neutral sentiment and zero
// topic scores rather than failing the post.
type ClassifierScorer struct {
	cfg        ClassifierConfig
	classifier Classifier
	sentiment  SentimentSource
	logger     logging.Logger
}

func NewClassifierScorer(cfg ClassifierConfig, classifier Classifier) *ClassifierScorer {
	return &ClassifierScorer{
		cfg:        cfg,
		classifier: classifier,
		sentiment:  &ClassifierSentiment{Classifier: classifier, Fallback: NeutralSentiment},
	}
}

// WithLogger attaches a logger for classifier fallbacks.
func (s *ClassifierScorer) WithLogger(logger logging.Logger) *ClassifierScorer {
	s.logger = logger
	if cs, ok := s.sentiment.(*ClassifierSentiment); ok {
		cs.Logger = logger
	}
	return s
}

func (s *ClassifierScorer) Name() string { return StrategyClassifier }

func (s *ClassifierScorer) Score(ctx context.Context, in Input) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	topics := s.topics(ctx, in.Text)
	total := s.cfg.SentimentPoints*clamp(s.sentiment.Sentiment(ctx, in.Text), 0, 1) +
		s.cfg.InformativePoints*clamp(topics[LabelInformative], 0, 1) +
		s.cfg.HypePoints*clamp(topics[LabelHype], 0, 1) +
		s.cfg.LogicalPoints*clamp(topics[LabelLogical], 0, 1)

	total += s.Bonus(in.Text)

	if topics[LabelSpam] > s.cfg.PenaltyThreshold {
		total -= s.cfg.SpamPenalty
	}
	if topics[LabelIncoherent] > s.cfg.PenaltyThreshold {
		total -= s.cfg.IncoherencePenalty
	}

	return clampScore(int(math.Round(total))), nil
}

// Bonus returns the phrase and signal bonuses for text.
func (s *ClassifierScorer) Bonus(text string) float64 {
	lower := strings.ToLower(text)
	bonus := 0.0
	if linkPattern.MatchString(text) || percentPattern.MatchString(text) || containsAny(lower, s.cfg.DomainKeywords) {
		bonus += s.cfg.SignalBonus
	}
	if containsAny(lower, s.cfg.HowToPhrases) {
		bonus += s.cfg.HowToBonus
	}
	if containsAny(lower, s.cfg.AnnouncementPhrases) {
		bonus += s.cfg.AnnouncementBonus
	}
	return bonus
}

func (s *ClassifierScorer) topics(ctx context.Context, text string) map[string]float64 {
	if s.classifier == nil {
		return map[string]float64{}
	}
	labels := []string{LabelInformative, LabelHype, LabelLogical, LabelSpam, LabelIncoherent}
	scores, err := s.classifier.ClassifyTopics(ctx, text, labels)
	if err != nil {
		if s.logger != nil {
			s.logger.WithError(err).Debug("Topic classifier unavailable, scoring without topics")
		}
		return map[string]float64{}
	}
	return scores
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
