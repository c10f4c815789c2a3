package scoring

import (
	"context"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// NeutralSentiment is used whenever no live sentiment is available.
const NeutralSentiment = 0.5

// SentimentSource yields a sentiment in [0,1] for a text.
type SentimentSource interface {
	Sentiment(ctx context.Context, text string) float64
}

// ConstantSentiment ignores the text.
type ConstantSentiment float64

func (c ConstantSentiment) Sentiment(context.Context, string) float64 { return float64(c) }

// ClassifierSentiment asks the classifier and falls back on any failure.
type ClassifierSentiment struct {
	Classifier Classifier
	Fallback   float64
	Logger     logging.Logger
}

func (s *ClassifierSentiment) Sentiment(ctx context.Context, text string) float64 {
	if s.Classifier == nil {
		return s.Fallback
	}
	v, err := s.Classifier.ClassifySentiment(ctx, text)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithError(err).Debug("Sentiment classifier unavailable, using fallback")
		}
		return s.Fallback
	}
	return clamp(v, 0, 1)
}
