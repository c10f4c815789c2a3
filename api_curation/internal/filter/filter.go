package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
	"github.com/fortuneofweb3/blabz/pkg/clients/xapi"
)

// Reason names the predicate that rejected a post.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonTooShort     Reason = "too_short"
	ReasonMentionDense Reason = "mention_dense"
	ReasonMentionOnly  Reason = "mention_only"
	ReasonReply        Reason = "reply"
)

var mentionPattern = regexp.MustCompile(`@[A-Za-z0-9_]+`)

type Config struct {
	// MinTextLength is exclusive: text must have more runes than this.
	MinTextLength int
	// MentionRatioThreshold rejects when mention runes / total runes exceeds it.
	MentionRatioThreshold float64
	// MinStrippedLength is the rune count required once mentions are removed.
	MinStrippedLength int
	RejectReplies     bool
}

func DefaultConfig() Config {
	return Config{
		MinTextLength:         50,
		MentionRatioThreshold: 0.5,
		MinStrippedLength:     10,
		RejectReplies:         true,
	}
}

// Decision is the filter verdict for one post. Origin is set whenever the
// chain got as far as classifying it.
type Decision struct {
	Accepted bool
	Reason   Reason
	Origin   models.Origin
}

// Filter applies length, mention density and origin predicates in that
// order. The first failing predicate decides.
type Filter struct {
	cfg Config
}

func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

func (f *Filter) Evaluate(text, referencedType string) Decision {
	total := utf8.RuneCountInString(text)
	if total <= f.cfg.MinTextLength {
		return Decision{Reason: ReasonTooShort}
	}

	if float64(MentionRunes(text))/float64(total) > f.cfg.MentionRatioThreshold {
		return Decision{Reason: ReasonMentionDense}
	}
	if utf8.RuneCountInString(StripMentions(text)) < f.cfg.MinStrippedLength {
		return Decision{Reason: ReasonMentionOnly}
	}

	origin := Classify(referencedType)
	if origin == models.OriginReply && f.cfg.RejectReplies {
		return Decision{Reason: ReasonReply, Origin: origin}
	}
	return Decision{Accepted: true, Origin: origin}
}

// Classify maps an upstream reference type onto an origin.
func Classify(referencedType string) models.Origin {
	switch referencedType {
	case xapi.RefRepliedTo:
		return models.OriginReply
	case xapi.RefQuoted:
		return models.OriginQuote
	default:
		return models.OriginOriginal
	}
}

// MentionRunes counts the runes of every @handle token, '@' included.
func MentionRunes(text string) int {
	n := 0
	for _, m := range mentionPattern.FindAllString(text, -1) {
		n += utf8.RuneCountInString(m)
	}
	return n
}

// StripMentions removes @handle tokens and collapses whitespace.
func StripMentions(text string) string {
	return strings.Join(strings.Fields(mentionPattern.ReplaceAllString(text, " ")), " ")
}
