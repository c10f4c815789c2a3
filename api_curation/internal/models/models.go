package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Origin classifies a post by what it references upstream.
type Origin string

const (
	OriginOriginal Origin = "original"
	OriginQuote    Origin = "quote"
	OriginReply    Origin = "reply"
)

// Account is a tracked content author. The normalized handle is the
// document id; UpstreamID is unique once known.
type Account struct {
	Handle          string                 `bson:"_id" json:"handle"`
	UpstreamID      string                 `bson:"upstreamId,omitempty" json:"upstreamId,omitempty"`
	DisplayName     string                 `bson:"displayName,omitempty" json:"displayName,omitempty"`
	AvatarURL       string                 `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	Followers       int64                  `bson:"followers" json:"followers"`
	Following       int64                  `bson:"following" json:"following"`
	Bio             string                 `bson:"bio,omitempty" json:"bio,omitempty"`
	Location        string                 `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt       time.Time              `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	LastRefreshedAt time.Time              `bson:"lastRefreshedAt,omitempty" json:"lastRefreshedAt,omitempty"`
	Extra           map[string]interface{} `bson:"extra,omitempty" json:"extra,omitempty"`
}

// Project is a campaign posts are attributed to. Name is upper-case and is
// the only identity key.
type Project struct {
	Name        string                 `bson:"_id" json:"name"`
	Keywords    []string               `bson:"keywords" json:"keywords"`
	Handle      string                 `bson:"handle,omitempty" json:"handle,omitempty"`
	Description string                 `bson:"description,omitempty" json:"description,omitempty"`
	Website     string                 `bson:"website,omitempty" json:"website,omitempty"`
	Verified    bool                   `bson:"verified" json:"verified"`
	Extra       map[string]interface{} `bson:"extra,omitempty" json:"extra,omitempty"`
	UpdatedAt   time.Time              `bson:"updatedAt" json:"updatedAt"`
}

type Engagement struct {
	Likes    int64 `bson:"likes" json:"likes"`
	Reshares int64 `bson:"reshares" json:"reshares"`
	Replies  int64 `bson:"replies" json:"replies"`
	Quotes   int64 `bson:"quotes" json:"quotes"`
}

// Post is an accepted upstream item. PostID is the idempotence key and
// Projects is never empty.
type Post struct {
	PostID      string                 `bson:"_id" json:"postId"`
	AccountID   string                 `bson:"accountId" json:"accountId"`
	Handle      string                 `bson:"handle" json:"handle"`
	Text        string                 `bson:"text" json:"text"`
	Projects    []string               `bson:"projects" json:"projects"`
	Rewards     map[string]float64     `bson:"rewards" json:"rewards"`
	Score       int                    `bson:"score" json:"score"`
	RewardTotal float64                `bson:"rewardTotal" json:"rewardTotal"`
	Engagement  Engagement             `bson:"engagement" json:"engagement"`
	Hashtags    []string               `bson:"hashtags,omitempty" json:"hashtags,omitempty"`
	Permalink   string                 `bson:"permalink" json:"permalink"`
	Origin      Origin                 `bson:"origin" json:"origin"`
	CreatedAt   time.Time              `bson:"createdAt" json:"createdAt"`
	IngestedAt  time.Time              `bson:"ingestedAt" json:"ingestedAt"`
	Extra       map[string]interface{} `bson:"extra,omitempty" json:"extra,omitempty"`
}

// ProcessedMarker records that a post id was evaluated, whatever the outcome.
type ProcessedMarker struct {
	PostID      string    `bson:"_id" json:"postId"`
	Outcome     string    `bson:"outcome,omitempty" json:"outcome,omitempty"`
	ProcessedAt time.Time `bson:"processedAt" json:"processedAt"`
}

// ProjectGroup holds one project's posts, best first.
type ProjectGroup struct {
	Project string `json:"project"`
	Posts   []Post `json:"posts"`
}

// Result sources.
const (
	SourceFresh = "fresh"
	SourceCache = "cache"
	SourceStore = "store"
)

type RunStats struct {
	Fetched    int            `json:"fetched"`
	Skipped    int            `json:"skipped"`
	Rejected   map[string]int `json:"rejected,omitempty"`
	Accepted   int            `json:"accepted"`
	Duplicates int            `json:"duplicates"`
	Failed     int            `json:"failed"`
}

// CurationResult is the outcome of one account-ingestion run. An empty
// Groups slice is a successful result.
type CurationResult struct {
	RunID       string         `json:"runId"`
	Handle      string         `json:"handle"`
	AccountID   string         `json:"accountId,omitempty"`
	Groups      []ProjectGroup `json:"groups"`
	Stats       RunStats       `json:"stats"`
	Source      string         `json:"source"`
	Stale       bool           `json:"stale"`
	RateLimited bool           `json:"rateLimited"`
	RetryAfter  float64        `json:"retryAfterSeconds,omitempty"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// TimeWindow is a relative window ending now.
type TimeWindow struct {
	Duration time.Duration
}

const DefaultWindow = 24 * time.Hour

// ParseWindow accepts Go durations plus a day suffix ("7d").
func ParseWindow(raw string) (TimeWindow, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return TimeWindow{Duration: DefaultWindow}, nil
	}
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days <= 0 {
			return TimeWindow{}, fmt.Errorf("invalid window %q", raw)
		}
		return TimeWindow{Duration: time.Duration(days) * 24 * time.Hour}, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return TimeWindow{}, fmt.Errorf("invalid window %q", raw)
	}
	return TimeWindow{Duration: d}, nil
}

// Since is the inclusive lower bound of the window relative to now.
func (w TimeWindow) Since(now time.Time) time.Time {
	d := w.Duration
	if d <= 0 {
		d = DefaultWindow
	}
	return now.Add(-d)
}

// Key is the window's stable cache-key form.
func (w TimeWindow) Key() string {
	d := w.Duration
	if d <= 0 {
		d = DefaultWindow
	}
	if d%(24*time.Hour) == 0 {
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	}
	return d.String()
}
