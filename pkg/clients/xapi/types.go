package xapi

import "time"

// User is the subset of the v2 user object the curation pipeline reads.
type User struct {
	ID              string      `json:"id"`
	Username        string      `json:"username"`
	Name            string      `json:"name"`
	ProfileImageURL string      `json:"profile_image_url,omitempty"`
	Description     string      `json:"description,omitempty"`
	Location        string      `json:"location,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	PublicMetrics   UserMetrics `json:"public_metrics"`
}

type UserMetrics struct {
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
	TweetCount     int64 `json:"tweet_count"`
}

type Tweet struct {
	ID               string            `json:"id"`
	Text             string            `json:"text"`
	AuthorID         string            `json:"author_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	PublicMetrics    TweetMetrics      `json:"public_metrics"`
	ReferencedTweets []ReferencedTweet `json:"referenced_tweets,omitempty"`
	Entities         *Entities         `json:"entities,omitempty"`
}

type TweetMetrics struct {
	LikeCount    int64 `json:"like_count"`
	RetweetCount int64 `json:"retweet_count"`
	ReplyCount   int64 `json:"reply_count"`
	QuoteCount   int64 `json:"quote_count"`
}

// Referenced tweet types.
const (
	RefRepliedTo = "replied_to"
	RefQuoted    = "quoted"
	RefRetweeted = "retweeted"
)

type ReferencedTweet struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Entities struct {
	Hashtags []Tag `json:"hashtags,omitempty"`
	Mentions []Tag `json:"mentions,omitempty"`
}

type Tag struct {
	Tag      string `json:"tag,omitempty"`
	Username string `json:"username,omitempty"`
}

// ReferencedType returns the first reference type, or "" for original posts.
func (t Tweet) ReferencedType() string {
	for _, ref := range t.ReferencedTweets {
		if ref.Type == RefRepliedTo {
			return RefRepliedTo
		}
	}
	if len(t.ReferencedTweets) > 0 {
		return t.ReferencedTweets[0].Type
	}
	return ""
}

// TimelineOptions narrows a timeline fetch.
type TimelineOptions struct {
	Since           time.Time
	MaxResults      int
	ExcludeReshares bool
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

type userResponse struct {
	Data   *User      `json:"data"`
	Errors []apiError `json:"errors,omitempty"`
}

type timelineResponse struct {
	Data []Tweet `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token,omitempty"`
	} `json:"meta"`
}
