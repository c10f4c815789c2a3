package curation

import (
	"context"
	"time"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
	"github.com/fortuneofweb3/blabz/pkg/clients"
	"github.com/fortuneofweb3/blabz/pkg/clients/xapi"
)

type Upstream interface {
	LookupAccount(ctx context.Context, handle string, policy clients.RateLimitPolicy) (*xapi.User, error)
	FetchTimeline(ctx context.Context, userID string, opts xapi.TimelineOptions, policy clients.RateLimitPolicy) ([]xapi.Tweet, error)
}

type AccountStore interface {
	UpsertAccount(ctx context.Context, a *models.Account) (*models.Account, error)
	GetAccount(ctx context.Context, handle string) (*models.Account, error)
	DeleteAccount(ctx context.Context, handle string) error
}

type ProjectStore interface {
	UpsertProject(ctx context.Context, p *models.Project) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
}

type PostStore interface {
	InsertPost(ctx context.Context, p *models.Post) (bool, error)
	PostsByAccount(ctx context.Context, accountID string, since time.Time, limit int64) ([]models.Post, error)
	PostsByProject(ctx context.Context, project string, since time.Time, limit int64) ([]models.Post, error)
	RecentPosts(ctx context.Context, since time.Time, limit int64) ([]models.Post, error)
	DeletePostsByAccount(ctx context.Context, accountID string) (int64, error)
}

type Ledger interface {
	MarkIfAbsent(ctx context.Context, postID, outcome string) (bool, error)
	Exists(ctx context.Context, postID string) (bool, error)
}

// Store is everything the service persists through; *store.Store implements it.
type Store interface {
	AccountStore
	ProjectStore
	PostStore
	Ledger
}
