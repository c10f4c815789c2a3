package curation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fortuneofweb3/blabz/api_curation/internal/filter"
	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
	"github.com/fortuneofweb3/blabz/api_curation/internal/scoring"
	"github.com/fortuneofweb3/blabz/api_curation/internal/store"
	"github.com/fortuneofweb3/blabz/pkg/cache"
	"github.com/fortuneofweb3/blabz/pkg/kafka"
	"github.com/fortuneofweb3/blabz/pkg/logging"
)

var (
	handlePattern     = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)
	upstreamIDPattern = regexp.MustCompile(`^[0-9]{1,20}$`)
)

const maxProjectNameLength = 64

type Deps struct {
	Store     Store
	Upstream  Upstream
	Cache     cache.Store
	Scorer    scoring.Scorer
	Publisher kafka.Publisher
	Logger    logging.Logger
	Metrics   *Metrics
}

// Service is the curation core: the ingestion pipeline plus the feed,
// registration and purge operations the HTTP shell and CLI call.
type Service struct {
	cfg       Config
	store     Store
	upstream  Upstream
	cache     cache.Store
	reads     *cache.ReadThrough
	filter    *filter.Filter
	scorer    scoring.Scorer
	publisher kafka.Publisher
	logger    logging.Logger
	metrics   *Metrics

	now      func() time.Time
	newRunID func() string
}

func NewService(cfg Config, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("curation: store is required")
	}
	if deps.Upstream == nil {
		return nil, errors.New("curation: upstream client is required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory(cache.Options{MaxEntries: 10000}, cache.MetricsHooks{})
	}
	if deps.Scorer == nil {
		deps.Scorer = scoring.NewEngagementScorer(cfg.Scoring, nil)
	}
	if deps.Publisher == nil {
		deps.Publisher = kafka.NoopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewDiscardLogger()
	}

	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		upstream:  deps.Upstream,
		cache:     deps.Cache,
		reads:     cache.NewReadThrough(deps.Cache, cache.MetricsHooks{}),
		filter:    filter.New(cfg.Filter),
		scorer:    deps.Scorer,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		now:       time.Now,
		newRunID:  func() string { return uuid.New().String() },
	}, nil
}

// stamp is the current time at the precision the store keeps.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// GetProjectFeed returns a project's best posts inside window.
func (s *Service) GetProjectFeed(ctx context.Context, projectName string, window models.TimeWindow) ([]models.Post, error) {
	name := normalizeProjectName(projectName)
	if name == "" {
		return nil, invalid("project", "name is required")
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if !containsProject(projects, name) {
		return nil, fmt.Errorf("project %s: %w", name, ErrNotFound)
	}

	key := cache.Key("feed", "project", name, window.Key())
	return s.loadFeed(ctx, key, func(ctx context.Context) ([]models.Post, error) {
		posts, err := s.store.PostsByProject(ctx, name, window.Since(s.now()), s.cfg.FeedLimit)
		if err != nil {
			return nil, storeErr("project feed", err)
		}
		return Rank(posts, s.cfg.FeedLimit), nil
	})
}

// GetAccountFeed returns an account's best posts inside window.
func (s *Service) GetAccountFeed(ctx context.Context, handle string, window models.TimeWindow) ([]models.Post, error) {
	handle, err := validateHandle(handle)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.GetAccount(ctx, handle)
	if err != nil {
		return nil, storeErr("account feed", err)
	}
	if acct.UpstreamID == "" {
		return []models.Post{}, nil
	}

	key := cache.AccountKey(handle, "feed", window.Key())
	return s.loadFeed(ctx, key, func(ctx context.Context) ([]models.Post, error) {
		posts, err := s.store.PostsByAccount(ctx, acct.UpstreamID, window.Since(s.now()), s.cfg.FeedLimit)
		if err != nil {
			return nil, storeErr("account feed", err)
		}
		return Rank(posts, s.cfg.FeedLimit), nil
	})
}

// GetGlobalFeed returns the best recent posts across all accounts.
func (s *Service) GetGlobalFeed(ctx context.Context, window models.TimeWindow) ([]models.Post, error) {
	key := cache.Key("feed", "global", window.Key())
	return s.loadFeed(ctx, key, func(ctx context.Context) ([]models.Post, error) {
		posts, err := s.store.RecentPosts(ctx, window.Since(s.now()), s.cfg.GlobalFeedLimit)
		if err != nil {
			return nil, storeErr("global feed", err)
		}
		return Rank(posts, s.cfg.GlobalFeedLimit), nil
	})
}

func (s *Service) loadFeed(ctx context.Context, key string, load func(ctx context.Context) ([]models.Post, error)) ([]models.Post, error) {
	posts, hit, err := cache.Load(ctx, s.reads, key, s.cfg.FeedCacheTTL, load)
	if err != nil {
		return nil, err
	}
	s.metrics.IncCache(hit)
	return posts, nil
}

// ListProjects returns the tracked projects ordered by name.
func (s *Service) ListProjects(ctx context.Context) ([]models.Project, error) {
	projects, hit, err := cache.Load(ctx, s.reads, cache.Key("projects", "list"), s.cfg.ProjectCacheTTL,
		func(ctx context.Context) ([]models.Project, error) {
			projects, err := s.store.ListProjects(ctx)
			if err != nil {
				return nil, storeErr("list projects", err)
			}
			return projects, nil
		})
	if err != nil {
		return nil, err
	}
	s.metrics.IncCache(hit)
	return projects, nil
}

type RegisterProjectRequest struct {
	Name        string                 `json:"name"`
	Keywords    []string               `json:"keywords"`
	Handle      string                 `json:"handle,omitempty"`
	Description string                 `json:"description,omitempty"`
	Website     string                 `json:"website,omitempty"`
	Verified    bool                   `json:"verified,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// RegisterProject creates or replaces a project's match configuration.
func (s *Service) RegisterProject(ctx context.Context, req RegisterProjectRequest) (*models.Project, error) {
	name := normalizeProjectName(req.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if len(name) > maxProjectNameLength {
		return nil, invalid("name", fmt.Sprintf("must be at most %d characters", maxProjectNameLength))
	}

	handle := ""
	if strings.TrimSpace(req.Handle) != "" {
		h, err := validateHandle(req.Handle)
		if err != nil {
			return nil, err
		}
		handle = h
	}

	website := strings.TrimSpace(req.Website)
	if website != "" {
		u, err := url.Parse(website)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, invalid("website", "must be an absolute http(s) URL")
		}
	}

	project, err := s.store.UpsertProject(ctx, &models.Project{
		Name:        name,
		Keywords:    normalizeKeywords(req.Keywords),
		Handle:      handle,
		Description: strings.TrimSpace(req.Description),
		Website:     website,
		Verified:    req.Verified,
		Extra:       req.Extra,
		UpdatedAt:   s.stamp(),
	})
	if err != nil {
		return nil, storeErr("register project", err)
	}

	s.invalidate(ctx, cache.Prefix("projects"), cache.Prefix("feed", "project", name))
	s.logger.WithFields(logging.Fields{
		"project":  name,
		"keywords": len(project.Keywords),
	}).Info("Project registered")
	return project, nil
}

type RegisterAccountRequest struct {
	Handle      string                 `json:"handle"`
	UpstreamID  string                 `json:"upstreamId,omitempty"`
	DisplayName string                 `json:"displayName,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// RegisterAccount tracks an account ahead of its first ingestion.
func (s *Service) RegisterAccount(ctx context.Context, req RegisterAccountRequest) (*models.Account, error) {
	handle, err := validateHandle(req.Handle)
	if err != nil {
		return nil, err
	}
	upstreamID := strings.TrimSpace(req.UpstreamID)
	if upstreamID != "" && !upstreamIDPattern.MatchString(upstreamID) {
		return nil, invalid("upstreamId", "must be numeric")
	}

	acct, err := s.store.UpsertAccount(ctx, &models.Account{
		Handle:      handle,
		UpstreamID:  upstreamID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Extra:       req.Extra,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, invalid("upstreamId", "already registered to another handle")
	}
	if err != nil {
		return nil, storeErr("register account", err)
	}

	s.invalidate(ctx, cache.AccountPrefix(handle))
	s.logger.WithField("handle", handle).Info("Account registered")
	return acct, nil
}

// PurgeAccount deletes an account and its posts. Processed markers are kept
// so a later ingestion does not resurrect the purged posts.
func (s *Service) PurgeAccount(ctx context.Context, handle string) error {
	handle, err := validateHandle(handle)
	if err != nil {
		return err
	}

	acct, err := s.store.GetAccount(ctx, handle)
	if err != nil {
		return storeErr("purge account", err)
	}

	var deleted int64
	if acct.UpstreamID != "" {
		deleted, err = s.store.DeletePostsByAccount(ctx, acct.UpstreamID)
		if err != nil {
			return storeErr("purge posts", err)
		}
	}
	if err := s.store.DeleteAccount(ctx, handle); err != nil {
		return storeErr("purge account", err)
	}

	s.invalidate(ctx, cache.AccountPrefix(handle), cache.Prefix("feed"))
	s.logger.WithFields(logging.Fields{
		"handle": handle,
		"posts":  deleted,
	}).Warn("Account purged")
	return nil
}

// invalidate drops cache prefixes. The cache is advisory, so failures are
// logged and never returned.
func (s *Service) invalidate(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		if _, err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
			s.logger.WithError(err).WithField("prefix", prefix).Warn("Cache invalidation failed")
		}
	}
}

func validateHandle(handle string) (string, error) {
	h := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if !handlePattern.MatchString(h) {
		return "", invalid("handle", "must be 1-15 letters, digits or underscores")
	}
	return store.NormalizeHandle(h), nil
}

func normalizeProjectName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func containsProject(projects []models.Project, name string) bool {
	for _, p := range projects {
		if p.Name == name {
			return true
		}
	}
	return false
}
