package curation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuneofweb3/blabz/api_curation/internal/matcher"
	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
	"github.com/fortuneofweb3/blabz/api_curation/internal/scoring"
	"github.com/fortuneofweb3/blabz/api_curation/internal/store"
	"github.com/fortuneofweb3/blabz/pkg/cache"
	"github.com/fortuneofweb3/blabz/pkg/clients"
	"github.com/fortuneofweb3/blabz/pkg/clients/xapi"
	"github.com/fortuneofweb3/blabz/pkg/kafka"
	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// Evaluation outcomes recorded on markers and in metrics.
const (
	OutcomeAccepted    = "accepted"
	OutcomeDuplicate   = "duplicate"
	OutcomeSkipped     = "skipped"
	OutcomeNoMatch     = "no_match"
	OutcomeScoreFailed = "score_failed"
)

// IngestOptions tunes one ingestion run. Zero values take the service defaults.
type IngestOptions struct {
	Window     time.Duration `json:"window,omitempty"`
	MaxResults int           `json:"maxResults,omitempty"`
	// Force skips the cached result of an identical earlier run.
	Force bool `json:"-"`
}

func (o IngestOptions) cacheParam() string {
	raw, _ := json.Marshal(o)
	return cache.BodyHash(raw)
}

type ingestRun struct {
	s      *Service
	handle string
	opts   IngestOptions
	since  time.Time
	log    *logrus.Entry
	result *models.CurationResult

	account        *models.Account
	accountChanged bool
	storeOnly      bool

	fresh       []models.Post
	cacheWrites []cacheWrite
}

type cacheWrite struct {
	key   string
	value interface{}
	ttl   time.Duration
}

// IngestAndCurate runs fetch, filter, match, score and persist for one
// account, then merges with what is already stored and groups by project.
// Rate limits and upstream outages fall back to cached or stored data; only
// an unknown account, an unreachable store or an outage with nothing to fall
// back on are returned as errors.
func (s *Service) IngestAndCurate(ctx context.Context, handle string, opts IngestOptions) (*models.CurationResult, error) {
	handle, err := validateHandle(handle)
	if err != nil {
		return nil, err
	}
	opts = s.normalizeOptions(opts)

	start := s.now()
	resultKey := cache.AccountKey(handle, "curation", opts.cacheParam())
	if !opts.Force && s.cfg.IngestCacheTTL > 0 {
		cached, ok, err := cache.GetJSON[models.CurationResult](ctx, s.cache, resultKey)
		if err != nil {
			s.logger.WithError(err).Warn("Result cache read failed")
		}
		s.metrics.IncCache(ok)
		if ok {
			cached.Source = models.SourceCache
			return &cached, nil
		}
	}

	runID := s.newRunID()
	run := &ingestRun{
		s:      s,
		handle: handle,
		opts:   opts,
		since:  start.Add(-opts.Window),
		log: s.logger.WithFields(logging.Fields{
			"handle": handle,
			"run_id": runID,
		}),
		result: &models.CurationResult{
			RunID:  runID,
			Handle: handle,
			Source: models.SourceFresh,
			Groups: []models.ProjectGroup{},
		},
	}

	result, err := run.execute(ctx)
	if err != nil {
		run.log.WithError(err).Warn("Ingestion run failed")
		return nil, err
	}
	result.GeneratedAt = s.now().UTC()
	s.metrics.ObserveIngest(result.Source, s.now().Sub(start).Seconds())

	if s.cfg.IngestCacheTTL > 0 && result.Source == models.SourceFresh && !result.Stale {
		if err := cache.SetJSON(ctx, s.cache, resultKey, result, s.cfg.IngestCacheTTL); err != nil {
			run.log.WithError(err).Warn("Result cache write failed")
		}
	}

	run.log.WithFields(logging.Fields{
		"source":     result.Source,
		"fetched":    result.Stats.Fetched,
		"accepted":   result.Stats.Accepted,
		"skipped":    result.Stats.Skipped,
		"failed":     result.Stats.Failed,
		"groups":     len(result.Groups),
		"stale":      result.Stale,
		"rate_limit": result.RateLimited,
	}).Info("Ingestion run complete")
	return result, nil
}

func (s *Service) normalizeOptions(opts IngestOptions) IngestOptions {
	if opts.Window <= 0 {
		opts.Window = s.cfg.Window
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = s.cfg.TimelineMaxResults
	}
	return opts
}

func (r *ingestRun) execute(ctx context.Context) (*models.CurationResult, error) {
	if err := r.resolveAccount(ctx); err != nil {
		return nil, err
	}

	if !r.storeOnly {
		tweets, err := r.fetchTimeline(ctx)
		if err != nil {
			return nil, err
		}
		if !r.storeOnly && len(tweets) > 0 {
			if err := r.processAll(ctx, tweets); err != nil {
				return nil, err
			}
		}
	}

	if err := r.merge(ctx); err != nil {
		return nil, err
	}
	r.finish(ctx)
	return r.result, nil
}

// resolveAccount implements the fresh, cache, store read path for the account.
func (r *ingestRun) resolveAccount(ctx context.Context) error {
	s := r.s
	lookupKey := cache.AccountKey(r.handle, "lookup")
	var cachedUser xapi.User
	hasCached := r.cached(ctx, lookupKey, &cachedUser)

	user, err := s.upstream.LookupAccount(ctx, r.handle, policyFor(hasCached))
	switch {
	case err == nil:
		fresh := accountFromUser(user, s.stamp())
		fresh.Handle = r.handle
		acct, err := s.store.UpsertAccount(ctx, fresh)
		if errors.Is(err, store.ErrConflict) {
			return r.resolveConflict(ctx, user.ID)
		}
		if err != nil {
			return storeErr("refresh account", err)
		}
		r.accountChanged = true
		r.account = acct
		r.cacheWrites = append(r.cacheWrites, cacheWrite{key: lookupKey, value: user, ttl: s.cfg.AccountCacheTTL})
		return nil

	case errors.Is(err, clients.ErrNotFound):
		return fmt.Errorf("account %s: %w", r.handle, ErrNotFound)

	case ctx.Err() != nil:
		return ctx.Err()
	}

	r.noteUpstreamFailure("lookup account", err)
	if hasCached {
		r.account = accountFromUser(&cachedUser, time.Time{})
		r.account.Handle = r.handle
		r.result.Stale = true
		return nil
	}

	stored, serr := s.store.GetAccount(ctx, r.handle)
	if errors.Is(serr, store.ErrNotFound) {
		return fmt.Errorf("%w: account %s: %w", ErrUpstreamUnavailable, r.handle, err)
	}
	if serr != nil {
		return storeErr("fallback account", serr)
	}
	r.account = stored
	r.fallBackToStore()
	return nil
}

// resolveConflict handles an upstream id already bound to another handle.
// Fresh posts are never attributed to it; the run serves what is stored for
// this handle, or fails when nothing is.
func (r *ingestRun) resolveConflict(ctx context.Context, upstreamID string) error {
	r.log.WithField("upstream_id", upstreamID).Warn("Upstream id registered under another handle, serving stored posts")
	stored, err := r.s.store.GetAccount(ctx, r.handle)
	if errors.Is(err, store.ErrNotFound) {
		return invalid("handle", fmt.Sprintf("upstream account %s is registered under another handle", upstreamID))
	}
	if err != nil {
		return storeErr("conflict account", err)
	}
	r.account = stored
	r.fallBackToStore()
	return nil
}

func (r *ingestRun) fetchTimeline(ctx context.Context) ([]xapi.Tweet, error) {
	s := r.s
	if r.account.UpstreamID == "" {
		r.fallBackToStore()
		return nil, nil
	}

	key := cache.AccountKey(r.handle, "timeline", (models.TimeWindow{Duration: r.opts.Window}).Key(), strconv.Itoa(r.opts.MaxResults))
	var cachedTweets []xapi.Tweet
	hasCached := r.cached(ctx, key, &cachedTweets)

	tweets, err := s.upstream.FetchTimeline(ctx, r.account.UpstreamID, xapi.TimelineOptions{
		Since:           r.since,
		MaxResults:      r.opts.MaxResults,
		ExcludeReshares: s.cfg.ExcludeReshares,
	}, policyFor(hasCached))
	if err == nil {
		r.cacheWrites = append(r.cacheWrites, cacheWrite{key: key, value: tweets, ttl: s.cfg.TimelineCacheTTL})
		r.result.Stats.Fetched = len(tweets)
		return tweets, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r.noteUpstreamFailure("fetch timeline", err)
	if hasCached {
		r.result.Stale = true
		r.result.Source = models.SourceCache
		r.result.Stats.Fetched = len(cachedTweets)
		return cachedTweets, nil
	}
	r.fallBackToStore()
	return nil, nil
}

// processAll evaluates posts in upstream order. Per-post failures are
// contained; only store failures end the run.
func (r *ingestRun) processAll(ctx context.Context, tweets []xapi.Tweet) error {
	projects, err := r.s.ListProjects(ctx)
	if err != nil {
		return err
	}
	m := matcher.New(projects)
	r.log.WithFields(logging.Fields{"posts": len(tweets), "projects": m.Len()}).Debug("Evaluating timeline")

	for i := range tweets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.process(ctx, m, &tweets[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ingestRun) process(ctx context.Context, m *matcher.Matcher, t *xapi.Tweet) error {
	s := r.s
	log := r.log.WithField("post_id", t.ID)

	seen, err := s.store.Exists(ctx, t.ID)
	if err != nil {
		return storeErr("check marker", err)
	}
	if seen {
		r.result.Stats.Skipped++
		s.metrics.IncEvaluated(OutcomeSkipped)
		return nil
	}

	decision := s.filter.Evaluate(t.Text, t.ReferencedType())
	if !decision.Accepted {
		return r.reject(ctx, t.ID, string(decision.Reason))
	}

	matched := m.Match(t.Text, decision.Origin)
	if len(matched) == 0 {
		return r.reject(ctx, t.ID, OutcomeNoMatch)
	}

	score, err := s.scorer.Score(ctx, scoring.Input{
		Text:      t.Text,
		Likes:     t.PublicMetrics.LikeCount,
		Reshares:  t.PublicMetrics.RetweetCount,
		Replies:   t.PublicMetrics.ReplyCount,
		Quotes:    t.PublicMetrics.QuoteCount,
		Followers: r.account.Followers,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).WithField("stage", "score").Warn("Scoring failed, skipping post")
		r.result.Stats.Failed++
		return r.mark(ctx, t.ID, OutcomeScoreFailed)
	}

	rewards, total := s.cfg.Reward.Derive(score, matched)
	post := models.Post{
		PostID:      t.ID,
		AccountID:   r.account.UpstreamID,
		Handle:      r.handle,
		Text:        t.Text,
		Projects:    matched,
		Rewards:     rewards,
		Score:       score,
		RewardTotal: total,
		Engagement: models.Engagement{
			Likes:    t.PublicMetrics.LikeCount,
			Reshares: t.PublicMetrics.RetweetCount,
			Replies:  t.PublicMetrics.ReplyCount,
			Quotes:   t.PublicMetrics.QuoteCount,
		},
		Hashtags:   hashtags(t),
		Permalink:  permalink(s.cfg.PermalinkBase, r.handle, t.ID),
		Origin:     decision.Origin,
		CreatedAt:  t.CreatedAt.UTC(),
		IngestedAt: s.stamp(),
	}

	created, err := s.store.InsertPost(ctx, &post)
	if err != nil {
		return storeErr("persist post", err)
	}
	if created {
		r.result.Stats.Accepted++
		r.fresh = append(r.fresh, post)
		s.metrics.IncEvaluated(OutcomeAccepted)
		log.WithFields(logging.Fields{
			"score":    score,
			"projects": matched,
		}).Debug("Post accepted")
	} else {
		r.result.Stats.Duplicates++
		s.metrics.IncEvaluated(OutcomeDuplicate)
	}
	return r.mark(ctx, t.ID, OutcomeAccepted)
}

func (r *ingestRun) reject(ctx context.Context, postID, reason string) error {
	if r.result.Stats.Rejected == nil {
		r.result.Stats.Rejected = map[string]int{}
	}
	r.result.Stats.Rejected[reason]++
	r.s.metrics.IncEvaluated(reason)
	return r.mark(ctx, postID, reason)
}

func (r *ingestRun) mark(ctx context.Context, postID, outcome string) error {
	if _, err := r.s.store.MarkIfAbsent(ctx, postID, outcome); err != nil {
		return storeErr("mark processed", err)
	}
	return nil
}

// merge unions this run's posts with the account's stored posts.
func (r *ingestRun) merge(ctx context.Context) error {
	r.result.AccountID = r.account.UpstreamID
	posts := r.fresh
	if r.account.UpstreamID != "" {
		stored, err := r.s.store.PostsByAccount(ctx, r.account.UpstreamID, r.since, r.s.cfg.MergeLimit)
		if err != nil {
			return storeErr("merge with store", err)
		}
		posts = append(append([]models.Post{}, r.fresh...), stored...)
	}
	r.result.Groups = GroupByProject(posts)
	return nil
}

// finish runs the best-effort side effects: cache invalidation and refill,
// then event publication.
func (r *ingestRun) finish(ctx context.Context) {
	s := r.s
	if r.accountChanged || len(r.fresh) > 0 {
		s.invalidate(ctx, cache.AccountPrefix(r.handle))
	}
	if len(r.fresh) > 0 {
		prefixes := []string{cache.Prefix("feed", "global")}
		for _, name := range touchedProjects(r.fresh) {
			prefixes = append(prefixes, cache.Prefix("feed", "project", name))
		}
		s.invalidate(ctx, prefixes...)
	}
	for _, w := range r.cacheWrites {
		if err := cache.SetJSON(ctx, s.cache, w.key, w.value, w.ttl); err != nil {
			r.log.WithError(err).WithField("key", w.key).Warn("Cache write failed")
		}
	}

	if len(r.fresh) == 0 {
		return
	}
	if err := s.publisher.PublishPostCurated(ctx, r.events()); err != nil {
		r.log.WithError(err).WithField("posts", len(r.fresh)).Warn("Failed to publish curated posts")
	}
}

func (r *ingestRun) events() []kafka.PostCuratedEvent {
	now := r.s.now().UTC()
	events := make([]kafka.PostCuratedEvent, 0, len(r.fresh))
	for _, p := range r.fresh {
		events = append(events, kafka.PostCuratedEvent{
			EventID:       r.s.newRunID(),
			EventType:     kafka.EventTypePostCurated,
			Timestamp:     now,
			Source:        "blabz",
			RunID:         r.result.RunID,
			PostID:        p.PostID,
			AccountID:     p.AccountID,
			Handle:        p.Handle,
			Projects:      p.Projects,
			Rewards:       p.Rewards,
			Score:         p.Score,
			RewardTotal:   p.RewardTotal,
			Permalink:     p.Permalink,
			PostedAt:      p.CreatedAt,
			SchemaVersion: kafka.SchemaVersion,
		})
	}
	return events
}

func (r *ingestRun) fallBackToStore() {
	r.storeOnly = true
	r.result.Source = models.SourceStore
}

func (r *ingestRun) noteUpstreamFailure(op string, err error) {
	fields := logging.Fields{"stage": op}
	if d, ok := RetryAfter(err); ok {
		r.result.RateLimited = true
		if secs := d.Seconds(); secs > r.result.RetryAfter {
			r.result.RetryAfter = secs
		}
		fields["retry_after"] = d.String()
	}
	r.log.WithError(err).WithFields(fields).Warn("Upstream call failed, falling back")
}

// cached reads key into dst. Read errors count as a miss.
func (r *ingestRun) cached(ctx context.Context, key string, dst interface{}) bool {
	raw, ok, err := r.s.cache.Get(ctx, key)
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("Cache read failed")
	}
	hit := err == nil && ok && json.Unmarshal(raw, dst) == nil
	r.s.metrics.IncCache(hit)
	return hit
}

// policyFor yields when a cached answer can stand in for the upstream.
func policyFor(hasCached bool) clients.RateLimitPolicy {
	if hasCached {
		return clients.PolicyYield
	}
	return clients.PolicyWait
}

func accountFromUser(u *xapi.User, refreshedAt time.Time) *models.Account {
	return &models.Account{
		Handle:          store.NormalizeHandle(u.Username),
		UpstreamID:      u.ID,
		DisplayName:     u.Name,
		AvatarURL:       u.ProfileImageURL,
		Followers:       u.PublicMetrics.FollowersCount,
		Following:       u.PublicMetrics.FollowingCount,
		Bio:             u.Description,
		Location:        u.Location,
		CreatedAt:       u.CreatedAt,
		LastRefreshedAt: refreshedAt,
	}
}

func hashtags(t *xapi.Tweet) []string {
	if t.Entities == nil {
		return nil
	}
	out := make([]string, 0, len(t.Entities.Hashtags))
	for _, h := range t.Entities.Hashtags {
		if tag := strings.TrimSpace(h.Tag); tag != "" {
			out = append(out, strings.ToLower(tag))
		}
	}
	return out
}

func permalink(base, handle, postID string) string {
	return fmt.Sprintf("%s/%s/status/%s", strings.TrimRight(base, "/"), handle, postID)
}

func touchedProjects(posts []models.Post) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range posts {
		for _, name := range p.Projects {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
		}
	}
	return out
}
