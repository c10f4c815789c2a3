package curation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
	"github.com/fortuneofweb3/blabz/api_curation/internal/scoring"
	"github.com/fortuneofweb3/blabz/api_curation/internal/store"
	"github.com/fortuneofweb3/blabz/pkg/clients"
	"github.com/fortuneofweb3/blabz/pkg/clients/xapi"
	"github.com/fortuneofweb3/blabz/pkg/kafka"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	projects map[string]models.Project
	posts    map[string]models.Post
	markers  map[string]string

	insertErr   error
	existsErr   error
	listErr     error
	postInserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]models.Account{},
		projects: map[string]models.Project{},
		posts:    map[string]models.Post{},
		markers:  map[string]string{},
	}
}

func (f *fakeStore) UpsertAccount(_ context.Context, a *models.Account) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := store.NormalizeHandle(a.Handle)
	if a.UpstreamID != "" {
		for h, existing := range f.accounts {
			if h != handle && existing.UpstreamID == a.UpstreamID {
				return nil, store.ErrConflict
			}
		}
	}
	cur := f.accounts[handle]
	cur.Handle = handle
	if a.UpstreamID != "" {
		cur.UpstreamID = a.UpstreamID
	}
	if a.DisplayName != "" {
		cur.DisplayName = a.DisplayName
	}
	if !a.LastRefreshedAt.IsZero() {
		cur.Followers = a.Followers
		cur.Following = a.Following
		cur.LastRefreshedAt = a.LastRefreshedAt
	}
	f.accounts[handle] = cur
	out := cur
	return &out, nil
}

func (f *fakeStore) GetAccount(_ context.Context, handle string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[store.NormalizeHandle(handle)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (f *fakeStore) DeleteAccount(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle = store.NormalizeHandle(handle)
	if _, ok := f.accounts[handle]; !ok {
		return store.ErrNotFound
	}
	delete(f.accounts, handle)
	return nil
}

func (f *fakeStore) UpsertProject(_ context.Context, p *models.Project) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.Name] = *p
	out := *p
	return &out, nil
}

func (f *fakeStore) ListProjects(context.Context) ([]models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.Project, 0, len(f.projects))
	for _, p := range f.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) InsertPost(_ context.Context, p *models.Post) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return false, f.insertErr
	}
	if _, ok := f.posts[p.PostID]; ok {
		return false, nil
	}
	f.posts[p.PostID] = *p
	f.postInserts++
	return true, nil
}

func (f *fakeStore) query(match func(models.Post) bool, since time.Time, limit int64) []models.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.Post{}
	for _, p := range f.posts {
		if match(p) && !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return Rank(out, limit)
}

func (f *fakeStore) PostsByAccount(_ context.Context, accountID string, since time.Time, limit int64) ([]models.Post, error) {
	return f.query(func(p models.Post) bool { return p.AccountID == accountID }, since, limit), nil
}

func (f *fakeStore) PostsByProject(_ context.Context, project string, since time.Time, limit int64) ([]models.Post, error) {
	return f.query(func(p models.Post) bool {
		for _, name := range p.Projects {
			if name == project {
				return true
			}
		}
		return false
	}, since, limit), nil
}

func (f *fakeStore) RecentPosts(_ context.Context, since time.Time, limit int64) ([]models.Post, error) {
	return f.query(func(models.Post) bool { return true }, since, limit), nil
}

func (f *fakeStore) DeletePostsByAccount(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, p := range f.posts {
		if p.AccountID == accountID {
			delete(f.posts, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) MarkIfAbsent(_ context.Context, postID, outcome string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.markers[postID]; ok {
		return false, nil
	}
	f.markers[postID] = outcome
	return true, nil
}

func (f *fakeStore) Exists(_ context.Context, postID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.markers[postID]
	return ok, nil
}

func (f *fakeStore) marker(postID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcome, ok := f.markers[postID]
	return outcome, ok
}

type fakeUpstream struct {
	mu        sync.Mutex
	user      *xapi.User
	userErr   error
	tweets    []xapi.Tweet
	tweetsErr error

	lookupPolicies   []clients.RateLimitPolicy
	timelinePolicies []clients.RateLimitPolicy
}

func (f *fakeUpstream) LookupAccount(_ context.Context, _ string, policy clients.RateLimitPolicy) (*xapi.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookupPolicies = append(f.lookupPolicies, policy)
	if f.userErr != nil {
		return nil, f.userErr
	}
	u := *f.user
	return &u, nil
}

func (f *fakeUpstream) FetchTimeline(_ context.Context, _ string, _ xapi.TimelineOptions, policy clients.RateLimitPolicy) ([]xapi.Tweet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timelinePolicies = append(f.timelinePolicies, policy)
	if f.tweetsErr != nil {
		return nil, f.tweetsErr
	}
	return append([]xapi.Tweet(nil), f.tweets...), nil
}

func (f *fakeUpstream) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userErr = err
	f.tweetsErr = err
}

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.PostCuratedEvent
	err    error
}

func (p *fakePublisher) PublishPostCurated(_ context.Context, events []kafka.PostCuratedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *fakePublisher) HealthCheck(context.Context) error { return nil }
func (p *fakePublisher) Close() error                      { return nil }

// failingScorer errors for texts containing failOn and scores 42 otherwise.
type failingScorer struct {
	failOn string
}

var errScore = errors.New("scorer exploded")

func (f failingScorer) Score(_ context.Context, in scoring.Input) (int, error) {
	if strings.Contains(in.Text, f.failOn) {
		return 0, errScore
	}
	return 42, nil
}

func (failingScorer) Name() string { return "failing" }
