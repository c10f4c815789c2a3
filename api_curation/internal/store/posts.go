package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

// feedSort orders by score, then recency, then id so equal scores are stable.
var feedSort = bson.D{
	{Key: "score", Value: -1},
	{Key: "createdAt", Value: -1},
	{Key: "_id", Value: 1},
}

// InsertPost writes p once. A duplicate id means another run already
// persisted it; that reports created=false with no error.
func (s *Store) InsertPost(ctx context.Context, p *models.Post) (bool, error) {
	if len(p.Projects) == 0 {
		return false, fmt.Errorf("insert post %s: no matched projects", p.PostID)
	}
	if _, err := s.posts.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert post %s: %w", p.PostID, err)
	}
	return true, nil
}

// PostsByAccount returns an account's posts created at or after since.
// limit <= 0 means no cap.
func (s *Store) PostsByAccount(ctx context.Context, accountID string, since time.Time, limit int64) ([]models.Post, error) {
	return s.findPosts(ctx, "posts by account", bson.M{
		"accountId": accountID,
		"createdAt": bson.M{"$gte": since},
	}, limit)
}

func (s *Store) PostsByProject(ctx context.Context, project string, since time.Time, limit int64) ([]models.Post, error) {
	return s.findPosts(ctx, "posts by project", bson.M{
		"projects":  project,
		"createdAt": bson.M{"$gte": since},
	}, limit)
}

// RecentPosts is the global feed across all accounts.
func (s *Store) RecentPosts(ctx context.Context, since time.Time, limit int64) ([]models.Post, error) {
	return s.findPosts(ctx, "recent posts", bson.M{
		"createdAt": bson.M{"$gte": since},
	}, limit)
}

func (s *Store) DeletePostsByAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := s.posts.DeleteMany(ctx, bson.M{"accountId": accountID})
	if err != nil {
		return 0, fmt.Errorf("delete posts for %s: %w", accountID, err)
	}
	return res.DeletedCount, nil
}

func (s *Store) findPosts(ctx context.Context, op string, filter bson.M, limit int64) ([]models.Post, error) {
	opts := options.Find().SetSort(feedSort)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out := []models.Post{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
