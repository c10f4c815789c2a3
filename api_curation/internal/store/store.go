package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	CollAccounts = "accounts"
	CollProjects = "projects"
	CollPosts    = "posts"
	CollMarkers  = "processed_markers"
)

var (
	// ErrNotFound is returned for lookups of documents that do not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a unique secondary key already belongs to another document.
	ErrConflict = errors.New("unique key conflict")
)

// Store is the MongoDB persistence layer: accounts, projects, accepted posts
// and the processed-marker ledger. Uniqueness is enforced by the server via
// _id, never by in-process locks.
type Store struct {
	accounts *mongo.Collection
	projects *mongo.Collection
	posts    *mongo.Collection
	markers  *mongo.Collection
	now      func() time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{
		accounts: db.Collection(CollAccounts),
		projects: db.Collection(CollProjects),
		posts:    db.Collection(CollPosts),
		markers:  db.Collection(CollMarkers),
		now:      time.Now,
	}
}

// EnsureIndexes creates the secondary indexes. markerRetention sets the TTL
// on processed markers; zero disables it.
func (s *Store) EnsureIndexes(ctx context.Context, markerRetention time.Duration) error {
	if _, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "upstreamId", Value: 1}},
		Options: options.Index().
			SetName("upstream_id_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"upstreamId": bson.M{"$exists": true}}),
	}); err != nil {
		return fmt.Errorf("accounts indexes: %w", err)
	}

	if _, err := s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "accountId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("account_created")},
		{Keys: bson.D{{Key: "projects", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("project_created")},
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "score", Value: -1}}, Options: options.Index().SetName("created_score")},
	}); err != nil {
		return fmt.Errorf("posts indexes: %w", err)
	}

	if markerRetention > 0 {
		if _, err := s.markers.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "processedAt", Value: 1}},
			Options: options.Index().
				SetName("processed_at_ttl").
				SetExpireAfterSeconds(int32(markerRetention / time.Second)),
		}); err != nil {
			return fmt.Errorf("marker indexes: %w", err)
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}
