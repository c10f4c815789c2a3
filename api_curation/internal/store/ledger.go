package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

// MarkIfAbsent records postID as processed. created is false when a marker
// already existed; a concurrent duplicate insert is not an error.
func (s *Store) MarkIfAbsent(ctx context.Context, postID, outcome string) (bool, error) {
	marker := models.ProcessedMarker{
		PostID:      postID,
		Outcome:     outcome,
		ProcessedAt: s.now().UTC(),
	}
	if _, err := s.markers.InsertOne(ctx, marker); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("mark %s processed: %w", postID, err)
	}
	return true, nil
}

func (s *Store) Exists(ctx context.Context, postID string) (bool, error) {
	err := s.markers.FindOne(ctx, bson.M{"_id": postID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check marker %s: %w", postID, err)
	}
	return true, nil
}

// Sweep deletes markers processed before olderThan.
func (s *Store) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.markers.DeleteMany(ctx, bson.M{"processedAt": bson.M{"$lt": olderThan}})
	if err != nil {
		return 0, fmt.Errorf("sweep markers: %w", err)
	}
	return res.DeletedCount, nil
}
