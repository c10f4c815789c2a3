package store

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

// NormalizeHandle lower-cases a handle and drops a leading '@'.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// UpsertAccount creates or updates an account and returns the stored document.
// Empty profile fields never overwrite stored ones. Metrics are written only
// when LastRefreshedAt is set, i.e. when they came from the upstream.
func (s *Store) UpsertAccount(ctx context.Context, a *models.Account) (*models.Account, error) {
	handle := NormalizeHandle(a.Handle)
	if handle == "" {
		return nil, fmt.Errorf("upsert account: empty handle")
	}

	set := bson.M{}
	setString(set, "upstreamId", a.UpstreamID)
	setString(set, "displayName", a.DisplayName)
	setString(set, "avatarUrl", a.AvatarURL)
	setString(set, "bio", a.Bio)
	setString(set, "location", a.Location)
	if !a.CreatedAt.IsZero() {
		set["createdAt"] = a.CreatedAt
	}
	for k, v := range a.Extra {
		set["extra."+k] = v
	}

	onInsert := bson.M{}
	if !a.LastRefreshedAt.IsZero() {
		set["followers"] = a.Followers
		set["following"] = a.Following
		set["lastRefreshedAt"] = a.LastRefreshedAt
	} else {
		onInsert["followers"] = int64(0)
		onInsert["following"] = int64(0)
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out models.Account
	if err := s.accounts.FindOneAndUpdate(ctx, bson.M{"_id": handle}, update, opts).Decode(&out); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("upsert account %s: upstream id %s: %w", handle, a.UpstreamID, ErrConflict)
		}
		return nil, fmt.Errorf("upsert account %s: %w", handle, err)
	}
	return &out, nil
}

func (s *Store) GetAccount(ctx context.Context, handle string) (*models.Account, error) {
	var out models.Account
	if err := s.accounts.FindOne(ctx, bson.M{"_id": NormalizeHandle(handle)}).Decode(&out); err != nil {
		return nil, fmt.Errorf("get account %s: %w", handle, notFound(err))
	}
	return &out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, handle string) error {
	res, err := s.accounts.DeleteOne(ctx, bson.M{"_id": NormalizeHandle(handle)})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", handle, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete account %s: %w", handle, ErrNotFound)
	}
	return nil
}

func setString(set bson.M, field, value string) {
	if value != "" {
		set[field] = value
	}
}
