package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

// UpsertProject replaces a project's match configuration by name. Extra
// attributes are merged key by key.
func (s *Store) UpsertProject(ctx context.Context, p *models.Project) (*models.Project, error) {
	keywords := p.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now().UTC()
	}

	set := bson.M{
		"keywords":    keywords,
		"handle":      p.Handle,
		"description": p.Description,
		"website":     p.Website,
		"verified":    p.Verified,
		"updatedAt":   updatedAt,
	}
	for k, v := range p.Extra {
		set["extra."+k] = v
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out models.Project
	if err := s.projects.FindOneAndUpdate(ctx, bson.M{"_id": p.Name}, bson.M{"$set": set}, opts).Decode(&out); err != nil {
		return nil, fmt.Errorf("upsert project %s: %w", p.Name, err)
	}
	return &out, nil
}

func (s *Store) GetProject(ctx context.Context, name string) (*models.Project, error) {
	var out models.Project
	if err := s.projects.FindOne(ctx, bson.M{"_id": name}).Decode(&out); err != nil {
		return nil, fmt.Errorf("get project %s: %w", name, notFound(err))
	}
	return &out, nil
}

// ListProjects returns every project ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	cur, err := s.projects.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := []models.Project{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}
