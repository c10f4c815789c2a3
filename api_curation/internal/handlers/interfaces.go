package handlers

import (
	"context"

	"github.com/fortuneofweb3/blabz/api_curation/internal/curation"
	"github.com/fortuneofweb3/blabz/api_curation/internal/models"
)

type CurationService interface {
	IngestAndCurate(ctx context.Context, handle string, opts curation.IngestOptions) (*models.CurationResult, error)
	GetProjectFeed(ctx context.Context, project string, window models.TimeWindow) ([]models.Post, error)
	GetAccountFeed(ctx context.Context, handle string, window models.TimeWindow) ([]models.Post, error)
	GetGlobalFeed(ctx context.Context, window models.TimeWindow) ([]models.Post, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	RegisterProject(ctx context.Context, req curation.RegisterProjectRequest) (*models.Project, error)
	RegisterAccount(ctx context.Context, req curation.RegisterAccountRequest) (*models.Account, error)
	PurgeAccount(ctx context.Context, handle string) error
}
