package scraper

import (
	"context"

	"igcrawler/pkg/models"
)

// APIClient is the transport surface the crawler drives.
type APIClient interface {
	ResolveUserID(ctx context.Context, handle string) (string, error)
	FetchProfile(ctx context.Context, userID, handle string) (*models.Profile, error)
	FetchHighlights(ctx context.Context, userID, handle string) ([]models.MediaItem, error)
	FetchPosts(ctx context.Context, userID, handle string) ([]models.MediaItem, error)
}

// Datastore is the persistence surface the crawler writes through.
type Datastore interface {
	IsComplete(ctx context.Context, handle string) (bool, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error
	ReplaceMedia(ctx context.Context, ownerHandle string, items []models.MediaItem) error
	SelectPending(ctx context.Context, force bool, limit int) ([]string, error)
	MarkInactive(ctx context.Context, handle string) error
}
