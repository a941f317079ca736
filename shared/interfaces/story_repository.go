package interfaces

import (
	"context"

	"enchant-server/shared/models"

	"github.com/google/uuid"
)

// StoryRepository defines access to story rows.
//
//go:generate mockery --name StoryRepository --output ./mocks --outpkg mocks --case=underscore
type StoryRepository interface {
	Create(ctx context.Context, story *models.Story) error
	// GetByID returns models.ErrNotFound when no story exists with this id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Story, error)
	// Delete removes the story; the schema cascades to chapters, anchors,
	// enhancements, junction rows and characters, and the enhancement trigger
	// reclaims owned media.
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChapterRepository defines access to chapter rows.
type ChapterRepository interface {
	Create(ctx context.Context, chapter *models.Chapter) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error)
	// ListByStory returns chapters ordered by their ordinal index.
	ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Chapter, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
