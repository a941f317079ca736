package interfaces

import (
	"context"

	"enchant-server/shared/models"

	"github.com/google/uuid"
)

// EnhancementRepository defines access to enhancement rows. Terminal rows are
// never mutated back into a generating state; retries insert new rows.
//
//go:generate mockery --name EnhancementRepository --output ./mocks --outpkg mocks --case=underscore
type EnhancementRepository interface {
	Create(ctx context.Context, enhancement *models.Enhancement) error
	// GetByID returns models.ErrNotFound when no enhancement exists with this id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Enhancement, error)
	// ListByAnchor returns the version history for an anchor ordered by
	// creation time ascending.
	ListByAnchor(ctx context.Context, anchorID uuid.UUID) ([]*models.Enhancement, error)
	ListByChapter(ctx context.Context, chapterID uuid.UUID) ([]*models.Enhancement, error)
	// MarkCompleted sets status=completed and links the media row. It is a
	// no-op returning models.ErrEnhancementTerminal when the row is already
	// terminal.
	MarkCompleted(ctx context.Context, id uuid.UUID, mediaID uuid.UUID) error
	// MarkFailed sets status=failed with the failure reason. Same terminal
	// guard as MarkCompleted.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// MediaRepository defines access to media rows. Deletion of owned media is
// the enhancement cleanup trigger's job, not the application's.
type MediaRepository interface {
	Create(ctx context.Context, media *models.Media) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Media, error)
	// SetOwner stamps the weak ownership tag consulted by the cleanup trigger.
	SetOwner(ctx context.Context, id uuid.UUID, ownerType string, ownerID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CharacterRepository defines access to story characters and their junction
// links to enhancements.
type CharacterRepository interface {
	Create(ctx context.Context, character *models.Character) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error)
	ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.CharacterStatus) error
	// MergeInto marks the character merged and points it at the canonical one.
	MergeInto(ctx context.Context, id uuid.UUID, canonicalID uuid.UUID) error
	// LinkEnhancement inserts a junction row; duplicates are ignored.
	LinkEnhancement(ctx context.Context, enhancementID uuid.UUID, characterID uuid.UUID) error
	ListByEnhancement(ctx context.Context, enhancementID uuid.UUID) ([]*models.Character, error)
}
