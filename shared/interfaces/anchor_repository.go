package interfaces

import (
	"context"

	"enchant-server/shared/models"

	"github.com/google/uuid"
)

// AnchorRepository defines access to anchor rows.
//
//go:generate mockery --name AnchorRepository --output ./mocks --outpkg mocks --case=underscore
type AnchorRepository interface {
	Create(ctx context.Context, anchor *models.Anchor) error
	// GetByID returns models.ErrNotFound when no anchor exists with this id.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Anchor, error)
	// FindByChapterAndPosition looks up an existing anchor at the exact
	// (chapter, position) pair. Returns models.ErrNotFound when absent.
	FindByChapterAndPosition(ctx context.Context, chapterID uuid.UUID, afterParagraphIndex int) (*models.Anchor, error)
	// ListByChapter returns anchors ordered by position ascending. Renderers
	// rely on this ordering to interleave text and images correctly.
	ListByChapter(ctx context.Context, chapterID uuid.UUID) ([]*models.Anchor, error)
	// SetActiveEnhancement moves the anchor's weak active-version reference.
	SetActiveEnhancement(ctx context.Context, anchorID uuid.UUID, enhancementID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByChapter(ctx context.Context, chapterID uuid.UUID) error
}
