package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enchant-server/shared/interfaces"
	"enchant-server/shared/models"
)

// AnchorService owns anchor placement within chapters. (chapter, position) is
// an idempotency key: re-running segmentation over the same chapter reuses
// existing anchors instead of stacking duplicates at the same position.
type AnchorService struct {
	anchorRepo      interfaces.AnchorRepository
	enhancementRepo interfaces.EnhancementRepository
	logger          *zap.Logger
}

func NewAnchorService(anchorRepo interfaces.AnchorRepository, enhancementRepo interfaces.EnhancementRepository, logger *zap.Logger) *AnchorService {
	return &AnchorService{
		anchorRepo:      anchorRepo,
		enhancementRepo: enhancementRepo,
		logger:          logger.Named("AnchorService"),
	}
}

// FindOrCreate returns the existing anchor at (chapterID, afterParagraphIndex)
// or creates one when the position is not yet anchored.
func (s *AnchorService) FindOrCreate(ctx context.Context, chapterID uuid.UUID, afterParagraphIndex int) (*models.Anchor, error) {
	if afterParagraphIndex < 0 {
		return nil, fmt.Errorf("%w: paragraph index must be non-negative", models.ErrInvalidInput)
	}

	existing, err := s.anchorRepo.FindByChapterAndPosition(ctx, chapterID, afterParagraphIndex)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up anchor: %w", err)
	}

	anchor := &models.Anchor{
		ID:                  uuid.New(),
		ChapterID:           chapterID,
		AfterParagraphIndex: afterParagraphIndex,
	}
	if err := s.anchorRepo.Create(ctx, anchor); err != nil {
		return nil, fmt.Errorf("failed to create anchor: %w", err)
	}
	s.logger.Debug("Anchor created",
		zap.String("anchorID", anchor.ID.String()),
		zap.String("chapterID", chapterID.String()),
		zap.Int("afterParagraphIndex", afterParagraphIndex))
	return anchor, nil
}

// Get returns one anchor by id.
func (s *AnchorService) Get(ctx context.Context, id uuid.UUID) (*models.Anchor, error) {
	return s.anchorRepo.GetByID(ctx, id)
}

// ListForChapter returns the chapter's anchors in ascending position order,
// each paired with its active enhancement when one is set.
func (s *AnchorService) ListForChapter(ctx context.Context, chapterID uuid.UUID) ([]*models.AnchorWithEnhancement, error) {
	anchors, err := s.anchorRepo.ListByChapter(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}

	result := make([]*models.AnchorWithEnhancement, 0, len(anchors))
	for _, anchor := range anchors {
		entry := &models.AnchorWithEnhancement{Anchor: *anchor}
		if anchor.ActiveEnhancementID != nil {
			active, err := s.enhancementRepo.GetByID(ctx, *anchor.ActiveEnhancementID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					// Dangling active reference would mean a broken cascade.
					// Surface it loudly instead of papering over.
					return nil, fmt.Errorf("anchor %s references missing enhancement %s", anchor.ID, *anchor.ActiveEnhancementID)
				}
				return nil, fmt.Errorf("failed to load active enhancement: %w", err)
			}
			entry.Active = active
		}
		result = append(result, entry)
	}
	return result, nil
}

// Delete removes one anchor; the schema cascades to its enhancement versions.
func (s *AnchorService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.anchorRepo.Delete(ctx, id)
}

// DeleteByChapter removes all anchors for a chapter.
func (s *AnchorService) DeleteByChapter(ctx context.Context, chapterID uuid.UUID) error {
	return s.anchorRepo.DeleteByChapter(ctx, chapterID)
}
