package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"enchant-server/shared/interfaces"
	"enchant-server/shared/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.AnchorRepository = (*pgAnchorRepository)(nil)

const createAnchorQuery = `
INSERT INTO anchors (id, chapter_id, after_paragraph_index, created_at)
VALUES ($1, $2, $3, $4)`

const getAnchorByIDQuery = `
SELECT id, chapter_id, after_paragraph_index, active_enhancement_id, created_at
FROM anchors
WHERE id = $1`

const findAnchorByPositionQuery = `
SELECT id, chapter_id, after_paragraph_index, active_enhancement_id, created_at
FROM anchors
WHERE chapter_id = $1 AND after_paragraph_index = $2
ORDER BY created_at ASC
LIMIT 1`

const listAnchorsByChapterQuery = `
SELECT id, chapter_id, after_paragraph_index, active_enhancement_id, created_at
FROM anchors
WHERE chapter_id = $1
ORDER BY after_paragraph_index ASC, created_at ASC`

// Guarded so a stale enhancement id can never be attached to a foreign anchor.
const setActiveEnhancementQuery = `
UPDATE anchors
SET active_enhancement_id = $2
WHERE id = $1
  AND EXISTS (
    SELECT 1 FROM enhancements e WHERE e.id = $2 AND e.anchor_id = $1
  )`

const deleteAnchorQuery = `DELETE FROM anchors WHERE id = $1`

const deleteAnchorsByChapterQuery = `DELETE FROM anchors WHERE chapter_id = $1`

type pgAnchorRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgAnchorRepository creates a PostgreSQL-backed AnchorRepository.
func NewPgAnchorRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.AnchorRepository {
	return &pgAnchorRepository{
		db:     db,
		logger: logger.Named("PgAnchorRepo"),
	}
}

// Create inserts a new anchor record. Position dedup is the service layer's
// job (FindByChapterAndPosition first); the schema allows duplicates.
func (r *pgAnchorRepository) Create(ctx context.Context, anchor *models.Anchor) error {
	if anchor.ID == uuid.Nil {
		anchor.ID = uuid.New()
	}
	if anchor.CreatedAt.IsZero() {
		anchor.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, createAnchorQuery,
		anchor.ID,
		anchor.ChapterID,
		anchor.AfterParagraphIndex,
		anchor.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create anchor", zap.Error(err),
			zap.String("chapterID", anchor.ChapterID.String()),
			zap.Int("position", anchor.AfterParagraphIndex))
		return fmt.Errorf("failed to create anchor: %w", err)
	}
	r.logger.Debug("Anchor created", zap.String("anchorID", anchor.ID.String()), zap.Int("position", anchor.AfterParagraphIndex))
	return nil
}

// GetByID retrieves an anchor by its unique ID.
func (r *pgAnchorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Anchor, error) {
	anchor := &models.Anchor{}
	err := r.db.QueryRow(ctx, getAnchorByIDQuery, id).Scan(
		&anchor.ID,
		&anchor.ChapterID,
		&anchor.AfterParagraphIndex,
		&anchor.ActiveEnhancementID,
		&anchor.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get anchor by ID", zap.Error(err), zap.String("anchorID", id.String()))
		return nil, fmt.Errorf("failed to get anchor: %w", err)
	}
	return anchor, nil
}

// FindByChapterAndPosition looks up the anchor at an exact position within a
// chapter, the idempotency key for repeated enhancement runs.
func (r *pgAnchorRepository) FindByChapterAndPosition(ctx context.Context, chapterID uuid.UUID, afterParagraphIndex int) (*models.Anchor, error) {
	anchor := &models.Anchor{}
	err := r.db.QueryRow(ctx, findAnchorByPositionQuery, chapterID, afterParagraphIndex).Scan(
		&anchor.ID,
		&anchor.ChapterID,
		&anchor.AfterParagraphIndex,
		&anchor.ActiveEnhancementID,
		&anchor.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to find anchor by position", zap.Error(err),
			zap.String("chapterID", chapterID.String()),
			zap.Int("position", afterParagraphIndex))
		return nil, fmt.Errorf("failed to find anchor by position: %w", err)
	}
	return anchor, nil
}

// ListByChapter returns the chapter's anchors in ascending position order.
func (r *pgAnchorRepository) ListByChapter(ctx context.Context, chapterID uuid.UUID) ([]*models.Anchor, error) {
	var anchors []*models.Anchor
	if err := pgxscan.Select(ctx, r.db, &anchors, listAnchorsByChapterQuery, chapterID); err != nil {
		r.logger.Error("Failed to list anchors", zap.Error(err), zap.String("chapterID", chapterID.String()))
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}
	return anchors, nil
}

// SetActiveEnhancement moves the anchor's active-version pointer. Returns
// models.ErrAnchorMismatch when the enhancement does not belong to the anchor.
func (r *pgAnchorRepository) SetActiveEnhancement(ctx context.Context, anchorID uuid.UUID, enhancementID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, setActiveEnhancementQuery, anchorID, enhancementID)
	if err != nil {
		r.logger.Error("Failed to set active enhancement", zap.Error(err),
			zap.String("anchorID", anchorID.String()),
			zap.String("enhancementID", enhancementID.String()))
		return fmt.Errorf("failed to set active enhancement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAnchorMismatch
	}
	return nil
}

// Delete removes an anchor; its enhancement subtree cascades.
func (r *pgAnchorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteAnchorQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete anchor", zap.Error(err), zap.String("anchorID", id.String()))
		return fmt.Errorf("failed to delete anchor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteByChapter removes all anchors of a chapter.
func (r *pgAnchorRepository) DeleteByChapter(ctx context.Context, chapterID uuid.UUID) error {
	_, err := r.db.Exec(ctx, deleteAnchorsByChapterQuery, chapterID)
	if err != nil {
		r.logger.Error("Failed to delete anchors by chapter", zap.Error(err), zap.String("chapterID", chapterID.String()))
		return fmt.Errorf("failed to delete anchors by chapter: %w", err)
	}
	return nil
}
