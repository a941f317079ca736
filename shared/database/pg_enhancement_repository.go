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

var _ interfaces.EnhancementRepository = (*pgEnhancementRepository)(nil)

const createEnhancementQuery = `
INSERT INTO enhancements (id, anchor_id, chapter_id, enhancement_type, status, prompt, generation_seed, config, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const getEnhancementByIDQuery = `
SELECT id, anchor_id, chapter_id, enhancement_type, status, media_id, prompt, generation_seed, config, error_details, created_at
FROM enhancements
WHERE id = $1`

const listEnhancementsByAnchorQuery = `
SELECT id, anchor_id, chapter_id, enhancement_type, status, media_id, prompt, generation_seed, config, error_details, created_at
FROM enhancements
WHERE anchor_id = $1
ORDER BY created_at ASC`

const listEnhancementsByChapterQuery = `
SELECT id, anchor_id, chapter_id, enhancement_type, status, media_id, prompt, generation_seed, config, error_details, created_at
FROM enhancements
WHERE chapter_id = $1
ORDER BY created_at ASC`

// Terminal rows are immutable: both updates only match rows still generating.
const markEnhancementCompletedQuery = `
UPDATE enhancements
SET status = 'completed', media_id = $2, error_details = NULL
WHERE id = $1 AND status = 'generating'`

const markEnhancementFailedQuery = `
UPDATE enhancements
SET status = 'failed', error_details = $2
WHERE id = $1 AND status = 'generating'`

const deleteEnhancementQuery = `DELETE FROM enhancements WHERE id = $1`

type pgEnhancementRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgEnhancementRepository creates a PostgreSQL-backed EnhancementRepository.
func NewPgEnhancementRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.EnhancementRepository {
	return &pgEnhancementRepository{
		db:     db,
		logger: logger.Named("PgEnhancementRepo"),
	}
}

// Create inserts a new enhancement row in the generating state.
func (r *pgEnhancementRepository) Create(ctx context.Context, e *models.Enhancement) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Type == "" {
		e.Type = models.EnhancementTypeAIImage
	}
	if e.Status == "" {
		e.Status = models.EnhancementStatusGenerating
	}

	_, err := r.db.Exec(ctx, createEnhancementQuery,
		e.ID,
		e.AnchorID,
		e.ChapterID,
		e.Type,
		e.Status,
		e.Prompt,
		e.Seed,
		e.Config,
		e.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create enhancement", zap.Error(err), zap.String("anchorID", e.AnchorID.String()))
		return fmt.Errorf("failed to create enhancement: %w", err)
	}
	r.logger.Info("Enhancement created",
		zap.String("enhancementID", e.ID.String()),
		zap.String("anchorID", e.AnchorID.String()))
	return nil
}

// GetByID retrieves an enhancement by its unique ID.
func (r *pgEnhancementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Enhancement, error) {
	e := &models.Enhancement{}
	err := r.db.QueryRow(ctx, getEnhancementByIDQuery, id).Scan(
		&e.ID,
		&e.AnchorID,
		&e.ChapterID,
		&e.Type,
		&e.Status,
		&e.MediaID,
		&e.Prompt,
		&e.Seed,
		&e.Config,
		&e.ErrorDetails,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get enhancement by ID", zap.Error(err), zap.String("enhancementID", id.String()))
		return nil, fmt.Errorf("failed to get enhancement: %w", err)
	}
	return e, nil
}

// ListByAnchor returns the anchor's version history, oldest first. Version
// numbers are derived from this ordering.
func (r *pgEnhancementRepository) ListByAnchor(ctx context.Context, anchorID uuid.UUID) ([]*models.Enhancement, error) {
	var out []*models.Enhancement
	if err := pgxscan.Select(ctx, r.db, &out, listEnhancementsByAnchorQuery, anchorID); err != nil {
		r.logger.Error("Failed to list enhancements by anchor", zap.Error(err), zap.String("anchorID", anchorID.String()))
		return nil, fmt.Errorf("failed to list enhancements: %w", err)
	}
	return out, nil
}

// ListByChapter returns all enhancement rows of a chapter.
func (r *pgEnhancementRepository) ListByChapter(ctx context.Context, chapterID uuid.UUID) ([]*models.Enhancement, error) {
	var out []*models.Enhancement
	if err := pgxscan.Select(ctx, r.db, &out, listEnhancementsByChapterQuery, chapterID); err != nil {
		r.logger.Error("Failed to list enhancements by chapter", zap.Error(err), zap.String("chapterID", chapterID.String()))
		return nil, fmt.Errorf("failed to list enhancements: %w", err)
	}
	return out, nil
}

// MarkCompleted finalizes a generating row with its media link.
func (r *pgEnhancementRepository) MarkCompleted(ctx context.Context, id uuid.UUID, mediaID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, markEnhancementCompletedQuery, id, mediaID)
	if err != nil {
		r.logger.Error("Failed to mark enhancement completed", zap.Error(err), zap.String("enhancementID", id.String()))
		return fmt.Errorf("failed to mark enhancement completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.terminalOrMissing(ctx, id)
	}
	r.logger.Info("Enhancement completed", zap.String("enhancementID", id.String()), zap.String("mediaID", mediaID.String()))
	return nil
}

// MarkFailed finalizes a generating row with a failure reason.
func (r *pgEnhancementRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.db.Exec(ctx, markEnhancementFailedQuery, id, reason)
	if err != nil {
		r.logger.Error("Failed to mark enhancement failed", zap.Error(err), zap.String("enhancementID", id.String()))
		return fmt.Errorf("failed to mark enhancement failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.terminalOrMissing(ctx, id)
	}
	r.logger.Info("Enhancement failed", zap.String("enhancementID", id.String()), zap.String("reason", reason))
	return nil
}

// Delete removes an enhancement row; junction rows cascade and the cleanup
// trigger reclaims owned media.
func (r *pgEnhancementRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteEnhancementQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete enhancement", zap.Error(err), zap.String("enhancementID", id.String()))
		return fmt.Errorf("failed to delete enhancement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// terminalOrMissing distinguishes the two reasons a status update matched
// nothing.
func (r *pgEnhancementRepository) terminalOrMissing(ctx context.Context, id uuid.UUID) error {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if e.IsTerminal() {
		return models.ErrEnhancementTerminal
	}
	return models.ErrNotFound
}
