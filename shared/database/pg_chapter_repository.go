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

var _ interfaces.ChapterRepository = (*pgChapterRepository)(nil)

const createChapterQuery = `
INSERT INTO chapters (id, story_id, idx, title, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const getChapterByIDQuery = `
SELECT id, story_id, idx, title, content, created_at
FROM chapters
WHERE id = $1`

const listChaptersByStoryQuery = `
SELECT id, story_id, idx, title, content, created_at
FROM chapters
WHERE story_id = $1
ORDER BY idx ASC`

const deleteChapterQuery = `DELETE FROM chapters WHERE id = $1`

type pgChapterRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgChapterRepository creates a PostgreSQL-backed ChapterRepository.
func NewPgChapterRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.ChapterRepository {
	return &pgChapterRepository{
		db:     db,
		logger: logger.Named("PgChapterRepo"),
	}
}

// Create inserts a new chapter record. Chapter content is immutable after
// upload; there is deliberately no update method.
func (r *pgChapterRepository) Create(ctx context.Context, chapter *models.Chapter) error {
	if chapter.ID == uuid.Nil {
		chapter.ID = uuid.New()
	}
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, createChapterQuery,
		chapter.ID,
		chapter.StoryID,
		chapter.Idx,
		chapter.Title,
		chapter.Content,
		chapter.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create chapter", zap.Error(err), zap.String("storyID", chapter.StoryID.String()))
		return fmt.Errorf("failed to create chapter: %w", err)
	}
	r.logger.Info("Chapter created", zap.String("chapterID", chapter.ID.String()), zap.Int("idx", chapter.Idx))
	return nil
}

// GetByID retrieves a chapter by its unique ID.
func (r *pgChapterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	chapter := &models.Chapter{}
	err := r.db.QueryRow(ctx, getChapterByIDQuery, id).Scan(
		&chapter.ID,
		&chapter.StoryID,
		&chapter.Idx,
		&chapter.Title,
		&chapter.Content,
		&chapter.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get chapter by ID", zap.Error(err), zap.String("chapterID", id.String()))
		return nil, fmt.Errorf("failed to get chapter: %w", err)
	}
	return chapter, nil
}

// ListByStory returns the story's chapters in reading order.
func (r *pgChapterRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Chapter, error) {
	var chapters []*models.Chapter
	if err := pgxscan.Select(ctx, r.db, &chapters, listChaptersByStoryQuery, storyID); err != nil {
		r.logger.Error("Failed to list chapters", zap.Error(err), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to list chapters: %w", err)
	}
	return chapters, nil
}

// Delete removes the chapter row; anchors and enhancements cascade.
func (r *pgChapterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteChapterQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete chapter", zap.Error(err), zap.String("chapterID", id.String()))
		return fmt.Errorf("failed to delete chapter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
