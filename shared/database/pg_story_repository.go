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

// Compile-time check to ensure implementation satisfies the interface.
var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)

const createStoryQuery = `
INSERT INTO stories (id, user_id, title, description, style_prompt, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`

const getStoryByIDQuery = `
SELECT id, user_id, title, description, style_prompt, created_at, updated_at
FROM stories
WHERE id = $1`

const listStoriesByUserQuery = `
SELECT id, user_id, title, description, style_prompt, created_at, updated_at
FROM stories
WHERE user_id = $1
ORDER BY created_at DESC`

const deleteStoryQuery = `DELETE FROM stories WHERE id = $1`

type pgStoryRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgStoryRepository creates a PostgreSQL-backed StoryRepository.
func NewPgStoryRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// Create inserts a new story record.
func (r *pgStoryRepository) Create(ctx context.Context, story *models.Story) error {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, createStoryQuery,
		story.ID,
		story.UserID,
		story.Title,
		story.Description,
		story.StylePrompt,
		story.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create story", zap.Error(err), zap.String("userID", story.UserID.String()))
		return fmt.Errorf("failed to create story: %w", err)
	}
	r.logger.Info("Story created", zap.String("storyID", story.ID.String()))
	return nil
}

// GetByID retrieves a story by its unique ID.
func (r *pgStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	story := &models.Story{}
	err := r.db.QueryRow(ctx, getStoryByIDQuery, id).Scan(
		&story.ID,
		&story.UserID,
		&story.Title,
		&story.Description,
		&story.StylePrompt,
		&story.CreatedAt,
		&story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story by ID", zap.Error(err), zap.String("storyID", id.String()))
		return nil, fmt.Errorf("failed to get story: %w", err)
	}
	return story, nil
}

// ListByUser returns all stories owned by the user, newest first.
func (r *pgStoryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Story, error) {
	var stories []*models.Story
	if err := pgxscan.Select(ctx, r.db, &stories, listStoriesByUserQuery, userID); err != nil {
		r.logger.Error("Failed to list stories", zap.Error(err), zap.String("userID", userID.String()))
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, nil
}

// Delete removes the story row. The ON DELETE CASCADE chain and the
// enhancement cleanup trigger take care of the whole subtree.
func (r *pgStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteStoryQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete story", zap.Error(err), zap.String("storyID", id.String()))
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	r.logger.Info("Story deleted", zap.String("storyID", id.String()))
	return nil
}
