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

var _ interfaces.CharacterRepository = (*pgCharacterRepository)(nil)

const createCharacterQuery = `
INSERT INTO characters (id, story_id, name, aliases, status, confidence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const getCharacterByIDQuery = `
SELECT id, story_id, name, aliases, status, merged_into_id, confidence, created_at
FROM characters
WHERE id = $1`

const listCharactersByStoryQuery = `
SELECT id, story_id, name, aliases, status, merged_into_id, confidence, created_at
FROM characters
WHERE story_id = $1
ORDER BY name ASC`

const updateCharacterStatusQuery = `
UPDATE characters SET status = $2 WHERE id = $1`

const mergeCharacterQuery = `
UPDATE characters SET status = 'merged', merged_into_id = $2 WHERE id = $1`

const linkEnhancementCharacterQuery = `
INSERT INTO enhancement_characters (enhancement_id, character_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING`

const listCharactersByEnhancementQuery = `
SELECT c.id, c.story_id, c.name, c.aliases, c.status, c.merged_into_id, c.confidence, c.created_at
FROM characters c
JOIN enhancement_characters ec ON ec.character_id = c.id
WHERE ec.enhancement_id = $1
ORDER BY c.name ASC`

type pgCharacterRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgCharacterRepository creates a PostgreSQL-backed CharacterRepository.
func NewPgCharacterRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.CharacterRepository {
	return &pgCharacterRepository{
		db:     db,
		logger: logger.Named("PgCharacterRepo"),
	}
}

// Create inserts a new character record.
func (r *pgCharacterRepository) Create(ctx context.Context, c *models.Character) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Status == "" {
		c.Status = models.CharacterStatusCandidate
	}
	if c.Aliases == nil {
		c.Aliases = []string{}
	}

	_, err := r.db.Exec(ctx, createCharacterQuery,
		c.ID,
		c.StoryID,
		c.Name,
		c.Aliases,
		c.Status,
		c.Confidence,
		c.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create character", zap.Error(err), zap.String("storyID", c.StoryID.String()))
		return fmt.Errorf("failed to create character: %w", err)
	}
	r.logger.Debug("Character created", zap.String("characterID", c.ID.String()), zap.String("name", c.Name))
	return nil
}

// GetByID retrieves a character by its unique ID.
func (r *pgCharacterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	c := &models.Character{}
	err := r.db.QueryRow(ctx, getCharacterByIDQuery, id).Scan(
		&c.ID,
		&c.StoryID,
		&c.Name,
		&c.Aliases,
		&c.Status,
		&c.MergedIntoID,
		&c.Confidence,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get character by ID", zap.Error(err), zap.String("characterID", id.String()))
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return c, nil
}

// ListByStory returns all characters of a story.
func (r *pgCharacterRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error) {
	var out []*models.Character
	if err := pgxscan.Select(ctx, r.db, &out, listCharactersByStoryQuery, storyID); err != nil {
		r.logger.Error("Failed to list characters", zap.Error(err), zap.String("storyID", storyID.String()))
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return out, nil
}

// UpdateStatus moves a character through the review workflow.
func (r *pgCharacterRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CharacterStatus) error {
	if !models.IsValidCharacterStatus(status) {
		return fmt.Errorf("%w: unknown character status %q", models.ErrInvalidInput, status)
	}
	tag, err := r.db.Exec(ctx, updateCharacterStatusQuery, id, status)
	if err != nil {
		r.logger.Error("Failed to update character status", zap.Error(err), zap.String("characterID", id.String()))
		return fmt.Errorf("failed to update character status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MergeInto marks the character merged and points it at the canonical one.
func (r *pgCharacterRepository) MergeInto(ctx context.Context, id uuid.UUID, canonicalID uuid.UUID) error {
	if id == canonicalID {
		return models.ErrCharacterMergedTarget
	}
	tag, err := r.db.Exec(ctx, mergeCharacterQuery, id, canonicalID)
	if err != nil {
		r.logger.Error("Failed to merge character", zap.Error(err),
			zap.String("characterID", id.String()),
			zap.String("canonicalID", canonicalID.String()))
		return fmt.Errorf("failed to merge character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// LinkEnhancement attaches a character to an enhancement via the junction
// table. The junction row dies with the enhancement; the character survives.
func (r *pgCharacterRepository) LinkEnhancement(ctx context.Context, enhancementID uuid.UUID, characterID uuid.UUID) error {
	_, err := r.db.Exec(ctx, linkEnhancementCharacterQuery, enhancementID, characterID)
	if err != nil {
		r.logger.Error("Failed to link character to enhancement", zap.Error(err),
			zap.String("enhancementID", enhancementID.String()),
			zap.String("characterID", characterID.String()))
		return fmt.Errorf("failed to link character: %w", err)
	}
	return nil
}

// ListByEnhancement returns the characters linked to an enhancement.
func (r *pgCharacterRepository) ListByEnhancement(ctx context.Context, enhancementID uuid.UUID) ([]*models.Character, error) {
	var out []*models.Character
	if err := pgxscan.Select(ctx, r.db, &out, listCharactersByEnhancementQuery, enhancementID); err != nil {
		r.logger.Error("Failed to list characters by enhancement", zap.Error(err), zap.String("enhancementID", enhancementID.String()))
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return out, nil
}
