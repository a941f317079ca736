package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"enchant-server/shared/interfaces"
	"enchant-server/shared/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var _ interfaces.MediaRepository = (*pgMediaRepository)(nil)

const createMediaQuery = `
INSERT INTO media (id, user_id, storage_path, url, width, height, size_bytes, mime_type, owner_type, owner_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

const getMediaByIDQuery = `
SELECT id, user_id, storage_path, url, width, height, size_bytes, mime_type, owner_type, owner_id, created_at
FROM media
WHERE id = $1`

const setMediaOwnerQuery = `
UPDATE media
SET owner_type = $2, owner_id = $3
WHERE id = $1`

const deleteMediaQuery = `DELETE FROM media WHERE id = $1`

type pgMediaRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgMediaRepository creates a PostgreSQL-backed MediaRepository.
func NewPgMediaRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.MediaRepository {
	return &pgMediaRepository{
		db:     db,
		logger: logger.Named("PgMediaRepo"),
	}
}

// Create inserts a new media record.
func (r *pgMediaRepository) Create(ctx context.Context, media *models.Media) error {
	if media.ID == uuid.Nil {
		media.ID = uuid.New()
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(ctx, createMediaQuery,
		media.ID,
		media.UserID,
		media.StoragePath,
		media.URL,
		media.Width,
		media.Height,
		media.SizeBytes,
		media.MimeType,
		media.OwnerType,
		media.OwnerID,
		media.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create media", zap.Error(err), zap.String("path", media.StoragePath))
		return fmt.Errorf("failed to create media: %w", err)
	}
	r.logger.Debug("Media created", zap.String("mediaID", media.ID.String()))
	return nil
}

// GetByID retrieves a media row by its unique ID.
func (r *pgMediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	media := &models.Media{}
	err := r.db.QueryRow(ctx, getMediaByIDQuery, id).Scan(
		&media.ID,
		&media.UserID,
		&media.StoragePath,
		&media.URL,
		&media.Width,
		&media.Height,
		&media.SizeBytes,
		&media.MimeType,
		&media.OwnerType,
		&media.OwnerID,
		&media.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get media by ID", zap.Error(err), zap.String("mediaID", id.String()))
		return nil, fmt.Errorf("failed to get media: %w", err)
	}
	return media, nil
}

// SetOwner stamps the ownership tag so the cleanup trigger can later reclaim
// this row together with its enhancement.
func (r *pgMediaRepository) SetOwner(ctx context.Context, id uuid.UUID, ownerType string, ownerID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, setMediaOwnerQuery, id, ownerType, ownerID)
	if err != nil {
		r.logger.Error("Failed to set media owner", zap.Error(err), zap.String("mediaID", id.String()))
		return fmt.Errorf("failed to set media owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a media row explicitly (user-initiated cleanup).
func (r *pgMediaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, deleteMediaQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete media", zap.Error(err), zap.String("mediaID", id.String()))
		return fmt.Errorf("failed to delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
