package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enchant-server/shared/interfaces"
	"enchant-server/shared/messaging"
	"enchant-server/shared/models"
)

// CreateEnhancementInput carries everything needed to start one generation
// attempt at an anchor.
type CreateEnhancementInput struct {
	AnchorID    uuid.UUID
	UserID      uuid.UUID
	Prompt      string
	StyleSuffix string
	Seed        *int64
	Config      json.RawMessage
}

// CompletedImage describes the artifact the image worker produced.
type CompletedImage struct {
	UserID      uuid.UUID
	URL         string
	StoragePath string
	Width       int
	Height      int
	SizeBytes   int64
	MimeType    string
}

// EnhancementService runs the per-anchor enhancement state machine. Rows are
// append-only: a retry creates a new generating row, and terminal rows are
// never reopened. The anchor's active reference moves only on completion.
type EnhancementService struct {
	enhancementRepo interfaces.EnhancementRepository
	anchorRepo      interfaces.AnchorRepository
	mediaRepo       interfaces.MediaRepository
	taskPublisher   interfaces.Publisher
	logger          *zap.Logger
}

func NewEnhancementService(
	enhancementRepo interfaces.EnhancementRepository,
	anchorRepo interfaces.AnchorRepository,
	mediaRepo interfaces.MediaRepository,
	taskPublisher interfaces.Publisher,
	logger *zap.Logger,
) *EnhancementService {
	return &EnhancementService{
		enhancementRepo: enhancementRepo,
		anchorRepo:      anchorRepo,
		mediaRepo:       mediaRepo,
		taskPublisher:   taskPublisher,
		logger:          logger.Named("EnhancementService"),
	}
}

// Create inserts a generating enhancement row for the anchor and dispatches
// an image task to the worker queue.
func (s *EnhancementService) Create(ctx context.Context, input CreateEnhancementInput) (*models.Enhancement, error) {
	if input.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", models.ErrInvalidInput)
	}

	anchor, err := s.anchorRepo.GetByID(ctx, input.AnchorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load anchor: %w", err)
	}

	enhancement := &models.Enhancement{
		ID:        uuid.New(),
		AnchorID:  anchor.ID,
		ChapterID: anchor.ChapterID,
		Type:      models.EnhancementTypeAIImage,
		Status:    models.EnhancementStatusGenerating,
		Prompt:    input.Prompt,
		Seed:      input.Seed,
		Config:    input.Config,
	}
	if err := s.enhancementRepo.Create(ctx, enhancement); err != nil {
		return nil, fmt.Errorf("failed to create enhancement: %w", err)
	}

	if err := s.publishTask(ctx, enhancement, input.UserID, input.StyleSuffix); err != nil {
		// No worker will ever report a result for this row, so fail it right
		// away; the caller sees the dispatch failure and can retry explicitly.
		reason := fmt.Sprintf("failed to dispatch image task: %v", err)
		if markErr := s.enhancementRepo.MarkFailed(ctx, enhancement.ID, reason); markErr != nil {
			s.logger.Error("Failed to mark undispatched enhancement as failed",
				zap.String("enhancementID", enhancement.ID.String()), zap.Error(markErr))
		}
		return nil, fmt.Errorf("failed to publish image task: %w", err)
	}

	s.logger.Info("Enhancement created",
		zap.String("enhancementID", enhancement.ID.String()),
		zap.String("anchorID", anchor.ID.String()))
	return enhancement, nil
}

// Complete stores the produced media, marks the enhancement completed and
// moves the anchor's active reference onto it. Late completions arriving
// after a polling timeout still land here; only genuinely terminal rows are
// rejected with models.ErrEnhancementTerminal.
func (s *EnhancementService) Complete(ctx context.Context, enhancementID uuid.UUID, image CompletedImage) error {
	enhancement, err := s.enhancementRepo.GetByID(ctx, enhancementID)
	if err != nil {
		return fmt.Errorf("failed to load enhancement: %w", err)
	}
	if enhancement.IsTerminal() {
		return models.ErrEnhancementTerminal
	}

	media := &models.Media{
		ID:          uuid.New(),
		UserID:      image.UserID,
		StoragePath: image.StoragePath,
		URL:         image.URL,
		Width:       image.Width,
		Height:      image.Height,
		SizeBytes:   image.SizeBytes,
		MimeType:    image.MimeType,
	}
	if err := s.mediaRepo.Create(ctx, media); err != nil {
		return fmt.Errorf("failed to create media: %w", err)
	}
	if err := s.mediaRepo.SetOwner(ctx, media.ID, models.MediaOwnerTypeEnhancement, enhancement.ID); err != nil {
		return fmt.Errorf("failed to tag media owner: %w", err)
	}

	if err := s.enhancementRepo.MarkCompleted(ctx, enhancement.ID, media.ID); err != nil {
		if errors.Is(err, models.ErrEnhancementTerminal) {
			// Lost a race with another writer. The freshly created media row
			// is unowned by the winner, so reclaim it here.
			if delErr := s.mediaRepo.Delete(ctx, media.ID); delErr != nil {
				s.logger.Warn("Failed to delete orphaned media after completion race",
					zap.String("mediaID", media.ID.String()), zap.Error(delErr))
			}
			return err
		}
		return fmt.Errorf("failed to mark enhancement completed: %w", err)
	}

	if err := s.anchorRepo.SetActiveEnhancement(ctx, enhancement.AnchorID, enhancement.ID); err != nil {
		return fmt.Errorf("failed to activate enhancement: %w", err)
	}

	s.logger.Info("Enhancement completed",
		zap.String("enhancementID", enhancement.ID.String()),
		zap.String("mediaID", media.ID.String()))
	return nil
}

// Fail marks the enhancement failed with a reason. The anchor's active
// reference is left untouched: a previously completed version keeps showing.
func (s *EnhancementService) Fail(ctx context.Context, enhancementID uuid.UUID, reason string) error {
	if err := s.enhancementRepo.MarkFailed(ctx, enhancementID, reason); err != nil {
		return err
	}
	s.logger.Info("Enhancement failed",
		zap.String("enhancementID", enhancementID.String()),
		zap.String("reason", reason))
	return nil
}

// Retry creates a fresh generating row for the same anchor, inheriting the
// original's prompt and config, and dispatches a new image task. The old row
// stays in the version history untouched. Only terminal rows can be retried.
func (s *EnhancementService) Retry(ctx context.Context, enhancementID uuid.UUID, userID uuid.UUID, styleSuffix string) (*models.Enhancement, error) {
	original, err := s.enhancementRepo.GetByID(ctx, enhancementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load enhancement: %w", err)
	}
	if !original.IsTerminal() {
		return nil, fmt.Errorf("%w: enhancement is still generating", models.ErrInvalidInput)
	}

	return s.Create(ctx, CreateEnhancementInput{
		AnchorID:    original.AnchorID,
		UserID:      userID,
		Prompt:      original.Prompt,
		StyleSuffix: styleSuffix,
		Seed:        original.Seed,
		Config:      original.Config,
	})
}

// GetByID returns one enhancement row.
func (s *EnhancementService) GetByID(ctx context.Context, id uuid.UUID) (*models.Enhancement, error) {
	return s.enhancementRepo.GetByID(ctx, id)
}

// ListVersions returns the append-only version history for an anchor,
// oldest first.
func (s *EnhancementService) ListVersions(ctx context.Context, anchorID uuid.UUID) ([]*models.Enhancement, error) {
	return s.enhancementRepo.ListByAnchor(ctx, anchorID)
}

func (s *EnhancementService) publishTask(ctx context.Context, enhancement *models.Enhancement, userID uuid.UUID, styleSuffix string) error {
	payload := messaging.EnhancementImageTaskPayload{
		TaskID:        uuid.NewString(),
		EnhancementID: enhancement.ID,
		AnchorID:      enhancement.AnchorID,
		ChapterID:     enhancement.ChapterID,
		UserID:        userID,
		Prompt:        enhancement.Prompt,
		StyleSuffix:   styleSuffix,
		Seed:          enhancement.Seed,
	}
	return s.taskPublisher.Publish(ctx, payload, enhancement.ID.String())
}
