package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enchant-server/shared/interfaces"
	"enchant-server/shared/models"
)

// StoryService covers story and chapter lifecycle. Chapter content is
// immutable after upload: segmentation positions anchor into the exact text
// that was uploaded, so edits would silently invalidate the whole graph.
type StoryService struct {
	storyRepo   interfaces.StoryRepository
	chapterRepo interfaces.ChapterRepository
	logger      *zap.Logger
}

func NewStoryService(storyRepo interfaces.StoryRepository, chapterRepo interfaces.ChapterRepository, logger *zap.Logger) *StoryService {
	return &StoryService{
		storyRepo:   storyRepo,
		chapterRepo: chapterRepo,
		logger:      logger.Named("StoryService"),
	}
}

// CreateStory inserts a new story owned by userID.
func (s *StoryService) CreateStory(ctx context.Context, userID uuid.UUID, title, description, stylePrompt string) (*models.Story, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", models.ErrInvalidInput)
	}
	story := &models.Story{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       title,
		Description: description,
		StylePrompt: stylePrompt,
	}
	if err := s.storyRepo.Create(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}
	return story, nil
}

// GetStory returns the story if it belongs to userID.
func (s *StoryService) GetStory(ctx context.Context, userID uuid.UUID, storyID uuid.UUID) (*models.Story, error) {
	story, err := s.storyRepo.GetByID(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.UserID != userID {
		return nil, models.ErrForbidden
	}
	return story, nil
}

// ListStories returns the user's stories.
func (s *StoryService) ListStories(ctx context.Context, userID uuid.UUID) ([]*models.Story, error) {
	return s.storyRepo.ListByUser(ctx, userID)
}

// DeleteStory removes the story and, through the schema's cascades and the
// media cleanup trigger, everything hanging off it.
func (s *StoryService) DeleteStory(ctx context.Context, userID uuid.UUID, storyID uuid.UUID) error {
	if _, err := s.GetStory(ctx, userID, storyID); err != nil {
		return err
	}
	if err := s.storyRepo.Delete(ctx, storyID); err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	s.logger.Info("Story deleted", zap.String("storyID", storyID.String()))
	return nil
}

// UploadChapter adds an immutable chapter to the story.
func (s *StoryService) UploadChapter(ctx context.Context, userID uuid.UUID, storyID uuid.UUID, idx int, title, content string) (*models.Chapter, error) {
	if idx < 0 {
		return nil, fmt.Errorf("%w: chapter index must be non-negative", models.ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: chapter content is required", models.ErrInvalidInput)
	}
	if _, err := s.GetStory(ctx, userID, storyID); err != nil {
		return nil, err
	}

	chapter := &models.Chapter{
		ID:      uuid.New(),
		StoryID: storyID,
		Idx:     idx,
		Title:   title,
		Content: content,
	}
	if err := s.chapterRepo.Create(ctx, chapter); err != nil {
		return nil, fmt.Errorf("failed to create chapter: %w", err)
	}
	return chapter, nil
}

// GetChapter returns a chapter after checking the story belongs to userID.
func (s *StoryService) GetChapter(ctx context.Context, userID uuid.UUID, chapterID uuid.UUID) (*models.Chapter, error) {
	chapter, err := s.chapterRepo.GetByID(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetStory(ctx, userID, chapter.StoryID); err != nil {
		return nil, err
	}
	return chapter, nil
}

// ListChapters returns the story's chapters in reading order.
func (s *StoryService) ListChapters(ctx context.Context, userID uuid.UUID, storyID uuid.UUID) ([]*models.Chapter, error) {
	if _, err := s.GetStory(ctx, userID, storyID); err != nil {
		return nil, err
	}
	return s.chapterRepo.ListByStory(ctx, storyID)
}
