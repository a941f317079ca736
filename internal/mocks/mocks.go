// Package mocks provides hand-written testify mocks for service-level tests.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"enchant-server/pkg/ai"
	"enchant-server/shared/models"
)

// MockAIClient mocks pkg/ai.Client.
type MockAIClient struct {
	mock.Mock
}

func (m *MockAIClient) GenerateText(ctx context.Context, systemPrompt, userInput string, params ai.GenerationParams) (string, ai.UsageInfo, error) {
	args := m.Called(ctx, systemPrompt, userInput, params)
	return args.String(0), args.Get(1).(ai.UsageInfo), args.Error(2)
}

// MockStoryRepository mocks interfaces.StoryRepository.
type MockStoryRepository struct {
	mock.Mock
}

func (m *MockStoryRepository) Create(ctx context.Context, story *models.Story) error {
	args := m.Called(ctx, story)
	return args.Error(0)
}

func (m *MockStoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Story, error) {
	args := m.Called(ctx, id)
	if story, ok := args.Get(0).(*models.Story); ok {
		return story, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStoryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Story, error) {
	args := m.Called(ctx, userID)
	if stories, ok := args.Get(0).([]*models.Story); ok {
		return stories, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockChapterRepository mocks interfaces.ChapterRepository.
type MockChapterRepository struct {
	mock.Mock
}

func (m *MockChapterRepository) Create(ctx context.Context, chapter *models.Chapter) error {
	args := m.Called(ctx, chapter)
	return args.Error(0)
}

func (m *MockChapterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chapter, error) {
	args := m.Called(ctx, id)
	if chapter, ok := args.Get(0).(*models.Chapter); ok {
		return chapter, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChapterRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Chapter, error) {
	args := m.Called(ctx, storyID)
	if chapters, ok := args.Get(0).([]*models.Chapter); ok {
		return chapters, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChapterRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAnchorRepository mocks interfaces.AnchorRepository.
type MockAnchorRepository struct {
	mock.Mock
}

func (m *MockAnchorRepository) Create(ctx context.Context, anchor *models.Anchor) error {
	args := m.Called(ctx, anchor)
	return args.Error(0)
}

func (m *MockAnchorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Anchor, error) {
	args := m.Called(ctx, id)
	if anchor, ok := args.Get(0).(*models.Anchor); ok {
		return anchor, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnchorRepository) FindByChapterAndPosition(ctx context.Context, chapterID uuid.UUID, afterParagraphIndex int) (*models.Anchor, error) {
	args := m.Called(ctx, chapterID, afterParagraphIndex)
	if anchor, ok := args.Get(0).(*models.Anchor); ok {
		return anchor, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnchorRepository) ListByChapter(ctx context.Context, chapterID uuid.UUID) ([]*models.Anchor, error) {
	args := m.Called(ctx, chapterID)
	if anchors, ok := args.Get(0).([]*models.Anchor); ok {
		return anchors, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnchorRepository) SetActiveEnhancement(ctx context.Context, anchorID uuid.UUID, enhancementID uuid.UUID) error {
	args := m.Called(ctx, anchorID, enhancementID)
	return args.Error(0)
}

func (m *MockAnchorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAnchorRepository) DeleteByChapter(ctx context.Context, chapterID uuid.UUID) error {
	args := m.Called(ctx, chapterID)
	return args.Error(0)
}

// MockEnhancementRepository mocks interfaces.EnhancementRepository.
type MockEnhancementRepository struct {
	mock.Mock
}

func (m *MockEnhancementRepository) Create(ctx context.Context, enhancement *models.Enhancement) error {
	args := m.Called(ctx, enhancement)
	return args.Error(0)
}

func (m *MockEnhancementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Enhancement, error) {
	args := m.Called(ctx, id)
	if enhancement, ok := args.Get(0).(*models.Enhancement); ok {
		return enhancement, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEnhancementRepository) ListByAnchor(ctx context.Context, anchorID uuid.UUID) ([]*models.Enhancement, error) {
	args := m.Called(ctx, anchorID)
	if enhancements, ok := args.Get(0).([]*models.Enhancement); ok {
		return enhancements, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEnhancementRepository) ListByChapter(ctx context.Context, chapterID uuid.UUID) ([]*models.Enhancement, error) {
	args := m.Called(ctx, chapterID)
	if enhancements, ok := args.Get(0).([]*models.Enhancement); ok {
		return enhancements, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEnhancementRepository) MarkCompleted(ctx context.Context, id uuid.UUID, mediaID uuid.UUID) error {
	args := m.Called(ctx, id, mediaID)
	return args.Error(0)
}

func (m *MockEnhancementRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockEnhancementRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockMediaRepository mocks interfaces.MediaRepository.
type MockMediaRepository struct {
	mock.Mock
}

func (m *MockMediaRepository) Create(ctx context.Context, media *models.Media) error {
	args := m.Called(ctx, media)
	return args.Error(0)
}

func (m *MockMediaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Media, error) {
	args := m.Called(ctx, id)
	if media, ok := args.Get(0).(*models.Media); ok {
		return media, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMediaRepository) SetOwner(ctx context.Context, id uuid.UUID, ownerType string, ownerID uuid.UUID) error {
	args := m.Called(ctx, id, ownerType, ownerID)
	return args.Error(0)
}

func (m *MockMediaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockCharacterRepository mocks interfaces.CharacterRepository.
type MockCharacterRepository struct {
	mock.Mock
}

func (m *MockCharacterRepository) Create(ctx context.Context, character *models.Character) error {
	args := m.Called(ctx, character)
	return args.Error(0)
}

func (m *MockCharacterRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Character, error) {
	args := m.Called(ctx, id)
	if character, ok := args.Get(0).(*models.Character); ok {
		return character, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCharacterRepository) ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error) {
	args := m.Called(ctx, storyID)
	if characters, ok := args.Get(0).([]*models.Character); ok {
		return characters, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCharacterRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CharacterStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockCharacterRepository) MergeInto(ctx context.Context, id uuid.UUID, canonicalID uuid.UUID) error {
	args := m.Called(ctx, id, canonicalID)
	return args.Error(0)
}

func (m *MockCharacterRepository) LinkEnhancement(ctx context.Context, enhancementID uuid.UUID, characterID uuid.UUID) error {
	args := m.Called(ctx, enhancementID, characterID)
	return args.Error(0)
}

func (m *MockCharacterRepository) ListByEnhancement(ctx context.Context, enhancementID uuid.UUID) ([]*models.Character, error) {
	args := m.Called(ctx, enhancementID)
	if characters, ok := args.Get(0).([]*models.Character); ok {
		return characters, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRunRepository mocks interfaces.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) Save(ctx context.Context, run *models.EnhancementRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) Get(ctx context.Context, runID uuid.UUID) (*models.EnhancementRun, error) {
	args := m.Called(ctx, runID)
	if run, ok := args.Get(0).(*models.EnhancementRun); ok {
		return run, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRunRepository) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan *models.EnhancementRun, error) {
	args := m.Called(ctx, runID)
	if ch, ok := args.Get(0).(<-chan *models.EnhancementRun); ok {
		return ch, args.Error(1)
	}
	if ch, ok := args.Get(0).(chan *models.EnhancementRun); ok {
		return ch, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockPublisher mocks interfaces.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, payload interface{}, correlationID string) error {
	args := m.Called(ctx, payload, correlationID)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
