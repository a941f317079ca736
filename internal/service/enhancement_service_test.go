package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"enchant-server/internal/mocks"
	"enchant-server/shared/messaging"
	"enchant-server/shared/models"
)

type enhancementServiceFixture struct {
	enhancementRepo *mocks.MockEnhancementRepository
	anchorRepo      *mocks.MockAnchorRepository
	mediaRepo       *mocks.MockMediaRepository
	publisher       *mocks.MockPublisher
	svc             *EnhancementService
}

func newEnhancementServiceFixture() *enhancementServiceFixture {
	f := &enhancementServiceFixture{
		enhancementRepo: new(mocks.MockEnhancementRepository),
		anchorRepo:      new(mocks.MockAnchorRepository),
		mediaRepo:       new(mocks.MockMediaRepository),
		publisher:       new(mocks.MockPublisher),
	}
	f.svc = NewEnhancementService(f.enhancementRepo, f.anchorRepo, f.mediaRepo, f.publisher, zap.NewNop())
	return f
}

func TestEnhancementService_Create_DenormalizesChapterAndPublishes(t *testing.T) {
	f := newEnhancementServiceFixture()
	chapterID := uuid.New()
	userID := uuid.New()
	anchor := &models.Anchor{ID: uuid.New(), ChapterID: chapterID, AfterParagraphIndex: 2}

	f.anchorRepo.On("GetByID", mock.Anything, anchor.ID).Return(anchor, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *models.Enhancement) bool {
		return e.AnchorID == anchor.ID &&
			e.ChapterID == chapterID &&
			e.Status == models.EnhancementStatusGenerating &&
			e.Type == models.EnhancementTypeAIImage
	})).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p interface{}) bool {
		payload, ok := p.(messaging.EnhancementImageTaskPayload)
		return ok && payload.ChapterID == chapterID && payload.UserID == userID && payload.Prompt == "a stormy harbor"
	}), mock.AnythingOfType("string")).Return(nil)

	enhancement, err := f.svc.Create(context.Background(), CreateEnhancementInput{
		AnchorID: anchor.ID,
		UserID:   userID,
		Prompt:   "a stormy harbor",
	})

	require.NoError(t, err)
	assert.Equal(t, chapterID, enhancement.ChapterID)
	f.publisher.AssertExpectations(t)
	f.enhancementRepo.AssertExpectations(t)
}

func TestEnhancementService_Create_RequiresPrompt(t *testing.T) {
	f := newEnhancementServiceFixture()

	_, err := f.svc.Create(context.Background(), CreateEnhancementInput{AnchorID: uuid.New()})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEnhancementService_Create_PublishFailureMarksRowFailed(t *testing.T) {
	f := newEnhancementServiceFixture()
	anchor := &models.Anchor{ID: uuid.New(), ChapterID: uuid.New()}

	f.anchorRepo.On("GetByID", mock.Anything, anchor.ID).Return(anchor, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	f.enhancementRepo.On("MarkFailed", mock.Anything, mock.Anything, mock.AnythingOfType("string")).Return(nil)

	_, err := f.svc.Create(context.Background(), CreateEnhancementInput{
		AnchorID: anchor.ID,
		Prompt:   "prompt",
	})

	require.Error(t, err)
	f.enhancementRepo.AssertCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.AnythingOfType("string"))
}

func TestEnhancementService_Complete_StoresMediaAndActivates(t *testing.T) {
	f := newEnhancementServiceFixture()
	enhancement := &models.Enhancement{
		ID:       uuid.New(),
		AnchorID: uuid.New(),
		Status:   models.EnhancementStatusGenerating,
	}

	f.enhancementRepo.On("GetByID", mock.Anything, enhancement.ID).Return(enhancement, nil)

	var mediaID uuid.UUID
	f.mediaRepo.On("Create", mock.Anything, mock.MatchedBy(func(m *models.Media) bool {
		mediaID = m.ID
		return m.URL == "https://img.example/1.png"
	})).Return(nil)
	f.mediaRepo.On("SetOwner", mock.Anything, mock.AnythingOfType("uuid.UUID"), models.MediaOwnerTypeEnhancement, enhancement.ID).Return(nil)
	f.enhancementRepo.On("MarkCompleted", mock.Anything, enhancement.ID, mock.AnythingOfType("uuid.UUID")).Return(nil)
	f.anchorRepo.On("SetActiveEnhancement", mock.Anything, enhancement.AnchorID, enhancement.ID).Return(nil)

	err := f.svc.Complete(context.Background(), enhancement.ID, CompletedImage{
		UserID: uuid.New(),
		URL:    "https://img.example/1.png",
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, mediaID)
	f.anchorRepo.AssertExpectations(t)
	f.mediaRepo.AssertExpectations(t)
}

func TestEnhancementService_Complete_TerminalRowRejected(t *testing.T) {
	f := newEnhancementServiceFixture()
	enhancement := &models.Enhancement{
		ID:     uuid.New(),
		Status: models.EnhancementStatusCompleted,
	}
	f.enhancementRepo.On("GetByID", mock.Anything, enhancement.ID).Return(enhancement, nil)

	err := f.svc.Complete(context.Background(), enhancement.ID, CompletedImage{})

	assert.ErrorIs(t, err, models.ErrEnhancementTerminal)
	f.mediaRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEnhancementService_Fail_DoesNotTouchActiveReference(t *testing.T) {
	f := newEnhancementServiceFixture()
	id := uuid.New()
	f.enhancementRepo.On("MarkFailed", mock.Anything, id, "backend unavailable").Return(nil)

	err := f.svc.Fail(context.Background(), id, "backend unavailable")

	require.NoError(t, err)
	f.anchorRepo.AssertNotCalled(t, "SetActiveEnhancement", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnhancementService_Retry_CreatesNewVersion(t *testing.T) {
	f := newEnhancementServiceFixture()
	chapterID := uuid.New()
	anchor := &models.Anchor{ID: uuid.New(), ChapterID: chapterID}
	seed := int64(42)
	original := &models.Enhancement{
		ID:       uuid.New(),
		AnchorID: anchor.ID,
		Status:   models.EnhancementStatusFailed,
		Prompt:   "original prompt",
		Seed:     &seed,
	}

	f.enhancementRepo.On("GetByID", mock.Anything, original.ID).Return(original, nil)
	f.anchorRepo.On("GetByID", mock.Anything, anchor.ID).Return(anchor, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *models.Enhancement) bool {
		return e.ID != original.ID &&
			e.AnchorID == anchor.ID &&
			e.Status == models.EnhancementStatusGenerating &&
			e.Prompt == "original prompt"
	})).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	retried, err := f.svc.Retry(context.Background(), original.ID, uuid.New(), "")

	require.NoError(t, err)
	assert.NotEqual(t, original.ID, retried.ID)
	assert.Equal(t, original.AnchorID, retried.AnchorID)
	f.enhancementRepo.AssertExpectations(t)
}

func TestEnhancementService_Retry_RejectsGeneratingRow(t *testing.T) {
	f := newEnhancementServiceFixture()
	original := &models.Enhancement{ID: uuid.New(), Status: models.EnhancementStatusGenerating}
	f.enhancementRepo.On("GetByID", mock.Anything, original.ID).Return(original, nil)

	_, err := f.svc.Retry(context.Background(), original.ID, uuid.New(), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
