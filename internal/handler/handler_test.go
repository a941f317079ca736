package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"enchant-server/internal/mocks"
	"enchant-server/internal/service"
	"enchant-server/pkg/runtracker"
	"enchant-server/shared/models"
)

const testJWTSecret = "handler-test-secret"

type handlerFixture struct {
	router          *gin.Engine
	storyRepo       *mocks.MockStoryRepository
	chapterRepo     *mocks.MockChapterRepository
	anchorRepo      *mocks.MockAnchorRepository
	enhancementRepo *mocks.MockEnhancementRepository
	mediaRepo       *mocks.MockMediaRepository
	characterRepo   *mocks.MockCharacterRepository
	runRepo         *mocks.MockRunRepository
	publisher       *mocks.MockPublisher
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &handlerFixture{
		storyRepo:       new(mocks.MockStoryRepository),
		chapterRepo:     new(mocks.MockChapterRepository),
		anchorRepo:      new(mocks.MockAnchorRepository),
		enhancementRepo: new(mocks.MockEnhancementRepository),
		mediaRepo:       new(mocks.MockMediaRepository),
		characterRepo:   new(mocks.MockCharacterRepository),
		runRepo:         new(mocks.MockRunRepository),
		publisher:       new(mocks.MockPublisher),
	}

	logger := zap.NewNop()
	stories := service.NewStoryService(f.storyRepo, f.chapterRepo, logger)
	anchors := service.NewAnchorService(f.anchorRepo, f.enhancementRepo, logger)
	enhancements := service.NewEnhancementService(f.enhancementRepo, f.anchorRepo, f.mediaRepo, f.publisher, logger)
	characters := service.NewCharacterService(f.characterRepo, nil, logger)
	runs := service.NewRunService(
		service.RunConfig{PollInterval: time.Millisecond, MaxPollAttempts: 1},
		nil,
		f.storyRepo,
		f.chapterRepo,
		anchors,
		enhancements,
		f.enhancementRepo,
		f.runRepo,
		runtracker.New(),
		logger,
	)

	h := NewHandler(stories, anchors, enhancements, characters, runs, testJWTSecret, logger)
	f.router = gin.New()
	h.RegisterRoutes(f.router)
	return f
}

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := models.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func (f *handlerFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_RequiresAuthentication(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/stories", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/stories", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_HealthIsPublic(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_CreateStory(t *testing.T) {
	f := newHandlerFixture(t)
	userID := uuid.New()
	token := signToken(t, userID)

	f.storyRepo.On("Create", mock.Anything, mock.MatchedBy(func(s *models.Story) bool {
		return s.UserID == userID && s.Title == "Harbor Lights"
	})).Return(nil).Once()

	rec := f.do(t, http.MethodPost, "/api/stories", token, createStoryRequest{Title: "Harbor Lights"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Story
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Harbor Lights", created.Title)
	f.storyRepo.AssertExpectations(t)
}

func TestHandler_CreateStoryRequiresTitle(t *testing.T) {
	f := newHandlerFixture(t)
	token := signToken(t, uuid.New())

	rec := f.do(t, http.MethodPost, "/api/stories", token, map[string]string{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.storyRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandler_GetStoryOwnership(t *testing.T) {
	f := newHandlerFixture(t)
	owner := uuid.New()
	stranger := uuid.New()
	story := &models.Story{ID: uuid.New(), UserID: owner, Title: "Harbor Lights"}

	f.storyRepo.On("GetByID", mock.Anything, story.ID).Return(story, nil)

	rec := f.do(t, http.MethodGet, "/api/stories/"+story.ID.String(), signToken(t, stranger), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/stories/"+story.ID.String(), signToken(t, owner), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_GetStoryInvalidID(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/stories/not-a-uuid", signToken(t, uuid.New()), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_GetRunNotFound(t *testing.T) {
	f := newHandlerFixture(t)
	runID := uuid.New()

	f.runRepo.On("Get", mock.Anything, runID).Return(nil, models.ErrRunNotFound).Once()

	rec := f.do(t, http.MethodGet, "/api/enhancement-runs/"+runID.String(), signToken(t, uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_CreateEnhancementAtAnchor(t *testing.T) {
	f := newHandlerFixture(t)
	owner := uuid.New()
	story := &models.Story{ID: uuid.New(), UserID: owner}
	chapter := &models.Chapter{ID: uuid.New(), StoryID: story.ID}
	anchor := &models.Anchor{ID: uuid.New(), ChapterID: chapter.ID, AfterParagraphIndex: 2}

	f.anchorRepo.On("GetByID", mock.Anything, anchor.ID).Return(anchor, nil)
	f.chapterRepo.On("GetByID", mock.Anything, chapter.ID).Return(chapter, nil)
	f.storyRepo.On("GetByID", mock.Anything, story.ID).Return(story, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.MatchedBy(func(e *models.Enhancement) bool {
		return e.AnchorID == anchor.ID && e.ChapterID == chapter.ID && e.Prompt == "gulls over the fish market"
	})).Return(nil).Once()
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	rec := f.do(t, http.MethodPost, "/api/anchors/"+anchor.ID.String()+"/enhancements", signToken(t, owner),
		createEnhancementRequest{Prompt: "gulls over the fish market"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Enhancement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, models.EnhancementStatusGenerating, created.Status)
	f.enhancementRepo.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestHandler_CreateEnhancementForbiddenForStranger(t *testing.T) {
	f := newHandlerFixture(t)
	owner := uuid.New()
	story := &models.Story{ID: uuid.New(), UserID: owner}
	chapter := &models.Chapter{ID: uuid.New(), StoryID: story.ID}
	anchor := &models.Anchor{ID: uuid.New(), ChapterID: chapter.ID}

	f.anchorRepo.On("GetByID", mock.Anything, anchor.ID).Return(anchor, nil)
	f.chapterRepo.On("GetByID", mock.Anything, chapter.ID).Return(chapter, nil)
	f.storyRepo.On("GetByID", mock.Anything, story.ID).Return(story, nil)

	rec := f.do(t, http.MethodPost, "/api/anchors/"+anchor.ID.String()+"/enhancements", signToken(t, uuid.New()),
		createEnhancementRequest{Prompt: "gulls over the fish market"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.enhancementRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandler_RetryStillGeneratingIsRejected(t *testing.T) {
	f := newHandlerFixture(t)
	enhancement := &models.Enhancement{
		ID:       uuid.New(),
		AnchorID: uuid.New(),
		Status:   models.EnhancementStatusGenerating,
		Prompt:   "gulls over the fish market",
	}

	f.enhancementRepo.On("GetByID", mock.Anything, enhancement.ID).Return(enhancement, nil).Once()

	rec := f.do(t, http.MethodPost, "/api/enhancements/"+enhancement.ID.String()+"/retry", signToken(t, uuid.New()), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_StartRunForbiddenForStranger(t *testing.T) {
	f := newHandlerFixture(t)
	owner := uuid.New()
	story := &models.Story{ID: uuid.New(), UserID: owner}
	chapter := &models.Chapter{ID: uuid.New(), StoryID: story.ID, Content: "text"}

	f.chapterRepo.On("GetByID", mock.Anything, chapter.ID).Return(chapter, nil).Once()
	f.storyRepo.On("GetByID", mock.Anything, story.ID).Return(story, nil).Once()

	rec := f.do(t, http.MethodPost, "/api/chapters/"+chapter.ID.String()+"/enhance", signToken(t, uuid.New()), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
