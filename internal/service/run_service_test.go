package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"enchant-server/internal/mocks"
	"enchant-server/pkg/runtracker"
	"enchant-server/shared/models"
)

type stubSegmenter struct {
	scenes  []models.SelectedScene
	err     error
	release chan struct{}
}

func (s *stubSegmenter) Segment(ctx context.Context, chapterText string, wordsPerSceneHint int) ([]models.SelectedScene, error) {
	if s.release != nil {
		<-s.release
	}
	return s.scenes, s.err
}

// recordingRunRepo keeps every saved snapshot so tests can assert on the
// published progress sequence.
type recordingRunRepo struct {
	mu        sync.Mutex
	snapshots []models.EnhancementRun
}

func (r *recordingRunRepo) Save(ctx context.Context, run *models.EnhancementRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *run)
	return nil
}

func (r *recordingRunRepo) Get(ctx context.Context, runID uuid.UUID) (*models.EnhancementRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].ID == runID {
			snapshot := r.snapshots[i]
			return &snapshot, nil
		}
	}
	return nil, models.ErrRunNotFound
}

func (r *recordingRunRepo) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan *models.EnhancementRun, error) {
	ch := make(chan *models.EnhancementRun)
	close(ch)
	return ch, nil
}

func (r *recordingRunRepo) all() []models.EnhancementRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.EnhancementRun(nil), r.snapshots...)
}

type runServiceFixture struct {
	segmenter       *stubSegmenter
	storyRepo       *mocks.MockStoryRepository
	chapterRepo     *mocks.MockChapterRepository
	anchorRepo      *mocks.MockAnchorRepository
	enhancementRepo *mocks.MockEnhancementRepository
	mediaRepo       *mocks.MockMediaRepository
	publisher       *mocks.MockPublisher
	runRepo         *recordingRunRepo
	svc             *RunService

	userID  uuid.UUID
	story   *models.Story
	chapter *models.Chapter
}

func newRunServiceFixture(t *testing.T, scenes []models.SelectedScene) *runServiceFixture {
	t.Helper()
	f := &runServiceFixture{
		segmenter:       &stubSegmenter{scenes: scenes},
		storyRepo:       new(mocks.MockStoryRepository),
		chapterRepo:     new(mocks.MockChapterRepository),
		anchorRepo:      new(mocks.MockAnchorRepository),
		enhancementRepo: new(mocks.MockEnhancementRepository),
		mediaRepo:       new(mocks.MockMediaRepository),
		publisher:       new(mocks.MockPublisher),
		runRepo:         &recordingRunRepo{},
		userID:          uuid.New(),
	}
	f.story = &models.Story{ID: uuid.New(), UserID: f.userID, StylePrompt: "watercolor"}
	f.chapter = &models.Chapter{ID: uuid.New(), StoryID: f.story.ID, Content: "chapter text"}

	f.chapterRepo.On("GetByID", mock.Anything, f.chapter.ID).Return(f.chapter, nil)
	f.storyRepo.On("GetByID", mock.Anything, f.story.ID).Return(f.story, nil)

	logger := zap.NewNop()
	anchorService := NewAnchorService(f.anchorRepo, f.enhancementRepo, logger)
	enhancementService := NewEnhancementService(f.enhancementRepo, f.anchorRepo, f.mediaRepo, f.publisher, logger)

	f.svc = NewRunService(
		RunConfig{PollInterval: time.Millisecond, MaxPollAttempts: 3},
		f.segmenter,
		f.storyRepo,
		f.chapterRepo,
		anchorService,
		enhancementService,
		f.enhancementRepo,
		f.runRepo,
		runtracker.New(),
		logger,
	)
	return f
}

func (f *runServiceFixture) awaitTerminal(t *testing.T, runID uuid.UUID) *models.EnhancementRun {
	t.Helper()
	var final *models.EnhancementRun
	require.Eventually(t, func() bool {
		run, err := f.runRepo.Get(context.Background(), runID)
		if err != nil {
			return false
		}
		if run.Status == models.RunStatusCompleted || run.Status == models.RunStatusFailed {
			final = run
			return true
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return final
}

func twoScenes() []models.SelectedScene {
	return []models.SelectedScene{
		{Snippet: "first scene", StartPosition: 0, EndPosition: 11, AfterParagraphIndex: 0},
		{Snippet: "second scene", StartPosition: 20, EndPosition: 32, AfterParagraphIndex: 3},
	}
}

func TestRunService_SuccessfulRun(t *testing.T) {
	f := newRunServiceFixture(t, twoScenes())

	f.anchorRepo.On("FindByChapterAndPosition", mock.Anything, f.chapter.ID, mock.AnythingOfType("int")).
		Return(nil, models.ErrNotFound)
	f.anchorRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.anchorRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Anchor{ID: uuid.New(), ChapterID: f.chapter.ID}, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.enhancementRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Enhancement{Status: models.EnhancementStatusCompleted}, nil)

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)

	final := f.awaitTerminal(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 2, final.SceneCount)
	require.Len(t, final.Outcomes, 2)
	for _, outcome := range final.Outcomes {
		assert.Equal(t, models.EnhancementStatusCompleted, outcome.Status)
	}
}

func TestRunService_ProgressIsMonotonic(t *testing.T) {
	f := newRunServiceFixture(t, twoScenes())

	f.anchorRepo.On("FindByChapterAndPosition", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.ErrNotFound)
	f.anchorRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.anchorRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Anchor{ID: uuid.New(), ChapterID: f.chapter.ID}, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.enhancementRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Enhancement{Status: models.EnhancementStatusFailed}, nil)

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)
	f.awaitTerminal(t, run.ID)

	last := -1
	for _, snapshot := range f.runRepo.all() {
		if snapshot.ID != run.ID {
			continue
		}
		assert.GreaterOrEqual(t, snapshot.Progress, last, "progress must never regress")
		last = snapshot.Progress
	}
}

func TestRunService_AllScenesFailedFailsRun(t *testing.T) {
	f := newRunServiceFixture(t, twoScenes())

	f.anchorRepo.On("FindByChapterAndPosition", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.ErrNotFound)
	f.anchorRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.anchorRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Anchor{ID: uuid.New(), ChapterID: f.chapter.ID}, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	reason := "backend exploded"
	f.enhancementRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Enhancement{Status: models.EnhancementStatusFailed, ErrorDetails: &reason}, nil)

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)

	final := f.awaitTerminal(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, final.Status)
	assert.NotEmpty(t, final.ErrorDetails)
	require.Len(t, final.Outcomes, 2)
	assert.Equal(t, reason, final.Outcomes[0].ErrorDetails)
}

func TestRunService_PartialFailureStillCompletes(t *testing.T) {
	f := newRunServiceFixture(t, twoScenes())

	anchorA := &models.Anchor{ID: uuid.New(), ChapterID: f.chapter.ID, AfterParagraphIndex: 0}
	anchorB := &models.Anchor{ID: uuid.New(), ChapterID: f.chapter.ID, AfterParagraphIndex: 3}
	f.anchorRepo.On("FindByChapterAndPosition", mock.Anything, f.chapter.ID, 0).Return(anchorA, nil)
	f.anchorRepo.On("FindByChapterAndPosition", mock.Anything, f.chapter.ID, 3).Return(anchorB, nil)
	f.anchorRepo.On("GetByID", mock.Anything, anchorA.ID).Return(anchorA, nil)
	f.anchorRepo.On("GetByID", mock.Anything, anchorB.ID).Return(anchorB, nil)

	var createdIDs []uuid.UUID
	var mu sync.Mutex
	f.enhancementRepo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		mu.Lock()
		createdIDs = append(createdIDs, args.Get(1).(*models.Enhancement).ID)
		mu.Unlock()
	}).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// First created job completes, the second fails.
	f.enhancementRepo.On("GetByID", mock.Anything, mock.MatchedBy(func(id uuid.UUID) bool {
		mu.Lock()
		defer mu.Unlock()
		return len(createdIDs) > 0 && id == createdIDs[0]
	})).Return(&models.Enhancement{Status: models.EnhancementStatusCompleted}, nil)
	f.enhancementRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Enhancement{Status: models.EnhancementStatusFailed}, nil)

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)

	final := f.awaitTerminal(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, final.Status)

	statuses := map[models.EnhancementStatus]int{}
	for _, outcome := range final.Outcomes {
		statuses[outcome.Status]++
	}
	assert.Equal(t, 1, statuses[models.EnhancementStatusCompleted])
	assert.Equal(t, 1, statuses[models.EnhancementStatusFailed])
}

func TestRunService_ConcurrentSettlementKeepsSnapshotsConsistent(t *testing.T) {
	const total = 8
	scenes := make([]models.SelectedScene, total)
	for i := range scenes {
		scenes[i] = models.SelectedScene{Snippet: "scene", AfterParagraphIndex: i}
	}
	f := newRunServiceFixture(t, scenes)

	f.anchorRepo.On("FindByChapterAndPosition", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.ErrNotFound)
	f.anchorRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.anchorRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Anchor{ID: uuid.New(), ChapterID: f.chapter.ID}, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.enhancementRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Enhancement{Status: models.EnhancementStatusCompleted}, nil)

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)

	final := f.awaitTerminal(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, final.Status)

	// Each generation-phase snapshot's progress must cover the settled count
	// its own message reports, no matter how the scenes interleaved.
	for _, snapshot := range f.runRepo.all() {
		if snapshot.ID != run.ID {
			continue
		}
		var done, reported int
		if n, _ := fmt.Sscanf(snapshot.Message, "generated %d/%d scenes", &done, &reported); n != 2 {
			continue
		}
		assert.Equal(t, total, reported)
		assert.GreaterOrEqual(t, snapshot.Progress, 20+60*done/total,
			"progress must never lag the count its message was computed with")
	}
}

func TestRunService_ShortChapterCompletesWithoutJobs(t *testing.T) {
	f := newRunServiceFixture(t, nil)

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)

	final := f.awaitTerminal(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.Equal(t, 0, final.SceneCount)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunService_PollingCeilingReportsTimeout(t *testing.T) {
	f := newRunServiceFixture(t, twoScenes()[:1])

	f.anchorRepo.On("FindByChapterAndPosition", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, models.ErrNotFound)
	f.anchorRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.anchorRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Anchor{ID: uuid.New(), ChapterID: f.chapter.ID}, nil)
	f.enhancementRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// The job never leaves the generating state.
	f.enhancementRepo.On("GetByID", mock.Anything, mock.Anything).
		Return(&models.Enhancement{Status: models.EnhancementStatusGenerating}, nil)

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)

	final := f.awaitTerminal(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, final.Status)
	require.Len(t, final.Outcomes, 1)
	assert.True(t, final.Outcomes[0].TimedOut)
}

func TestRunService_ForbiddenForOtherUsersChapter(t *testing.T) {
	f := newRunServiceFixture(t, nil)

	_, err := f.svc.Start(context.Background(), f.chapter.ID, uuid.New())
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestRunService_RejectsConcurrentRunOnSameChapter(t *testing.T) {
	f := newRunServiceFixture(t, nil)
	f.segmenter.release = make(chan struct{})

	run, err := f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), f.chapter.ID, f.userID)
	assert.ErrorIs(t, err, models.ErrRunAlreadyInProgress)

	close(f.segmenter.release)
	f.awaitTerminal(t, run.ID)
}
