package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enchant-server/pkg/runtracker"
	"enchant-server/shared/interfaces"
	"enchant-server/shared/models"
)

// Progress blocks of one run: segmentation accounts for the first fifth,
// image generation for the middle three fifths, finalization for the rest.
// Aggregate progress is accumulated per settled scene, never recomputed from
// scratch, so it cannot regress when jobs settle out of order.
const (
	progressSegmented  = 20
	progressGeneration = 60
)

// SceneSegmenter selects illustratable scenes from chapter text.
type SceneSegmenter interface {
	Segment(ctx context.Context, chapterText string, wordsPerSceneHint int) ([]models.SelectedScene, error)
}

// RunConfig tunes the orchestrator's polling loop.
type RunConfig struct {
	// PollInterval is the sleep between status checks of one enhancement.
	PollInterval time.Duration
	// MaxPollAttempts bounds the polling loop; a job still generating after
	// this many checks is reported as timed out. The job itself may settle
	// later and its result is persisted regardless.
	MaxPollAttempts int
	// WordsPerSceneHint overrides the segmenter's scene density when > 0.
	WordsPerSceneHint int
}

// RunService orchestrates one chapter enhancement end to end: segmentation,
// anchoring, job dispatch and polling, and aggregate progress reporting.
type RunService struct {
	cfg                RunConfig
	segmenter          SceneSegmenter
	storyRepo          interfaces.StoryRepository
	chapterRepo        interfaces.ChapterRepository
	anchorService      *AnchorService
	enhancementService *EnhancementService
	enhancementRepo    interfaces.EnhancementRepository
	runRepo            interfaces.RunRepository
	tracker            *runtracker.Tracker
	logger             *zap.Logger

	mu         sync.Mutex
	activeRuns map[uuid.UUID]uuid.UUID // chapterID -> runID
}

func NewRunService(
	cfg RunConfig,
	segmenter SceneSegmenter,
	storyRepo interfaces.StoryRepository,
	chapterRepo interfaces.ChapterRepository,
	anchorService *AnchorService,
	enhancementService *EnhancementService,
	enhancementRepo interfaces.EnhancementRepository,
	runRepo interfaces.RunRepository,
	tracker *runtracker.Tracker,
	logger *zap.Logger,
) *RunService {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 90
	}
	return &RunService{
		cfg:                cfg,
		segmenter:          segmenter,
		storyRepo:          storyRepo,
		chapterRepo:        chapterRepo,
		anchorService:      anchorService,
		enhancementService: enhancementService,
		enhancementRepo:    enhancementRepo,
		runRepo:            runRepo,
		tracker:            tracker,
		logger:             logger.Named("RunService"),
		activeRuns:         make(map[uuid.UUID]uuid.UUID),
	}
}

// Start launches an enhancement run over the chapter and returns the pending
// run snapshot immediately. The run proceeds in the background; callers
// observe it via Get or Subscribe. Abandoning observation does not stop the
// run.
func (s *RunService) Start(ctx context.Context, chapterID uuid.UUID, userID uuid.UUID) (*models.EnhancementRun, error) {
	chapter, err := s.chapterRepo.GetByID(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter: %w", err)
	}
	story, err := s.storyRepo.GetByID(ctx, chapter.StoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load story: %w", err)
	}
	if story.UserID != userID {
		return nil, models.ErrForbidden
	}

	s.mu.Lock()
	if runID, busy := s.activeRuns[chapterID]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: run %s", models.ErrRunAlreadyInProgress, runID)
	}
	runID := s.tracker.Register()
	s.activeRuns[chapterID] = runID
	s.mu.Unlock()

	now := time.Now()
	run := &models.EnhancementRun{
		ID:        runID,
		ChapterID: chapterID,
		UserID:    userID,
		Status:    models.RunStatusPending,
		Message:   "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.saveRun(ctx, run)

	go s.execute(run, chapter, story)

	return run, nil
}

// Get returns the latest persisted snapshot of a run.
func (s *RunService) Get(ctx context.Context, runID uuid.UUID) (*models.EnhancementRun, error) {
	return s.runRepo.Get(ctx, runID)
}

// Subscribe streams run snapshots until ctx is cancelled.
func (s *RunService) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan *models.EnhancementRun, error) {
	return s.runRepo.Subscribe(ctx, runID)
}

// execute drives the run to a terminal state. It runs detached from the
// request context: clients stopping their polling must not cancel generation
// already dispatched.
func (s *RunService) execute(run *models.EnhancementRun, chapter *models.Chapter, story *models.Story) {
	ctx := context.Background()
	defer func() {
		s.mu.Lock()
		delete(s.activeRuns, run.ChapterID)
		s.mu.Unlock()
	}()

	s.transition(ctx, run, models.RunStatusRunning, 5, "segmenting chapter")

	scenes, err := s.segmenter.Segment(ctx, chapter.Content, s.cfg.WordsPerSceneHint)
	if err != nil {
		s.failRun(ctx, run, fmt.Sprintf("segmentation failed: %v", err))
		return
	}
	if len(scenes) == 0 {
		// Chapter below the content threshold. Not an error: nothing to
		// illustrate.
		run.SceneCount = 0
		s.completeRun(ctx, run, "chapter too short to illustrate")
		return
	}

	run.SceneCount = len(scenes)
	s.transition(ctx, run, models.RunStatusRunning, progressSegmented,
		fmt.Sprintf("%d scenes selected", len(scenes)))

	outcomes := s.dispatchAndAwait(ctx, run, scenes, story)
	run.Outcomes = outcomes

	succeeded := 0
	for _, o := range outcomes {
		if o.Status == models.EnhancementStatusCompleted {
			succeeded++
		}
	}
	if succeeded == 0 {
		s.failRun(ctx, run, "no scene could be illustrated")
		return
	}
	// Partial failure is still a completed run; failed scenes stay
	// individually retryable.
	s.completeRun(ctx, run, fmt.Sprintf("%d/%d scenes illustrated", succeeded, len(outcomes)))
}

// dispatchAndAwait creates an anchor and an enhancement job per scene, then
// polls all jobs to settlement. Each settled scene (completed, failed or
// timed out) adds its share of the generation progress block.
func (s *RunService) dispatchAndAwait(ctx context.Context, run *models.EnhancementRun, scenes []models.SelectedScene, story *models.Story) []models.SceneOutcome {
	outcomes := make([]models.SceneOutcome, len(scenes))
	total := len(scenes)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	sceneDone := func() {
		mu.Lock()
		settled++
		done := settled
		progress := progressSegmented + progressGeneration*done/total
		mu.Unlock()
		s.advance(ctx, run, progress, fmt.Sprintf("generated %d/%d scenes", done, total))
	}

	for i, scene := range scenes {
		anchor, err := s.anchorService.FindOrCreate(ctx, run.ChapterID, scene.AfterParagraphIndex)
		if err != nil {
			s.logger.Error("Failed to anchor scene",
				zap.String("runID", run.ID.String()),
				zap.Int("afterParagraphIndex", scene.AfterParagraphIndex),
				zap.Error(err))
			outcomes[i] = models.SceneOutcome{
				Status:       models.EnhancementStatusFailed,
				ErrorDetails: fmt.Sprintf("anchoring failed: %v", err),
			}
			sceneDone()
			continue
		}

		enhancement, err := s.enhancementService.Create(ctx, CreateEnhancementInput{
			AnchorID:    anchor.ID,
			UserID:      run.UserID,
			Prompt:      buildScenePrompt(scene),
			StyleSuffix: story.StylePrompt,
		})
		if err != nil {
			outcomes[i] = models.SceneOutcome{
				AnchorID:     anchor.ID,
				Status:       models.EnhancementStatusFailed,
				ErrorDetails: fmt.Sprintf("dispatch failed: %v", err),
			}
			sceneDone()
			continue
		}

		wg.Add(1)
		go func(idx int, anchorID, enhancementID uuid.UUID) {
			defer wg.Done()
			outcomes[idx] = s.awaitEnhancement(ctx, anchorID, enhancementID)
			sceneDone()
		}(i, anchor.ID, enhancement.ID)
	}

	wg.Wait()
	return outcomes
}

// awaitEnhancement polls one enhancement row until it leaves the generating
// state or the attempt ceiling is reached.
func (s *RunService) awaitEnhancement(ctx context.Context, anchorID, enhancementID uuid.UUID) models.SceneOutcome {
	outcome := models.SceneOutcome{AnchorID: anchorID, EnhancementID: enhancementID}

	for attempt := 0; attempt < s.cfg.MaxPollAttempts; attempt++ {
		enhancement, err := s.enhancementRepo.GetByID(ctx, enhancementID)
		if err != nil {
			outcome.Status = models.EnhancementStatusFailed
			outcome.ErrorDetails = fmt.Sprintf("status check failed: %v", err)
			return outcome
		}
		if enhancement.IsTerminal() {
			outcome.Status = enhancement.Status
			if enhancement.ErrorDetails != nil {
				outcome.ErrorDetails = *enhancement.ErrorDetails
			}
			return outcome
		}
		time.Sleep(s.cfg.PollInterval)
	}

	// Timed out waiting. The row is left in generating state; a late result
	// from the worker will still be applied when it arrives.
	outcome.Status = models.EnhancementStatusFailed
	outcome.TimedOut = true
	outcome.ErrorDetails = models.ErrGenerationTimeout.Error()
	return outcome
}

func buildScenePrompt(scene models.SelectedScene) string {
	prompt := scene.Snippet
	if len(prompt) > 600 {
		prompt = prompt[:600]
	}
	if scene.Rationale != "" {
		prompt = prompt + "\n\nFocus: " + scene.Rationale
	}
	return prompt
}

func (s *RunService) transition(ctx context.Context, run *models.EnhancementRun, status models.RunStatus, progress int, message string) {
	if err := s.tracker.SetStatus(run.ID, runtracker.Status(status), message); err != nil && !errors.Is(err, runtracker.ErrRunNotFound) {
		s.logger.Warn("Tracker transition failed", zap.Error(err))
	}
	s.advance(ctx, run, progress, message)
}

// advance raises aggregate progress. Stale lower values are dropped to keep
// the published sequence monotonic.
func (s *RunService) advance(ctx context.Context, run *models.EnhancementRun, progress int, message string) {
	_ = s.tracker.AdvanceProgress(run.ID, progress, message)

	s.mu.Lock()
	if progress > run.Progress {
		run.Progress = progress
	}
	run.Message = message
	snapshot := *run
	s.mu.Unlock()

	s.saveRun(ctx, &snapshot)
}

func (s *RunService) completeRun(ctx context.Context, run *models.EnhancementRun, message string) {
	_ = s.tracker.SetStatus(run.ID, runtracker.StatusCompleted, message)
	s.mu.Lock()
	run.Status = models.RunStatusCompleted
	run.Progress = 100
	run.Message = message
	snapshot := *run
	s.mu.Unlock()
	s.saveRun(ctx, &snapshot)
	s.logger.Info("Run completed", zap.String("runID", run.ID.String()), zap.String("message", message))
}

func (s *RunService) failRun(ctx context.Context, run *models.EnhancementRun, reason string) {
	_ = s.tracker.Fail(run.ID, reason)
	s.mu.Lock()
	run.Status = models.RunStatusFailed
	run.ErrorDetails = reason
	snapshot := *run
	s.mu.Unlock()
	s.saveRun(ctx, &snapshot)
	s.logger.Warn("Run failed", zap.String("runID", run.ID.String()), zap.String("reason", reason))
}

// saveRun persists and publishes the snapshot. Persistence failures are
// logged, not fatal: the in-process tracker still carries the state.
func (s *RunService) saveRun(ctx context.Context, run *models.EnhancementRun) {
	run.UpdatedAt = time.Now()
	if err := s.runRepo.Save(ctx, run); err != nil {
		s.logger.Error("Failed to save run snapshot",
			zap.String("runID", run.ID.String()), zap.Error(err))
	}
}
