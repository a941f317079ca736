package runtracker

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is the lifecycle state of a tracked run.
type Status string

// Possible run statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrRunNotFound is returned when the run id is unknown to this tracker.
var ErrRunNotFound = errors.New("run not found")

// Run is the in-process handle for one asynchronous run. Progress is clamped
// to [0,100] and never moves backwards, regardless of the order observers
// read it in.
type Run struct {
	ID        uuid.UUID
	Status    Status
	Progress  int
	Message   string
	Err       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Callback is invoked after every run transition with a copy of the run.
type Callback func(run Run)

// Tracker is an in-memory registry of asynchronous runs.
type Tracker struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]*Run
	callbacks map[uuid.UUID][]Callback
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		runs:      make(map[uuid.UUID]*Run),
		callbacks: make(map[uuid.UUID][]Callback),
	}
}

// Register adds a new pending run and returns its id.
func (t *Tracker) Register() uuid.UUID {
	id := uuid.New()
	now := time.Now()

	t.mu.Lock()
	t.runs[id] = &Run{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.mu.Unlock()

	log.Debug().Str("runID", id.String()).Msg("Run registered")
	return id
}

// Get returns a copy of the run state.
func (t *Tracker) Get(id uuid.UUID) (Run, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return *run, nil
}

// SetStatus transitions the run and notifies callbacks.
func (t *Tracker) SetStatus(id uuid.UUID, status Status, message string) error {
	return t.update(id, func(run *Run) {
		run.Status = status
		run.Message = message
		if status == StatusCompleted {
			run.Progress = 100
		}
	})
}

// Fail marks the run failed with an error description.
func (t *Tracker) Fail(id uuid.UUID, errMsg string) error {
	return t.update(id, func(run *Run) {
		run.Status = StatusFailed
		run.Err = errMsg
	})
}

// AdvanceProgress raises the run's progress to the given value. Lower values
// are ignored so concurrent reporters can never move progress backwards.
func (t *Tracker) AdvanceProgress(id uuid.UUID, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return t.update(id, func(run *Run) {
		if progress > run.Progress {
			run.Progress = progress
		}
		if message != "" {
			run.Message = message
		}
	})
}

// RegisterCallback subscribes to run transitions. Unknown ids are an error
// so callers notice dangling subscriptions.
func (t *Tracker) RegisterCallback(id uuid.UUID, cb Callback) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.runs[id]; !ok {
		return ErrRunNotFound
	}
	t.callbacks[id] = append(t.callbacks[id], cb)
	return nil
}

// UnregisterCallbacks drops all subscriptions for a run.
func (t *Tracker) UnregisterCallbacks(id uuid.UUID) {
	t.mu.Lock()
	delete(t.callbacks, id)
	t.mu.Unlock()
}

// Cleanup removes terminal runs older than age.
func (t *Tracker) Cleanup(age time.Duration) {
	cutoff := time.Now().Add(-age)
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, run := range t.runs {
		if (run.Status == StatusCompleted || run.Status == StatusFailed) && run.UpdatedAt.Before(cutoff) {
			delete(t.runs, id)
			delete(t.callbacks, id)
		}
	}
}

func (t *Tracker) update(id uuid.UUID, fn func(run *Run)) error {
	t.mu.Lock()
	run, ok := t.runs[id]
	if !ok {
		t.mu.Unlock()
		return ErrRunNotFound
	}
	fn(run)
	run.UpdatedAt = time.Now()
	snapshot := *run
	callbacks := append([]Callback(nil), t.callbacks[id]...)
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb(snapshot)
	}
	return nil
}
