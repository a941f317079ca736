package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the aggregate state of one enhancement run over a chapter.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SceneOutcome records how one scene's enhancement job ended within a run.
type SceneOutcome struct {
	AnchorID      uuid.UUID         `json:"anchorId"`
	EnhancementID uuid.UUID         `json:"enhancementId"`
	Status        EnhancementStatus `json:"status"`
	TimedOut      bool              `json:"timedOut,omitempty"`
	ErrorDetails  string            `json:"errorDetails,omitempty"`
}

// EnhancementRun is the snapshot callers poll (or receive over the realtime
// channel) while a chapter is being illustrated. Progress is in [0,100] and
// never decreases between observations.
type EnhancementRun struct {
	ID           uuid.UUID      `json:"id"`
	ChapterID    uuid.UUID      `json:"chapterId"`
	UserID       uuid.UUID      `json:"userId"`
	Status       RunStatus      `json:"status"`
	Progress     int            `json:"progress"`
	Message      string         `json:"message,omitempty"`
	SceneCount   int            `json:"sceneCount"`
	Outcomes     []SceneOutcome `json:"outcomes,omitempty"`
	ErrorDetails string         `json:"errorDetails,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
