package interfaces

import (
	"context"

	"enchant-server/shared/models"

	"github.com/google/uuid"
)

// RunRepository stores enhancement-run snapshots so pollers can observe
// progress from any process, and broadcasts each transition for realtime
// subscribers.
//
//go:generate mockery --name RunRepository --output ./mocks --outpkg mocks --case=underscore
type RunRepository interface {
	// Save upserts the run snapshot and publishes it on the run's channel.
	Save(ctx context.Context, run *models.EnhancementRun) error
	// Get returns models.ErrRunNotFound for unknown run ids.
	Get(ctx context.Context, runID uuid.UUID) (*models.EnhancementRun, error)
	// Subscribe delivers snapshot updates for one run until ctx is cancelled.
	// Abandoning the subscription is advisory: the run itself keeps going.
	Subscribe(ctx context.Context, runID uuid.UUID) (<-chan *models.EnhancementRun, error)
}
