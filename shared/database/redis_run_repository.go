package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"enchant-server/shared/interfaces"
	"enchant-server/shared/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Compile-time check to ensure redisRunRepository implements RunRepository.
var _ interfaces.RunRepository = (*redisRunRepository)(nil)

// Run snapshots are transient orchestration state, not part of the entity
// graph, so they expire on their own.
const runSnapshotTTL = 24 * time.Hour

type redisRunRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisRunRepository creates a Redis-backed RunRepository.
func NewRedisRunRepository(client *redis.Client, logger *zap.Logger) interfaces.RunRepository {
	return &redisRunRepository{
		client: client,
		logger: logger.Named("RedisRunRepo"),
	}
}

func runKey(runID uuid.UUID) string {
	return fmt.Sprintf("enhancement_run:%s", runID)
}

func runChannel(runID uuid.UUID) string {
	return fmt.Sprintf("enhancement_run_updates:%s", runID)
}

// Save upserts the snapshot and publishes it for realtime subscribers.
// Publish failures are logged but do not fail the save: polling readers must
// stay correct even when the pub/sub side is degraded.
func (r *redisRunRepository) Save(ctx context.Context, run *models.EnhancementRun) error {
	run.UpdatedAt = time.Now()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run snapshot: %w", err)
	}

	if err := r.client.Set(ctx, runKey(run.ID), data, runSnapshotTTL).Err(); err != nil {
		r.logger.Error("Failed to save run snapshot", zap.Error(err), zap.String("runID", run.ID.String()))
		return fmt.Errorf("failed to save run snapshot: %w", err)
	}

	if err := r.client.Publish(ctx, runChannel(run.ID), data).Err(); err != nil {
		r.logger.Warn("Failed to publish run update", zap.Error(err), zap.String("runID", run.ID.String()))
	}
	return nil
}

// Get loads the snapshot for a run id.
func (r *redisRunRepository) Get(ctx context.Context, runID uuid.UUID) (*models.EnhancementRun, error) {
	data, err := r.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrRunNotFound
		}
		r.logger.Error("Failed to load run snapshot", zap.Error(err), zap.String("runID", runID.String()))
		return nil, fmt.Errorf("failed to load run snapshot: %w", err)
	}

	var run models.EnhancementRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run snapshot: %w", err)
	}
	return &run, nil
}

// Subscribe streams snapshot updates for one run. The channel closes when ctx
// is cancelled; dropping the subscription has no effect on the run itself.
func (r *redisRunRepository) Subscribe(ctx context.Context, runID uuid.UUID) (<-chan *models.EnhancementRun, error) {
	sub := r.client.Subscribe(ctx, runChannel(runID))

	// Force the subscription to be established before returning so callers
	// cannot miss updates published right after Subscribe.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to run updates: %w", err)
	}

	out := make(chan *models.EnhancementRun, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var run models.EnhancementRun
				if err := json.Unmarshal([]byte(msg.Payload), &run); err != nil {
					r.logger.Warn("Dropping malformed run update", zap.Error(err), zap.String("runID", runID.String()))
					continue
				}
				select {
				case out <- &run:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
