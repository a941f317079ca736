package imagegen

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"enchant-server/internal/mocks"
	sharedMessaging "enchant-server/shared/messaging"
)

type stubGenerationService struct {
	stored StoredImage
	err    error
}

func (s *stubGenerationService) GenerateAndStore(ctx context.Context, task sharedMessaging.EnhancementImageTaskPayload) (StoredImage, error) {
	return s.stored, s.err
}

func taskDelivery(t *testing.T, task sharedMessaging.EnhancementImageTaskPayload) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return amqp.Delivery{Body: body}
}

func TestHandler_SuccessPublishesResult(t *testing.T) {
	publisher := new(mocks.MockPublisher)
	task := sharedMessaging.EnhancementImageTaskPayload{
		TaskID:        uuid.NewString(),
		EnhancementID: uuid.New(),
		AnchorID:      uuid.New(),
		UserID:        uuid.New(),
		Prompt:        "a lighthouse burning green",
	}
	stored := StoredImage{
		URL:       "https://img.example/a.jpg",
		Width:     1024,
		Height:    768,
		SizeBytes: 2048,
		MimeType:  "image/jpeg",
	}

	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p interface{}) bool {
		result, ok := p.(sharedMessaging.EnhancementImageResultPayload)
		return ok &&
			result.Status == sharedMessaging.ResultStatusSuccess &&
			result.EnhancementID == task.EnhancementID &&
			result.ImageURL == stored.URL &&
			result.Width == 1024
	}), task.TaskID).Return(nil)

	h := NewHandler(zap.NewNop(), &stubGenerationService{stored: stored}, publisher, "")
	ack := h.HandleDelivery(context.Background(), taskDelivery(t, task))

	assert.True(t, ack)
	publisher.AssertExpectations(t)
}

func TestHandler_GenerationFailurePublishesError(t *testing.T) {
	publisher := new(mocks.MockPublisher)
	task := sharedMessaging.EnhancementImageTaskPayload{
		TaskID:        uuid.NewString(),
		EnhancementID: uuid.New(),
	}

	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(p interface{}) bool {
		result, ok := p.(sharedMessaging.EnhancementImageResultPayload)
		return ok &&
			result.Status == sharedMessaging.ResultStatusError &&
			result.ErrorDetails != ""
	}), task.TaskID).Return(nil)

	h := NewHandler(zap.NewNop(), &stubGenerationService{err: ErrImageGenerationFailed}, publisher, "")
	ack := h.HandleDelivery(context.Background(), taskDelivery(t, task))

	// The failure travels via the result queue; the task itself is done.
	assert.True(t, ack)
	publisher.AssertExpectations(t)
}

func TestHandler_PublishFailureRequeues(t *testing.T) {
	publisher := new(mocks.MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	task := sharedMessaging.EnhancementImageTaskPayload{TaskID: uuid.NewString(), EnhancementID: uuid.New()}
	h := NewHandler(zap.NewNop(), &stubGenerationService{}, publisher, "")
	ack := h.HandleDelivery(context.Background(), taskDelivery(t, task))

	assert.False(t, ack)
}

func TestHandler_MalformedTaskDropped(t *testing.T) {
	publisher := new(mocks.MockPublisher)
	h := NewHandler(zap.NewNop(), &stubGenerationService{}, publisher, "")

	ack := h.HandleDelivery(context.Background(), amqp.Delivery{Body: []byte("garbage")})

	assert.True(t, ack)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
