package messaging

import "github.com/google/uuid"

// Queue names shared between the API service and the image worker.
const (
	QueueEnhancementImageTasks   = "enhancement_image_tasks"
	QueueEnhancementImageResults = "enhancement_image_results"
)

// EnhancementImageTaskPayload is the message dispatched per enhancement row
// to the image worker. Every field the worker needs travels in the message so
// the worker never reads the database.
type EnhancementImageTaskPayload struct {
	TaskID        string    `json:"taskId"`
	EnhancementID uuid.UUID `json:"enhancementId"`
	AnchorID      uuid.UUID `json:"anchorId"`
	ChapterID     uuid.UUID `json:"chapterId"`
	UserID        uuid.UUID `json:"userId"`
	Prompt        string    `json:"prompt"`
	StyleSuffix   string    `json:"styleSuffix,omitempty"`
	Seed          *int64    `json:"seed,omitempty"`
	Ratio         string    `json:"ratio,omitempty"`
}

// ResultStatus reports how an image task finished.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

// EnhancementImageResultPayload is published by the image worker once a task
// settles. The API-side consumer maps it onto the enhancement row; a result
// arriving after the orchestrator's polling ceiling is still applied.
type EnhancementImageResultPayload struct {
	TaskID        string       `json:"taskId"`
	EnhancementID uuid.UUID    `json:"enhancementId"`
	AnchorID      uuid.UUID    `json:"anchorId"`
	UserID        uuid.UUID    `json:"userId"`
	Status        ResultStatus `json:"status"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	StoragePath   string       `json:"storagePath,omitempty"`
	Width         int          `json:"width,omitempty"`
	Height        int          `json:"height,omitempty"`
	SizeBytes     int64        `json:"sizeBytes,omitempty"`
	MimeType      string       `json:"mimeType,omitempty"`
	ErrorDetails  string       `json:"errorDetails,omitempty"`
}
