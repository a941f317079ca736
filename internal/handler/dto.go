package handler

import (
	"encoding/json"

	"github.com/google/uuid"
)

// APIError is the standard error response body.
type APIError struct {
	Message string `json:"message"`
}

type createStoryRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	StylePrompt string `json:"stylePrompt"`
}

type uploadChapterRequest struct {
	Idx     int    `json:"idx"`
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

type createEnhancementRequest struct {
	Prompt      string          `json:"prompt" binding:"required"`
	StyleSuffix string          `json:"styleSuffix"`
	Seed        *int64          `json:"seed"`
	Config      json.RawMessage `json:"config"`
}

type retryEnhancementRequest struct {
	StyleSuffix string `json:"styleSuffix"`
}

type updateCharacterStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type mergeCharacterRequest struct {
	CanonicalID uuid.UUID `json:"canonicalId" binding:"required"`
}

type startRunResponse struct {
	RunID uuid.UUID `json:"runId"`
}
