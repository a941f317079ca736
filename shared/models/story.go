package models

import (
	"time"

	"github.com/google/uuid"
)

// Story is the top-level container a user uploads prose into.
// Deleting a story removes its chapters, anchors, enhancements and
// characters; owned media is reclaimed by the enhancement cleanup trigger.
type Story struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"userId" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	// StylePrompt is appended to every image prompt generated for this story.
	StylePrompt string    `json:"stylePrompt,omitempty" db:"style_prompt"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// Chapter holds the full prose of one chapter. The content is supplied once
// at upload time and is immutable input to segmentation.
type Chapter struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StoryID   uuid.UUID `json:"storyId" db:"story_id"`
	Idx       int       `json:"idx" db:"idx"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
