package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnhancementStatus is the lifecycle state of a single enhancement row.
// "generating" is the only non-terminal state; a retry never transitions a
// terminal row, it creates a new one.
type EnhancementStatus string

const (
	EnhancementStatusGenerating EnhancementStatus = "generating"
	EnhancementStatusCompleted  EnhancementStatus = "completed"
	EnhancementStatusFailed     EnhancementStatus = "failed"
)

// EnhancementTypeAIImage is currently the only enhancement type.
const EnhancementTypeAIImage = "ai_image"

// Anchor marks the position in a chapter after which an enhancement is
// rendered. ActiveEnhancementID is a weak reference to the currently
// displayed version; it never implies ownership of that row.
type Anchor struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	ChapterID           uuid.UUID  `json:"chapterId" db:"chapter_id"`
	AfterParagraphIndex int        `json:"afterParagraphIndex" db:"after_paragraph_index"`
	ActiveEnhancementID *uuid.UUID `json:"activeEnhancementId,omitempty" db:"active_enhancement_id"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
}

// Enhancement is one generated-image attempt tied to an anchor. Rows sharing
// an anchor form an append-only version history ordered by creation time.
// ChapterID duplicates the anchor's chapter for query convenience and must
// always equal it.
type Enhancement struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	AnchorID     uuid.UUID         `json:"anchorId" db:"anchor_id"`
	ChapterID    uuid.UUID         `json:"chapterId" db:"chapter_id"`
	Type         string            `json:"type" db:"enhancement_type"`
	Status       EnhancementStatus `json:"status" db:"status"`
	MediaID      *uuid.UUID        `json:"mediaId,omitempty" db:"media_id"`
	Prompt       string            `json:"prompt" db:"prompt"`
	Seed         *int64            `json:"seed,omitempty" db:"generation_seed"`
	Config       json.RawMessage   `json:"config,omitempty" db:"config"`
	ErrorDetails *string           `json:"errorDetails,omitempty" db:"error_details"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
}

// IsTerminal reports whether the enhancement can no longer change state.
func (e *Enhancement) IsTerminal() bool {
	return e.Status == EnhancementStatusCompleted || e.Status == EnhancementStatusFailed
}

// MediaOwnerTypeEnhancement tags media rows whose lifecycle is bound to an
// enhancement via the cleanup trigger.
const MediaOwnerTypeEnhancement = "enhancement"

// Media describes a stored image file. OwnerType/OwnerID form a weak
// back-reference consulted only by the cleanup trigger; media with no owner
// tag is never auto-deleted.
type Media struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"userId" db:"user_id"`
	StoragePath string     `json:"storagePath" db:"storage_path"`
	URL         string     `json:"url" db:"url"`
	Width       int        `json:"width" db:"width"`
	Height      int        `json:"height" db:"height"`
	SizeBytes   int64      `json:"sizeBytes" db:"size_bytes"`
	MimeType    string     `json:"mimeType" db:"mime_type"`
	OwnerType   *string    `json:"ownerType,omitempty" db:"owner_type"`
	OwnerID     *uuid.UUID `json:"ownerId,omitempty" db:"owner_id"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}

// AnchorWithEnhancement pairs an anchor with its active enhancement (if any)
// for reading views that interleave text and images.
type AnchorWithEnhancement struct {
	Anchor Anchor       `json:"anchor"`
	Active *Enhancement `json:"active,omitempty"`
}
