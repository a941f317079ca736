package models

import (
	"time"

	"github.com/google/uuid"
)

// CharacterStatus is the review state of a story character.
type CharacterStatus string

const (
	CharacterStatusCandidate CharacterStatus = "candidate"
	CharacterStatusConfirmed CharacterStatus = "confirmed"
	CharacterStatusIgnored   CharacterStatus = "ignored"
	CharacterStatusMerged    CharacterStatus = "merged"
)

// IsValidCharacterStatus reports whether s is one of the known statuses.
func IsValidCharacterStatus(s CharacterStatus) bool {
	switch s {
	case CharacterStatusCandidate, CharacterStatusConfirmed, CharacterStatusIgnored, CharacterStatusMerged:
		return true
	default:
		return false
	}
}

// Character is a named figure in a story. Auto-discovered candidates carry a
// confidence score; duplicates are deduplicated by pointing MergedIntoID at
// the canonical character (weak self-reference, no cascade).
type Character struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	StoryID      uuid.UUID       `json:"storyId" db:"story_id"`
	Name         string          `json:"name" db:"name"`
	Aliases      []string        `json:"aliases,omitempty" db:"aliases"`
	Status       CharacterStatus `json:"status" db:"status"`
	MergedIntoID *uuid.UUID      `json:"mergedIntoId,omitempty" db:"merged_into_id"`
	Confidence   float32         `json:"confidence" db:"confidence"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}
