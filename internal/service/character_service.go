package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enchant-server/pkg/ai"
	"enchant-server/shared/interfaces"
	"enchant-server/shared/models"
)

const characterDiscoverySystemPrompt = `You extract named characters from prose for an illustrated-fiction service.
Return ONLY a JSON array of objects with this exact shape:
[{"name": "<canonical name>", "aliases": ["<other names used in the text>"], "confidence": <0.0-1.0>}]
Rules:
- Only include characters actually named in the text.
- Confidence reflects how certain you are this is a distinct character and not a title, place or epithet.
- Do not invent characters.`

// minDiscoveryChars is the minimum chapter length worth sending to the text
// model; anything shorter cannot introduce a character.
const minDiscoveryChars = 50

// CharacterService manages a story's character roster: AI-assisted discovery
// of candidates, review transitions and deduplication by merge.
type CharacterService struct {
	characterRepo interfaces.CharacterRepository
	aiClient      ai.Client
	logger        *zap.Logger
}

func NewCharacterService(characterRepo interfaces.CharacterRepository, aiClient ai.Client, logger *zap.Logger) *CharacterService {
	return &CharacterService{
		characterRepo: characterRepo,
		aiClient:      aiClient,
		logger:        logger.Named("CharacterService"),
	}
}

type discoveredCharacter struct {
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases"`
	Confidence float32  `json:"confidence"`
}

// Discover asks the text model for characters appearing in chapterText and
// stores the new ones as candidates. Names already known for the story
// (by name or alias, case-insensitive) are skipped so repeated discovery
// over overlapping chapters does not duplicate the roster.
func (s *CharacterService) Discover(ctx context.Context, storyID uuid.UUID, chapterText string) ([]*models.Character, error) {
	if len(strings.TrimSpace(chapterText)) < minDiscoveryChars {
		return nil, fmt.Errorf("%w: need at least %d characters of text", models.ErrChapterTooShort, minDiscoveryChars)
	}
	if s.aiClient == nil {
		return nil, fmt.Errorf("%w: no text-generation backend configured", models.ErrGenerationFailed)
	}

	raw, _, err := s.aiClient.GenerateText(ctx, characterDiscoverySystemPrompt, chapterText, ai.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("character discovery call failed: %w", err)
	}

	var discovered []discoveredCharacter
	if err := ai.UnmarshalResponse(raw, &discovered); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedAIResponse, err)
	}

	existing, err := s.characterRepo.ListByStory(ctx, storyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list story characters: %w", err)
	}
	known := make(map[string]struct{})
	for _, c := range existing {
		known[strings.ToLower(c.Name)] = struct{}{}
		for _, alias := range c.Aliases {
			known[strings.ToLower(alias)] = struct{}{}
		}
	}

	var created []*models.Character
	for _, d := range discovered {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		if _, ok := known[strings.ToLower(name)]; ok {
			continue
		}
		character := &models.Character{
			ID:         uuid.New(),
			StoryID:    storyID,
			Name:       name,
			Aliases:    d.Aliases,
			Status:     models.CharacterStatusCandidate,
			Confidence: d.Confidence,
		}
		if err := s.characterRepo.Create(ctx, character); err != nil {
			return nil, fmt.Errorf("failed to create character %q: %w", name, err)
		}
		known[strings.ToLower(name)] = struct{}{}
		for _, alias := range d.Aliases {
			known[strings.ToLower(alias)] = struct{}{}
		}
		created = append(created, character)
	}

	s.logger.Info("Character discovery finished",
		zap.String("storyID", storyID.String()),
		zap.Int("discovered", len(discovered)),
		zap.Int("created", len(created)))
	return created, nil
}

// SetStatus applies a review decision to a character. Merging goes through
// Merge, not here.
func (s *CharacterService) SetStatus(ctx context.Context, id uuid.UUID, status models.CharacterStatus) error {
	if !models.IsValidCharacterStatus(status) || status == models.CharacterStatusMerged {
		return fmt.Errorf("%w: invalid character status %q", models.ErrInvalidInput, status)
	}
	return s.characterRepo.UpdateStatus(ctx, id, status)
}

// Merge deduplicates id into canonicalID. The merged character keeps its row
// (weak self-reference, no cascade) so old junction links stay resolvable.
func (s *CharacterService) Merge(ctx context.Context, id uuid.UUID, canonicalID uuid.UUID) error {
	if id == canonicalID {
		return models.ErrCharacterMergedTarget
	}
	canonical, err := s.characterRepo.GetByID(ctx, canonicalID)
	if err != nil {
		return fmt.Errorf("failed to load merge target: %w", err)
	}
	if canonical.Status == models.CharacterStatusMerged {
		// Chasing chains of merged characters is a data smell; require the
		// caller to merge into the canonical row directly.
		return models.ErrCharacterMergedTarget
	}
	return s.characterRepo.MergeInto(ctx, id, canonicalID)
}

// LinkToEnhancement records that a character appears in an enhancement's
// scene. Duplicate links are ignored at the storage layer.
func (s *CharacterService) LinkToEnhancement(ctx context.Context, enhancementID uuid.UUID, characterID uuid.UUID) error {
	return s.characterRepo.LinkEnhancement(ctx, enhancementID, characterID)
}

// ListByStory returns the full roster, merged rows included.
func (s *CharacterService) ListByStory(ctx context.Context, storyID uuid.UUID) ([]*models.Character, error) {
	return s.characterRepo.ListByStory(ctx, storyID)
}

// ListByEnhancement returns the characters linked to one enhancement.
func (s *CharacterService) ListByEnhancement(ctx context.Context, enhancementID uuid.UUID) ([]*models.Character, error) {
	return s.characterRepo.ListByEnhancement(ctx, enhancementID)
}
