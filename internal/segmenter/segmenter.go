package segmenter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"enchant-server/pkg/ai"
	"enchant-server/shared/models"
)

const (
	// Chapters shorter than this produce no scenes at all.
	minChapterChars = 50

	// Target one scene per this many words when no hint is given.
	defaultWordsPerScene = 750

	minScenesPerChapter = 2
	maxScenesPerChapter = 8
)

const segmentationSystemPrompt = `You are a scene selector for an illustrated-fiction service.
Given a chapter of prose, select the most visually descriptive passages to illustrate.
Return ONLY a JSON array of objects with this exact shape:
[{"snippet": "<verbatim excerpt copied character-for-character from the chapter>", "rationale": "<one sentence on why this passage is worth illustrating>"}]
Rules:
- Each snippet MUST be copied verbatim from the chapter text. Do not paraphrase, trim punctuation, or fix typos.
- Prefer passages with concrete imagery: settings, characters in action, light, weather.
- Do not select overlapping passages.`

// Segmenter splits chapter text into candidate scenes for illustration.
// With an AI client configured it asks the model to pick passages and then
// verifies every returned snippet against the source text; without one it
// falls back to a paragraph-length heuristic.
type Segmenter struct {
	aiClient ai.Client
	logger   *zap.Logger
}

func New(aiClient ai.Client, logger *zap.Logger) *Segmenter {
	return &Segmenter{
		aiClient: aiClient,
		logger:   logger.Named("Segmenter"),
	}
}

// Segment returns the selected scenes for chapterText, ordered by start
// position. wordsPerSceneHint overrides the default scene density when
// positive. Chapters under the minimum content threshold yield (nil, nil):
// too short to illustrate, but not an error.
func (s *Segmenter) Segment(ctx context.Context, chapterText string, wordsPerSceneHint int) ([]models.SelectedScene, error) {
	trimmed := strings.TrimSpace(chapterText)
	if len(trimmed) < minChapterChars {
		s.logger.Debug("Chapter below minimum content threshold, skipping segmentation",
			zap.Int("chars", len(trimmed)))
		return nil, nil
	}

	target := targetSceneCount(chapterText, wordsPerSceneHint)

	var (
		scenes []models.SelectedScene
		err    error
	)
	if s.aiClient != nil {
		scenes, err = s.segmentWithAI(ctx, chapterText, target)
		if err != nil {
			return nil, err
		}
	} else {
		scenes = s.segmentHeuristic(chapterText, target)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].StartPosition < scenes[j].StartPosition
	})
	return scenes, nil
}

func targetSceneCount(chapterText string, wordsPerSceneHint int) int {
	perScene := defaultWordsPerScene
	if wordsPerSceneHint > 0 {
		perScene = wordsPerSceneHint
	}
	words := len(strings.Fields(chapterText))
	count := words / perScene
	if count < minScenesPerChapter {
		count = minScenesPerChapter
	}
	if count > maxScenesPerChapter {
		count = maxScenesPerChapter
	}
	return count
}

type aiSceneResponse struct {
	Snippet   string `json:"snippet"`
	Rationale string `json:"rationale"`
}

func (s *Segmenter) segmentWithAI(ctx context.Context, chapterText string, target int) ([]models.SelectedScene, error) {
	userInput := fmt.Sprintf("Select up to %d scenes from the following chapter.\n\n---\n%s", target, chapterText)

	raw, usage, err := s.aiClient.GenerateText(ctx, segmentationSystemPrompt, userInput, ai.GenerationParams{})
	if err != nil {
		return nil, fmt.Errorf("segmentation AI call failed: %w", err)
	}
	s.logger.Debug("Segmentation response received",
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens))

	var candidates []aiSceneResponse
	if err := ai.UnmarshalResponse(raw, &candidates); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedAIResponse, err)
	}

	paragraphs := paragraphSpans(chapterText)
	scenes := make([]models.SelectedScene, 0, len(candidates))
	for _, c := range candidates {
		snippet := strings.TrimSpace(c.Snippet)
		if snippet == "" {
			continue
		}
		start := strings.Index(chapterText, snippet)
		if start < 0 {
			// Hallucinated or paraphrased span. Drop it rather than guess
			// at a position.
			s.logger.Warn("Dropping scene snippet not found verbatim in chapter text",
				zap.String("snippetPrefix", truncate(snippet, 60)))
			continue
		}
		scenes = append(scenes, models.SelectedScene{
			Snippet:             snippet,
			StartPosition:       start,
			EndPosition:         start + len(snippet),
			AfterParagraphIndex: paragraphIndexAt(paragraphs, start),
			Rationale:           c.Rationale,
		})
		if len(scenes) >= target {
			break
		}
	}
	return scenes, nil
}

// segmentHeuristic picks the longest paragraph out of each of target evenly
// sized paragraph groups, on the assumption that longer prose blocks carry
// more visual detail than dialogue lines.
func (s *Segmenter) segmentHeuristic(chapterText string, target int) []models.SelectedScene {
	paragraphs := paragraphSpans(chapterText)
	if len(paragraphs) == 0 {
		return nil
	}
	if target > len(paragraphs) {
		target = len(paragraphs)
	}

	scenes := make([]models.SelectedScene, 0, target)
	for g := 0; g < target; g++ {
		lo := g * len(paragraphs) / target
		hi := (g + 1) * len(paragraphs) / target

		best := lo
		for i := lo + 1; i < hi; i++ {
			if paragraphs[i].end-paragraphs[i].start > paragraphs[best].end-paragraphs[best].start {
				best = i
			}
		}
		span := paragraphs[best]
		scenes = append(scenes, models.SelectedScene{
			Snippet:             chapterText[span.start:span.end],
			StartPosition:       span.start,
			EndPosition:         span.end,
			AfterParagraphIndex: best,
			Rationale:           "",
		})
	}
	return scenes
}

type span struct {
	start int
	end   int
}

// paragraphSpans returns the [start,end) byte ranges of non-empty paragraphs,
// where paragraphs are separated by blank lines.
func paragraphSpans(text string) []span {
	var spans []span
	offset := 0
	for _, block := range strings.Split(text, "\n\n") {
		trimmedLeft := strings.TrimLeft(block, " \t\n\r")
		start := offset + (len(block) - len(trimmedLeft))
		trimmed := strings.TrimRight(trimmedLeft, " \t\n\r")
		if trimmed != "" {
			spans = append(spans, span{start: start, end: start + len(trimmed)})
		}
		offset += len(block) + len("\n\n")
	}
	return spans
}

// paragraphIndexAt maps a byte offset to the index of the paragraph that
// contains it, or the nearest preceding paragraph for offsets inside
// separators.
func paragraphIndexAt(paragraphs []span, offset int) int {
	idx := 0
	for i, p := range paragraphs {
		if offset >= p.start {
			idx = i
		} else {
			break
		}
	}
	return idx
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
