package segmenter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"enchant-server/internal/mocks"
	"enchant-server/pkg/ai"
	"enchant-server/shared/models"
)

const testChapter = `The harbor town woke slowly under a bruised violet sky, gulls wheeling over the empty fish market.

Mara pulled her coat tighter and counted the boats. Three were missing.

"You knew they wouldn't wait," said the old man behind her, not unkindly.

The lighthouse on the far point flickered twice, went dark, and then burned with a steady green flame that no lamp oil could produce.

She ran. The cobblestones were slick with last night's rain and the whole street smelled of salt and ash.`

func TestSegment_ShortChapterSkipped(t *testing.T) {
	s := New(nil, zap.NewNop())

	scenes, err := s.Segment(context.Background(), "Too short.", 0)
	require.NoError(t, err)
	assert.Nil(t, scenes)
}

func TestSegment_HeuristicProducesOrderedScenes(t *testing.T) {
	s := New(nil, zap.NewNop())

	scenes, err := s.Segment(context.Background(), testChapter, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(scenes), 2)
	assert.LessOrEqual(t, len(scenes), 8)

	for i, scene := range scenes {
		assert.Equal(t, scene.Snippet, testChapter[scene.StartPosition:scene.EndPosition],
			"snippet must match its span")
		assert.GreaterOrEqual(t, scene.AfterParagraphIndex, 0)
		if i > 0 {
			assert.Greater(t, scene.StartPosition, scenes[i-1].StartPosition)
		}
	}
}

func TestSegment_HeuristicIdempotent(t *testing.T) {
	s := New(nil, zap.NewNop())

	first, err := s.Segment(context.Background(), testChapter, 0)
	require.NoError(t, err)
	second, err := s.Segment(context.Background(), testChapter, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSegment_AIVerbatimSnippetsAccepted(t *testing.T) {
	aiClient := new(mocks.MockAIClient)
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`[
			{"snippet": "The lighthouse on the far point flickered twice, went dark, and then burned with a steady green flame that no lamp oil could produce.", "rationale": "strong visual"},
			{"snippet": "Mara pulled her coat tighter and counted the boats.", "rationale": "character moment"}
		]`, ai.UsageInfo{}, nil)

	s := New(aiClient, zap.NewNop())
	scenes, err := s.Segment(context.Background(), testChapter, 0)
	require.NoError(t, err)
	require.Len(t, scenes, 2)

	// Sorted by position: the coat paragraph comes before the lighthouse one.
	assert.True(t, strings.HasPrefix(scenes[0].Snippet, "Mara pulled"))
	assert.Equal(t, 1, scenes[0].AfterParagraphIndex)
	assert.True(t, strings.HasPrefix(scenes[1].Snippet, "The lighthouse"))
	assert.Equal(t, 3, scenes[1].AfterParagraphIndex)
	aiClient.AssertExpectations(t)
}

func TestSegment_HallucinatedSnippetDropped(t *testing.T) {
	aiClient := new(mocks.MockAIClient)
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(`[
			{"snippet": "A dragon descended upon the harbor in a storm of wings.", "rationale": "invented"},
			{"snippet": "She ran. The cobblestones were slick with last night's rain and the whole street smelled of salt and ash.", "rationale": "real"}
		]`, ai.UsageInfo{}, nil)

	s := New(aiClient, zap.NewNop())
	scenes, err := s.Segment(context.Background(), testChapter, 0)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.True(t, strings.HasPrefix(scenes[0].Snippet, "She ran."))
}

func TestSegment_MalformedAIResponse(t *testing.T) {
	aiClient := new(mocks.MockAIClient)
	aiClient.On("GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("Sure! Here are some great scenes for you.", ai.UsageInfo{}, nil)

	s := New(aiClient, zap.NewNop())
	_, err := s.Segment(context.Background(), testChapter, 0)
	assert.ErrorIs(t, err, models.ErrMalformedAIResponse)
}

func TestTargetSceneCount_Bounds(t *testing.T) {
	short := strings.Repeat("word ", 100)
	long := strings.Repeat("word ", 20000)

	assert.Equal(t, 2, targetSceneCount(short, 0))
	assert.Equal(t, 8, targetSceneCount(long, 0))
	assert.Equal(t, 4, targetSceneCount(strings.Repeat("word ", 3000), 750))
}

func TestParagraphSpans(t *testing.T) {
	spans := paragraphSpans("first para\n\nsecond para\n\n\n\nthird")
	require.Len(t, spans, 3)
	assert.Equal(t, 0, spans[0].start)
	assert.Equal(t, len("first para"), spans[0].end)

	// Offsets map back into the paragraph that contains them.
	assert.Equal(t, 1, paragraphIndexAt(spans, spans[1].start+2))
	assert.Equal(t, 2, paragraphIndexAt(spans, spans[2].start))
}
