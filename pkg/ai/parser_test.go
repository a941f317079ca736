package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	out, err := ExtractJSON(`{"a": 1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, out)
}

func TestExtractJSON_FencedBlock(t *testing.T) {
	raw := "Here you go:\n```json\n[{\"snippet\": \"text\"}]\n```\nHope that helps!"
	out, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"snippet": "text"}]`, out)
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	raw := `Sure! The scenes are [{"snippet": "a}b"}, {"snippet": "c"}] as requested.`
	out, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"snippet": "a}b"}, {"snippet": "c"}]`, out)
}

func TestExtractJSON_EscapedQuotes(t *testing.T) {
	raw := `prefix {"text": "she said \"run\" and {fled}"} suffix`
	out, err := ExtractJSON(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text": "she said \"run\" and {fled}"}`, out)
}

func TestExtractJSON_NoPayload(t *testing.T) {
	_, err := ExtractJSON("no structured content here")
	assert.ErrorIs(t, err, ErrNoJSONPayload)
}

func TestUnmarshalResponse(t *testing.T) {
	var scenes []struct {
		Snippet string `json:"snippet"`
	}
	err := UnmarshalResponse("```json\n[{\"snippet\": \"x\"}]\n```", &scenes)
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "x", scenes[0].Snippet)
}

func TestUnmarshalResponse_Malformed(t *testing.T) {
	var v map[string]any
	assert.Error(t, UnmarshalResponse(`{"unterminated": `, &v))
}
