package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONSpanPrefersFencedBlock(t *testing.T) {
	text := "Here you go {not this}\n```json\n{\"a\": 1}\n```\ntrailing {\"b\": 2}"

	got, err := ExtractJSONSpan(text)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)
}

func TestExtractJSONSpanUnlabelledFence(t *testing.T) {
	got, err := ExtractJSONSpan("```\n{\"a\": {\"b\": 2}}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 2}}`, got)
}

func TestExtractJSONSpanFallsBackToBraces(t *testing.T) {
	text := `Sure! {"name": "Calgary", "nested": {"x": "}"}} and then more text {"other": true}`

	got, err := ExtractJSONSpan(text)
	require.NoError(t, err)
	assert.Equal(t, `{"name": "Calgary", "nested": {"x": "}"}}`, got)
}

func TestExtractJSONSpanEscapedQuotes(t *testing.T) {
	text := `{"quote": "she said \"{hi}\""} tail`

	got, err := ExtractJSONSpan(text)
	require.NoError(t, err)
	assert.Equal(t, `{"quote": "she said \"{hi}\""}`, got)
}

func TestExtractJSONSpanUnterminatedUsesLastBrace(t *testing.T) {
	text := `{"a": {"b": 1}`

	got, err := ExtractJSONSpan(text)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}`, got)
}

func TestExtractJSONSpanNoObject(t *testing.T) {
	_, err := ExtractJSONSpan("I could not read the document.")
	assert.ErrorIs(t, err, errNoJSONObject)
}
