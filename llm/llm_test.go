package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFenced(t *testing.T) {
	raw, err := ExtractJSON("Here you go:\n```json\n{\"a\": 1}\n```\nDone.")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, string(raw))
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	raw, err := ExtractJSON(`The answer is {"channels": []} as requested.`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"channels": []}`, string(raw))
}

func TestExtractJSONNested(t *testing.T) {
	raw, err := ExtractJSON(`{"a": {"b": 2}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": {"b": 2}}`, string(raw))
}

func TestExtractJSONMalformed(t *testing.T) {
	for _, content := range []string{
		"no json here",
		"{broken",
		`{"unclosed": `,
		"",
	} {
		_, err := ExtractJSON(content)
		assert.ErrorIs(t, err, ErrMalformedOutput, "content: %q", content)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI("", "gpt-4", "", 0.3, 1000, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
