package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseDirect(t *testing.T) {
	parsed := parseResponse(`{"Name": "A", "Total": 5}`)
	require.NotNil(t, parsed)
	assert.Equal(t, "A", parsed["Name"])
}

func TestParseResponseStripsFences(t *testing.T) {
	for _, response := range []string{
		"```json\n{\"Name\": \"A\"}\n```",
		"```\n{\"Name\": \"A\"}\n```",
	} {
		parsed := parseResponse(response)
		require.NotNil(t, parsed, "response=%q", response)
		assert.Equal(t, "A", parsed["Name"])
	}
}

func TestParseResponseEmbeddedObject(t *testing.T) {
	parsed := parseResponse(`Here is the result: {"Name": "A"} hope it helps`)
	require.NotNil(t, parsed)
	assert.Equal(t, "A", parsed["Name"])
}

func TestParseResponseGarbage(t *testing.T) {
	for _, response := range []string{
		"",
		"no json here",
		"{broken",
		"[1, 2, 3]",
	} {
		assert.Nil(t, parseResponse(response), "response=%q", response)
	}
}
