package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateTextUnderBudget(t *testing.T) {
	text := "short document"
	assert.Equal(t, text, truncateText(text, 1000))
}

func TestTruncateTextAppendsMarker(t *testing.T) {
	text := strings.Repeat("some ocr line with content\n", 100)
	out := truncateText(text, 200)
	assert.True(t, strings.HasSuffix(out, truncationMarker))
	assert.Less(t, len(out), len(text))
}

func TestTruncateTextPrefersAnchors(t *testing.T) {
	var b strings.Builder
	b.WriteString("# Heading\n")
	for i := 0; i < 50; i++ {
		b.WriteString("filler line filler line filler line\n")
	}
	b.WriteString("Page 2 of 3\n")

	out := truncateText(b.String(), 400)
	assert.Contains(t, out, "# Heading")
}

func TestIsAnchorLine(t *testing.T) {
	assert.True(t, isAnchorLine("# Invoice"))
	assert.True(t, isAnchorLine("Page 1 of 2"))
	assert.True(t, isAnchorLine("-- Page 3 --"))
	assert.False(t, isAnchorLine("total amount due"))
	assert.False(t, isAnchorLine(strings.Repeat("x", 30)+" Page"))
}

func TestBuildPromptStructure(t *testing.T) {
	prompt := buildPrompt("DOCUMENT TEXT HERE", `{"Name": {"type": "string"}}`, 1000)
	assert.Contains(t, prompt, "SCHEMA (JSON):")
	assert.Contains(t, prompt, `{"Name": {"type": "string"}}`)
	assert.Contains(t, prompt, "RULES:")
	assert.Contains(t, prompt, "DOCUMENT TEXT HERE")
	assert.Contains(t, prompt, "OUTPUT:")
}
