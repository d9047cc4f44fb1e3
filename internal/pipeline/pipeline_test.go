package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maiphh/ocr/internal/schema"
)

type fakeConverter struct {
	text  string
	err   error
	calls int
}

func (f *fakeConverter) Convert(_ context.Context, _, _ string, _ []string) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeCompleter replays canned responses in order, repeating the last one.
type fakeCompleter struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	i := f.calls - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(map[string]schema.FieldSpec{
		"Name":   {Type: schema.TypeString, Required: true},
		"Amount": {Type: schema.TypeNumber},
	}, []string{"Name", "Amount"})
	require.NoError(t, err)
	return s
}

func newTestPipeline(t *testing.T, conv Converter, comp Completer) *Pipeline {
	t.Helper()
	return New(nil, Config{MaxRetries: 2}, testSchema(t), conv, comp)
}

func TestProcessPageHappyPath(t *testing.T) {
	conv := &fakeConverter{text: "Name: ACME\nAmount: 1.234,56"}
	comp := &fakeCompleter{responses: []string{`{"Name": "ACME", "Amount": "1.234,56"}`}}
	p := newTestPipeline(t, conv, comp)

	result := p.ProcessPage(context.Background(), "/tmp/doc.pdf", "", nil)

	assert.Equal(t, 1.0, result.Confidence)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "ACME", result.Extracted["Name"])
	assert.Equal(t, 1234.56, result.Extracted["Amount"])
	assert.Equal(t, 1, comp.calls)
}

func TestProcessPageOCRErrorSkipsLLM(t *testing.T) {
	conv := &fakeConverter{err: errors.New("connection refused")}
	comp := &fakeCompleter{responses: []string{`{}`}}
	p := newTestPipeline(t, conv, comp)

	result := p.ProcessPage(context.Background(), "/tmp/doc.pdf", "", nil)

	assert.Equal(t, 0.0, result.Confidence)
	require.Len(t, result.Warnings, 1)
	assert.True(t, strings.HasPrefix(result.Warnings[0], "OCR_ERROR:"))
	assert.Equal(t, schema.NotAvailable, result.Extracted["Name"])
	assert.Zero(t, comp.calls, "OCR failure must not reach the LLM")
}

func TestProcessPageEmptyOCR(t *testing.T) {
	conv := &fakeConverter{text: "   \n\t "}
	comp := &fakeCompleter{responses: []string{`{}`}}
	p := newTestPipeline(t, conv, comp)

	result := p.ProcessPage(context.Background(), "/tmp/doc.pdf", "", nil)

	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, []string{"OCR_EMPTY_OR_FAILED"}, result.Warnings)
	assert.Zero(t, comp.calls)
}

func TestProcessPageRetriesThenSucceeds(t *testing.T) {
	conv := &fakeConverter{text: "Name: ACME"}
	comp := &fakeCompleter{responses: []string{
		"sorry, here you go:",
		"still not json",
		`{"Name": "ACME", "Amount": "10"}`,
	}}
	p := newTestPipeline(t, conv, comp)

	result := p.ProcessPage(context.Background(), "/tmp/doc.pdf", "", nil)

	assert.Equal(t, 3, comp.calls)
	assert.Equal(t, "ACME", result.Extracted["Name"])
	assert.Equal(t, 1.0, result.Confidence)

	require.Len(t, result.Warnings, 2)
	assert.True(t, strings.HasPrefix(result.Warnings[0], "LLM_RETRY_1:"))
	assert.True(t, strings.HasPrefix(result.Warnings[1], "LLM_RETRY_2:"))

	// Retried prompts carry the stricter instruction; the first does not.
	assert.NotContains(t, comp.prompts[0], "previous response was invalid")
	assert.Contains(t, comp.prompts[1], "previous response was invalid")
	assert.Contains(t, comp.prompts[2], "previous response was invalid")
}

func TestProcessPageExhaustsRetries(t *testing.T) {
	conv := &fakeConverter{text: "Name: ACME"}
	comp := &fakeCompleter{responses: []string{"never json"}}
	p := newTestPipeline(t, conv, comp)

	result := p.ProcessPage(context.Background(), "/tmp/doc.pdf", "", nil)

	assert.Equal(t, 3, comp.calls, "first attempt + MaxRetries retries")
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, schema.NotAvailable, result.Extracted["Name"])
	last := result.Warnings[len(result.Warnings)-1]
	assert.True(t, strings.HasPrefix(last, "LLM_PARSING_FAILED:"))
}

func TestProcessPageLLMErrorCountsAsAttempt(t *testing.T) {
	conv := &fakeConverter{text: "Name: ACME"}
	comp := &fakeCompleter{err: errors.New("rate limited")}
	p := newTestPipeline(t, conv, comp)

	result := p.ProcessPage(context.Background(), "/tmp/doc.pdf", "", nil)

	assert.Equal(t, 3, comp.calls)
	assert.Equal(t, 0.0, result.Confidence)
	assert.True(t, strings.HasPrefix(result.Warnings[0], "LLM_ERROR:"))
}

func TestProcessPageValidationReducesConfidence(t *testing.T) {
	conv := &fakeConverter{text: "some text"}
	comp := &fakeCompleter{responses: []string{`{"Amount": "not a number"}`}}
	p := newTestPipeline(t, conv, comp)

	result := p.ProcessPage(context.Background(), "/tmp/doc.pdf", "", nil)

	// Missing required Name -0.1, unparseable Amount -0.05.
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
	assert.Len(t, result.Warnings, 2)
}

func TestMetaDefaults(t *testing.T) {
	p := newTestPipeline(t, &fakeConverter{}, &fakeCompleter{responses: []string{"{}"}})

	meta := p.Meta(3, nil)
	assert.Equal(t, 3, meta.TotalFiles)
	assert.Equal(t, "auto-detect", meta.Language)
	assert.Equal(t, "v1", meta.SchemaVersion)
	assert.Equal(t, "few-shot", meta.ParsingStrategy)
	assert.NotNil(t, meta.SplitNotes)
	assert.Equal(t, "easyocr", meta.OCREngine)
	assert.Equal(t, []string{"en", "vi"}, meta.OCRLanguages)
}
