package pipeline

import "context"

// Converter is the external OCR collaborator: file -> text. Treated as
// fallible and possibly slow; never retried by the pipeline.
type Converter interface {
	Convert(ctx context.Context, path string, engine string, langs []string) (string, error)
}

// Completer is the external LLM chat collaborator: prompt -> response text.
// Fallible; the pipeline retries malformed output up to MaxRetries times.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
