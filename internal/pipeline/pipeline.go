// Package pipeline drives the OCR -> prompt -> LLM -> validation flow for one
// document at a time. External failures never propagate: every failure mode
// degrades into a synthetic result with confidence 0 and a warning code.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maiphh/ocr/internal/results"
	"github.com/maiphh/ocr/internal/schema"
)

// Config holds behavior knobs for a pipeline instance.
type Config struct {
	OCREngine      string   // default "easyocr"
	OCRLangs       []string // default ["en", "vi"]
	LanguagePref   string   // "" = auto-detect
	SchemaVersion  string   // default "v1"
	MaxRetries     int      // LLM retry attempts after the first failure, default 2
	MaxPromptChars int      // OCR text budget in the prompt, default 50000
}

// Pipeline processes documents against a schema. The schema is swappable
// between runs (SetSchema) but fixed for the duration of one ProcessPage call;
// split jobs snapshot their own Pipeline at creation time.
type Pipeline struct {
	logger    *slog.Logger
	cfg       Config
	schema    *schema.Schema
	converter Converter
	completer Completer
}

func New(logger *slog.Logger, cfg Config, s *schema.Schema, converter Converter, completer Completer) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OCREngine == "" {
		cfg.OCREngine = "easyocr"
	}
	if len(cfg.OCRLangs) == 0 {
		cfg.OCRLangs = []string{"en", "vi"}
	}
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "v1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 50000
	}
	return &Pipeline{
		logger:    logger,
		cfg:       cfg,
		schema:    s,
		converter: converter,
		completer: completer,
	}
}

// SetSchema swaps the active schema. Never call while a run is in flight; the
// engine serializes schema edits against processing.
func (p *Pipeline) SetSchema(s *schema.Schema) { p.schema = s }

// SetOCREngine updates the OCR engine used by subsequent runs.
func (p *Pipeline) SetOCREngine(engine string) {
	if engine != "" {
		p.cfg.OCREngine = engine
	}
}

// SetOCRLangs updates the OCR languages used by subsequent runs.
func (p *Pipeline) SetOCRLangs(langs []string) {
	if len(langs) > 0 {
		p.cfg.OCRLangs = langs
	}
}

// Schema returns the active schema.
func (p *Pipeline) Schema() *schema.Schema { return p.schema }

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Meta describes this pipeline for result payload meta blocks.
func (p *Pipeline) Meta(totalFiles int, splitNotes []string) results.Meta {
	language := p.cfg.LanguagePref
	if language == "" {
		language = "auto-detect"
	}
	if splitNotes == nil {
		splitNotes = []string{}
	}
	return results.Meta{
		TotalFiles:      totalFiles,
		Language:        language,
		SchemaVersion:   p.cfg.SchemaVersion,
		ParsingStrategy: "few-shot",
		SplitNotes:      splitNotes,
		OCREngine:       p.cfg.OCREngine,
		OCRLanguages:    p.cfg.OCRLangs,
	}
}

// ProcessPage runs the full extraction flow for one file. The returned result
// always carries the complete warning list (OCR + LLM + validation) in the
// order produced. OCR failures are terminal for the document and skip the LLM
// entirely; only malformed LLM output is retried.
func (p *Pipeline) ProcessPage(ctx context.Context, path string, engine string, langs []string) results.ExtractionResult {
	start := time.Now()
	if engine == "" {
		engine = p.cfg.OCREngine
	}
	if len(langs) == 0 {
		langs = p.cfg.OCRLangs
	}

	var warnings []string

	// Step 1: OCR.
	text, err := p.converter.Convert(ctx, path, engine, langs)
	if err != nil {
		p.logger.Error("pipeline.ocr.failed", "path", path, "engine", engine, "error", err)
		warnings = append(warnings, fmt.Sprintf("OCR_ERROR: %v", err))
		return p.degraded(path, warnings)
	}
	if strings.TrimSpace(text) == "" {
		p.logger.Warn("pipeline.ocr.empty", "path", path, "engine", engine)
		warnings = append(warnings, "OCR_EMPTY_OR_FAILED")
		return p.degraded(path, warnings)
	}
	p.logger.Info("pipeline.ocr.ok",
		"path", path,
		"engine", engine,
		"text_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	// Step 2: prompt.
	schemaJSON, err := p.schema.JSONIndent()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("LLM_ERROR: render schema: %v", err))
		return p.degraded(path, warnings)
	}
	prompt := buildPrompt(text, schemaJSON, p.cfg.MaxPromptChars)

	// Step 3: LLM with retries for malformed output.
	var parsed map[string]any
	for attempt := 0; attempt <= p.cfg.MaxRetries && parsed == nil; {
		if attempt > 0 {
			prompt += retryInstruction
		}
		response, err := p.completer.Complete(ctx, prompt)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("LLM_ERROR: %v", err))
			attempt++
			continue
		}
		parsed = parseResponse(response)
		if parsed == nil {
			attempt++
			if attempt <= p.cfg.MaxRetries {
				warnings = append(warnings, fmt.Sprintf("LLM_RETRY_%d: Invalid JSON response, retrying...", attempt))
			}
		}
	}
	if parsed == nil {
		p.logger.Error("pipeline.llm.exhausted", "path", path, "max_retries", p.cfg.MaxRetries)
		warnings = append(warnings, "LLM_PARSING_FAILED: Could not extract valid JSON after retries")
		return p.degraded(path, warnings)
	}

	// Step 4: validation and confidence.
	normalized, validationWarnings, confidence := p.schema.Normalize(parsed)
	warnings = append(warnings, schema.WarningStrings(validationWarnings)...)

	p.logger.Info("pipeline.parse.ok",
		"path", path,
		"confidence", confidence,
		"warnings", len(warnings),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return results.ExtractionResult{
		FilePath:   path,
		Extracted:  normalized,
		Confidence: confidence,
		Warnings:   warnings,
	}
}

// degraded builds the synthetic result for terminal OCR/LLM failures.
func (p *Pipeline) degraded(path string, warnings []string) results.ExtractionResult {
	return results.ExtractionResult{
		FilePath:   path,
		Extracted:  p.schema.RequiredNA(),
		Confidence: 0.0,
		Warnings:   warnings,
	}
}
