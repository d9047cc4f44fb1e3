// Package engine owns all shared mutable state of the extraction service: the
// active schema, the aggregate result set, the preview cache, pending split
// jobs and session ownership. One coarse mutex guards every read-modify-write;
// the slow OCR/LLM/preview work always runs outside it.
package engine

import (
	"log/slog"
	"sync"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/job"
	"github.com/maiphh/ocr/internal/pdfsplit"
	"github.com/maiphh/ocr/internal/pipeline"
	"github.com/maiphh/ocr/internal/preview"
	"github.com/maiphh/ocr/internal/results"
	"github.com/maiphh/ocr/internal/schema"
	"github.com/maiphh/ocr/internal/session"
)

type Engine struct {
	mu     sync.Mutex
	logger *slog.Logger

	schema   *schema.Schema
	payload  *results.Payload
	cache    *preview.Cache
	store    *preview.Store
	jobs     *job.Manager
	sessions *session.Registry

	pipe      *pipeline.Pipeline
	splitter  pdfsplit.Splitter
	converter pipeline.Converter
	completer pipeline.Completer
}

// Config for the engine.
type Config struct {
	PreviewMaxAssets int
	Pipeline         pipeline.Config
}

func New(cfg Config, store *preview.Store, splitter pdfsplit.Splitter, converter pipeline.Converter, completer pipeline.Completer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	active := schema.Default()
	return &Engine{
		logger:    logger,
		schema:    active,
		cache:     preview.NewCache(cfg.PreviewMaxAssets, store, logger),
		store:     store,
		jobs:      job.NewManager(logger),
		sessions:  session.NewRegistry(),
		pipe:      pipeline.New(logger, cfg.Pipeline, active, converter, completer),
		splitter:  splitter,
		converter: converter,
		completer: completer,
	}
}

// Schema returns a copy of the active schema.
func (e *Engine) Schema() *schema.Schema {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schema.Clone()
}

// ResetSchema restores the built-in default schema.
func (e *Engine) ResetSchema() *schema.Schema {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.schema = schema.Default()
	e.pipe.SetSchema(e.schema)
	e.logger.Info("engine.schema.reset", "fields", e.schema.Len())
	return e.schema.Clone()
}

// ApplySchema replaces the active schema with a parsed exchange document.
func (e *Engine) ApplySchema(data []byte) (*schema.Schema, error) {
	parsed, err := schema.Parse(data)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.schema = parsed
	e.pipe.SetSchema(e.schema)
	e.logger.Info("engine.schema.applied", "fields", e.schema.Len())
	return e.schema.Clone(), nil
}

// AddField appends a field to the active schema. Duplicate names are rejected.
func (e *Engine) AddField(name string, spec schema.FieldSpec) (*schema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.schema.Clone()
	if err := next.AddField(name, spec); err != nil {
		return nil, err
	}
	e.schema = next
	e.pipe.SetSchema(e.schema)
	return e.schema.Clone(), nil
}

// DeleteField removes a field from the active schema.
func (e *Engine) DeleteField(name string) (*schema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.schema.Clone()
	if err := next.DeleteField(name); err != nil {
		return nil, err
	}
	e.schema = next
	e.pipe.SetSchema(e.schema)
	return e.schema.Clone(), nil
}

// Results returns the aggregate payload; ok is false before any processing.
func (e *Engine) Results() (results.Payload, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.payload == nil {
		return results.Payload{}, false
	}
	return *e.payload, true
}

// SchemaFields returns the active schema's field names in declaration order.
func (e *Engine) SchemaFields() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schema.Fields()
}

// UpdateResults applies manual table edits to the aggregate documents,
// replacing extracted fields, warnings and row metadata wholesale per token.
// Unknown tokens fail the whole update with a NotFound naming them.
func (e *Engine) UpdateResults(rows []results.TableRow) ([]results.TableRow, error) {
	if len(rows) == 0 {
		return nil, common.InvalidInputf("no table data provided")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.payload == nil {
		return nil, common.InvalidInputf("no processing results available")
	}

	byToken := make(map[string]int, len(e.payload.Documents))
	for i, doc := range e.payload.Documents {
		if doc.FileToken != "" {
			byToken[doc.FileToken] = i
		}
	}

	var missing []string
	for _, row := range rows {
		if _, ok := byToken[row.FileKey]; !ok {
			missing = append(missing, row.FileKey)
		}
	}
	if len(missing) > 0 {
		return nil, common.NotFoundf("document(s) not found for: %s", joinComma(missing))
	}

	for _, row := range rows {
		doc := &e.payload.Documents[byToken[row.FileKey]]
		doc.FileName = row.FileName
		doc.FilePath = row.FilePath
		doc.Warnings = row.Warnings
		doc.Extracted = row.Fields
		if row.OriginalName != "" {
			doc.OriginalFileName = row.OriginalName
		}
		doc.PageNumber = row.PageNumber
		doc.TotalPages = row.TotalPages
	}
	e.logger.Info("engine.results.updated", "rows", len(rows))

	return results.BuildTableRows(e.payload.Documents), nil
}

// PreviewAsset looks up a cached preview by token.
func (e *Engine) PreviewAsset(token string) (preview.Asset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	asset, ok := e.cache.Get(token)
	if !ok {
		return preview.Asset{}, common.NotFoundf("preview %q not found", token)
	}
	return asset, nil
}

// forget scrubs evicted cache entries from session ownership. Caller holds the
// lock.
func (e *Engine) forget(evictions []preview.Eviction) {
	if len(evictions) == 0 {
		return
	}
	tokens := make([]string, 0, len(evictions))
	paths := make([]string, 0, len(evictions))
	for _, ev := range evictions {
		tokens = append(tokens, ev.Token)
		paths = append(paths, ev.Path)
	}
	e.sessions.ForgetTokens(tokens)
	e.sessions.ForgetPaths(paths)
}

// snapshotPipeline builds a pipeline bound to a copy of the active schema and
// the given OCR settings, for work that runs outside the lock. Caller holds
// the lock.
func (e *Engine) snapshotPipeline(ocrEngine string, langs []string) *pipeline.Pipeline {
	cfg := e.pipe.Config()
	if ocrEngine != "" {
		cfg.OCREngine = ocrEngine
	}
	if len(langs) > 0 {
		cfg.OCRLangs = langs
	}
	return pipeline.New(e.logger, cfg, e.schema.Clone(), e.converter, e.completer)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
