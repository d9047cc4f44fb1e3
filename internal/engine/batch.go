package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/pdfsplit"
	"github.com/maiphh/ocr/internal/pipeline"
	"github.com/maiphh/ocr/internal/preview"
	"github.com/maiphh/ocr/internal/results"
)

// BatchFile is one uploaded document.
type BatchFile struct {
	Name string
	Data []byte
}

// ProcessResult is the response shape shared by batch processing and split-job
// finalization.
type ProcessResult struct {
	Summary results.Summary    `json:"summary"`
	Table   []results.TableRow `json:"table"`
	Meta    results.Meta       `json:"meta"`
}

// ProcessBatch runs the extraction pipeline over every page of every uploaded
// file and merges the outcome into the aggregate result set. Inputs are
// snapshotted under the lock, all OCR/LLM/preview work runs unlocked, and the
// merge re-acquires the lock. With appendMode false the prior aggregate and
// every cached preview are dropped.
func (e *Engine) ProcessBatch(ctx context.Context, sessionID string, files []BatchFile, ocrEngine string, langs []string, appendMode bool) (ProcessResult, error) {
	if len(files) == 0 {
		return ProcessResult{}, common.InvalidInputf("no files uploaded")
	}
	for _, f := range files {
		if len(f.Data) == 0 {
			return ProcessResult{}, common.InvalidInputf("file %q is empty", f.Name)
		}
	}
	start := time.Now()

	// Snapshot under lock; later schema edits must not affect this batch.
	e.mu.Lock()
	e.pipe.SetOCREngine(ocrEngine)
	e.pipe.SetOCRLangs(langs)
	snap := e.snapshotPipeline(ocrEngine, langs)
	e.mu.Unlock()

	tempDir, err := os.MkdirTemp("", "ocr_batch_*")
	if err != nil {
		return ProcessResult{}, common.WrapError(err, "create batch temp dir")
	}
	defer func() {
		_ = os.RemoveAll(tempDir)
	}()

	pages, splitNotes, err := e.writeAndSplit(ctx, tempDir, files)
	if err != nil {
		return ProcessResult{}, err
	}

	// Process pages in splitter order, outside the lock.
	newDocs := make([]results.ExtractionResult, 0, len(pages))
	tokens := make([]string, 0, len(pages))
	assets := make(map[string]preview.Asset, len(pages))
	for _, page := range pages {
		token := uuid.New().String()
		doc, asset, ok := e.executePage(ctx, snap, page, token)
		newDocs = append(newDocs, doc)
		tokens = append(tokens, token)
		if ok {
			assets[token] = asset
		}
	}

	// Merge.
	e.mu.Lock()
	defer e.mu.Unlock()

	var existingDocs []results.ExtractionResult
	var existingNotes []string
	if appendMode && e.payload != nil {
		existingDocs = e.payload.Documents
		existingNotes = e.payload.Meta.SplitNotes
	} else {
		e.forget(e.cache.Clear())
		e.payload = nil
	}

	combinedDocs := append(append([]results.ExtractionResult{}, existingDocs...), newDocs...)
	combinedNotes := append(append([]string{}, existingNotes...), splitNotes...)

	for _, token := range tokens {
		asset, ok := assets[token]
		if !ok {
			continue
		}
		e.forget(e.cache.Put(token, asset))
		if current, still := e.cache.Get(token); still {
			e.sessions.RegisterAsset(sessionID, token, current.Path)
		}
	}

	meta := snap.Meta(len(combinedDocs), combinedNotes)
	e.payload = &results.Payload{Documents: combinedDocs, Meta: meta}

	e.logger.Info("engine.batch.ok",
		"files", len(files),
		"pages", len(pages),
		"documents", len(combinedDocs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ProcessResult{
		Summary: results.CalculateSummary(combinedDocs),
		Table:   results.BuildTableRows(combinedDocs),
		Meta:    meta,
	}, nil
}

// writeAndSplit persists uploads into tempDir under unique names and splits
// each into single-page files. A split failure downgrades that file to a
// single page with a note instead of failing the batch.
func (e *Engine) writeAndSplit(ctx context.Context, tempDir string, files []BatchFile) ([]pdfsplit.Page, []string, error) {
	splitDir := filepath.Join(tempDir, "split_pages")
	if err := os.MkdirAll(splitDir, 0o755); err != nil {
		return nil, nil, common.WrapError(err, "create split dir")
	}

	seen := make(map[string]bool, len(files))
	var pages []pdfsplit.Page
	var notes []string
	for i, f := range files {
		name := pdfsplit.EnsureUniqueName(seen, f.Name, i+1)
		path := filepath.Join(tempDir, name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return nil, nil, common.WrapError(err, "write upload")
		}

		split, err := e.splitter.Split(ctx, path, splitDir)
		if err != nil {
			notes = append(notes, fmt.Sprintf("Failed to split '%s': %v. Processed as-is.", name, err))
			pages = append(pages, pdfsplit.Page{Path: path, OriginalName: name, PageNumber: 1, TotalPages: 1})
			continue
		}
		if len(split) > 1 {
			notes = append(notes, fmt.Sprintf("Split '%s' into %d page PDFs.", name, len(split)))
		}
		pages = append(pages, split...)
	}
	return pages, notes, nil
}

// executePage runs the pipeline for one page and renders its preview asset.
// The two concerns fail independently: a preview failure only adds a warning
// to the already-computed extraction result (ok=false, no asset).
func (e *Engine) executePage(ctx context.Context, pipe *pipeline.Pipeline, page pdfsplit.Page, token string) (results.ExtractionResult, preview.Asset, bool) {
	doc := pipe.ProcessPage(ctx, page.Path, "", nil)
	doc.FileToken = token
	doc.FileName = filepath.Base(page.Path)
	doc.OriginalFileName = page.OriginalName
	doc.PageNumber = page.PageNumber
	doc.TotalPages = page.TotalPages

	cachedPath, err := e.store.Add(page.Path)
	if err != nil {
		e.logger.Warn("engine.preview.failed", "path", page.Path, "error", err)
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("PREVIEW_ERROR: %v", err))
		doc.PageCount = 1
		return doc, preview.Asset{}, false
	}

	pageCount, err := pdfsplit.PageCount(cachedPath)
	if err != nil || pageCount < 1 {
		pageCount = 1
	}
	doc.PageCount = pageCount

	return doc, preview.Asset{
		Path:      cachedPath,
		FileName:  page.OriginalName,
		PageCount: pageCount,
	}, true
}
