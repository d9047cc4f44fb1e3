package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/job"
	"github.com/maiphh/ocr/internal/pdfsplit"
	"github.com/maiphh/ocr/internal/results"
)

// SplitJobInfo is the response to a split-job creation.
type SplitJobInfo struct {
	JobID      string   `json:"jobId"`
	TotalPages int      `json:"totalPages"`
	SplitNotes []string `json:"splitNotes"`
}

// SplitNextResult is the outcome of advancing a split job by one page.
type SplitNextResult struct {
	Done       bool               `json:"done"`
	Summary    results.Summary    `json:"summary"`
	Table      []results.TableRow `json:"table"`
	Meta       results.Meta       `json:"meta"`
	LatestRow  *results.TableRow  `json:"latestRow,omitempty"`
	PageLabel  string             `json:"pageLabel,omitempty"`
	PageNumber int                `json:"pageNumber,omitempty"`
	TotalPages int                `json:"totalPages,omitempty"`
}

// CreateSplitJob splits one uploaded source into its page list and registers a
// pending job over it. The schema and OCR settings are snapshotted now; later
// edits do not affect pages still to come. A split failure falls back to the
// whole file as a single page, recorded in the job's split notes.
func (e *Engine) CreateSplitJob(ctx context.Context, sessionID, fileName string, data []byte, ocrEngine string, langs []string) (SplitJobInfo, error) {
	if len(data) == 0 {
		return SplitJobInfo{}, common.InvalidInputf("uploaded file is empty")
	}

	tempDir, err := os.MkdirTemp("", "ocr_splitjob_*")
	if err != nil {
		return SplitJobInfo{}, common.WrapError(err, "create job temp dir")
	}
	cleanupOnErr := func() {
		_ = os.RemoveAll(tempDir)
	}

	safeName := pdfsplit.EnsureUniqueName(make(map[string]bool), fileName, 1)
	srcPath := filepath.Join(tempDir, safeName)
	if err := os.WriteFile(srcPath, data, 0o644); err != nil {
		cleanupOnErr()
		return SplitJobInfo{}, common.WrapError(err, "write upload")
	}
	splitDir := filepath.Join(tempDir, "split")
	if err := os.MkdirAll(splitDir, 0o755); err != nil {
		cleanupOnErr()
		return SplitJobInfo{}, common.WrapError(err, "create split dir")
	}

	var notes []string
	pages, err := e.splitter.Split(ctx, srcPath, splitDir)
	if err != nil {
		notes = append(notes, fmt.Sprintf("Failed to split '%s': %v. Processed as-is.", safeName, err))
		pages = []pdfsplit.Page{{Path: srcPath, OriginalName: safeName, PageNumber: 1, TotalPages: 1}}
	} else if len(pages) > 1 {
		notes = append(notes, fmt.Sprintf("Split '%s' into %d page PDFs.", safeName, len(pages)))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.jobs.Add(&job.PendingJob{
		SessionID:    sessionID,
		OriginalName: safeName,
		TempDir:      tempDir,
		Pages:        pages,
		SplitNotes:   notes,
		Pipeline:     e.snapshotPipeline(ocrEngine, langs),
	})
	e.sessions.RegisterJob(sessionID, id)

	return SplitJobInfo{JobID: id, TotalPages: len(pages), SplitNotes: notes}, nil
}

// SplitNext advances a split job by exactly one page: prepare under the lock,
// run the pipeline and preview render unlocked, finalize under the lock. On a
// cancelled context the cursor is rolled back so the same page is retried.
// Finalizing into a job cancelled mid-flight reports NotFound and releases the
// orphaned preview; the extraction work is discarded but nothing crashes.
func (e *Engine) SplitNext(ctx context.Context, jobID string, appendMode bool) (SplitNextResult, error) {
	// Prepare.
	e.mu.Lock()
	j, ok := e.jobs.Get(jobID)
	if !ok {
		e.mu.Unlock()
		return SplitNextResult{}, common.NotFoundf("split job %q not found or already completed", jobID)
	}
	sessionID := j.SessionID
	jobPipe := j.Pipeline
	page, done, err := e.jobs.Prepare(jobID)
	if err != nil {
		e.mu.Unlock()
		return SplitNextResult{}, err
	}
	if done {
		e.sessions.UnregisterJob(sessionID, jobID)
		e.mu.Unlock()
		return SplitNextResult{Done: true}, nil
	}
	e.mu.Unlock()

	// Execute.
	token := uuid.New().String()
	doc, asset, hasAsset := e.executePage(ctx, jobPipe, page, token)
	if ctx.Err() != nil {
		e.mu.Lock()
		e.jobs.Rollback(jobID)
		e.mu.Unlock()
		if hasAsset {
			e.store.Remove(asset.Path)
		}
		return SplitNextResult{}, common.WrapError(ctx.Err(), "split-next aborted")
	}

	// Finalize.
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok = e.jobs.Get(jobID)
	if !ok {
		if hasAsset {
			e.store.Remove(asset.Path)
		}
		return SplitNextResult{}, common.NotFoundf("split job %q not found or already completed", jobID)
	}

	var existingDocs []results.ExtractionResult
	var notes []string
	if !appendMode {
		e.forget(e.cache.Clear())
		notes = append(notes, j.SplitNotes...)
		if len(j.SplitNotes) > 0 {
			j.NotesRecorded = true
		}
	} else {
		if e.payload != nil {
			existingDocs = e.payload.Documents
			notes = append(notes, e.payload.Meta.SplitNotes...)
		}
		if len(j.SplitNotes) > 0 && !j.NotesRecorded {
			notes = append(notes, j.SplitNotes...)
			j.NotesRecorded = true
		}
	}

	combined := make([]results.ExtractionResult, 0, len(existingDocs)+1)
	for _, existing := range existingDocs {
		if existing.FileToken != token {
			combined = append(combined, existing)
		}
	}
	combined = append(combined, doc)

	if hasAsset {
		e.forget(e.cache.Put(token, asset))
		if current, still := e.cache.Get(token); still {
			e.sessions.RegisterAsset(sessionID, token, current.Path)
		}
	}

	meta := jobPipe.Meta(len(combined), notes)
	e.payload = &results.Payload{Documents: combined, Meta: meta}

	table := results.BuildTableRows(combined)
	jobDone := j.Done()
	if jobDone {
		e.jobs.Finish(jobID)
		e.sessions.UnregisterJob(sessionID, jobID)
	}

	var latest *results.TableRow
	for i := range table {
		if table[i].FileKey == token {
			latest = &table[i]
			break
		}
	}
	if latest == nil && len(table) > 0 {
		latest = &table[len(table)-1]
	}

	return SplitNextResult{
		Done:       jobDone,
		Summary:    results.CalculateSummary(combined),
		Table:      table,
		Meta:       meta,
		LatestRow:  latest,
		PageLabel:  fmt.Sprintf("Page %d/%d", page.PageNumber, page.TotalPages),
		PageNumber: page.PageNumber,
		TotalPages: page.TotalPages,
	}, nil
}
