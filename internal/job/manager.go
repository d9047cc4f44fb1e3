// Package job holds the paginated split-job state machine. A job walks an
// ordered page list one page per external call; the engine drives the
// prepare/execute/finalize protocol and owns the lock.
package job

import (
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/maiphh/ocr/internal/common"
	"github.com/maiphh/ocr/internal/pdfsplit"
	"github.com/maiphh/ocr/internal/pipeline"
)

// PendingJob is one in-flight paginated source. Schema and engine settings are
// snapshotted into the job's pipeline at creation, so later edits to the live
// schema do not affect pages still to come.
type PendingJob struct {
	ID           string
	SessionID    string
	OriginalName string
	TempDir      string
	Pages        []pdfsplit.Page
	SplitNotes   []string
	Pipeline     *pipeline.Pipeline

	// Index is the fetch cursor: pages[Index] is the next page to hand out.
	Index int
	// NotesRecorded flips once this job's split notes are merged into the
	// aggregate, so retried finalizes do not duplicate them.
	NotesRecorded bool
}

// Done reports whether every page has been fetched.
func (j *PendingJob) Done() bool { return j.Index >= len(j.Pages) }

// Remaining counts pages not yet fetched.
func (j *PendingJob) Remaining() int {
	if j.Done() {
		return 0
	}
	return len(j.Pages) - j.Index
}

// Manager is the pending-job table. It is not safe for concurrent use; the
// engine serializes access under its own lock.
type Manager struct {
	jobs   map[string]*PendingJob
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{jobs: make(map[string]*PendingJob), logger: logger}
}

// Add registers a new pending job and returns its id.
func (m *Manager) Add(j *PendingJob) string {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	m.jobs[j.ID] = j
	m.logger.Info("job.created", "job_id", j.ID, "pages", len(j.Pages), "session_id", j.SessionID)
	return j.ID
}

// Get looks up a pending job.
func (m *Manager) Get(id string) (*PendingJob, bool) {
	j, ok := m.jobs[id]
	return j, ok
}

// Prepare fetches the next page of a job and advances the cursor
// (fetch-then-increment). When the cursor has exhausted the page list the job
// is completed: it is dropped from the table, its temp storage released, and
// done=true returned.
func (m *Manager) Prepare(id string) (page pdfsplit.Page, done bool, err error) {
	j, ok := m.jobs[id]
	if !ok {
		return pdfsplit.Page{}, false, common.NotFoundf("split job %q not found", id)
	}
	if j.Done() {
		m.release(j)
		m.logger.Info("job.completed", "job_id", id, "pages", len(j.Pages))
		return pdfsplit.Page{}, true, nil
	}
	page = j.Pages[j.Index]
	j.Index++
	return page, false, nil
}

// Finish drops a job whose cursor has exhausted its pages, releasing temp
// storage. No-op if the job is unknown or still has pages left; callers that
// skip Finish get the same release on their next Prepare.
func (m *Manager) Finish(id string) {
	j, ok := m.jobs[id]
	if !ok || !j.Done() {
		return
	}
	m.release(j)
	m.logger.Info("job.completed", "job_id", id, "pages", len(j.Pages))
}

// Rollback steps the cursor back one page after a failed execute, so the same
// page is handed out on the next Prepare. Floors at 0.
func (m *Manager) Rollback(id string) {
	j, ok := m.jobs[id]
	if !ok {
		return
	}
	if j.Index > 0 {
		j.Index--
	}
}

// Cancel drops a job before completion, releasing its temporary page storage.
// Cancelling an unknown id is a NotFound.
func (m *Manager) Cancel(id string) error {
	j, ok := m.jobs[id]
	if !ok {
		return common.NotFoundf("split job %q not found", id)
	}
	m.release(j)
	m.logger.Info("job.cancelled", "job_id", id, "pages_left", j.Remaining())
	return nil
}

// IDs returns the pending job ids.
func (m *Manager) IDs() []string {
	out := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		out = append(out, id)
	}
	return out
}

func (m *Manager) Len() int { return len(m.jobs) }

// release removes the job from the table and deletes its temp dir,
// best-effort. Page files live inside the temp dir.
func (m *Manager) release(j *PendingJob) {
	delete(m.jobs, j.ID)
	if j.TempDir == "" {
		return
	}
	if err := os.RemoveAll(j.TempDir); err != nil {
		m.logger.Warn("job.tempdir_remove_failed", "job_id", j.ID, "dir", j.TempDir, "error", err)
	}
}
