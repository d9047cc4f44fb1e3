package engine

import (
	"sort"
)

// CleanupReport summarizes what a session cleanup reclaimed.
type CleanupReport struct {
	SessionID        string            `json:"sessionId"`
	TrackedPaths     int               `json:"trackedPaths"`
	TrackedTokens    int               `json:"trackedTokens"`
	TrackedJobs      int               `json:"trackedJobs"`
	RemovedTokens    int               `json:"removedTokens"`
	RemovedFiles     int               `json:"removedFiles"`
	RemovedFilePaths []string          `json:"removedFilePaths"`
	CancelledJobs    []string          `json:"cancelledJobs"`
	JobErrors        map[string]string `json:"jobErrors"`
}

// CleanupSession reclaims everything a session owns: cached previews, tracked
// temp files not covered by a token, and pending split jobs. Per-job
// cancellation errors are collected without aborting the rest. Idempotent: a
// second call for the same session returns a zero report.
func (e *Engine) CleanupSession(sessionID string) CleanupReport {
	report := CleanupReport{
		SessionID:     sessionID,
		CancelledJobs: []string{},
		JobErrors:     map[string]string{},
	}
	if sessionID == "" {
		report.RemovedFilePaths = []string{}
		return report
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	paths, tokens, jobIDs := e.sessions.PopSession(sessionID)
	report.TrackedPaths = len(paths)
	report.TrackedTokens = len(tokens)
	report.TrackedJobs = len(jobIDs)

	pathSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		pathSet[p] = true
	}

	// Tokens to drop: everything the session tracked plus any cache entry
	// backed by one of its tracked paths.
	dropSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		dropSet[t] = true
	}
	for _, t := range e.cache.Tokens() {
		if asset, ok := e.cache.Get(t); ok && pathSet[asset.Path] {
			dropSet[t] = true
		}
	}
	drop := make([]string, 0, len(dropSet))
	for t := range dropSet {
		drop = append(drop, t)
	}

	removedFiles := make(map[string]bool)
	evictions := e.cache.Remove(drop)
	for _, ev := range evictions {
		removedFiles[ev.Path] = true
		delete(pathSet, ev.Path)
	}
	report.RemovedTokens = len(evictions)

	// Tracked paths not covered by any token are released directly.
	for p := range pathSet {
		e.store.Remove(p)
		removedFiles[p] = true
	}

	for _, id := range jobIDs {
		if err := e.jobs.Cancel(id); err != nil {
			report.JobErrors[id] = err.Error()
			continue
		}
		report.CancelledJobs = append(report.CancelledJobs, id)
	}
	sort.Strings(report.CancelledJobs)

	report.RemovedFiles = len(removedFiles)
	report.RemovedFilePaths = make([]string, 0, len(removedFiles))
	for p := range removedFiles {
		report.RemovedFilePaths = append(report.RemovedFilePaths, p)
	}
	sort.Strings(report.RemovedFilePaths)

	e.logger.Info("engine.session.cleaned",
		"session_id", sessionID,
		"removed_tokens", report.RemovedTokens,
		"removed_files", report.RemovedFiles,
		"cancelled_jobs", len(report.CancelledJobs),
	)
	return report
}
