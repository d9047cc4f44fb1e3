// Package session tracks which temp files, preview tokens and split jobs each
// client session owns, so that a departing session can be cleaned up without
// touching anyone else's state.
package session

// Registry maps session ids to owned resources. It is not safe for concurrent
// use; the engine serializes access under its own lock.
type Registry struct {
	paths  map[string]map[string]bool
	tokens map[string]map[string]bool
	jobs   map[string]map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		paths:  make(map[string]map[string]bool),
		tokens: make(map[string]map[string]bool),
		jobs:   make(map[string]map[string]bool),
	}
}

// RegisterAsset records a preview token and its backing path for a session.
// Empty session ids are ignored; anonymous callers own nothing.
func (r *Registry) RegisterAsset(sessionID, token, path string) {
	if sessionID == "" {
		return
	}
	if token != "" {
		addTo(r.tokens, sessionID, token)
	}
	if path != "" {
		addTo(r.paths, sessionID, path)
	}
}

// RegisterPath records a temp file owned by a session.
func (r *Registry) RegisterPath(sessionID, path string) {
	if sessionID == "" || path == "" {
		return
	}
	addTo(r.paths, sessionID, path)
}

// RegisterJob records an in-flight split job owned by a session.
func (r *Registry) RegisterJob(sessionID, jobID string) {
	if sessionID == "" || jobID == "" {
		return
	}
	addTo(r.jobs, sessionID, jobID)
}

// UnregisterJob removes a finished job from its session, dropping the session
// key when its set drains.
func (r *Registry) UnregisterJob(sessionID, jobID string) {
	removeFrom(r.jobs, sessionID, jobID)
}

// ForgetTokens scrubs evicted tokens from every session; the cache has already
// released the files.
func (r *Registry) ForgetTokens(tokens []string) {
	for _, t := range tokens {
		for sid := range r.tokens {
			removeFrom(r.tokens, sid, t)
		}
	}
}

// ForgetPaths scrubs released paths from every session.
func (r *Registry) ForgetPaths(paths []string) {
	for _, p := range paths {
		for sid := range r.paths {
			removeFrom(r.paths, sid, p)
		}
	}
}

// PopSession removes a session and returns everything it owned. Calling it
// again for the same id yields empty slices, which keeps cleanup idempotent.
func (r *Registry) PopSession(sessionID string) (paths, tokens, jobs []string) {
	paths = drain(r.paths, sessionID)
	tokens = drain(r.tokens, sessionID)
	jobs = drain(r.jobs, sessionID)
	return paths, tokens, jobs
}

// Sessions returns the ids that currently own anything.
func (r *Registry) Sessions() []string {
	seen := make(map[string]bool)
	for sid := range r.paths {
		seen[sid] = true
	}
	for sid := range r.tokens {
		seen[sid] = true
	}
	for sid := range r.jobs {
		seen[sid] = true
	}
	out := make([]string, 0, len(seen))
	for sid := range seen {
		out = append(out, sid)
	}
	return out
}

func addTo(m map[string]map[string]bool, key, value string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]bool)
		m[key] = set
	}
	set[value] = true
}

func removeFrom(m map[string]map[string]bool, key, value string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, value)
	if len(set) == 0 {
		delete(m, key)
	}
}

func drain(m map[string]map[string]bool, key string) []string {
	set, ok := m[key]
	if !ok {
		return nil
	}
	delete(m, key)
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}
