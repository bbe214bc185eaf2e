package rules

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"

	pipelineerrors "github.com/Tracy625/event-stream-starter-sub001/internal/platform/errors"
)

// Snapshot pairs a validated Rules configuration with the source mtime it
// was loaded from, so Registry can detect staleness cheaply.
type Snapshot struct {
	Rules    Rules
	LoadedAt time.Time
	SourceModTime time.Time
}

// Registry holds a hot-reloadable Rules configuration behind an atomic
// pointer: readers never block on a reload, and a rejected (invalid)
// candidate never replaces a good snapshot.
type Registry struct {
	path     string
	current  atomic.Pointer[Snapshot]
}

// NewRegistry creates a Registry and performs an initial load from path.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Current returns the active validated Rules snapshot.
func (r *Registry) Current() Rules {
	snap := r.current.Load()
	if snap == nil {
		return Rules{}
	}
	return snap.Rules
}

// ReloadIfStale re-reads the backing file when its mtime has advanced
// past the currently loaded snapshot's, leaving the prior snapshot in
// place if the candidate fails Validate.
func (r *Registry) ReloadIfStale() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return pipelineerrors.Retryable("rules.registry.stat", err)
	}
	snap := r.current.Load()
	if snap != nil && !info.ModTime().After(snap.SourceModTime) {
		return nil
	}
	return r.reload()
}

func (r *Registry) reload() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return pipelineerrors.Retryable("rules.registry.stat", err)
	}
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return pipelineerrors.Retryable("rules.registry.read", err)
	}

	var candidate Rules
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return pipelineerrors.InvalidInput("rules_file", "malformed JSON: "+err.Error())
	}
	if err := Validate(candidate); err != nil {
		return err
	}

	r.current.Store(&Snapshot{Rules: candidate, LoadedAt: time.Now(), SourceModTime: info.ModTime()})
	return nil
}
