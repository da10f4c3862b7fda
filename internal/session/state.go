package session

import (
	"sync"

	"github.com/namikmesic/promptopt/internal/optimizer"
)

// State is the per-session view model. Only the Runner mutates it; renderers
// read it through Snapshot.
type State struct {
	mu           sync.RWMutex
	isOptimizing bool
	result       *string
	guidelines   []optimizer.Guideline
}

// Snapshot is a consistent, detached copy of State.
type Snapshot struct {
	IsOptimizing bool
	Result       *string
	Guidelines   []optimizer.Guideline
}

func NewState() *State {
	return &State{}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{IsOptimizing: s.isOptimizing}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	if len(s.guidelines) > 0 {
		snap.Guidelines = make([]optimizer.Guideline, len(s.guidelines))
		copy(snap.Guidelines, s.guidelines)
	}
	return snap
}

func (s *State) IsOptimizing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOptimizing
}

// begin marks a run as started and drops the previous run's results.
// It reports false, changing nothing, when a run is already active.
func (s *State) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isOptimizing {
		return false
	}
	s.isOptimizing = true
	s.result = nil
	s.guidelines = nil
	return true
}

func (s *State) setResult(content string) {
	s.mu.Lock()
	s.result = &content
	s.mu.Unlock()
}

func (s *State) appendGuideline(g optimizer.Guideline) {
	s.mu.Lock()
	s.guidelines = append(s.guidelines, g)
	s.mu.Unlock()
}

func (s *State) finish() {
	s.mu.Lock()
	s.isOptimizing = false
	s.mu.Unlock()
}
