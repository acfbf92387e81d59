package model

import (
	"sync"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// StateManager tracks the fitted state of a model in a thread-safe manner.
// Fields are exported for gob encoding.
type StateManager struct {
	mu sync.RWMutex

	Fitted    bool
	NFeatures int
	NSamples  int
	NIter     int
	RunID     string
}

// NewStateManager creates a new StateManager instance.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted returns whether the model has been fitted.
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Fitted
}

// SetFitted marks the model as fitted after a run of nIter solver iterations.
func (s *StateManager) SetFitted(nFeatures, nSamples, nIter int, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = true
	s.NFeatures = nFeatures
	s.NSamples = nSamples
	s.NIter = nIter
	s.RunID = runID
}

// AddSamples accumulates samples seen by streaming updates.
func (s *StateManager) AddSamples(n, iters int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NSamples += n
	s.NIter += iters
}

// Reset clears the fitted state.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = false
	s.NFeatures = 0
	s.NSamples = 0
	s.NIter = 0
	s.RunID = ""
}

// GetDimensions returns the number of features and samples seen during fitting.
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NFeatures, s.NSamples
}

// RequireFitted returns a NotFittedError naming model and method.
func (s *StateManager) RequireFitted(model, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(model, method)
	}
	return nil
}

// ModelState is a snapshot of StateManager, used in exported weights.
type ModelState struct {
	Fitted    bool   `json:"fitted"`
	NFeatures int    `json:"n_features,omitempty"`
	NSamples  int    `json:"n_samples,omitempty"`
	NIter     int    `json:"n_iter,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// GetState returns the current state.
func (s *StateManager) GetState() ModelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ModelState{
		Fitted:    s.Fitted,
		NFeatures: s.NFeatures,
		NSamples:  s.NSamples,
		NIter:     s.NIter,
		RunID:     s.RunID,
	}
}

// SetState restores a snapshot.
func (s *StateManager) SetState(state ModelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fitted = state.Fitted
	s.NFeatures = state.NFeatures
	s.NSamples = state.NSamples
	s.NIter = state.NIter
	s.RunID = state.RunID
}
