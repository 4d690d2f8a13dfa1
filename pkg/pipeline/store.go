package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/pixelflow/pkg/artifact"
	"github.com/tombee/pixelflow/pkg/errors"
)

// Variables is read-only access to a variable store.
type Variables interface {
	Get(name string) (artifact.Value, bool)
}

// Store is the run-scoped mapping from variable name to value. The engine
// writes to it only between waves; steps read it while a wave runs.
type Store struct {
	mu   sync.RWMutex
	vars map[string]artifact.Value
}

// NewStore creates a store seeded with initial values.
func NewStore(initial map[string]artifact.Value) *Store {
	vars := make(map[string]artifact.Value, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &Store{vars: vars}
}

// Get returns a variable.
func (s *Store) Get(name string) (artifact.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set stores a variable.
func (s *Store) Set(name string, v artifact.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = v
}

// Names returns the variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for k := range s.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the mapping.
func (s *Store) Snapshot() map[string]artifact.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]artifact.Value, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// lookup reads a variable or returns a configuration error naming the step.
func lookup(vars Variables, stepID, name string) (artifact.Value, error) {
	v, ok := vars.Get(name)
	if !ok || v == nil {
		return nil, &errors.ConfigError{
			Key:    stepID,
			Reason: fmt.Sprintf("variable %q is not set", name),
			Cause:  &errors.NotFoundError{Resource: "variable", ID: name},
		}
	}
	return v, nil
}

func lookupImage(vars Variables, stepID, name string) (*artifact.Image, error) {
	v, err := lookup(vars, stepID, name)
	if err != nil {
		return nil, err
	}
	img, ok := v.(*artifact.Image)
	if !ok {
		return nil, &errors.ConfigError{
			Key:    stepID,
			Reason: fmt.Sprintf("variable %q is %s, want image", name, v.ArtifactType()),
		}
	}
	return img, nil
}
