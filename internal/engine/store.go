package engine

import (
	"fmt"
	"sync"
)

type resultKey struct {
	step   string
	output string
}

// ResultStore is the per-run, write-once table of step outputs.
type ResultStore struct {
	mu     sync.RWMutex
	values map[resultKey]any
}

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{values: make(map[resultKey]any)}
}

// Put stores one output. A second write of the same key fails.
func (s *ResultStore) Put(step, output string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := resultKey{step: step, output: output}
	if _, exists := s.values[k]; exists {
		return fmt.Errorf("%w: %s.%s", ErrResultExists, step, output)
	}
	s.values[k] = value
	return nil
}

// Get returns one stored output.
func (s *ResultStore) Get(step, output string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[resultKey{step: step, output: output}]
	return v, ok
}

// Snapshot copies the store into nested maps.
func (s *ResultStore) Snapshot() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]any)
	for k, v := range s.values {
		if out[k.step] == nil {
			out[k.step] = make(map[string]any)
		}
		out[k.step][k.output] = v
	}
	return out
}
