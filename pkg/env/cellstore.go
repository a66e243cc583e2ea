package env

import (
	"sync"

	"github.com/hybscloud/spiral/pkg/value"
)

// CellStore is the mutable ref-cell table for a single document
// evaluation. Cells are keyed by name (per the specification: "a
// ref-cell exists in the store before any deref(target) for it"),
// created by the first refCell(target), mutated by LIR assignRef, and
// released when the document evaluation completes (the whole CellStore
// is simply dropped by its owner, the orchestrator).
type CellStore struct {
	mu    sync.RWMutex
	cells map[string]value.Value
}

// NewCellStore returns an empty store.
func NewCellStore() *CellStore {
	return &CellStore{cells: make(map[string]value.Value)}
}

// Bind creates a cell for name if one does not already exist, and
// returns its current value either way (refCell is idempotent: "creates
// (or binds a handle to) a cell under the name target").
func (s *CellStore) Bind(name string, initial value.Value) value.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.cells[name]; ok {
		return v
	}
	s.cells[name] = initial
	return initial
}

// Get reads a cell's current value; ok is false if no cell exists for
// name (the caller should surface DomainError for deref of a missing
// cell, per the specification).
func (s *CellStore) Get(name string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cells[name]
	return v, ok
}

// Set stores v into the cell named name (creating it if absent) — this
// backs LIR assignRef.
func (s *CellStore) Set(name string, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[name] = v
}

// Has reports whether a cell exists for name.
func (s *CellStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cells[name]
	return ok
}
