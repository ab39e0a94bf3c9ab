// Package store provides the in-memory repository of debate records.
//
// All reads return deep-copied snapshots. Mutations run under a per-debate
// lock so the sequence of observable snapshots is monotone in history length
// and status progression; a global lock protects only the id->record map.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neo/arbiter_backend/internal/debate"
	"github.com/neo/arbiter_backend/internal/types"
)

// Store is the repository contract. The in-memory implementation is the
// authoritative live store; the contract is shaped so a persistent backend
// can slot in behind it.
type Store interface {
	Create(config debate.DebateConfig) (*debate.DebateState, error)
	Get(debateID string) (*debate.DebateState, error)
	List() []*debate.DebateState
	Update(debateID string, mutate func(*debate.DebateState) error) (*debate.DebateState, error)
	Delete(debateID string) error
}

type entry struct {
	mu    sync.Mutex
	state *debate.DebateState
}

// MemoryStore is a thread-safe in-memory Store
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
	}
}

// Create assigns a new debate ID, persists a CREATED record and returns a
// snapshot of it
func (s *MemoryStore) Create(config debate.DebateConfig) (*debate.DebateState, error) {
	state := &debate.DebateState{
		DebateID:  uuid.New().String(),
		Config:    config,
		Status:    types.StatusCreated,
		History:   make([]debate.Message, 0),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.entries[state.DebateID] = &entry{state: state}
	s.mu.Unlock()

	return state.Clone(), nil
}

// Get returns a snapshot of the debate with the given ID
func (s *MemoryStore) Get(debateID string) (*debate.DebateState, error) {
	e, err := s.lookup(debateID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

// List returns snapshots of all debates ordered by creation time
func (s *MemoryStore) List() []*debate.DebateState {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	states := make([]*debate.DebateState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		states = append(states, e.state.Clone())
		e.mu.Unlock()
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.Before(states[j].CreatedAt)
	})
	return states
}

// Update runs the mutator under the per-debate lock and returns a snapshot
// of the result. The mutator must not block on I/O and must not touch other
// debates; if it returns an error the record is left unchanged.
func (s *MemoryStore) Update(debateID string, mutate func(*debate.DebateState) error) (*debate.DebateState, error) {
	e, err := s.lookup(debateID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Mutate a clone so a failed mutator leaves no partial writes behind
	draft := e.state.Clone()
	if err := mutate(draft); err != nil {
		return nil, err
	}
	e.state = draft

	return draft.Clone(), nil
}

// Delete removes the debate with the given ID
func (s *MemoryStore) Delete(debateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[debateID]; !exists {
		return debate.ErrNotFound
	}
	delete(s.entries, debateID)
	return nil
}

func (s *MemoryStore) lookup(debateID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[debateID]
	if !exists {
		return nil, debate.ErrNotFound
	}
	return e, nil
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
