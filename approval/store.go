package approval

import (
	"fmt"
	"sync"
)

// ResolutionListener observes approvals leaving the pending queue.
type ResolutionListener func(approvalID string)

// Store is the process-wide ordered collection of pending approvals. It is
// constructed once and handed to collaborators by reference; there is no
// package-level instance. Claim/Finalize make resolution idempotent: a
// second resolver of the same id loses the claim and observes
// ErrApprovalNotFound.
type Store struct {
	mu      sync.Mutex
	pending []Approval
	byID    map[string]Approval
	claimed map[string]bool
	subs    []ResolutionListener
}

func NewStore() *Store {
	return &Store{
		byID:    map[string]Approval{},
		claimed: map[string]bool{},
	}
}

// Add appends a pending approval. Ids are unique across the queue.
func (s *Store) Add(a Approval) error {
	id := a.Base().ID
	if id == "" {
		return fmt.Errorf("approval has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.byID[id]; found {
		return fmt.Errorf("approval %s already queued", id)
	}
	s.pending = append(s.pending, a)
	s.byID[id] = a
	return nil
}

// Get returns a pending approval without claiming it. Presentation layers
// use this for read-only projections.
func (s *Store) Get(id string) (Approval, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.byID[id]
	return a, found
}

// List returns pending approvals in arrival order.
func (s *Store) List() []Approval {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]Approval, len(s.pending))
	copy(result, s.pending)
	return result
}

// Claim atomically takes an approval for resolution. It fails if the id is
// unknown or the approval is already claimed.
func (s *Store) Claim(id string) (Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.byID[id]
	if !found || s.claimed[id] {
		return nil, fmt.Errorf("approval %s: %w", id, ErrApprovalNotFound)
	}
	s.claimed[id] = true
	return a, nil
}

// Finalize removes a resolved approval and notifies listeners. Safe to call
// once per claim; unknown ids are ignored.
func (s *Store) Finalize(id string) {
	s.mu.Lock()
	if _, found := s.byID[id]; !found {
		s.mu.Unlock()
		return
	}
	delete(s.byID, id)
	delete(s.claimed, id)
	for i := range s.pending {
		if s.pending[i].Base().ID == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	subs := append([]ResolutionListener{}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id)
	}
}

// Subscribe registers a listener for resolution events.
func (s *Store) Subscribe(fn ResolutionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}
