package platform

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/vocdoni/blindvote/log"
)

// Registry holds independent elections by ID.
type Registry struct {
	mu        sync.RWMutex
	elections map[uuid.UUID]*VotingPlatform
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{elections: make(map[uuid.UUID]*VotingPlatform)}
}

// Create adds a new uninitialized election and returns its ID.
func (r *Registry) Create(cfg Config) (uuid.UUID, *VotingPlatform) {
	id := uuid.New()
	p := New(cfg)
	r.mu.Lock()
	r.elections[id] = p
	r.mu.Unlock()
	log.Debugw("election created", "id", id.String())
	return id, p
}

// Get returns the election with the given ID.
func (r *Registry) Get(id uuid.UUID) (*VotingPlatform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.elections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElectionNotFound, id)
	}
	return p, nil
}

// Remove resets and forgets the election with the given ID.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	p, ok := r.elections[id]
	delete(r.elections, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrElectionNotFound, id)
	}
	p.Reset()
	return nil
}

// IDs returns the IDs of all elections in a stable order.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.elections))
	for id := range r.elections {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids
}
