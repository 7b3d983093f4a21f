package draft

import (
	"context"
	"sync"
	"time"
)

// Store persists drafts. Implementations hand out copies: mutating a returned
// draft has no effect until it is Put back.
type Store interface {
	Get(ctx context.Context, id string) (*Draft, bool, error)
	Put(ctx context.Context, d *Draft) error
	Delete(ctx context.Context, id string) error
	// Sweep removes drafts last updated before cutoff and reports how many.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// StatusCounter is implemented by stores that can summarise their drafts.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]*Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: map[string]*Draft{}}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Draft, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, false, nil
	}
	return d.Clone(), true, nil
}

func (s *MemoryStore) Put(_ context.Context, d *Draft) error {
	c := d.Clone()
	s.mu.Lock()
	s.drafts[d.ConversationID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, d := range s.drafts {
		if d.UpdatedAt.Before(cutoff) {
			delete(s.drafts, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) CountByStatus(context.Context) (map[Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[Status]int{}
	for _, d := range s.drafts {
		out[d.Status]++
	}
	return out, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drafts)
}
