package index

import (
	"sync"

	"github.com/aiist007/24life/engine/domain"
)

// Store is the in-memory chunk collection. The indexer is its only writer;
// readers take snapshots.
type Store struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// Append adds chunks at the end of the store. Elements already visible to a
// snapshot are never modified.
func (s *Store) Append(chunks ...domain.Chunk) {
	if len(chunks) == 0 {
		return
	}
	s.mu.Lock()
	s.chunks = append(s.chunks, chunks...)
	s.mu.Unlock()
}

// Clear drops every chunk. Outstanding snapshots keep their contents.
func (s *Store) Clear() {
	s.mu.Lock()
	s.chunks = nil
	s.mu.Unlock()
}

// Snapshot returns the current contents. The capacity is clipped so a
// caller's append can never write into the store's backing array.
func (s *Store) Snapshot() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks[:len(s.chunks):len(s.chunks)]
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
