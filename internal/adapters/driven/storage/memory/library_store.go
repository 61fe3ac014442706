package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// Ensure LibraryStore implements the interface.
var _ driven.LibraryStore = (*LibraryStore)(nil)

// LibraryStore is an in-memory implementation of driven.LibraryStore.
type LibraryStore struct {
	mu        sync.RWMutex
	libraries map[string]domain.Library
}

// NewLibraryStore creates a new in-memory library store.
func NewLibraryStore() *LibraryStore {
	return &LibraryStore{libraries: make(map[string]domain.Library)}
}

// Save stores or updates a library.
func (s *LibraryStore) Save(_ context.Context, library domain.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libraries[library.ID] = library
	return nil
}

// Get retrieves a library by ID.
func (s *LibraryStore) Get(_ context.Context, id string) (*domain.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lib, ok := s.libraries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &lib, nil
}

// List returns all libraries.
func (s *LibraryStore) List(_ context.Context) ([]domain.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Library
	for id := range s.libraries {
		result = append(result, s.libraries[id])
	}
	return result, nil
}

// Delete removes a library.
func (s *LibraryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.libraries[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.libraries, id)
	return nil
}

// TouchLastScan updates the library's last-scan timestamp.
func (s *LibraryStore) TouchLastScan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lib, ok := s.libraries[id]
	if !ok {
		return domain.ErrNotFound
	}
	lib.LastScan = time.Now().UTC()
	lib.UpdatedAt = lib.LastScan
	s.libraries[id] = lib
	return nil
}
