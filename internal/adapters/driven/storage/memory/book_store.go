package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// Ensure BookStore implements the interface.
var _ driven.BookStore = (*BookStore)(nil)

// BookStore is an in-memory implementation of driven.BookStore.
type BookStore struct {
	mu    sync.RWMutex
	books map[string]domain.Book
}

// NewBookStore creates a new in-memory book store.
func NewBookStore() *BookStore {
	return &BookStore{books: make(map[string]domain.Book)}
}

// Save stores or updates a book.
func (s *BookStore) Save(_ context.Context, book domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book.ID] = book
	return nil
}

// Get retrieves a book by ID.
func (s *BookStore) Get(_ context.Context, id string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	book, ok := s.books[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &book, nil
}

// List returns all books in a library.
func (s *BookStore) List(_ context.Context, libraryID string) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.Book
	for id := range s.books {
		book := s.books[id]
		if book.LibraryID == libraryID {
			result = append(result, book)
		}
	}
	return result, nil
}

// FindByPath returns the book at a source path, nil when none exists.
func (s *BookStore) FindByPath(_ context.Context, path string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.books {
		book := s.books[id]
		if book.Path == path {
			return &book, nil
		}
	}
	return nil, nil
}

// FindByTitleAuthor returns a book with the same title and author, nil
// when none exists.
func (s *BookStore) FindByTitleAuthor(_ context.Context, title, author string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.books {
		book := s.books[id]
		if book.Title == title && book.Author == author {
			return &book, nil
		}
	}
	return nil, nil
}

// Delete removes a book.
func (s *BookStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.books, id)
	return nil
}
