package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// bookStore implements driven.BookStore.
type bookStore struct {
	store *Store
}

var _ driven.BookStore = (*bookStore)(nil)

const bookColumns = `id, library_id, path, format, title, author, description,
	publisher, cover_path, tags, content_hash, quality_tier, size_bytes,
	created_at, updated_at`

// Save stores or updates a book.
func (s *bookStore) Save(ctx context.Context, book domain.Book) error {
	tagsJSON, err := json.Marshal(book.Tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			format = excluded.format,
			title = excluded.title,
			author = excluded.author,
			description = excluded.description,
			publisher = excluded.publisher,
			cover_path = excluded.cover_path,
			tags = excluded.tags,
			content_hash = excluded.content_hash,
			quality_tier = excluded.quality_tier,
			size_bytes = excluded.size_bytes,
			updated_at = excluded.updated_at
	`, book.ID, book.LibraryID, book.Path, book.Format, book.Title, book.Author,
		book.Description, book.Publisher, book.CoverPath, string(tagsJSON),
		book.ContentHash, book.QualityTier, book.SizeBytes,
		book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving book: %w", err)
	}
	return nil
}

// Get retrieves a book by ID.
func (s *bookStore) Get(ctx context.Context, id string) (*domain.Book, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	return scanBook(row)
}

// List returns all books in a library.
func (s *bookStore) List(ctx context.Context, libraryID string) ([]domain.Book, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE library_id = ? ORDER BY title`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("querying books: %w", err)
	}
	defer rows.Close()

	var books []domain.Book //nolint:prealloc // size unknown from query
	for rows.Next() {
		book, err := scanBookRows(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *book)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating books: %w", err)
	}
	return books, nil
}

// FindByPath returns the book at a source path, nil when none exists.
func (s *bookStore) FindByPath(ctx context.Context, path string) (*domain.Book, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE path = ? LIMIT 1`, path)
	book, err := scanBook(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return book, err
}

// FindByTitleAuthor returns a book with the same title and author, nil
// when none exists.
func (s *bookStore) FindByTitleAuthor(ctx context.Context, title, author string) (*domain.Book, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE title = ? AND author = ? LIMIT 1`, title, author)
	book, err := scanBook(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return book, err
}

// Delete removes a book.
func (s *bookStore) Delete(ctx context.Context, id string) error {
	result, err := s.store.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting book: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*domain.Book, error) {
	book, err := scanBookRows(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return book, err
}

func scanBookRows(row rowScanner) (*domain.Book, error) {
	var book domain.Book
	var tagsJSON string
	err := row.Scan(&book.ID, &book.LibraryID, &book.Path, &book.Format,
		&book.Title, &book.Author, &book.Description, &book.Publisher,
		&book.CoverPath, &tagsJSON, &book.ContentHash, &book.QualityTier,
		&book.SizeBytes, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning book: %w", err)
	}
	if tagsJSON != jsonNull && tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &book.Tags); err != nil {
			return nil, fmt.Errorf("unmarshalling tags: %w", err)
		}
	}
	return &book, nil
}
