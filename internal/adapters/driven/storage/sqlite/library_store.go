package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// libraryStore implements driven.LibraryStore.
type libraryStore struct {
	store *Store
}

var _ driven.LibraryStore = (*libraryStore)(nil)

// Save stores or updates a library and replaces its scan roots.
func (s *libraryStore) Save(ctx context.Context, library domain.Library) error {
	now := time.Now().UTC()
	if library.CreatedAt.IsZero() {
		library.CreatedAt = now
	}
	library.UpdatedAt = now

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO libraries (id, name, enabled, last_scan, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			last_scan = excluded.last_scan,
			updated_at = excluded.updated_at
	`, library.ID, library.Name, library.Enabled, nullTime(library.LastScan),
		library.CreatedAt, library.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving library: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM library_paths WHERE library_id = ?`, library.ID); err != nil {
		return fmt.Errorf("clearing library paths: %w", err)
	}
	for _, p := range library.Paths {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO library_paths (library_id, path, enabled) VALUES (?, ?, ?)
		`, library.ID, p.Path, p.Enabled); err != nil {
			return fmt.Errorf("saving library path: %w", err)
		}
	}

	return tx.Commit()
}

// Get retrieves a library by ID.
func (s *libraryStore) Get(ctx context.Context, id string) (*domain.Library, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, enabled, last_scan, created_at, updated_at
		FROM libraries WHERE id = ?
	`, id)

	var lib domain.Library
	var lastScan sql.NullTime
	err := row.Scan(&lib.ID, &lib.Name, &lib.Enabled, &lastScan, &lib.CreatedAt, &lib.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning library: %w", err)
	}
	if lastScan.Valid {
		lib.LastScan = lastScan.Time
	}

	if err := s.loadPaths(ctx, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// List returns all libraries.
func (s *libraryStore) List(ctx context.Context) ([]domain.Library, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, name, enabled, last_scan, created_at, updated_at
		FROM libraries ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying libraries: %w", err)
	}
	defer rows.Close()

	var libs []domain.Library //nolint:prealloc // size unknown from query
	for rows.Next() {
		var lib domain.Library
		var lastScan sql.NullTime
		if err := rows.Scan(&lib.ID, &lib.Name, &lib.Enabled, &lastScan, &lib.CreatedAt, &lib.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning library: %w", err)
		}
		if lastScan.Valid {
			lib.LastScan = lastScan.Time
		}
		libs = append(libs, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating libraries: %w", err)
	}

	for i := range libs {
		if err := s.loadPaths(ctx, &libs[i]); err != nil {
			return nil, err
		}
	}
	return libs, nil
}

// Delete removes a library and, via cascade, its paths and books.
func (s *libraryStore) Delete(ctx context.Context, id string) error {
	result, err := s.store.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting library: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TouchLastScan updates the library's last-scan timestamp.
func (s *libraryStore) TouchLastScan(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, `
		UPDATE libraries SET last_scan = ?, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating last scan: %w", err)
	}
	return nil
}

func (s *libraryStore) loadPaths(ctx context.Context, lib *domain.Library) error {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT path, enabled FROM library_paths WHERE library_id = ? ORDER BY path
	`, lib.ID)
	if err != nil {
		return fmt.Errorf("querying library paths: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.LibraryPath
		if err := rows.Scan(&p.Path, &p.Enabled); err != nil {
			return fmt.Errorf("scanning library path: %w", err)
		}
		lib.Paths = append(lib.Paths, p)
	}
	return rows.Err()
}

// nullTime converts a zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
