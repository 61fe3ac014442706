package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// taskStore implements driven.TaskStore.
type taskStore struct {
	store *Store
}

var _ driven.TaskStore = (*taskStore)(nil)

const taskColumns = `id, library_id, status, total_files, processed_files,
	added_books, skipped_books, error_count, errors, message,
	created_at, started_at, finished_at`

// Save stores or updates a scan task snapshot.
func (s *taskStore) Save(ctx context.Context, task *domain.ScanTask) error {
	errorsJSON, err := json.Marshal(task.Errors)
	if err != nil {
		return fmt.Errorf("marshalling errors: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO scan_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_files = excluded.total_files,
			processed_files = excluded.processed_files,
			added_books = excluded.added_books,
			skipped_books = excluded.skipped_books,
			error_count = excluded.error_count,
			errors = excluded.errors,
			message = excluded.message,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, task.ID, task.LibraryID, string(task.Status), task.TotalFiles,
		task.ProcessedFiles, task.AddedBooks, task.SkippedBooks,
		task.ErrorCount, string(errorsJSON), task.Message,
		task.CreatedAt, nullTime(task.StartedAt), nullTime(task.FinishedAt))
	if err != nil {
		return fmt.Errorf("saving scan task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *taskStore) Get(ctx context.Context, id string) (*domain.ScanTask, error) {
	row := s.store.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scan_tasks WHERE id = ?`, id)
	return scanTask(row)
}

// List returns a library's tasks, most recent first.
func (s *taskStore) List(ctx context.Context, libraryID string) ([]domain.ScanTask, error) {
	rows, err := s.store.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scan_tasks WHERE library_id = ? ORDER BY created_at DESC`,
		libraryID)
	if err != nil {
		return nil, fmt.Errorf("querying scan tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ScanTask //nolint:prealloc // size unknown from query
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scan tasks: %w", err)
	}
	return tasks, nil
}

// FindRunning returns the library's non-terminal task, nil when all of
// its tasks have finished.
func (s *taskStore) FindRunning(ctx context.Context, libraryID string) (*domain.ScanTask, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM scan_tasks
		WHERE library_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1
	`, libraryID, string(domain.TaskPending), string(domain.TaskRunning))
	task, err := scanTask(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return task, err
}

func scanTask(row rowScanner) (*domain.ScanTask, error) {
	var task domain.ScanTask
	var errorsJSON string
	var startedAt, finishedAt sql.NullTime
	err := row.Scan(&task.ID, &task.LibraryID, &task.Status, &task.TotalFiles,
		&task.ProcessedFiles, &task.AddedBooks, &task.SkippedBooks,
		&task.ErrorCount, &errorsJSON, &task.Message,
		&task.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning scan task: %w", err)
	}
	if startedAt.Valid {
		task.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		task.FinishedAt = finishedAt.Time
	}
	if errorsJSON != jsonNull && errorsJSON != "" {
		if err := json.Unmarshal([]byte(errorsJSON), &task.Errors); err != nil {
			return nil, fmt.Errorf("unmarshalling task errors: %w", err)
		}
	}
	return &task, nil
}
