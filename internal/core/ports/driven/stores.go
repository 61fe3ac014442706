package driven

import (
	"context"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// LibraryStore persists libraries and their scan roots.
type LibraryStore interface {
	Save(ctx context.Context, library domain.Library) error
	Get(ctx context.Context, id string) (*domain.Library, error)
	List(ctx context.Context) ([]domain.Library, error)
	Delete(ctx context.Context, id string) error

	// TouchLastScan updates the library's last-scan timestamp.
	TouchLastScan(ctx context.Context, id string) error
}

// BookStore persists finalised book records. It owns the write
// transaction and schema; the scan worker only hands it records.
type BookStore interface {
	Save(ctx context.Context, book domain.Book) error
	Get(ctx context.Context, id string) (*domain.Book, error)
	List(ctx context.Context, libraryID string) ([]domain.Book, error)
	FindByPath(ctx context.Context, path string) (*domain.Book, error)
	FindByTitleAuthor(ctx context.Context, title, author string) (*domain.Book, error)
	Delete(ctx context.Context, id string) error
}

// TaskStore persists scan task snapshots so status survives a process
// restart; the in-memory registry is not the source of truth.
type TaskStore interface {
	Save(ctx context.Context, task *domain.ScanTask) error
	Get(ctx context.Context, id string) (*domain.ScanTask, error)
	List(ctx context.Context, libraryID string) ([]domain.ScanTask, error)

	// FindRunning returns the non-terminal task for a library, nil when
	// there is none.
	FindRunning(ctx context.Context, libraryID string) (*domain.ScanTask, error)
}

// ProgressSink receives scan status snapshots. Delivery is fire and
// forget; implementations must never block the scan worker.
type ProgressSink interface {
	Broadcast(snapshot domain.ProgressSnapshot)
}
