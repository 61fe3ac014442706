package driving

import (
	"context"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// ScanOrchestrator runs background library scans.
type ScanOrchestrator interface {
	// StartScan creates and launches a scan task for a library. Returns
	// domain.ErrScanConflict when a task for the library is already
	// running.
	StartScan(ctx context.Context, libraryID string) (taskID string, err error)

	// TaskStatus returns a snapshot copy of the task's current state.
	TaskStatus(ctx context.Context, taskID string) (*domain.ScanTask, error)

	// CancelScan requests cooperative cancellation. Returns true if the
	// task was running and the flag was set.
	CancelScan(ctx context.Context, taskID string) (bool, error)

	// Wait blocks until the task reaches a terminal state. Used by the
	// CLI and tests; servers would poll TaskStatus instead.
	Wait(ctx context.Context, taskID string) error
}
