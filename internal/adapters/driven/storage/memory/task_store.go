package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// Ensure TaskStore implements the interface.
var _ driven.TaskStore = (*TaskStore)(nil)

// TaskStore is an in-memory implementation of driven.TaskStore.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.ScanTask
}

// NewTaskStore creates a new in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]domain.ScanTask)}
}

// Save stores or updates a task snapshot.
func (s *TaskStore) Save(_ context.Context, task *domain.ScanTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *task
	copied.Errors = append([]domain.ScanError(nil), task.Errors...)
	s.tasks[task.ID] = copied
	return nil
}

// Get retrieves a task by ID.
func (s *TaskStore) Get(_ context.Context, id string) (*domain.ScanTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &task, nil
}

// List returns a library's tasks, most recent first.
func (s *TaskStore) List(_ context.Context, libraryID string) ([]domain.ScanTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []domain.ScanTask
	for id := range s.tasks {
		task := s.tasks[id]
		if task.LibraryID == libraryID {
			result = append(result, task)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// FindRunning returns the library's non-terminal task, nil when all of
// its tasks have finished.
func (s *TaskStore) FindRunning(_ context.Context, libraryID string) (*domain.ScanTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.tasks {
		task := s.tasks[id]
		if task.LibraryID == libraryID && !task.Status.Terminal() {
			return &task, nil
		}
	}
	return nil, nil
}
