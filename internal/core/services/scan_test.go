package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern-cli/internal/adapters/driven/dedup"
	"github.com/custodia-labs/lectern-cli/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// --- Mocks ---

// mockExtractor handles .txt files and fails or blocks on demand.
type mockExtractor struct {
	mu      sync.Mutex
	block   chan struct{} // when set, Extract waits on it
	sawPath []string
}

func (m *mockExtractor) Extensions() []string { return []string{"txt"} }

func (m *mockExtractor) Extract(_ context.Context, path string) (*domain.Metadata, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.sawPath = append(m.sawPath, path)
	m.mu.Unlock()

	base := filepath.Base(path)
	if strings.Contains(base, "bad") {
		return nil, domain.ErrUnsupportedFormat
	}
	if strings.Contains(base, "panic") {
		panic("malformed container")
	}
	return &domain.Metadata{Title: strings.TrimSuffix(base, ".txt")}, nil
}

// mockRegistry returns the single extractor for .txt paths.
type mockRegistry struct {
	extractor driven.MetadataExtractor
}

func (m *mockRegistry) ForPath(path string) (driven.MetadataExtractor, error) {
	if strings.ToLower(filepath.Ext(path)) != ".txt" {
		return nil, domain.ErrUnsupportedFormat
	}
	return m.extractor, nil
}

func (m *mockRegistry) Extensions() []string { return m.extractor.Extensions() }

// mockSink records every broadcast snapshot.
type mockSink struct {
	mu        sync.Mutex
	snapshots []domain.ProgressSnapshot
}

func (m *mockSink) Broadcast(snapshot domain.ProgressSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
}

func (m *mockSink) last(t *testing.T) domain.ProgressSnapshot {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.snapshots)
	return m.snapshots[len(m.snapshots)-1]
}

// --- Fixtures ---

type scanFixture struct {
	orch      *ScanOrchestrator
	libraries *memory.LibraryStore
	books     *memory.BookStore
	tasks     *memory.TaskStore
	extractor *mockExtractor
	sink      *mockSink
	library   domain.Library
}

func newScanFixture(t *testing.T, dir string) *scanFixture {
	t.Helper()
	f := &scanFixture{
		libraries: memory.NewLibraryStore(),
		books:     memory.NewBookStore(),
		tasks:     memory.NewTaskStore(),
		extractor: &mockExtractor{},
		sink:      &mockSink{},
	}
	f.orch = NewScanOrchestrator(
		f.libraries, f.books, f.tasks,
		&mockRegistry{extractor: f.extractor},
		dedup.NewChecker(f.books),
		f.sink,
	)
	f.library = domain.Library{
		ID:      uuid.New().String(),
		Name:    "shelf",
		Enabled: true,
		Paths:   []domain.LibraryPath{{Path: dir, Enabled: true}},
	}
	require.NoError(t, f.libraries.Save(context.Background(), f.library))
	return f
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0o644))
	}
}

func waitForStatus(t *testing.T, f *scanFixture, taskID string, status domain.TaskStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		task, err := f.orch.TaskStatus(context.Background(), taskID)
		if err == nil && task.Status == status {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", taskID, status)
}

// --- Tests ---

func TestScanCompletesWithPartialFailures(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "one.txt", "two.txt", "three.txt", "bad.txt")
	f := newScanFixture(t, dir)

	ctx := context.Background()
	taskID, err := f.orch.StartScan(ctx, f.library.ID)
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(ctx, taskID))

	task, err := f.orch.TaskStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, 4, task.TotalFiles)
	assert.Equal(t, 4, task.ProcessedFiles)
	assert.Equal(t, 3, task.AddedBooks)
	assert.Equal(t, 0, task.SkippedBooks)
	assert.Equal(t, 1, task.ErrorCount)
	require.Len(t, task.Errors, 1)
	assert.Contains(t, task.Errors[0].File, "bad.txt")

	books, err := f.books.List(ctx, f.library.ID)
	require.NoError(t, err)
	assert.Len(t, books, 3)

	// The final broadcast carries the terminal state.
	last := f.sink.last(t)
	assert.Equal(t, domain.TaskCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)

	// The library's last scan time was touched.
	lib, err := f.libraries.Get(ctx, f.library.ID)
	require.NoError(t, err)
	assert.False(t, lib.LastScan.IsZero())
}

func TestScanIsolatesPanickingExtractor(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "fine.txt", "panic.txt")
	f := newScanFixture(t, dir)

	ctx := context.Background()
	taskID, err := f.orch.StartScan(ctx, f.library.ID)
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(ctx, taskID))

	task, err := f.orch.TaskStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, 1, task.AddedBooks)
	assert.Equal(t, 1, task.ErrorCount)
	require.Len(t, task.Errors, 1)
	assert.Contains(t, task.Errors[0].Message, "panic")
}

func TestScanRescanSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "one.txt", "two.txt")
	f := newScanFixture(t, dir)
	ctx := context.Background()

	first, err := f.orch.StartScan(ctx, f.library.ID)
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(ctx, first))

	second, err := f.orch.StartScan(ctx, f.library.ID)
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(ctx, second))

	task, err := f.orch.TaskStatus(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, task.Status)
	assert.Equal(t, 0, task.AddedBooks)
	assert.Equal(t, 2, task.SkippedBooks)

	books, err := f.books.List(ctx, f.library.ID)
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

func TestScanConflictWhileRunning(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "one.txt")
	f := newScanFixture(t, dir)
	f.extractor.block = make(chan struct{})

	ctx := context.Background()
	taskID, err := f.orch.StartScan(ctx, f.library.ID)
	require.NoError(t, err)

	_, err = f.orch.StartScan(ctx, f.library.ID)
	assert.ErrorIs(t, err, domain.ErrScanConflict)

	close(f.extractor.block)
	require.NoError(t, f.orch.Wait(ctx, taskID))
	waitForStatus(t, f, taskID, domain.TaskCompleted)

	// Once terminal, a new scan is admitted again.
	next, err := f.orch.StartScan(ctx, f.library.ID)
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(ctx, next))
}

func TestScanCancellation(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "one.txt")
	f := newScanFixture(t, dir)
	f.extractor.block = make(chan struct{})

	ctx := context.Background()
	taskID, err := f.orch.StartScan(ctx, f.library.ID)
	require.NoError(t, err)
	waitForStatus(t, f, taskID, domain.TaskRunning)

	cancelled, err := f.orch.CancelScan(ctx, taskID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	close(f.extractor.block)
	require.NoError(t, f.orch.Wait(ctx, taskID))

	task, err := f.orch.TaskStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, task.Status)

	// Cancelling a finished task is a no-op.
	cancelled, err = f.orch.CancelScan(ctx, taskID)
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestScanFailsForUnknownOrDisabledLibrary(t *testing.T) {
	dir := t.TempDir()
	f := newScanFixture(t, dir)
	ctx := context.Background()

	_, err := f.orch.StartScan(ctx, "no-such-library")
	assert.Error(t, err)

	disabled := f.library
	disabled.ID = uuid.New().String()
	disabled.Enabled = false
	require.NoError(t, f.libraries.Save(ctx, disabled))

	taskID, err := f.orch.StartScan(ctx, disabled.ID)
	require.NoError(t, err)
	require.NoError(t, f.orch.Wait(ctx, taskID))

	task, err := f.orch.TaskStatus(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, task.Status)
	assert.Equal(t, domain.ErrLibraryDisabled.Error(), task.Message)
}

func TestTaskStatusUnknownTask(t *testing.T) {
	f := newScanFixture(t, t.TempDir())
	_, err := f.orch.TaskStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
