package services

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driving"
	"github.com/custodia-labs/lectern-cli/internal/logger"
)

// Ensure ScanOrchestrator implements the interface.
var _ driving.ScanOrchestrator = (*ScanOrchestrator)(nil)

const (
	// batchSize bounds how many files one persistence round covers.
	batchSize = 100
	// progressInterval is how many processed files pass between status
	// persists and broadcasts.
	progressInterval = 1000
	// hashSampleBytes is how much leading content feeds the content
	// hash; whole-file hashing would defeat scans of huge libraries.
	hashSampleBytes = 1 << 20
)

// activeTask is the in-memory handle for one running scan. The persisted
// snapshot is the source of truth; this only carries the live mutable
// state and the cancellation flag.
type activeTask struct {
	mu        sync.Mutex
	task      *domain.ScanTask
	cancelled atomic.Bool
	done      chan struct{}
}

func (a *activeTask) snapshot() domain.ScanTask {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := *a.task
	cp.Errors = append([]domain.ScanError(nil), a.task.Errors...)
	return cp
}

// ScanOrchestrator coordinates background library scans.
type ScanOrchestrator struct {
	libraries driven.LibraryStore
	books     driven.BookStore
	tasks     driven.TaskStore
	registry  driven.ExtractorRegistry
	dedup     driven.Deduplicator
	sink      driven.ProgressSink

	mu     sync.RWMutex
	active map[string]*activeTask
}

// NewScanOrchestrator creates a scan orchestrator.
func NewScanOrchestrator(
	libraries driven.LibraryStore,
	books driven.BookStore,
	tasks driven.TaskStore,
	registry driven.ExtractorRegistry,
	dedup driven.Deduplicator,
	sink driven.ProgressSink,
) *ScanOrchestrator {
	return &ScanOrchestrator{
		libraries: libraries,
		books:     books,
		tasks:     tasks,
		registry:  registry,
		dedup:     dedup,
		sink:      sink,
		active:    make(map[string]*activeTask),
	}
}

// StartScan creates and launches a scan task for a library.
//
// The admission check is advisory: scan creation is an explicit,
// infrequent administrative action, so the narrow race between check
// and creation is accepted rather than paid for with a lock.
func (o *ScanOrchestrator) StartScan(ctx context.Context, libraryID string) (string, error) {
	library, err := o.libraries.Get(ctx, libraryID)
	if err != nil {
		return "", fmt.Errorf("get library: %w", err)
	}

	running, err := o.tasks.FindRunning(ctx, libraryID)
	if err != nil {
		return "", fmt.Errorf("check running tasks: %w", err)
	}
	if running != nil {
		return "", fmt.Errorf("%w: task %s", domain.ErrScanConflict, running.ID)
	}

	task := &domain.ScanTask{
		ID:        uuid.New().String(),
		LibraryID: library.ID,
		Status:    domain.TaskPending,
		CreatedAt: time.Now(),
	}
	if err := o.tasks.Save(ctx, task); err != nil {
		return "", fmt.Errorf("save task: %w", err)
	}

	handle := &activeTask{task: task, done: make(chan struct{})}
	o.mu.Lock()
	o.active[task.ID] = handle
	o.mu.Unlock()

	logger.Info("Starting scan %s for library %s", task.ID, library.ID)
	go o.run(context.WithoutCancel(ctx), library, handle)

	return task.ID, nil
}

// TaskStatus returns a snapshot of the task's current state.
func (o *ScanOrchestrator) TaskStatus(ctx context.Context, taskID string) (*domain.ScanTask, error) {
	o.mu.RLock()
	handle, ok := o.active[taskID]
	o.mu.RUnlock()
	if ok {
		cp := handle.snapshot()
		return &cp, nil
	}
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

// CancelScan sets the cooperative cancellation flag. The worker observes
// it at its next batch boundary; in-flight work is not aborted.
func (o *ScanOrchestrator) CancelScan(_ context.Context, taskID string) (bool, error) {
	o.mu.RLock()
	handle, ok := o.active[taskID]
	o.mu.RUnlock()
	if !ok {
		return false, nil
	}
	handle.cancelled.Store(true)
	logger.Info("Cancellation requested for scan %s", taskID)
	return true, nil
}

// Wait blocks until the task reaches a terminal state.
func (o *ScanOrchestrator) Wait(ctx context.Context, taskID string) error {
	o.mu.RLock()
	handle, ok := o.active[taskID]
	o.mu.RUnlock()
	if !ok {
		return nil // already terminal (or unknown; TaskStatus disambiguates)
	}
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run drives one scan to a terminal state. Per-file failures are
// recovered locally; only library-level problems fail the whole task.
func (o *ScanOrchestrator) run(ctx context.Context, library *domain.Library, handle *activeTask) {
	defer func() {
		close(handle.done)
		o.mu.Lock()
		delete(o.active, handle.task.ID)
		o.mu.Unlock()
	}()

	paths := library.EnabledPaths()
	if len(paths) == 0 {
		o.finish(ctx, handle, domain.TaskFailed, domain.ErrLibraryDisabled.Error())
		return
	}
	var roots []string
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			roots = append(roots, p)
		}
	}
	if len(roots) == 0 {
		o.finish(ctx, handle, domain.TaskFailed, "no configured library path exists")
		return
	}

	handle.mu.Lock()
	handle.task.Status = domain.TaskRunning
	handle.task.StartedAt = time.Now()
	handle.mu.Unlock()
	o.persist(ctx, handle)
	o.broadcast(handle)

	extensions := make(map[string]bool)
	for _, ext := range o.registry.Extensions() {
		extensions["."+ext] = true
	}

	// Counting pass: totals for progress percentages without holding
	// paths in memory.
	total := 0
	for _, root := range roots {
		total += countFiles(root, extensions)
	}
	handle.mu.Lock()
	handle.task.TotalFiles = total
	handle.mu.Unlock()

	// Processing pass: stream paths into fixed-size batches.
	batch := make([]string, 0, batchSize)
	cancelled := false
	for _, root := range roots {
		if cancelled {
			break
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Debug("Walk error at %s: %v", path, err)
				return nil //nolint:nilerr // unreadable entries are skipped, not fatal
			}
			if d.IsDir() || !extensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			batch = append(batch, path)
			if len(batch) == batchSize {
				o.processBatch(ctx, library, handle, batch)
				batch = batch[:0]
				if handle.cancelled.Load() {
					cancelled = true
					return fs.SkipAll
				}
			}
			return nil
		})
		if err != nil {
			logger.Warn("Walk of %s aborted: %v", root, err)
		}
	}
	if !cancelled && len(batch) > 0 {
		o.processBatch(ctx, library, handle, batch)
		cancelled = handle.cancelled.Load()
	}

	if cancelled {
		o.finish(ctx, handle, domain.TaskCancelled, "")
		return
	}
	if err := o.libraries.TouchLastScan(ctx, library.ID); err != nil {
		logger.Warn("Failed to update last scan time for %s: %v", library.ID, err)
	}
	o.finish(ctx, handle, domain.TaskCompleted, "")
}

// processBatch extracts, deduplicates and persists one batch of files.
// State is committed once per batch to bound transaction size.
func (o *ScanOrchestrator) processBatch(ctx context.Context, library *domain.Library, handle *activeTask, batch []string) {
	for _, path := range batch {
		err := o.processFile(ctx, library, handle, path)

		handle.mu.Lock()
		handle.task.ProcessedFiles++
		if err != nil {
			handle.task.RecordError(path, errorType(err), err.Error())
			logger.Debug("Failed to process %s: %v", path, err)
		}
		processed := handle.task.ProcessedFiles
		handle.mu.Unlock()

		if processed%progressInterval == 0 {
			o.persist(ctx, handle)
			o.broadcast(handle)
		}
	}
	o.persist(ctx, handle)
}

// processFile runs the per-file pipeline. A panicking format parser is
// contained here: it becomes a per-file error, never a dead scan.
func (o *ScanOrchestrator) processFile(ctx context.Context, library *domain.Library, handle *activeTask, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()

	extractor, err := o.registry.ForPath(path)
	if err != nil {
		return err
	}
	meta, err := extractor.Extract(ctx, path)
	if err != nil {
		return fmt.Errorf("extract metadata: %w", err)
	}

	result, err := o.dedup.CheckDuplicate(ctx, path, meta.Title, meta.Author)
	if err != nil {
		return fmt.Errorf("check duplicate: %w", err)
	}
	if result.Action == domain.DedupSkip {
		handle.mu.Lock()
		handle.task.SkippedBooks++
		handle.mu.Unlock()
		logger.Debug("Skipping %s: %s", path, result.Reason)
		return nil
	}

	book, err := buildBook(library.ID, path, meta)
	if err != nil {
		return err
	}
	if err := o.books.Save(ctx, *book); err != nil {
		return fmt.Errorf("save book: %w", err)
	}

	handle.mu.Lock()
	handle.task.AddedBooks++
	handle.mu.Unlock()
	return nil
}

// finish moves the task to a terminal state, persists the bounded error
// log and always sends a final broadcast.
func (o *ScanOrchestrator) finish(ctx context.Context, handle *activeTask, status domain.TaskStatus, message string) {
	handle.mu.Lock()
	handle.task.Status = status
	handle.task.Message = message
	handle.task.FinishedAt = time.Now()
	handle.mu.Unlock()

	o.persist(ctx, handle)
	o.broadcast(handle)

	snap := handle.snapshot()
	logger.Info("Scan %s %s: %d/%d files, %d added, %d skipped, %d errors",
		snap.ID, status, snap.ProcessedFiles, snap.TotalFiles,
		snap.AddedBooks, snap.SkippedBooks, snap.ErrorCount)
}

func (o *ScanOrchestrator) persist(ctx context.Context, handle *activeTask) {
	snap := handle.snapshot()
	if err := o.tasks.Save(ctx, &snap); err != nil {
		logger.Warn("Failed to persist task %s: %v", snap.ID, err)
	}
}

func (o *ScanOrchestrator) broadcast(handle *activeTask) {
	if o.sink == nil {
		return
	}
	snap := handle.snapshot()
	o.sink.Broadcast(snap.Snapshot())
}

// buildBook assembles the persistent record for a scanned file.
func buildBook(libraryID, path string, meta *domain.Metadata) (*domain.Book, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	hash, err := contentHash(path, info.Size())
	if err != nil {
		return nil, err
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return &domain.Book{
		ID:          uuid.New().String(),
		LibraryID:   libraryID,
		Path:        path,
		Format:      format,
		Title:       meta.Title,
		Author:      meta.Author,
		Description: meta.Description,
		Publisher:   meta.Publisher,
		CoverPath:   meta.CoverPath,
		Tags:        meta.Tags,
		ContentHash: hash,
		QualityTier: qualityTier(format),
		SizeBytes:   info.Size(),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}, nil
}

// contentHash hashes the file size plus a leading sample.
func contentHash(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	fmt.Fprintf(h, "%d|", size)
	if _, err := io.CopyN(h, f, hashSampleBytes); err != nil && err != io.EOF {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// qualityTier orders formats for version deduplication.
func qualityTier(format string) int {
	switch format {
	case "epub":
		return 3
	case "mobi", "azw", "prc":
		return 2
	default:
		return 1
	}
}

// countFiles streams a directory tree counting matching files.
func countFiles(root string, extensions map[string]bool) int {
	count := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr
		}
		if !d.IsDir() && extensions[strings.ToLower(filepath.Ext(path))] {
			count++
		}
		return nil
	})
	return count
}

// errorType labels a per-file error for the bounded log.
func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, domain.ErrEncodingUndetermined):
		return "encoding_undetermined"
	case errors.Is(err, domain.ErrExtractionOversize):
		return "extraction_oversize"
	case errors.Is(err, domain.ErrExtractionTimeout):
		return "extraction_timeout"
	case errors.Is(err, domain.ErrExtractionCrashed):
		return "extraction_crashed"
	default:
		return "scan_error"
	}
}
