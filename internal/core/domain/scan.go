package domain

import "time"

// TaskStatus is the lifecycle state of a scan task.
// Transitions: pending -> running -> {completed | failed | cancelled}.
// The three end states are terminal; a task is never resurrected.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// MaxTaskErrors caps the per-task error log so a pathological library
// cannot grow an unbounded payload.
const MaxTaskErrors = 50

// ScanError is one sampled per-file failure from a scan.
type ScanError struct {
	File    string `json:"file"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ScanTask tracks one background library scan. It is mutated only by
// its owning worker and persisted for audit once terminal.
type ScanTask struct {
	ID        string
	LibraryID string
	Status    TaskStatus

	TotalFiles     int
	ProcessedFiles int
	AddedBooks     int
	SkippedBooks   int
	ErrorCount     int

	// Errors holds at most MaxTaskErrors sampled entries; ErrorCount is
	// the true total.
	Errors []ScanError

	// Message carries the primary error for failed tasks.
	Message string

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Progress returns the completion percentage, 0 when the total is not
// yet known.
func (t *ScanTask) Progress() int {
	if t.TotalFiles <= 0 {
		return 0
	}
	p := t.ProcessedFiles * 100 / t.TotalFiles
	if p > 100 {
		p = 100
	}
	return p
}

// RecordError increments the error counter and appends to the bounded
// error log if there is room.
func (t *ScanTask) RecordError(file, errType, message string) {
	t.ErrorCount++
	if len(t.Errors) < MaxTaskErrors {
		t.Errors = append(t.Errors, ScanError{File: file, Type: errType, Message: message})
	}
}

// ProgressSnapshot is the fire-and-forget status payload handed to
// broadcast sinks.
type ProgressSnapshot struct {
	Type           string     `json:"type"`
	TaskID         string     `json:"taskId"`
	LibraryID      string     `json:"libraryId"`
	Status         TaskStatus `json:"status"`
	Progress       int        `json:"progress"`
	TotalFiles     int        `json:"totalFiles"`
	ProcessedFiles int        `json:"processedFiles"`
	AddedBooks     int        `json:"addedBooks"`
	SkippedBooks   int        `json:"skippedBooks"`
	ErrorCount     int        `json:"errorCount"`
}

// Snapshot builds the broadcast payload for the task's current state.
func (t *ScanTask) Snapshot() ProgressSnapshot {
	return ProgressSnapshot{
		Type:           "scan_progress",
		TaskID:         t.ID,
		LibraryID:      t.LibraryID,
		Status:         t.Status,
		Progress:       t.Progress(),
		TotalFiles:     t.TotalFiles,
		ProcessedFiles: t.ProcessedFiles,
		AddedBooks:     t.AddedBooks,
		SkippedBooks:   t.SkippedBooks,
		ErrorCount:     t.ErrorCount,
	}
}
