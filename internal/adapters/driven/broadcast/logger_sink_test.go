package broadcast

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/logger"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger.SetVerbose(true)
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetVerbose(false)
		logger.SetOutput(os.Stderr)
	})
	return &buf
}

func snapshot(status domain.TaskStatus, processed int) domain.ProgressSnapshot {
	task := domain.ScanTask{
		ID:             "task-1",
		LibraryID:      "lib-1",
		Status:         status,
		TotalFiles:     10,
		ProcessedFiles: processed,
	}
	return task.Snapshot()
}

func TestBroadcastThrottlesMidScanUpdates(t *testing.T) {
	buf := captureLogs(t)
	sink := NewLoggerSink(time.Hour)

	for i := 1; i <= 5; i++ {
		sink.Broadcast(snapshot(domain.TaskRunning, i))
	}

	// The limiter admits one burst token; the rest are dropped.
	assert.Equal(t, 1, strings.Count(buf.String(), "scan progress"))
}

func TestBroadcastTerminalAlwaysPasses(t *testing.T) {
	buf := captureLogs(t)
	sink := NewLoggerSink(time.Hour)

	sink.Broadcast(snapshot(domain.TaskRunning, 1))
	sink.Broadcast(snapshot(domain.TaskCompleted, 10))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "scan progress"))
	assert.Contains(t, out, "Scan task-1: completed 100%")
}

func TestBroadcastQuietWithoutVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger.SetVerbose(false)
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stderr) })

	sink := NewLoggerSink(time.Hour)
	sink.Broadcast(snapshot(domain.TaskCompleted, 10))

	assert.Empty(t, buf.String())
}
