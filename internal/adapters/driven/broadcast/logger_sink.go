// Package broadcast delivers scan progress snapshots to the console.
package broadcast

import (
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
	"github.com/custodia-labs/lectern-cli/internal/logger"
)

// Ensure LoggerSink implements the interface.
var _ driven.ProgressSink = (*LoggerSink)(nil)

// LoggerSink writes progress snapshots through the CLI logger. A rate
// limiter thins out mid-scan updates; terminal snapshots always pass so
// the last state a caller sees is the final one.
type LoggerSink struct {
	limiter *rate.Limiter
}

// NewLoggerSink creates a sink that emits at most one mid-scan update
// per interval.
func NewLoggerSink(interval time.Duration) *LoggerSink {
	return &LoggerSink{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Broadcast logs a snapshot. Never blocks.
func (s *LoggerSink) Broadcast(snapshot domain.ProgressSnapshot) {
	if !snapshot.Status.Terminal() && !s.limiter.Allow() {
		return
	}
	if payload, err := json.Marshal(snapshot); err == nil {
		logger.Debug("scan progress: %s", payload)
	}
	if snapshot.Status.Terminal() {
		logger.Info("Scan %s: %s %d%% (%d/%d files, %d added, %d skipped, %d errors)",
			snapshot.TaskID, snapshot.Status, snapshot.Progress,
			snapshot.ProcessedFiles, snapshot.TotalFiles,
			snapshot.AddedBooks, snapshot.SkippedBooks, snapshot.ErrorCount)
	}
}
