package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

var scanWatch bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan libraries for books",
}

var scanStartCmd = &cobra.Command{
	Use:   "start <library-id>",
	Short: "Scan a library and wait for completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanStart,
}

var scanStatusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the status of a scan task",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanStatus,
}

var scanCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanCancel,
}

var scanHistoryCmd = &cobra.Command{
	Use:   "history <library-id>",
	Short: "List past scans of a library",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanHistory,
}

func init() {
	scanStartCmd.Flags().BoolVar(&scanWatch, "watch", false,
		"keep watching the library paths and rescan on changes")
	scanCmd.AddCommand(scanStartCmd)
	scanCmd.AddCommand(scanStatusCmd)
	scanCmd.AddCommand(scanCancelCmd)
	scanCmd.AddCommand(scanHistoryCmd)
	rootCmd.AddCommand(scanCmd)
}

func runScanStart(cmd *cobra.Command, args []string) error {
	if scanOrchestrator == nil {
		return errors.New("scan service not configured")
	}

	ctx := context.Background()
	libraryID := args[0]

	taskID, err := scanOrchestrator.StartScan(ctx, libraryID)
	if err != nil {
		if errors.Is(err, domain.ErrScanConflict) {
			return fmt.Errorf("a scan of this library is already running: %w", err)
		}
		return fmt.Errorf("start scan: %w", err)
	}
	cmd.Printf("Scanning library %s (task %s)...\n", libraryID, taskID)

	if err := scanWithProgress(ctx, cmd, taskID); err != nil {
		return err
	}

	if scanWatch {
		if libraryWatcher == nil {
			return errors.New("watcher not configured")
		}
		return libraryWatcher.Watch(ctx, libraryID)
	}
	return nil
}

// scanWithProgress waits for the task while displaying progress.
func scanWithProgress(ctx context.Context, cmd *cobra.Command, taskID string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- scanOrchestrator.Wait(ctx, taskID)
	}()

	// Poll status every 500ms
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastProcessed := -1
	for {
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
			task, statusErr := scanOrchestrator.TaskStatus(ctx, taskID)
			if statusErr != nil {
				return statusErr
			}
			printTask(cmd, task)
			if task.Status == domain.TaskFailed {
				return fmt.Errorf("scan failed: %s", task.Message)
			}
			return nil
		case <-ticker.C:
			// Best effort; a status miss is not fatal mid-scan.
			task, statusErr := scanOrchestrator.TaskStatus(ctx, taskID)
			if statusErr == nil && task.ProcessedFiles > lastProcessed {
				cmd.Printf("\rScanning... %d/%d files", task.ProcessedFiles, task.TotalFiles)
				lastProcessed = task.ProcessedFiles
			}
		}
	}
}

func runScanStatus(cmd *cobra.Command, args []string) error {
	if scanOrchestrator == nil {
		return errors.New("scan service not configured")
	}

	task, err := scanOrchestrator.TaskStatus(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("task status: %w", err)
	}
	printTask(cmd, task)
	return nil
}

func runScanCancel(cmd *cobra.Command, args []string) error {
	if scanOrchestrator == nil {
		return errors.New("scan service not configured")
	}

	cancelled, err := scanOrchestrator.CancelScan(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("cancel scan: %w", err)
	}
	if !cancelled {
		cmd.Println("Task is not running.")
		return nil
	}
	cmd.Println("Cancellation requested. The scan stops at the next batch boundary.")
	return nil
}

func runScanHistory(cmd *cobra.Command, args []string) error {
	if metadataStore == nil {
		return errors.New("metadata store not configured")
	}

	tasks, err := metadataStore.TaskStore().List(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		cmd.Println("No scans recorded for this library.")
		return nil
	}
	for i := range tasks {
		printTask(cmd, &tasks[i])
	}
	return nil
}

func printTask(cmd *cobra.Command, task *domain.ScanTask) {
	cmd.Printf("\rTask %s: %s (%d%%)\n", task.ID, task.Status, task.Progress())
	cmd.Printf("  files: %d/%d  added: %d  skipped: %d  errors: %d\n",
		task.ProcessedFiles, task.TotalFiles,
		task.AddedBooks, task.SkippedBooks, task.ErrorCount)
	if task.Message != "" {
		cmd.Printf("  message: %s\n", task.Message)
	}
	for _, e := range task.Errors {
		cmd.Printf("  [%s] %s: %s\n", e.Type, e.File, e.Message)
	}
}
