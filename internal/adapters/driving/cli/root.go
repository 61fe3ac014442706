// Package cli implements the lectern command line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern-cli/internal/adapters/driven/broadcast"
	configfile "github.com/custodia-labs/lectern-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/lectern-cli/internal/adapters/driven/dedup"
	"github.com/custodia-labs/lectern-cli/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
	"github.com/custodia-labs/lectern-cli/internal/core/services"
	"github.com/custodia-labs/lectern-cli/internal/extractors"
	"github.com/custodia-labs/lectern-cli/internal/logger"
	"github.com/custodia-labs/lectern-cli/internal/mobi"
	"github.com/custodia-labs/lectern-cli/internal/textcache"
)

// version is set at build time via -ldflags.
var version = "dev"

// broadcastInterval thins progress output during long scans.
const broadcastInterval = 2 * time.Second

// Services shared by the commands. Wired by initServices before any
// command that needs them runs; the extraction worker deliberately
// skips wiring.
var (
	configStore      driven.ConfigStore
	metadataStore    *sqlite.Store
	libraryStore     driven.LibraryStore
	bookReader       *services.ReaderService
	scanOrchestrator *services.ScanOrchestrator
	libraryWatcher   *services.LibraryWatcher
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Personal ebook library manager",
	Long: `Lectern catalogues ebook libraries and serves chaptered reads.

Plain-text files are decoded from their source encoding (UTF-8, GB18030,
Big5, UTF-16, ...) into a canonical cache with a chapter index; MOBI
files are extracted in a sandboxed worker process first.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if cmd.Name() == mobi.WorkerCommand || cmd.Name() == "version" {
			// The worker must stay free of database and cache setup.
			return nil
		}
		return initServices()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initServices builds the full dependency graph. Idempotent; tests
// replace the package-level services instead of calling this.
func initServices() error {
	if scanOrchestrator != nil {
		return nil
	}

	cfg, err := configfile.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	configStore = cfg

	store, err := sqlite.NewStore(cfg.GetString(configfile.KeyDataDir))
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	metadataStore = store
	libraryStore = store.LibraryStore()

	cacheDir := cfg.GetString(configfile.KeyCacheDir)
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		cacheDir = filepath.Join(home, ".lectern", "cache", "txt")
	}
	cache, err := textcache.NewStore(cacheDir)
	if err != nil {
		return fmt.Errorf("open text cache: %w", err)
	}

	extractorCfg := mobi.DefaultConfig()
	if secs := cfg.GetInt(configfile.KeyExtractorTimeout); secs > 0 {
		extractorCfg.Timeout = time.Duration(secs) * time.Second
	}
	if mb := cfg.GetInt(configfile.KeyExtractorMaxMB); mb > 0 {
		extractorCfg.MaxTextBytes = int64(mb) << 20
	}
	extractor := mobi.NewExtractor(cache, extractorCfg)

	bookReader = services.NewReaderService(cache, extractor, cfg.GetInt(configfile.KeyPageChars))

	registry := extractors.NewRegistry(
		extractors.NewTXT(),
		extractors.NewEPUB(),
		extractors.NewMOBI(),
	)
	scanOrchestrator = services.NewScanOrchestrator(
		store.LibraryStore(),
		store.BookStore(),
		store.TaskStore(),
		registry,
		dedup.NewChecker(store.BookStore()),
		broadcast.NewLoggerSink(broadcastInterval),
	)
	libraryWatcher = services.NewLibraryWatcher(store.LibraryStore(), scanOrchestrator)
	return nil
}
