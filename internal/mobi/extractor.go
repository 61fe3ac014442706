package mobi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/logger"
	"github.com/custodia-labs/lectern-cli/internal/textcache"
)

// WorkerCommand is the hidden subcommand the extractor re-execs itself
// with. The CLI wires it to RunWorker.
const WorkerCommand = "extract-worker"

// Config holds the extraction budgets.
type Config struct {
	// MaxTextBytes rejects containers whose declared text size exceeds
	// it, before any subprocess is spawned, and caps the child's output.
	MaxTextBytes int64
	// MaxFragmentBytes skips single oversized records inside the child.
	MaxFragmentBytes int64
	// AddressSpaceBytes and CPUSeconds are the child's self-applied OS
	// limits.
	AddressSpaceBytes uint64
	CPUSeconds        uint64
	// Timeout is the parent-enforced wall-clock join deadline. It
	// catches I/O-bound stalls that the CPU limit cannot.
	Timeout time.Duration
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		MaxTextBytes:      64 << 20,
		MaxFragmentBytes:  4 << 20,
		AddressSpaceBytes: 512 << 20,
		CPUSeconds:        30,
		Timeout:           60 * time.Second,
	}
}

// Extractor obtains plain text from MOBI files by running the parse in
// an isolated child process. Successful extractions land in the shared
// text cache keyed by content fingerprint; failures leave a sentinel so
// a pathological file pays the subprocess cost once.
type Extractor struct {
	store *textcache.Store
	cfg   Config

	// execPath overrides the re-exec binary; tests point it elsewhere.
	execPath string
}

// NewExtractor creates an extractor backed by the given cache store.
func NewExtractor(store *textcache.Store, cfg Config) *Extractor {
	return &Extractor{store: store, cfg: cfg}
}

// Index returns the chapter index for a MOBI file, extracting its text
// on first access.
func (e *Extractor) Index(ctx context.Context, path string) (*domain.TextIndex, error) {
	fp, err := domain.NewFingerprint(path)
	if err != nil {
		return nil, err
	}

	if e.store.Cached(fp) {
		ix, err := e.store.IndexExtracted(fp, "")
		if err == nil {
			return ix, nil
		}
		if !errors.Is(err, domain.ErrCacheCorrupt) {
			return nil, err
		}
		// Corrupt index next to intact text: re-extract this generation.
	}
	if e.store.Failed(fp) {
		// Sticky until the source content (and so the fingerprint)
		// changes.
		return nil, fmt.Errorf("%w: %s", domain.ErrCacheFailed, path)
	}

	header, err := ParseHeaderFile(path)
	if err != nil {
		e.store.MarkFailed(fp)
		return nil, err
	}
	if est := header.EstimateSize(); est.EstimatedChars > e.cfg.MaxTextBytes {
		e.store.MarkFailed(fp)
		return nil, fmt.Errorf("%w: header declares %d bytes of text", domain.ErrExtractionOversize, est.EstimatedChars)
	}

	extracted, err := e.runWorker(ctx, path, fp)
	if err != nil {
		e.store.MarkFailed(fp)
		return nil, err
	}
	defer os.Remove(extracted)

	return e.store.IndexExtracted(fp, extracted)
}

// Metadata reads scan-time metadata from the header alone; the
// subprocess is never involved.
func (e *Extractor) Metadata(path string) (*Header, error) {
	return ParseHeaderFile(path)
}

// runWorker re-execs this binary as the extraction worker and awaits it
// under the wall-clock deadline. A child that dies or says nothing is a
// failure result, not a panic to propagate.
func (e *Extractor) runWorker(ctx context.Context, path string, fp domain.Fingerprint) (string, error) {
	self := e.execPath
	if self == "" {
		var err error
		if self, err = os.Executable(); err != nil {
			return "", fmt.Errorf("locate executable: %w", err)
		}
	}

	staging, err := os.CreateTemp(e.store.Dir(), ".lectern-extract-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	stagingPath := staging.Name()
	staging.Close()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, self, WorkerCommand,
		"--input", path,
		"--output", stagingPath,
		"--max-text-bytes", strconv.FormatInt(e.cfg.MaxTextBytes, 10),
		"--max-fragment-bytes", strconv.FormatInt(e.cfg.MaxFragmentBytes, 10),
		"--rlimit-as", strconv.FormatUint(e.cfg.AddressSpaceBytes, 10),
		"--rlimit-cpu", strconv.FormatUint(e.cfg.CPUSeconds, 10),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Extracting %s (key %s) in worker process", path, fp.Key())
	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		os.Remove(stagingPath)
		return "", fmt.Errorf("%w after %s: %s", domain.ErrExtractionTimeout, e.cfg.Timeout, path)
	}
	if runErr != nil {
		os.Remove(stagingPath)
		return "", fmt.Errorf("%w: %v (%s)", domain.ErrExtractionCrashed, runErr, firstLine(stderr.String()))
	}

	var result WorkerResult
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		// Exited zero but reported nothing usable.
		os.Remove(stagingPath)
		return "", fmt.Errorf("%w: no result from worker", domain.ErrExtractionCrashed)
	}
	logger.Debug("Extraction of %s: %d chars, truncated=%v, skipped=%d",
		path, result.Chars, result.Truncated, result.Skipped)
	return stagingPath, nil
}

// IsExtractionFailure reports whether err is one of the terminal
// extraction outcomes that a read request should surface to the user.
func IsExtractionFailure(err error) bool {
	return errors.Is(err, domain.ErrExtractionOversize) ||
		errors.Is(err, domain.ErrExtractionTimeout) ||
		errors.Is(err, domain.ErrExtractionCrashed) ||
		errors.Is(err, domain.ErrCacheFailed)
}

func firstLine(s string) string {
	if i := bytes.IndexByte([]byte(s), '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
