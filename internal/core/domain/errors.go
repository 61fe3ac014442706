package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// Ingestion errors.

	// ErrUnsupportedFormat indicates the input is binary or otherwise not
	// a text format the detector is willing to decode.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrEncodingUndetermined indicates no plausible text encoding could be
	// selected for the input. This is a normal, reportable outcome for
	// damaged or exotic files, not a bug.
	ErrEncodingUndetermined = errors.New("encoding undetermined")

	// ErrCacheCorrupt indicates a cached artifact no longer validates
	// against its source. It is recovered by a silent rebuild and should
	// never surface to callers.
	ErrCacheCorrupt = errors.New("cache corrupt")

	// ErrCacheFailed indicates a previous build attempt for this content
	// failed and a failure sentinel is in place. Callers should direct the
	// user to the original file rather than retry.
	ErrCacheFailed = errors.New("cached failure")

	// Subprocess extraction errors.

	// ErrExtractionOversize indicates the container's declared text size
	// exceeds the configured ceiling; the extractor is never spawned.
	ErrExtractionOversize = errors.New("extraction oversize rejected")

	// ErrExtractionTimeout indicates the extraction worker missed its
	// wall-clock deadline and was killed.
	ErrExtractionTimeout = errors.New("extraction timeout")

	// ErrExtractionCrashed indicates the extraction worker exited without
	// producing a result.
	ErrExtractionCrashed = errors.New("extraction crashed")

	// Scan errors.

	// ErrScanConflict indicates a scan task for the same library is
	// already running.
	ErrScanConflict = errors.New("scan already running for library")

	// ErrLibraryDisabled indicates the library has no enabled paths.
	ErrLibraryDisabled = errors.New("library has no enabled paths")
)
