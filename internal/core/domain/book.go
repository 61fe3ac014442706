package domain

import (
	"crypto/md5" //nolint:gosec // cache key, not a security boundary
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// Book represents a persisted library entry.
type Book struct {
	// ID is the unique identifier for the book.
	ID string

	// LibraryID links to the Library that produced this book.
	LibraryID string

	// Path is the absolute path of the source file.
	Path string

	// Format is the lowercase file extension without the dot ("txt",
	// "epub", "mobi").
	Format string

	// Title is the human-readable title.
	Title string

	// Author is the author name, empty when unknown.
	Author string

	// Description, Publisher and CoverPath are optional metadata.
	Description string
	Publisher   string
	CoverPath   string

	// Tags are free-form labels suggested by the extractor.
	Tags []string

	// ContentHash identifies the file content for deduplication. It is
	// derived from the file size and a leading sample, not the whole file.
	ContentHash string

	// QualityTier orders duplicate versions of the same work; higher wins.
	QualityTier int

	// SizeBytes is the source file size at scan time.
	SizeBytes int64

	// CreatedAt is when the book was first added.
	CreatedAt time.Time

	// UpdatedAt is when the book was last updated.
	UpdatedAt time.Time
}

// Metadata is what a format extractor reports for a single file.
type Metadata struct {
	Title       string
	Author      string
	Description string
	Publisher   string
	CoverPath   string
	Tags        []string

	// Extra carries format-specific values (declared text length,
	// container encoding, ...) that do not map to a column.
	Extra map[string]any
}

// Fingerprint identifies one generation of a file's content for cache
// keying. It changes whenever the file's size or mtime changes; it does
// not survive a rename.
type Fingerprint struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// NewFingerprint stats path and builds its fingerprint.
func NewFingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Fingerprint{
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Key returns the cache key for this fingerprint: the hex MD5 of
// filename, size and mtime. Stable across runs for unchanged files.
func (f Fingerprint) Key() string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d", f.Name, f.Size, f.ModTime.UnixNano()))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
