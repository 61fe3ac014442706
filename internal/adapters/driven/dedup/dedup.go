// Package dedup decides how a scanned file relates to books already in
// the catalog.
package dedup

import (
	"context"
	"crypto/md5" //nolint:gosec // dedup fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// hashSampleBytes bounds how much of the file contributes to the
// content hash. Matches the hash written by the scan worker.
const hashSampleBytes = 1 << 20

// Ensure Checker implements the interface.
var _ driven.Deduplicator = (*Checker)(nil)

// Checker resolves duplicates against the book store. The decision
// order is path first, then title and author.
type Checker struct {
	books driven.BookStore
}

// NewChecker creates a Checker backed by the given book store.
func NewChecker(books driven.BookStore) *Checker {
	return &Checker{books: books}
}

// CheckDuplicate classifies path against existing books. A file already
// catalogued at the same path with the same content is skipped; a
// changed file at a known path, or a new file matching an existing
// title and author, becomes another version of that book.
func (c *Checker) CheckDuplicate(ctx context.Context, path, title, author string) (*domain.DedupResult, error) {
	existing, err := c.books.FindByPath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("looking up path: %w", err)
	}
	if existing != nil {
		hash, err := sampleHash(path)
		if err != nil {
			return nil, err
		}
		if hash == existing.ContentHash {
			return &domain.DedupResult{
				Action:         domain.DedupSkip,
				ExistingBookID: existing.ID,
				Reason:         "unchanged file already catalogued",
			}, nil
		}
		return &domain.DedupResult{
			Action:         domain.DedupAddVersion,
			ExistingBookID: existing.ID,
			Reason:         "file at known path changed content",
		}, nil
	}

	if title != "" {
		match, err := c.books.FindByTitleAuthor(ctx, title, author)
		if err != nil {
			return nil, fmt.Errorf("looking up title/author: %w", err)
		}
		if match != nil {
			return &domain.DedupResult{
				Action:         domain.DedupAddVersion,
				ExistingBookID: match.ID,
				Reason:         "same title and author already catalogued",
			}, nil
		}
	}

	return &domain.DedupResult{Action: domain.DedupNewBook}, nil
}

// sampleHash hashes the file size plus a leading sample, matching the
// ContentHash stored on books.
func sampleHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	fmt.Fprintf(h, "%d|", info.Size())
	if _, err := io.CopyN(h, f, hashSampleBytes); err != nil && err != io.EOF {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
