package driven

import (
	"context"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// MetadataExtractor produces book metadata for one file format.
// Implementations must be safe for concurrent use.
type MetadataExtractor interface {
	// Extensions returns the lowercase extensions (without dot) this
	// extractor handles.
	Extensions() []string

	// Extract reads metadata from path. Heavy work (full-text chaptering,
	// subprocess extraction) is deferred to first read; scan-time
	// extraction must stay cheap.
	Extract(ctx context.Context, path string) (*domain.Metadata, error)
}

// ExtractorRegistry selects a MetadataExtractor by file extension.
type ExtractorRegistry interface {
	// ForPath returns the extractor responsible for path, or
	// domain.ErrUnsupportedFormat when no extractor claims its extension.
	ForPath(path string) (MetadataExtractor, error)

	// Extensions returns every extension any registered extractor claims.
	Extensions() []string
}

// Deduplicator decides how a scanned file relates to existing books.
type Deduplicator interface {
	CheckDuplicate(ctx context.Context, path, title, author string) (*domain.DedupResult, error)
}
