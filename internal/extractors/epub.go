package extractors

import (
	"context"
	"fmt"

	"github.com/taylorskalyo/goreader/epub"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// Ensure EPUB implements the interface.
var _ driven.MetadataExtractor = (*EPUB)(nil)

// EPUB extracts metadata from the OPF package document of an EPUB
// container. Content documents are never opened at scan time.
type EPUB struct{}

// NewEPUB creates the EPUB extractor.
func NewEPUB() *EPUB {
	return &EPUB{}
}

// Extensions returns the extensions this extractor handles.
func (e *EPUB) Extensions() []string { return []string{"epub"} }

// Extract reads the container's declared metadata.
func (e *EPUB) Extract(_ context.Context, path string) (*domain.Metadata, error) {
	rc, err := epub.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedFormat, err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, fmt.Errorf("%w: no rootfiles in epub", domain.ErrUnsupportedFormat)
	}
	book := rc.Rootfiles[0]

	meta := &domain.Metadata{
		Title:       book.Title,
		Author:      book.Creator,
		Description: book.Description,
		Publisher:   book.Publisher,
	}
	if meta.Title == "" {
		meta.Title, meta.Author = parseFilename(path)
	}
	if book.Language != "" {
		meta.Extra = map[string]any{"language": book.Language}
	}
	return meta, nil
}
