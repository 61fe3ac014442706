package extractors

import (
	"context"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
	"github.com/custodia-labs/lectern-cli/internal/mobi"
)

// Ensure MOBI implements the interface.
var _ driven.MetadataExtractor = (*MOBI)(nil)

// MOBI extracts metadata from MOBI/PalmDoc headers. The untrusted text
// extraction itself stays out of the scan path entirely; only the
// bounds-checked header parse runs here.
type MOBI struct{}

// NewMOBI creates the MOBI extractor.
func NewMOBI() *MOBI {
	return &MOBI{}
}

// Extensions returns the extensions this extractor handles.
func (m *MOBI) Extensions() []string { return []string{"mobi", "azw", "prc"} }

// Extract parses the header for the title and declared text size.
func (m *MOBI) Extract(_ context.Context, path string) (*domain.Metadata, error) {
	header, err := mobi.ParseHeaderFile(path)
	if err != nil {
		return nil, err
	}

	title := header.Title
	author := ""
	if title == "" {
		title, author = parseFilename(path)
	}
	return &domain.Metadata{
		Title:  title,
		Author: author,
		Extra: map[string]any{
			"declaredTextLength": int64(header.TextLength),
			"compression":        int(header.Compression),
		},
	}, nil
}
