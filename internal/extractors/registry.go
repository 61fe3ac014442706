// Package extractors provides scan-time metadata extraction per file
// format. Extractors stay cheap: full-text chaptering and subprocess
// extraction are deferred to first read.
package extractors

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps file extensions to metadata extractors.
type Registry struct {
	byExt map[string]driven.MetadataExtractor
}

// NewRegistry creates a registry over the given extractors.
// Later extractors win extension conflicts.
func NewRegistry(extractors ...driven.MetadataExtractor) *Registry {
	r := &Registry{byExt: make(map[string]driven.MetadataExtractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// ForPath returns the extractor for path's extension.
func (r *Registry) ForPath(path string) (driven.MetadataExtractor, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	e, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: .%s", domain.ErrUnsupportedFormat, ext)
	}
	return e, nil
}

// Extensions returns every claimed extension, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
