package domain

import "time"

// LibraryPath is one scan root within a library.
type LibraryPath struct {
	Path    string
	Enabled bool
}

// Library is a named collection of scan roots.
type Library struct {
	ID        string
	Name      string
	Paths     []LibraryPath
	Enabled   bool
	LastScan  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnabledPaths returns the scan roots currently enabled, none when the
// library itself is disabled.
func (l *Library) EnabledPaths() []string {
	if !l.Enabled {
		return nil
	}
	var paths []string
	for _, p := range l.Paths {
		if p.Enabled {
			paths = append(paths, p.Path)
		}
	}
	return paths
}

// DedupAction is the deduplicator's decision for a scanned file.
type DedupAction string

const (
	// DedupSkip drops the file: an equal or better copy already exists.
	DedupSkip DedupAction = "skip"
	// DedupAddVersion attaches the file as another version of an
	// existing book.
	DedupAddVersion DedupAction = "addVersion"
	// DedupNewBook adds the file as a new book.
	DedupNewBook DedupAction = "newBook"
)

// DedupResult carries the decision plus the existing book, when any.
type DedupResult struct {
	Action         DedupAction
	ExistingBookID string
	Reason         string
}
