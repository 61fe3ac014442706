package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driving"
	"github.com/custodia-labs/lectern-cli/internal/mobi"
	"github.com/custodia-labs/lectern-cli/internal/textcache"
)

// Ensure ReaderService implements the interface.
var _ driving.BookReader = (*ReaderService)(nil)

// DefaultPageChars is the page size in characters.
const DefaultPageChars = 3000

// ReaderService serves paginated and chaptered reads. TXT files go
// through the canonical text cache; MOBI files are first extracted in
// the sandboxed worker and then served from the same cache.
type ReaderService struct {
	store     *textcache.Store
	extractor *mobi.Extractor
	pageChars int
}

// NewReaderService creates a reader over the given cache store and
// extractor.
func NewReaderService(store *textcache.Store, extractor *mobi.Extractor, pageChars int) *ReaderService {
	if pageChars <= 0 {
		pageChars = DefaultPageChars
	}
	return &ReaderService{store: store, extractor: extractor, pageChars: pageChars}
}

// index resolves the chapter index for any supported file, building
// caches as needed.
func (r *ReaderService) index(ctx context.Context, path string) (*domain.TextIndex, domain.Fingerprint, error) {
	fp, err := domain.NewFingerprint(path)
	if err != nil {
		return nil, domain.Fingerprint{}, err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "txt":
		ix, err := r.store.Index(path)
		return ix, fp, err
	case "mobi", "azw", "prc":
		ix, err := r.extractor.Index(ctx, path)
		return ix, fp, err
	default:
		return nil, fp, fmt.Errorf("%w: .%s", domain.ErrUnsupportedFormat, ext)
	}
}

// TableOfContents returns the chapter list without materialising any
// content.
func (r *ReaderService) TableOfContents(ctx context.Context, path string) (*driving.TableOfContents, error) {
	ix, _, err := r.index(ctx, path)
	if err != nil {
		return nil, err
	}
	return &driving.TableOfContents{
		TotalLength: ix.TotalLength,
		TotalBytes:  ix.TotalBytes,
		TotalPages:  textcache.TotalPages(ix, r.pageChars),
		Chapters:    ix.Chapters,
	}, nil
}

// ChapterWindow returns the chapter at chapterIndex plus up to
// bufferCount chapters on each side, with content.
func (r *ReaderService) ChapterWindow(ctx context.Context, path string, chapterIndex, bufferCount int) (*driving.ChapterWindow, error) {
	ix, fp, err := r.index(ctx, path)
	if err != nil {
		return nil, err
	}
	total := len(ix.Chapters)
	if chapterIndex < 0 || chapterIndex >= total {
		return nil, fmt.Errorf("%w: chapter %d of %d", domain.ErrInvalidInput, chapterIndex, total)
	}
	if bufferCount < 0 {
		bufferCount = 0
	}

	start := chapterIndex - bufferCount
	if start < 0 {
		start = 0
	}
	end := chapterIndex + bufferCount
	if end >= total {
		end = total - 1
	}

	window := &driving.ChapterWindow{
		CurrentIndex:  chapterIndex - start,
		TotalChapters: total,
	}
	for i := start; i <= end; i++ {
		ch := ix.Chapters[i]
		content, err := r.store.ReadRange(fp, ch.StartByte, ch.EndByte)
		if err != nil {
			return nil, fmt.Errorf("read chapter %d: %w", i, err)
		}
		window.Chapters = append(window.Chapters, driving.ChapterContent{
			Title:   ch.Title,
			Index:   i,
			Content: content,
		})
	}
	return window, nil
}

// Page returns one character-addressed page. Byte boundaries are
// approximated from the average bytes-per-character ratio, so page
// edges are only approximately character-aligned.
func (r *ReaderService) Page(ctx context.Context, path string, pageNumber int) (*driving.Page, error) {
	ix, fp, err := r.index(ctx, path)
	if err != nil {
		return nil, err
	}
	totalPages := textcache.TotalPages(ix, r.pageChars)
	if pageNumber < 1 || pageNumber > totalPages {
		return nil, fmt.Errorf("%w: page %d of %d", domain.ErrInvalidInput, pageNumber, totalPages)
	}

	startChar, endChar, startByte, endByte := textcache.PageRange(ix, pageNumber, r.pageChars)
	content, err := r.store.ReadRange(fp, startByte, endByte)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", pageNumber, err)
	}
	return &driving.Page{
		Content:     content,
		Page:        pageNumber,
		TotalPages:  totalPages,
		HasMore:     pageNumber < totalPages,
		StartOffset: startChar,
		EndOffset:   endChar,
	}, nil
}
