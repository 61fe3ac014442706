package driving

import (
	"context"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// TableOfContents is the chapter listing for a file, served without
// materialising any content.
type TableOfContents struct {
	TotalLength int64            `json:"totalLength"`
	TotalBytes  int64            `json:"totalBytes"`
	TotalPages  int              `json:"totalPages"`
	Chapters    []domain.Chapter `json:"chapters"`
}

// ChapterWindow is a buffered slice of chapters around a focus index,
// with content materialised for each.
type ChapterWindow struct {
	Chapters      []ChapterContent `json:"chapters"`
	CurrentIndex  int              `json:"currentIndexInWindow"`
	TotalChapters int              `json:"totalChapters"`
}

// ChapterContent is one chapter with its text.
type ChapterContent struct {
	Title   string `json:"title"`
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// Page is one character-addressed page of a file.
type Page struct {
	Content     string `json:"content"`
	Page        int    `json:"page"`
	TotalPages  int    `json:"totalPages"`
	HasMore     bool   `json:"hasMore"`
	StartOffset int64  `json:"startOffset"`
	EndOffset   int64  `json:"endOffset"`
}

// BookReader serves paginated and chaptered reads over cached canonical
// text. First access to a file triggers the cache build.
type BookReader interface {
	TableOfContents(ctx context.Context, path string) (*TableOfContents, error)
	ChapterWindow(ctx context.Context, path string, chapterIndex, bufferCount int) (*ChapterWindow, error)
	Page(ctx context.Context, path string, pageNumber int) (*Page, error)
}
