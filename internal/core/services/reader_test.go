package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/mobi"
	"github.com/custodia-labs/lectern-cli/internal/textcache"
)

func newReaderFixture(t *testing.T) *ReaderService {
	t.Helper()
	store, err := textcache.NewStore(t.TempDir())
	require.NoError(t, err)
	extractor := mobi.NewExtractor(store, mobi.DefaultConfig())
	return NewReaderService(store, extractor, 10)
}

func writeNovel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "novel.txt")
	content := "第一章 出发\n他背起行囊，走出了山村。\n\n第二章 归来\n多年以后他回到了故乡。\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReaderTableOfContents(t *testing.T) {
	r := newReaderFixture(t)
	path := writeNovel(t)

	toc, err := r.TableOfContents(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, toc.Chapters, 2)
	assert.Equal(t, "第一章 出发", toc.Chapters[0].Title)
	assert.Equal(t, "第二章 归来", toc.Chapters[1].Title)
	assert.Greater(t, toc.TotalLength, int64(0))
	assert.Equal(t, int((toc.TotalLength+9)/10), toc.TotalPages)
}

func TestReaderChapterWindow(t *testing.T) {
	r := newReaderFixture(t)
	path := writeNovel(t)
	ctx := context.Background()

	window, err := r.ChapterWindow(ctx, path, 1, 1)
	require.NoError(t, err)
	require.Len(t, window.Chapters, 2)
	assert.Equal(t, 1, window.CurrentIndex)
	assert.Equal(t, 2, window.TotalChapters)
	assert.Equal(t, 1, window.Chapters[1].Index)
	assert.True(t, strings.HasPrefix(window.Chapters[1].Content, "第二章 归来"))

	// Zero buffer returns just the focus chapter.
	window, err = r.ChapterWindow(ctx, path, 0, 0)
	require.NoError(t, err)
	require.Len(t, window.Chapters, 1)
	assert.Equal(t, 0, window.CurrentIndex)

	_, err = r.ChapterWindow(ctx, path, 5, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = r.ChapterWindow(ctx, path, -1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReaderPage(t *testing.T) {
	r := newReaderFixture(t)
	path := writeNovel(t)
	ctx := context.Background()

	first, err := r.Page(ctx, path, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Page)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.Content)
	assert.Equal(t, int64(0), first.StartOffset)
	assert.Equal(t, int64(10), first.EndOffset)

	last, err := r.Page(ctx, path, first.TotalPages)
	require.NoError(t, err)
	assert.False(t, last.HasMore)

	_, err = r.Page(ctx, path, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = r.Page(ctx, path, first.TotalPages+1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReaderRejectsUnknownFormat(t *testing.T) {
	r := newReaderFixture(t)
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))

	_, err := r.TableOfContents(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestReaderDefaultPageSize(t *testing.T) {
	store, err := textcache.NewStore(t.TempDir())
	require.NoError(t, err)
	r := NewReaderService(store, mobi.NewExtractor(store, mobi.DefaultConfig()), 0)
	assert.Equal(t, DefaultPageChars, r.pageChars)
}
