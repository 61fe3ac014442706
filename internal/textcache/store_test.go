package textcache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

const sampleBook = "第一章 初雪\n第一场雪落在了山上。\n\n第二章 融化\n春天来了，雪化了。\n"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func writeBook(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.txt")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestStoreIndexBuildsArtifacts(t *testing.T) {
	store := newTestStore(t)
	path := writeBook(t, []byte(sampleBook))

	ix, err := store.Index(path)
	require.NoError(t, err)
	assert.Equal(t, "utf-8", ix.Encoding)
	require.Len(t, ix.Chapters, 2)
	assert.Equal(t, "第一章 初雪", ix.Chapters[0].Title)

	fp, err := domain.NewFingerprint(path)
	require.NoError(t, err)
	key := fp.Key()
	assert.FileExists(t, store.textPath(key))
	assert.FileExists(t, store.indexPath(key))
	assert.NoFileExists(t, store.failPath(key))
	assert.True(t, store.Cached(fp))

	// No build temp files survive.
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".lectern-"), e.Name())
	}
}

func TestStoreIndexDividerBeforeAdjacentChapters(t *testing.T) {
	store := newTestStore(t)
	path := writeBook(t, []byte("正文\n\n第一章 开始\n内容A\n\n第二章 继续\n内容B"))

	ix, err := store.Index(path)
	require.NoError(t, err)

	titles := make([]string, 0, len(ix.Chapters))
	for _, ch := range ix.Chapters {
		titles = append(titles, ch.Title)
	}
	assert.Equal(t, []string{"第一章 开始", "第二章 继续"}, titles)
	assert.Equal(t, int64(0), ix.Chapters[0].StartByte)
	assert.Equal(t, ix.TotalBytes, ix.Chapters[1].EndByte)

	// Each chapter body carries its own content only.
	first, err := store.ReadRange(mustFingerprint(t, path), ix.Chapters[0].StartByte, ix.Chapters[0].EndByte)
	require.NoError(t, err)
	assert.Contains(t, first, "内容A")
	assert.NotContains(t, first, "内容B")
}

func mustFingerprint(t *testing.T, path string) domain.Fingerprint {
	t.Helper()
	fp, err := domain.NewFingerprint(path)
	require.NoError(t, err)
	return fp
}

func TestStoreIndexIsStableAcrossCalls(t *testing.T) {
	store := newTestStore(t)
	path := writeBook(t, []byte(sampleBook))

	first, err := store.Index(path)
	require.NoError(t, err)
	second, err := store.Index(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A fresh store over the same cache dir reloads rather than rebuilds.
	reopened, err := NewStore(store.Dir())
	require.NoError(t, err)
	third, err := reopened.Index(path)
	require.NoError(t, err)
	assert.Equal(t, first.Chapters, third.Chapters)
}

func TestStoreBinaryInputFailsSticky(t *testing.T) {
	store := newTestStore(t)
	// NUL-heavy with no UTF-16 parity skew.
	content := make([]byte, 4096)
	for i := range content {
		if i%4 == 3 {
			content[i] = 'A'
		}
	}
	path := writeBook(t, content)

	_, err := store.Index(path)
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	fp, ferr := domain.NewFingerprint(path)
	require.NoError(t, ferr)
	assert.True(t, store.Failed(fp))

	// The sentinel short-circuits the retry while detection still fails.
	_, err = store.Index(path)
	require.ErrorIs(t, err, domain.ErrCacheFailed)
}

func TestStoreCorruptIndexRebuilds(t *testing.T) {
	store := newTestStore(t)
	path := writeBook(t, []byte(sampleBook))

	first, err := store.Index(path)
	require.NoError(t, err)

	fp, err := domain.NewFingerprint(path)
	require.NoError(t, err)
	key := fp.Key()

	// Corrupt the persisted index and drop the in-memory entry.
	require.NoError(t, os.WriteFile(store.indexPath(key), []byte("{not json"), 0o644))
	store.indexes.Remove(key)

	rebuilt, err := store.Index(path)
	require.NoError(t, err)
	assert.Equal(t, first.Chapters, rebuilt.Chapters)
}

func TestStoreReadRange(t *testing.T) {
	store := newTestStore(t)
	path := writeBook(t, []byte(sampleBook))

	ix, err := store.Index(path)
	require.NoError(t, err)
	fp, err := domain.NewFingerprint(path)
	require.NoError(t, err)

	ch := ix.Chapters[0]
	content, err := store.ReadRange(fp, ch.StartByte, ch.EndByte)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content, "第一章 初雪"))
	assert.NotContains(t, content, "第二章")

	_, err = store.ReadRange(fp, -1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = store.ReadRange(fp, 10, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStoreIndexExtracted(t *testing.T) {
	store := newTestStore(t)

	extracted := filepath.Join(t.TempDir(), "extracted.txt")
	require.NoError(t, os.WriteFile(extracted, []byte("第一章\n正文。\n"), 0o644))

	container := writeBook(t, []byte("not really a mobi, only a fingerprint source"))
	fp, err := domain.NewFingerprint(container)
	require.NoError(t, err)

	ix, err := store.IndexExtracted(fp, extracted)
	require.NoError(t, err)
	assert.Equal(t, "utf-8", ix.Encoding)
	assert.True(t, store.Cached(fp))

	// A later call needs no extracted file; the cache answers.
	again, err := store.IndexExtracted(fp, "")
	require.NoError(t, err)
	assert.Equal(t, ix, again)

	// Without a source to rebuild from, a dead index is a corrupt cache,
	// not a silent build against an empty path.
	require.NoError(t, os.WriteFile(store.indexPath(fp.Key()), []byte("{broken"), 0o644))
	store.indexes.Remove(fp.Key())
	_, err = store.IndexExtracted(fp, "")
	assert.ErrorIs(t, err, domain.ErrCacheCorrupt)
}

func TestPageRangeAndTotalPages(t *testing.T) {
	ix := &domain.TextIndex{TotalLength: 7000, TotalBytes: 21000}

	assert.Equal(t, 3, TotalPages(ix, 3000))
	assert.Equal(t, 1, TotalPages(&domain.TextIndex{}, 3000))

	startChar, endChar, startByte, endByte := PageRange(ix, 1, 3000)
	assert.Equal(t, int64(0), startChar)
	assert.Equal(t, int64(3000), endChar)
	assert.Equal(t, int64(0), startByte)
	assert.Equal(t, int64(9000), endByte)

	// Last page is short.
	startChar, endChar, _, endByte = PageRange(ix, 3, 3000)
	assert.Equal(t, int64(6000), startChar)
	assert.Equal(t, int64(7000), endChar)
	assert.Equal(t, int64(21000), endByte)
}
