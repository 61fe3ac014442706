package mobi

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/textcache"
)

func newExtractorStore(t *testing.T) *textcache.Store {
	t.Helper()
	store, err := textcache.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestExtractorRejectsOversizeBeforeSpawn(t *testing.T) {
	text := []byte("tiny")
	data := palmDocFile(t, "huge", CompressionNone, 500<<20, [][]byte{text})
	path := writeContainer(t, data)

	cfg := DefaultConfig()
	extractor := NewExtractor(newExtractorStore(t), cfg)
	// Any spawn attempt would fail loudly instead of timing out.
	extractor.execPath = "/nonexistent/lectern-worker"

	_, err := extractor.Index(context.Background(), path)
	require.ErrorIs(t, err, domain.ErrExtractionOversize)

	fp, ferr := domain.NewFingerprint(path)
	require.NoError(t, ferr)
	assert.True(t, extractor.store.Failed(fp))

	// The sentinel makes the failure sticky.
	_, err = extractor.Index(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrCacheFailed)
}

func TestExtractorMarksHeaderFailuresSticky(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.mobi")
	require.NoError(t, os.WriteFile(path, []byte("not a mobi at all"), 0o644))

	extractor := NewExtractor(newExtractorStore(t), DefaultConfig())
	_, err := extractor.Index(context.Background(), path)
	require.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	fp, ferr := domain.NewFingerprint(path)
	require.NoError(t, ferr)
	assert.True(t, extractor.store.Failed(fp))
}

func TestExtractorCrashedWorker(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/false")
	}
	text := []byte("fine container, doomed worker")
	data := palmDocFile(t, "crash", CompressionNone, uint32(len(text)), [][]byte{text})
	path := writeContainer(t, data)

	cfg := DefaultConfig()
	extractor := NewExtractor(newExtractorStore(t), cfg)
	extractor.execPath = "/bin/false"

	_, err := extractor.Index(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrExtractionCrashed)
}

func TestExtractorTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a shell script worker")
	}
	text := []byte("slow worker")
	data := palmDocFile(t, "slow", CompressionNone, uint32(len(text)), [][]byte{text})
	path := writeContainer(t, data)

	script := filepath.Join(t.TempDir(), "sleepy.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 10\n"), 0o755))

	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond
	extractor := NewExtractor(newExtractorStore(t), cfg)
	extractor.execPath = script

	_, err := extractor.Index(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrExtractionTimeout)
}

func TestExtractorReextractsWhenCachedIndexUnreadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/false")
	}
	text := []byte("cached once, index later destroyed")
	data := palmDocFile(t, "damaged", CompressionNone, uint32(len(text)), [][]byte{text})
	path := writeContainer(t, data)

	cacheDir := t.TempDir()
	seeded, err := textcache.NewStore(cacheDir)
	require.NoError(t, err)
	fp, err := domain.NewFingerprint(path)
	require.NoError(t, err)

	extracted := filepath.Join(t.TempDir(), "extracted.txt")
	require.NoError(t, os.WriteFile(extracted, text, 0o644))
	_, err = seeded.IndexExtracted(fp, extracted)
	require.NoError(t, err)
	require.True(t, seeded.Cached(fp))

	// Corrupt the persisted index behind a fresh store with a cold
	// in-memory registry.
	indexFile := filepath.Join(cacheDir, fp.Key()+".index.json")
	require.NoError(t, os.WriteFile(indexFile, []byte("{broken"), 0o644))

	reopened, err := textcache.NewStore(cacheDir)
	require.NoError(t, err)
	extractor := NewExtractor(reopened, DefaultConfig())
	extractor.execPath = "/bin/false"

	// The corrupt index must trigger a fresh extraction attempt, which
	// the doomed worker binary makes observable.
	_, err = extractor.Index(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrExtractionCrashed)
}

func TestExtractorMetadata(t *testing.T) {
	text := []byte("metadata only")
	data := palmDocFile(t, "meta-title", CompressionNone, uint32(len(text)), [][]byte{text})
	path := writeContainer(t, data)

	extractor := NewExtractor(newExtractorStore(t), DefaultConfig())
	header, err := extractor.Metadata(path)
	require.NoError(t, err)
	assert.Equal(t, "meta-title", header.Title)
	assert.Equal(t, int64(len(text)), header.EstimateSize().EstimatedChars)
}

func TestIsExtractionFailure(t *testing.T) {
	assert.True(t, IsExtractionFailure(domain.ErrExtractionOversize))
	assert.True(t, IsExtractionFailure(domain.ErrExtractionTimeout))
	assert.True(t, IsExtractionFailure(domain.ErrExtractionCrashed))
	assert.True(t, IsExtractionFailure(domain.ErrCacheFailed))
	assert.False(t, IsExtractionFailure(domain.ErrNotFound))
}
