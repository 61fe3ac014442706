package textcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/custodia-labs/lectern-cli/internal/charset"
	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/logger"
)

// defaultIndexCacheSize bounds the in-memory index registry. The
// registry is owned by the store and injected where needed; there is no
// package-level cache.
const defaultIndexCacheSize = 128

// Store is the durable, content-fingerprinted cache of canonical text
// and chapter indexes. Per key it keeps three artifacts:
//
//	<key>.utf8.txt    canonical UTF-8 text
//	<key>.index.json  chapter index
//	<key>.fail        sentinel for inputs that failed to build
//
// Two concurrent builds of the same key are a benign race: artifacts are
// published by atomic rename, so either result is complete and valid.
type Store struct {
	dir      string
	detector *charset.Detector
	indexes  *lru.Cache[string, *domain.TextIndex]
}

// Option configures the store.
type Option func(*Store)

// WithDetector overrides the encoding detector. Useful for tests.
func WithDetector(d *charset.Detector) Option {
	return func(s *Store) { s.detector = d }
}

// NewStore creates a cache store rooted at dir.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	indexes, err := lru.New[string, *domain.TextIndex](defaultIndexCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{dir: dir, detector: charset.NewDetector(), indexes: indexes}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the cache root, for collaborators that stage files next
// to the cache before handing them over.
func (s *Store) Dir() string { return s.dir }

func (s *Store) textPath(key string) string  { return filepath.Join(s.dir, key+".utf8.txt") }
func (s *Store) indexPath(key string) string { return filepath.Join(s.dir, key+".index.json") }
func (s *Store) failPath(key string) string  { return filepath.Join(s.dir, key+".fail") }

// Index returns the chapter index for a text file, building the
// canonical cache on first access. A change in the file's size or mtime
// keys a fresh build; the old generation is simply orphaned.
func (s *Store) Index(path string) (*domain.TextIndex, error) {
	fp, err := domain.NewFingerprint(path)
	if err != nil {
		return nil, err
	}
	key := fp.Key()

	if ix, ok := s.indexes.Get(key); ok {
		return ix, nil
	}

	// Sticky failure: only retry when detection newly succeeds.
	if s.failed(key) {
		encoding, derr := s.detector.DetectFile(path)
		if derr != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrCacheFailed, path)
		}
		return s.build(path, key, encoding)
	}

	if ix, err := s.loadValidated(path, key); err == nil {
		s.indexes.Add(key, ix)
		return ix, nil
	} else if !errors.Is(err, domain.ErrCacheCorrupt) && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	encoding, err := s.detector.DetectFile(path)
	if err != nil {
		s.markFailed(key)
		return nil, err
	}
	return s.build(path, key, encoding)
}

// IndexExtracted builds (or returns) the index for canonical UTF-8 text
// that an extractor produced out-of-band, keyed by the fingerprint of
// the original container file. extractedPath must hold UTF-8 text.
func (s *Store) IndexExtracted(fp domain.Fingerprint, extractedPath string) (*domain.TextIndex, error) {
	key := fp.Key()
	if ix, ok := s.indexes.Get(key); ok {
		return ix, nil
	}
	if ix, err := s.loadIndex(key); err == nil {
		s.indexes.Add(key, ix)
		return ix, nil
	}
	if extractedPath == "" {
		// Caller saw a complete cache but the index no longer loads;
		// only a fresh extraction can rebuild it.
		return nil, fmt.Errorf("%w: index for %s unreadable", domain.ErrCacheCorrupt, key)
	}
	return s.build(extractedPath, key, "utf-8")
}

// Cached reports whether a complete cache generation exists for fp.
func (s *Store) Cached(fp domain.Fingerprint) bool {
	key := fp.Key()
	if _, err := os.Stat(s.textPath(key)); err != nil {
		return false
	}
	_, err := os.Stat(s.indexPath(key))
	return err == nil
}

// Failed reports whether fp is marked with a failure sentinel.
func (s *Store) Failed(fp domain.Fingerprint) bool { return s.failed(fp.Key()) }

// MarkFailed records a failure sentinel for fp so repeat requests
// short-circuit instead of repeating expensive work.
func (s *Store) MarkFailed(fp domain.Fingerprint) { s.markFailed(fp.Key()) }

// build runs the full pipeline: stream-decode to the canonical file,
// segment candidates into chapters, persist the index. Any failure
// leaves a sentinel instead of a partial cache.
func (s *Store) build(path, key, encoding string) (*domain.TextIndex, error) {
	result, err := BuildCanonical(path, s.textPath(key), encoding)
	if err != nil {
		s.markFailed(key)
		return nil, fmt.Errorf("build canonical for %s: %w", path, err)
	}

	ix := &domain.TextIndex{
		Encoding:    result.Encoding,
		TotalLength: result.TotalChars,
		TotalBytes:  result.TotalBytes,
		Chapters:    Segment(result.Candidates, result.TotalChars, result.TotalBytes),
	}
	if err := s.writeIndex(key, ix); err != nil {
		s.markFailed(key)
		return nil, err
	}

	os.Remove(s.failPath(key)) // stale sentinel, if any
	s.indexes.Add(key, ix)
	logger.Debug("Built text cache %s: %d chars, %d chapters", key, ix.TotalLength, len(ix.Chapters))
	return ix, nil
}

// loadValidated loads an existing index and re-checks that the recorded
// encoding still looks plausible against a fresh sample of the source.
// A silent bad guess at build time must not poison every future read.
func (s *Store) loadValidated(path, key string) (*domain.TextIndex, error) {
	ix, err := s.loadIndex(key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.textPath(key)); err != nil {
		return nil, fmt.Errorf("%w: canonical text missing", domain.ErrCacheCorrupt)
	}

	sample, err := readSample(path, charset.SampleSize)
	if err != nil {
		return nil, err
	}
	if len(sample) > 0 && !charset.ScoreEncoding(sample, ix.Encoding).Plausible() {
		logger.Debug("Cache %s: recorded encoding %s no longer validates, rebuilding", key, ix.Encoding)
		return nil, fmt.Errorf("%w: encoding %s", domain.ErrCacheCorrupt, ix.Encoding)
	}
	return ix, nil
}

func (s *Store) loadIndex(key string) (*domain.TextIndex, error) {
	data, err := os.ReadFile(s.indexPath(key))
	if err != nil {
		return nil, err
	}
	var ix domain.TextIndex
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	return &ix, nil
}

// writeIndex persists the index with the same temp-and-rename discipline
// as the canonical text.
func (s *Store) writeIndex(key string, ix *domain.TextIndex) error {
	data, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("marshalling index: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".lectern-index-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpPath, s.indexPath(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publish index: %w", err)
	}
	return nil
}

// ReadRange returns the canonical text bytes [startByte, endByte) for a
// fingerprint, decoded with replacement on error. Against a healthy
// cache replacement never fires; it is defence against torn files.
func (s *Store) ReadRange(fp domain.Fingerprint, startByte, endByte int64) (string, error) {
	if startByte < 0 || endByte < startByte {
		return "", domain.ErrInvalidInput
	}
	f, err := os.Open(s.textPath(fp.Key()))
	if err != nil {
		return "", fmt.Errorf("open canonical text: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(startByte, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek canonical text: %w", err)
	}
	buf := make([]byte, endByte-startByte)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read canonical text: %w", err)
	}
	return strings.ToValidUTF8(string(buf[:n]), "�"), nil
}

// PageRange approximates the byte range for a page of pageChars
// characters using the file's average bytes-per-character ratio. Exact
// character alignment at page boundaries is not guaranteed.
func PageRange(ix *domain.TextIndex, pageNumber, pageChars int) (startChar, endChar, startByte, endByte int64) {
	startChar = int64(pageNumber-1) * int64(pageChars)
	if startChar > ix.TotalLength {
		startChar = ix.TotalLength
	}
	endChar = startChar + int64(pageChars)
	if endChar > ix.TotalLength {
		endChar = ix.TotalLength
	}
	startByte = proportional(startChar, ix.TotalLength, ix.TotalBytes)
	endByte = proportional(endChar, ix.TotalLength, ix.TotalBytes)
	return startChar, endChar, startByte, endByte
}

// TotalPages returns how many pageChars-sized pages the file spans.
func TotalPages(ix *domain.TextIndex, pageChars int) int {
	if pageChars <= 0 || ix.TotalLength == 0 {
		return 1
	}
	return int((ix.TotalLength + int64(pageChars) - 1) / int64(pageChars))
}

func (s *Store) failed(key string) bool {
	_, err := os.Stat(s.failPath(key))
	return err == nil
}

func (s *Store) markFailed(key string) {
	// Content-free sentinel; only its existence matters.
	if err := os.WriteFile(s.failPath(key), nil, 0o644); err != nil {
		logger.Warn("Failed to write sentinel for %s: %v", key, err)
	}
}

// readSample reads up to n leading bytes of path.
func readSample(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("sample %s: %w", path, err)
	}
	return buf[:read], nil
}
