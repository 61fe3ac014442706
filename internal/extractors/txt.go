package extractors

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/lectern-cli/internal/charset"
	"github.com/custodia-labs/lectern-cli/internal/core/domain"
	"github.com/custodia-labs/lectern-cli/internal/core/ports/driven"
)

// Ensure TXT implements the interface.
var _ driven.MetadataExtractor = (*TXT)(nil)

// previewChars is how much decoded text the description preview keeps.
const previewChars = 200

// previewSampleBytes is how much of the file the preview decodes.
const previewSampleBytes = 8 << 10

// filenameShapes parse common "title by author" naming conventions.
var filenameShapes = []*regexp.Regexp{
	// 《书名》作者
	regexp.MustCompile(`^《(?P<title>[^》]+)》\s*(?:作者[:：]?\s*)?(?P<author>.*)$`),
	// Title - Author / Title _ Author
	regexp.MustCompile(`^(?P<title>.+?)\s*[-_—]\s*(?:作者[:：]?\s*)?(?P<author>[^-_—]+)$`),
	// 书名 作者：someone
	regexp.MustCompile(`^(?P<title>.+?)\s*作者[:：]\s*(?P<author>.+)$`),
}

// TXT extracts metadata for plain text files. At scan time it reads at
// most a small preview; chaptering waits until first read.
type TXT struct {
	detector *charset.Detector
}

// NewTXT creates the plain-text extractor.
func NewTXT() *TXT {
	return &TXT{detector: charset.NewDetector()}
}

// Extensions returns the extensions this extractor handles.
func (t *TXT) Extensions() []string { return []string{"txt"} }

// Extract derives title/author from the filename and a short content
// preview for the description. An undetectable encoding is not fatal at
// scan time; the preview is simply omitted.
func (t *TXT) Extract(_ context.Context, path string) (*domain.Metadata, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	title, author := parseFilename(path)
	meta := &domain.Metadata{Title: title, Author: author}

	if preview, encoding, err := t.preview(path); err == nil {
		meta.Description = preview
		meta.Extra = map[string]any{"encoding": encoding}
	}
	return meta, nil
}

// preview decodes the leading bytes of the file for a description
// snippet.
func (t *TXT) preview(path string) (string, string, error) {
	encoding, err := t.detector.DetectFile(path)
	if err != nil {
		return "", "", err
	}
	decoder, err := charset.Decoder(encoding)
	if err != nil {
		return "", "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	raw := make([]byte, previewSampleBytes)
	n, err := io.ReadFull(f, raw)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", "", err
	}
	decoded, err := decoder.Bytes(raw[:n])
	if err != nil {
		return "", "", err
	}

	text := strings.TrimPrefix(string(decoded), "\uFEFF")
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) > previewChars {
		runes := []rune(text)
		text = string(runes[:previewChars])
	}
	return text, encoding, nil
}

// parseFilename extracts (title, author) from a file's base name.
func parseFilename(path string) (string, string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSpace(base)

	for _, shape := range filenameShapes {
		m := shape.FindStringSubmatch(base)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(m[1])
		author := strings.TrimSpace(m[2])
		if title != "" {
			return title, author
		}
	}
	return base, ""
}
