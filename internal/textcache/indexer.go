package textcache

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/transform"

	"github.com/custodia-labs/lectern-cli/internal/charset"
	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

const (
	// chunkSize is how many decoded bytes each read pass handles.
	chunkSize = 512 << 10
	// maxLineChars force-flushes an unterminated line so a file with no
	// newlines cannot grow the buffer without bound. Forced segments are
	// not classified.
	maxLineChars = 2 << 20
)

// IndexResult is what one streaming pass over a source file produces:
// the canonical cache has been written and the chapter candidates carry
// exact offsets into it.
type IndexResult struct {
	Encoding    string
	TotalChars  int64
	TotalBytes  int64
	Candidates  []domain.ChapterCandidate
	ForcedFlush bool
}

// BuildCanonical decodes srcPath incrementally under encodingName,
// writes the canonical UTF-8 text to dstPath and collects chapter
// candidates. Memory stays bounded regardless of input size.
//
// The canonical file is written to a temp path and renamed into place
// only on success; a failure mid-stream never leaves a partial file
// visible to readers.
func BuildCanonical(srcPath, dstPath, encodingName string) (*IndexResult, error) {
	decoder, err := charset.Decoder(encodingName)
	if err != nil {
		return nil, err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".lectern-build-*")
	if err != nil {
		return nil, fmt.Errorf("create temp cache: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	ix := &indexer{w: bufio.NewWriterSize(tmp, 64<<10), encoding: encodingName}
	if err := ix.run(transform.NewReader(src, decoder)); err != nil {
		cleanup()
		return nil, err
	}
	if err := ix.w.Flush(); err != nil {
		cleanup()
		return nil, fmt.Errorf("flush cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("close cache: %w", err)
	}
	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("publish cache: %w", err)
	}

	return &IndexResult{
		Encoding:    encodingName,
		TotalChars:  ix.charOffset,
		TotalBytes:  ix.byteOffset,
		Candidates:  ix.candidates,
		ForcedFlush: ix.forced,
	}, nil
}

// heldLine is a line awaiting its successor: classification needs to
// know whether the next line is blank.
type heldLine struct {
	text       string
	charOffset int64
	byteOffset int64
	prevBlank  bool
}

type indexer struct {
	w        *bufio.Writer
	encoding string

	charOffset int64
	byteOffset int64

	prevBlank  bool
	held       *heldLine
	candidates []domain.ChapterCandidate
	forced     bool
}

// bomRune is U+FEFF in UTF-8.
var bomRune = []byte("\uFEFF")

// run drives the chunked decode loop. The transformer handles multi-byte
// sequences split across chunk boundaries; line splitting here only ever
// breaks on '\n', so a trailing '\r' naturally waits in the pending
// buffer for the next chunk before being resolved.
func (ix *indexer) run(r io.Reader) error {
	var pending []byte
	pendingRunes := 0
	first := true

	buf := make([]byte, chunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			pending = append(pending, chunk...)
			if first && len(pending) >= len(bomRune) {
				// UTF-16 decoders surface the BOM as U+FEFF; the
				// canonical cache never carries one.
				pending = bytes.TrimPrefix(pending, bomRune)
				first = false
			}

			emitted := false
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := pending[:i]
				if len(line) > 0 && line[len(line)-1] == '\r' {
					line = line[:len(line)-1]
				}
				if err := ix.emitLine(string(line), true); err != nil {
					return err
				}
				pending = pending[i+1:]
				emitted = true
			}
			if emitted {
				pending = append([]byte(nil), pending...) // release processed prefix
				pendingRunes = utf8.RuneCount(pending)
			} else {
				pendingRunes += utf8.RuneCount(chunk)
			}

			if pendingRunes > maxLineChars {
				if err := ix.emitForced(string(pending)); err != nil {
					return err
				}
				pending = pending[:0]
				pendingRunes = 0
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("decode stream: %w", readErr)
		}
	}

	if len(pending) > 0 {
		if err := ix.emitLine(string(pending), false); err != nil {
			return err
		}
	}
	return ix.finalize()
}

// emitLine writes one completed line and runs deferred classification on
// the previously held line, now that its successor is known.
func (ix *indexer) emitLine(text string, terminated bool) error {
	blank := strings.TrimSpace(text) == ""
	ix.resolveHeld(blank)

	held := &heldLine{
		text:       text,
		charOffset: ix.charOffset,
		byteOffset: ix.byteOffset,
		prevBlank:  ix.prevBlank,
	}

	if err := ix.write(text, terminated); err != nil {
		return err
	}

	ix.held = held
	ix.prevBlank = blank
	return nil
}

// emitForced writes an overflow segment. It counts as a non-blank
// neighbour but is never itself classified.
func (ix *indexer) emitForced(text string) error {
	ix.resolveHeld(false)
	ix.forced = true
	if err := ix.write(text, false); err != nil {
		return err
	}
	ix.held = nil
	ix.prevBlank = false
	return nil
}

// write appends text (plus its logical newline) to the canonical cache
// and advances the exact char/byte offsets.
func (ix *indexer) write(text string, terminated bool) error {
	if _, err := ix.w.WriteString(text); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	ix.charOffset += int64(utf8.RuneCountInString(text))
	ix.byteOffset += int64(len(text))
	if terminated {
		if err := ix.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write cache: %w", err)
		}
		ix.charOffset++
		ix.byteOffset++
	}
	return nil
}

// resolveHeld classifies the held line against its now-known successor.
func (ix *indexer) resolveHeld(nextBlank bool) {
	if ix.held == nil {
		return
	}
	h := ix.held
	ix.held = nil

	cand, ok := ClassifyLine(h.text, h.prevBlank, nextBlank)
	if !ok {
		return
	}
	ix.candidates = append(ix.candidates, domain.ChapterCandidate{
		Title:       cand.Title,
		CharOffset:  h.charOffset + int64(cand.RuneOffset),
		ByteOffset:  h.byteOffset + int64(cand.ByteOffset),
		Strength:    cand.Strength,
		Placeholder: cand.Placeholder,
	})
}

// finalize classifies the last line; end-of-file counts as a blank
// neighbour.
func (ix *indexer) finalize() error {
	ix.resolveHeld(true)
	return nil
}
