// Package mobi extracts plain text from MOBI/PalmDoc containers. The
// format's parser cannot be trusted with arbitrary input, so extraction
// runs in a resource-limited child process (see extractor.go); only the
// cheap header pre-parse happens in the caller's process.
package mobi

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// Compression codes from the PalmDoc header.
const (
	CompressionNone    = 1
	CompressionPalmDoc = 2
	CompressionHuff    = 17480
)

// Text encoding codes from the MOBI header.
const (
	EncodingCP1252 = 1252
	EncodingUTF8   = 65001
)

const (
	pdbHeaderSize    = 78
	recordInfoSize   = 8
	palmDocHeaderLen = 16
)

// Header holds the minimal fields needed for the pre-extraction size
// estimate and for driving the worker.
type Header struct {
	// Title is the book title: the MOBI full name when present,
	// otherwise the PDB database name.
	Title string

	// Compression, TextLength, RecordCount, RecordSize and Encryption
	// come from the PalmDoc header in record 0.
	Compression uint16
	TextLength  uint32
	RecordCount uint16
	RecordSize  uint16
	Encryption  uint16

	// TextEncoding is the MOBI-declared code page, 0 when there is no
	// MOBI header.
	TextEncoding uint32

	// ExtraDataFlags describes per-record trailing entries that must be
	// trimmed before decompression.
	ExtraDataFlags uint16

	// NumRecords is the PDB record count; records 1..RecordCount hold
	// the text.
	NumRecords uint16

	recordOffsets []uint32
	fileSize      int64
}

// Estimate is the declared decompressed text size, read from header
// metadata before any decompression is attempted.
type Estimate struct {
	EstimatedChars int64
}

// ParseHeaderFile opens path and parses its headers.
func ParseHeaderFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return ParseHeader(f, info.Size())
}

// ParseHeader parses the PDB, PalmDoc and (optional) MOBI headers.
// Every offset is bounds-checked: a malformed file yields
// domain.ErrUnsupportedFormat, never a panic or an out-of-range read.
func ParseHeader(r io.ReaderAt, size int64) (*Header, error) {
	if size < pdbHeaderSize {
		return nil, fmt.Errorf("%w: file too small for PDB header", domain.ErrUnsupportedFormat)
	}

	pdb := make([]byte, pdbHeaderSize)
	if _, err := r.ReadAt(pdb, 0); err != nil {
		return nil, fmt.Errorf("read PDB header: %w", err)
	}

	h := &Header{fileSize: size}
	h.Title = string(bytes.TrimRight(pdb[0:32], "\x00"))
	h.NumRecords = binary.BigEndian.Uint16(pdb[76:78])

	typ, creator := string(pdb[60:64]), string(pdb[64:68])
	if !(typ == "BOOK" && creator == "MOBI") && !(typ == "TEXt" && creator == "REAd") {
		return nil, fmt.Errorf("%w: not a PalmDoc/MOBI container (%s/%s)", domain.ErrUnsupportedFormat, typ, creator)
	}
	if h.NumRecords == 0 {
		return nil, fmt.Errorf("%w: no records", domain.ErrUnsupportedFormat)
	}

	infoLen := int64(h.NumRecords) * recordInfoSize
	if pdbHeaderSize+infoLen > size {
		return nil, fmt.Errorf("%w: record list exceeds file", domain.ErrUnsupportedFormat)
	}
	infoBuf := make([]byte, infoLen)
	if _, err := r.ReadAt(infoBuf, pdbHeaderSize); err != nil {
		return nil, fmt.Errorf("read record list: %w", err)
	}
	h.recordOffsets = make([]uint32, h.NumRecords)
	for i := 0; i < int(h.NumRecords); i++ {
		off := binary.BigEndian.Uint32(infoBuf[i*recordInfoSize:])
		if int64(off) > size {
			return nil, fmt.Errorf("%w: record %d offset beyond file", domain.ErrUnsupportedFormat, i)
		}
		if i > 0 && off < h.recordOffsets[i-1] {
			return nil, fmt.Errorf("%w: record offsets not monotonic", domain.ErrUnsupportedFormat)
		}
		h.recordOffsets[i] = off
	}

	rec0, err := h.record(r, 0)
	if err != nil {
		return nil, err
	}
	if len(rec0) < palmDocHeaderLen {
		return nil, fmt.Errorf("%w: record 0 too small", domain.ErrUnsupportedFormat)
	}
	h.Compression = binary.BigEndian.Uint16(rec0[0:2])
	h.TextLength = binary.BigEndian.Uint32(rec0[4:8])
	h.RecordCount = binary.BigEndian.Uint16(rec0[8:10])
	h.RecordSize = binary.BigEndian.Uint16(rec0[10:12])
	h.Encryption = binary.BigEndian.Uint16(rec0[12:14])

	if int(h.RecordCount) >= int(h.NumRecords) {
		return nil, fmt.Errorf("%w: text record count %d exceeds record list", domain.ErrUnsupportedFormat, h.RecordCount)
	}

	h.parseMobiHeader(rec0)
	return h, nil
}

// parseMobiHeader reads the optional MOBI header that follows the
// PalmDoc header in record 0. Absence is fine (plain PalmDoc files).
func (h *Header) parseMobiHeader(rec0 []byte) {
	rest := rec0[palmDocHeaderLen:]
	if len(rest) < 8 || string(rest[0:4]) != "MOBI" {
		return
	}
	headerLen := binary.BigEndian.Uint32(rest[4:8])
	if len(rest) >= 16 {
		h.TextEncoding = binary.BigEndian.Uint32(rest[12:16])
	}

	// Full name pointer (offset relative to record 0 start).
	if len(rest) >= 76 {
		nameOff := binary.BigEndian.Uint32(rest[68:72])
		nameLen := binary.BigEndian.Uint32(rest[72:76])
		end := int64(nameOff) + int64(nameLen)
		if nameLen > 0 && nameLen < 1024 && end <= int64(len(rec0)) {
			h.Title = string(rec0[nameOff:end])
		}
	}

	// Extra data flags live at 0xF0 in the MOBI header of v5+ files.
	if headerLen >= 0xF4 && len(rest) >= 0xF4 {
		h.ExtraDataFlags = binary.BigEndian.Uint16(rest[0xF0+2 : 0xF4])
	}
}

// record returns the raw bytes of record i.
func (h *Header) record(r io.ReaderAt, i int) ([]byte, error) {
	if i >= int(h.NumRecords) {
		return nil, fmt.Errorf("%w: record %d out of range", domain.ErrUnsupportedFormat, i)
	}
	start := int64(h.recordOffsets[i])
	end := h.fileSize
	if i+1 < int(h.NumRecords) {
		end = int64(h.recordOffsets[i+1])
	}
	if end < start {
		return nil, fmt.Errorf("%w: record %d inverted bounds", domain.ErrUnsupportedFormat, i)
	}
	buf := make([]byte, end-start)
	if _, err := r.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read record %d: %w", i, err)
	}
	return buf, nil
}

// EstimateSize derives the extraction estimate from header metadata
// alone. Protects against a small file that decompresses enormously.
func (h *Header) EstimateSize() Estimate {
	return Estimate{EstimatedChars: int64(h.TextLength)}
}
