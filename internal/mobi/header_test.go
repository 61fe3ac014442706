package mobi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// palmDocFile assembles a minimal TEXt/REAd container: record 0 is the
// PalmDoc header, the remaining records hold text.
func palmDocFile(t *testing.T, name string, compression uint16, textLength uint32, records [][]byte) []byte {
	t.Helper()

	rec0 := make([]byte, 16)
	binary.BigEndian.PutUint16(rec0[0:2], compression)
	binary.BigEndian.PutUint32(rec0[4:8], textLength)
	binary.BigEndian.PutUint16(rec0[8:10], uint16(len(records)))
	binary.BigEndian.PutUint16(rec0[10:12], 4096)

	all := append([][]byte{rec0}, records...)
	numRecords := len(all)

	pdb := make([]byte, pdbHeaderSize)
	copy(pdb[0:32], name)
	copy(pdb[60:64], "TEXt")
	copy(pdb[64:68], "REAd")
	binary.BigEndian.PutUint16(pdb[76:78], uint16(numRecords))

	var buf bytes.Buffer
	buf.Write(pdb)
	offset := uint32(pdbHeaderSize + numRecords*recordInfoSize)
	for i, rec := range all {
		info := make([]byte, recordInfoSize)
		binary.BigEndian.PutUint32(info[0:4], offset)
		info[7] = byte(i) // unique ID, unused by the parser
		buf.Write(info)
		offset += uint32(len(rec))
	}
	for _, rec := range all {
		buf.Write(rec)
	}
	return buf.Bytes()
}

func TestParseHeaderPalmDoc(t *testing.T) {
	text := []byte("It was a dark and stormy night.")
	data := palmDocFile(t, "stormy", CompressionNone, uint32(len(text)), [][]byte{text})

	h, err := ParseHeader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, "stormy", h.Title)
	assert.Equal(t, uint16(CompressionNone), h.Compression)
	assert.Equal(t, uint32(len(text)), h.TextLength)
	assert.Equal(t, uint16(1), h.RecordCount)
	assert.Equal(t, uint16(0), h.Encryption)
	assert.Equal(t, int64(len(text)), h.EstimateSize().EstimatedChars)
}

func TestParseHeaderMobiFullName(t *testing.T) {
	// Record 0 with a MOBI header carrying an embedded full name.
	rec0 := make([]byte, 16+120)
	binary.BigEndian.PutUint16(rec0[0:2], CompressionNone)
	binary.BigEndian.PutUint32(rec0[4:8], 5)
	binary.BigEndian.PutUint16(rec0[8:10], 1)

	mobiHdr := rec0[16:]
	copy(mobiHdr[0:4], "MOBI")
	binary.BigEndian.PutUint32(mobiHdr[4:8], 0x68)
	binary.BigEndian.PutUint32(mobiHdr[12:16], EncodingUTF8)
	fullName := "遮天"
	nameOff := uint32(16 + 100)
	binary.BigEndian.PutUint32(mobiHdr[68:72], nameOff)
	binary.BigEndian.PutUint32(mobiHdr[72:76], uint32(len(fullName)))
	copy(rec0[nameOff:], fullName)

	text := []byte("hello")
	all := [][]byte{text}
	// Reuse palmDocFile's framing by stitching manually.
	pdb := make([]byte, pdbHeaderSize)
	copy(pdb[0:32], "db-name")
	copy(pdb[60:64], "BOOK")
	copy(pdb[64:68], "MOBI")
	binary.BigEndian.PutUint16(pdb[76:78], 2)

	var buf bytes.Buffer
	buf.Write(pdb)
	offset := uint32(pdbHeaderSize + 2*recordInfoSize)
	for _, rec := range append([][]byte{rec0}, all...) {
		info := make([]byte, recordInfoSize)
		binary.BigEndian.PutUint32(info[0:4], offset)
		buf.Write(info)
		offset += uint32(len(rec))
	}
	buf.Write(rec0)
	buf.Write(text)
	data := buf.Bytes()

	h, err := ParseHeader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, fullName, h.Title)
	assert.Equal(t, uint32(EncodingUTF8), h.TextEncoding)
}

func TestParseHeaderRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too small", make([]byte, 40)},
		{"wrong magic", make([]byte, 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(bytes.NewReader(tt.data), int64(len(tt.data)))
			assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
		})
	}
}

func TestParseHeaderRejectsRecordCountBeyondList(t *testing.T) {
	text := []byte("x")
	data := palmDocFile(t, "bad", CompressionNone, 1, [][]byte{text})
	// Claim more text records than the PDB record list holds.
	rec0Start := pdbHeaderSize + 2*recordInfoSize
	binary.BigEndian.PutUint16(data[rec0Start+8:rec0Start+10], 9)

	_, err := ParseHeader(bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}
