package mobi

import (
	"fmt"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// decompressPalmDoc expands one PalmDoc (LZ77) compressed record.
// Output is hard-capped at maxOut bytes; the cap is a defence, not an
// error, so the result is simply truncated when hit.
func decompressPalmDoc(src []byte, maxOut int) ([]byte, error) {
	out := make([]byte, 0, len(src)*2)
	i := 0
	for i < len(src) && len(out) < maxOut {
		b := src[i]
		i++
		switch {
		case b == 0x00:
			out = append(out, b)
		case b <= 0x08:
			// Literal run of b bytes.
			n := int(b)
			if i+n > len(src) {
				return nil, fmt.Errorf("%w: literal run past end", domain.ErrUnsupportedFormat)
			}
			out = append(out, src[i:i+n]...)
			i += n
		case b <= 0x7F:
			out = append(out, b)
		case b <= 0xBF:
			// Length/distance pair.
			if i >= len(src) {
				return nil, fmt.Errorf("%w: truncated LZ77 pair", domain.ErrUnsupportedFormat)
			}
			pair := int(b)<<8 | int(src[i])
			i++
			distance := (pair >> 3) & 0x07FF
			length := (pair & 0x0007) + 3
			if distance == 0 || distance > len(out) {
				return nil, fmt.Errorf("%w: LZ77 distance out of window", domain.ErrUnsupportedFormat)
			}
			for j := 0; j < length && len(out) < maxOut; j++ {
				out = append(out, out[len(out)-distance])
			}
		default:
			// 0xC0..0xFF: space plus ASCII char.
			out = append(out, ' ', b^0x80)
		}
	}
	if len(out) > maxOut {
		out = out[:maxOut]
	}
	return out, nil
}

// trimTrailingEntries removes the per-record extra data the MOBI header
// declared, which is appended after the compressed text.
func trimTrailingEntries(record []byte, flags uint16) []byte {
	for bit := 15; bit > 0; bit-- {
		if flags&(1<<bit) == 0 {
			continue
		}
		n := trailingEntrySize(record)
		if n >= len(record) {
			return nil
		}
		record = record[:len(record)-n]
	}
	if flags&1 != 0 && len(record) > 0 {
		// Multibyte overlap entry: low bits of the final byte give its
		// size, plus the size byte itself.
		n := int(record[len(record)-1]&0x03) + 1
		if n >= len(record) {
			return nil
		}
		record = record[:len(record)-n]
	}
	return record
}

// trailingEntrySize reads the backward-encoded variable-width size at
// the end of a record.
func trailingEntrySize(record []byte) int {
	size := 0
	for i := len(record) - 4; i < len(record); i++ {
		if i < 0 {
			continue
		}
		b := record[i]
		if b&0x80 != 0 {
			size = 0
		}
		size = size<<7 | int(b&0x7F)
	}
	return size
}
