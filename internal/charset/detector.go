// Package charset selects the most plausible text encoding for a byte
// sample. Detection is deterministic for a fixed sample and never
// panics on malformed input: an undecidable encoding is a normal,
// reportable outcome, not an exception.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// SampleSize is how many leading bytes of a file detection inspects.
const SampleSize = 200 * 1024

const (
	// nulBinaryRatio: above this NUL fraction, and absent a UTF-16
	// even/odd skew, the sample is classified as binary.
	nulBinaryRatio = 0.05
	// controlBinaryRatio: above this non-printable fraction (tab/CR/LF
	// excluded) the sample is classified as binary.
	controlBinaryRatio = 0.15
	// utf16SkewRatio: fraction of NULs on one parity that explains them
	// as a UTF-16 byte pattern rather than binary padding.
	utf16SkewRatio = 0.9
	// cleanQuality is the per-char bad-character ratio below which a
	// candidate decode is considered clean.
	cleanQuality = 0.01
)

// candidateOrder is the fixed priority sweep. Earlier entries win ties.
// GB2312 is subsumed by GBK/GB18030 in x/text, so it has no entry of
// its own; a GB2312 file detects as one of those.
var candidateOrder = []string{
	"utf-8",
	"utf-8-sig",
	"gb18030",
	"gbk",
	"big5",
	"utf-16le",
	"utf-16be",
}

// Score describes how well a sample decodes under one encoding.
type Score struct {
	// Quality is (replacement + control chars) / total chars. Lower is
	// better; 0 is a perfect decode.
	Quality float64
	// CJKRatio is the fraction of chars in the CJK Unified Ideographs
	// block.
	CJKRatio float64
	// ASCIIRatio is the fraction of printable ASCII chars.
	ASCIIRatio float64
	// Chars is the decoded character count.
	Chars int
}

// Plausible reports whether the score looks like real text: a clean
// decode that is recognisably CJK or ASCII prose.
func (s Score) Plausible() bool {
	if s.Chars == 0 {
		return false
	}
	return s.Quality <= cleanQuality && (s.CJKRatio >= 0.05 || s.ASCIIRatio >= 0.6)
}

// Detector picks encodings for text files.
type Detector struct {
	sampleSize int
}

// NewDetector creates a detector with the default sample size.
func NewDetector() *Detector {
	return &Detector{sampleSize: SampleSize}
}

// DetectFile samples the leading bytes of path and detects its encoding.
func (d *Detector) DetectFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sample := make([]byte, d.sampleSize)
	n, err := io.ReadFull(f, sample)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("sample %s: %w", path, err)
	}
	return d.Detect(sample[:n])
}

// Detect selects the most plausible encoding for sample.
// Returns domain.ErrUnsupportedFormat for binary input and
// domain.ErrEncodingUndetermined when no candidate validates.
func (d *Detector) Detect(sample []byte) (string, error) {
	if len(sample) == 0 {
		return "utf-8", nil
	}

	// Binary pre-check runs before any encoding attempt.
	if looksBinary(sample) {
		return "", domain.ErrUnsupportedFormat
	}

	// BOM fast path.
	if name := bomEncoding(sample); name != "" {
		return name, nil
	}

	// Candidate sweep: minimise bad-char count, break ties with CJK
	// ratio, then sweep order.
	best := ""
	var bestScore Score
	for _, name := range candidateOrder {
		score := ScoreEncoding(sample, name)
		if score.Chars == 0 {
			continue
		}
		if best == "" || better(score, bestScore) {
			best = name
			bestScore = score
		}
	}
	if best != "" && bestScore.Quality <= cleanQuality {
		return best, nil
	}

	// No candidate decoded cleanly: defer to the statistical guesser.
	return d.fallback(sample)
}

// better reports whether a beats b: lower quality first, then higher
// CJK ratio.
func better(a, b Score) bool {
	if a.Quality != b.Quality {
		return a.Quality < b.Quality
	}
	return a.CJKRatio > b.CJKRatio
}

// fallback asks chardet for a guess and validates it with the same
// scoring used by the sweep.
func (d *Detector) fallback(sample []byte) (string, error) {
	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result == nil {
		return "", domain.ErrEncodingUndetermined
	}

	name := normalizeName(result.Charset)
	if name == "utf-16" {
		// Generic UTF-16 without endianness: disambiguate by NUL
		// parity. ASCII-heavy UTF-16LE puts NULs at odd positions.
		even, odd := nulParity(sample)
		if even > odd {
			name = "utf-16be"
		} else {
			name = "utf-16le"
		}
	}
	if name == "" {
		return "", domain.ErrEncodingUndetermined
	}
	if !ScoreEncoding(sample, name).Plausible() {
		return "", domain.ErrEncodingUndetermined
	}
	return name, nil
}

// ScoreEncoding decodes sample under the named encoding and scores the
// result. A zero-char score means the encoding name is unknown.
func ScoreEncoding(sample []byte, name string) Score {
	enc := encodingFor(name)
	if enc == nil {
		return Score{}
	}
	decoded, err := enc.NewDecoder().Bytes(sample)
	if err != nil {
		// x/text decoders replace rather than fail; treat a hard error
		// as a hopeless candidate.
		return Score{Quality: 1, Chars: 1}
	}
	return scoreText(decoded)
}

// scoreText counts replacement/control chars, CJK chars and printable
// ASCII over decoded UTF-8 bytes.
func scoreText(decoded []byte) Score {
	var total, bad, cjk, ascii int
	for i := 0; i < len(decoded); {
		r, size := utf8.DecodeRune(decoded[i:])
		i += size
		total++
		switch {
		case r == utf8.RuneError:
			bad++
		case r < 0x20 && r != '\t' && r != '\n' && r != '\r':
			bad++
		case r == 0x7F:
			bad++
		case r >= 0x4E00 && r <= 0x9FFF:
			cjk++
		case r >= 0x20 && r < 0x7F:
			ascii++
		}
	}
	if total == 0 {
		return Score{}
	}
	return Score{
		Quality:    float64(bad) / float64(total),
		CJKRatio:   float64(cjk) / float64(total),
		ASCIIRatio: float64(ascii) / float64(total),
		Chars:      total,
	}
}

// looksBinary applies the NUL-skew and control-byte heuristics.
func looksBinary(sample []byte) bool {
	n := len(sample)
	nuls := bytes.Count(sample, []byte{0})
	if float64(nuls)/float64(n) > nulBinaryRatio {
		even, odd := nulParity(sample)
		skewed := false
		if nuls > 0 {
			evenRatio := float64(even) / float64(nuls)
			oddRatio := float64(odd) / float64(nuls)
			skewed = evenRatio >= utf16SkewRatio || oddRatio >= utf16SkewRatio
		}
		if !skewed {
			return true
		}
		// UTF-16-shaped NULs: not binary. Skip the control check too,
		// since raw UTF-16 bytes trip it by construction.
		return false
	}

	var control int
	for _, b := range sample {
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return float64(control)/float64(n) > controlBinaryRatio
}

// nulParity counts NUL bytes at even and odd offsets.
func nulParity(sample []byte) (even, odd int) {
	for i, b := range sample {
		if b == 0 {
			if i%2 == 0 {
				even++
			} else {
				odd++
			}
		}
	}
	return even, odd
}

// bomEncoding recognises byte-order marks directly.
func bomEncoding(sample []byte) string {
	switch {
	case bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}):
		return "utf-8-sig"
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return "utf-16le"
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return "utf-16be"
	}
	return ""
}

// encodingFor maps a detection name to its x/text decoder.
// Returns nil for names the cache pipeline cannot decode.
func encodingFor(name string) encoding.Encoding {
	switch name {
	case "utf-8":
		return unicode.UTF8
	case "utf-8-sig":
		return unicode.UTF8BOM
	case "gb18030":
		return simplifiedchinese.GB18030
	case "gbk":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}
	return nil
}

// Decoder returns the streaming decoder for a detected encoding name.
func Decoder(name string) (*encoding.Decoder, error) {
	enc := encodingFor(name)
	if enc == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEncodingUndetermined, name)
	}
	return enc.NewDecoder(), nil
}

// normalizeName maps chardet charset names onto the sweep's names.
func normalizeName(charset string) string {
	switch strings.ToLower(charset) {
	case "utf-8":
		return "utf-8"
	case "gb-18030", "gb18030":
		return "gb18030"
	case "gbk", "gb2312", "euc-cn":
		return "gbk"
	case "big5", "big-5":
		return "big5"
	case "utf-16le":
		return "utf-16le"
	case "utf-16be":
		return "utf-16be"
	case "utf-16":
		return "utf-16"
	case "iso-8859-1", "windows-1252", "ascii", "us-ascii":
		// Latin bytes decode losslessly as single bytes; serving them as
		// UTF-8 is what the canonical cache wants for ASCII-range text.
		return "utf-8"
	}
	return ""
}
