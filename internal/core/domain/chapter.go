package domain

// CandidateStrength ranks how confident the classifier is that a line
// marks a chapter boundary.
type CandidateStrength int

const (
	// StrengthWeak is a numeric-prefixed line accepted only with a blank
	// neighbour.
	StrengthWeak CandidateStrength = 1
	// StrengthInline is a strong pattern embedded inside a longer line.
	StrengthInline CandidateStrength = 2
	// StrengthStrong is a whole-line match against a canonical chapter
	// marker shape.
	StrengthStrong CandidateStrength = 3
)

// ChapterCandidate is a provisional chapter boundary produced during
// indexing and consumed by segmentation. Offsets address the canonical
// UTF-8 cache, chars and bytes respectively.
type ChapterCandidate struct {
	Title       string
	CharOffset  int64
	ByteOffset  int64
	Strength    CandidateStrength
	Placeholder bool // bare body-divider line such as "正文"
}

// Chapter is a finalised chapter span over the canonical text.
//
// Invariants: StartOffset <= EndOffset, StartByte <= EndByte; within an
// index, chapters are ordered, non-overlapping, and their byte spans
// cover [0, TotalBytes) exactly.
type Chapter struct {
	Title       string `json:"title"`
	StartOffset int64  `json:"startOffset"`
	EndOffset   int64  `json:"endOffset"`
	StartByte   int64  `json:"startByte"`
	EndByte     int64  `json:"endByte"`
}

// TextIndex is the durable chapter index for one cached file. It is
// rebuilt from scratch whenever the source fingerprint changes.
type TextIndex struct {
	Encoding    string    `json:"encoding"`
	TotalLength int64     `json:"totalLength"`
	TotalBytes  int64     `json:"totalBytes"`
	Chapters    []Chapter `json:"chapters"`
}

// BytesPerChar returns the file's average UTF-8 bytes per character,
// used to approximate byte ranges for character-addressed reads.
func (ix *TextIndex) BytesPerChar() float64 {
	if ix.TotalLength == 0 {
		return 1
	}
	return float64(ix.TotalBytes) / float64(ix.TotalLength)
}
