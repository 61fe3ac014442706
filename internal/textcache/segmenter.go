package textcache

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

const (
	// minGap collapses candidates closer than this many characters,
	// keeping the stronger one.
	minGap = 40
	// prefaceThreshold: a first candidate further in than this gets a
	// synthetic preface chapter in front of it.
	prefaceThreshold = 100
	// maxChapterBytes bounds the payload a reading client fetches per
	// chapter; larger spans are split into (i/N) parts.
	maxChapterBytes = 2 << 20
	// largeFileBytes: files above this with zero candidates get uniform
	// byte-chunk chapters instead of one huge span.
	largeFileBytes = 1 << 20
	// fallbackChunkBytes is the uniform chunk size for that synthesis.
	fallbackChunkBytes = 512 << 10
)

// fullTextTitle labels the single chapter of an unsegmentable small file.
const fullTextTitle = "全文"

// prefaceTitle labels the synthetic chapter before the first real marker.
const prefaceTitle = "前言"

// Segment turns raw candidates into the final ordered chapter list.
//
// The fallback to uniform chunks fires only when zero candidates
// survive, never for sparse ones; changing that threshold would silently
// change segmentation on real libraries.
//
// The returned chapters' byte spans partition [0, totalBytes) exactly.
func Segment(candidates []domain.ChapterCandidate, totalChars, totalBytes int64) []domain.Chapter {
	// Placeholders go first: a 正文 divider sitting right before the
	// first real marker must not absorb it during collapse.
	kept := dropPlaceholders(candidates)
	kept = collapse(kept)

	if len(kept) == 0 {
		return fallbackChapters(totalChars, totalBytes)
	}

	if kept[0].CharOffset > prefaceThreshold {
		kept = append([]domain.ChapterCandidate{{
			Title: prefaceTitle,
		}}, kept...)
	} else if kept[0].CharOffset > 0 {
		// A candidate almost at the top owns the text before it too.
		kept[0].CharOffset = 0
		kept[0].ByteOffset = 0
	}

	chapters := make([]domain.Chapter, 0, len(kept))
	for i, c := range kept {
		endChar, endByte := totalChars, totalBytes
		if i+1 < len(kept) {
			endChar = kept[i+1].CharOffset
			endByte = kept[i+1].ByteOffset
		}
		chapters = append(chapters, domain.Chapter{
			Title:       c.Title,
			StartOffset: c.CharOffset,
			EndOffset:   endChar,
			StartByte:   c.ByteOffset,
			EndByte:     endByte,
		})
	}

	return splitOversize(chapters)
}

// collapse sorts candidates by offset and suppresses a weaker duplicate
// within minGap of a stronger marker. Equal-strength neighbours are both
// kept: two adjacent strong markers are two short chapters, not one.
func collapse(candidates []domain.ChapterCandidate) []domain.ChapterCandidate {
	if len(candidates) == 0 {
		return nil
	}
	sorted := make([]domain.ChapterCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CharOffset < sorted[j].CharOffset
	})

	kept := sorted[:1]
	for _, c := range sorted[1:] {
		last := &kept[len(kept)-1]
		if c.CharOffset-last.CharOffset < minGap && c.Strength != last.Strength {
			if c.Strength > last.Strength {
				*last = c
			}
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// dropPlaceholders removes bare divider candidates when any real marker
// survived. A lone "正文" line must never become a chapter when actual
// chapter markers exist elsewhere in the document.
func dropPlaceholders(candidates []domain.ChapterCandidate) []domain.ChapterCandidate {
	hasReal := false
	for _, c := range candidates {
		if !c.Placeholder {
			hasReal = true
			break
		}
	}
	if !hasReal {
		return candidates
	}
	kept := candidates[:0:0]
	for _, c := range candidates {
		if !c.Placeholder {
			kept = append(kept, c)
		}
	}
	return kept
}

// fallbackChapters synthesises chapters for a candidate-free text:
// uniform byte chunks for large files, one whole-text chapter otherwise.
func fallbackChapters(totalChars, totalBytes int64) []domain.Chapter {
	if totalBytes <= largeFileBytes {
		return []domain.Chapter{{
			Title:       fullTextTitle,
			StartOffset: 0,
			EndOffset:   totalChars,
			StartByte:   0,
			EndByte:     totalBytes,
		}}
	}

	n := int((totalBytes + fallbackChunkBytes - 1) / fallbackChunkBytes)
	chapters := make([]domain.Chapter, 0, n)
	for i := 0; i < n; i++ {
		startByte := int64(i) * totalBytes / int64(n)
		endByte := int64(i+1) * totalBytes / int64(n)
		chapters = append(chapters, domain.Chapter{
			Title:       fmt.Sprintf("%d/%d", i+1, n),
			StartOffset: proportional(startByte, totalBytes, totalChars),
			EndOffset:   proportional(endByte, totalBytes, totalChars),
			StartByte:   startByte,
			EndByte:     endByte,
		})
	}
	return chapters
}

// splitOversize subdivides any chapter whose byte span exceeds
// maxChapterBytes into equal parts labelled with an (i/N) suffix.
// Interior character boundaries are proportional; endpoints stay exact.
func splitOversize(chapters []domain.Chapter) []domain.Chapter {
	out := make([]domain.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		span := ch.EndByte - ch.StartByte
		if span <= maxChapterBytes {
			out = append(out, ch)
			continue
		}
		n := int((span + maxChapterBytes - 1) / maxChapterBytes)
		charSpan := ch.EndOffset - ch.StartOffset
		for i := 0; i < n; i++ {
			part := domain.Chapter{
				Title:       fmt.Sprintf("%s (%d/%d)", ch.Title, i+1, n),
				StartByte:   ch.StartByte + int64(i)*span/int64(n),
				EndByte:     ch.StartByte + int64(i+1)*span/int64(n),
				StartOffset: ch.StartOffset + int64(i)*charSpan/int64(n),
				EndOffset:   ch.StartOffset + int64(i+1)*charSpan/int64(n),
			}
			out = append(out, part)
		}
	}
	return out
}

// proportional maps a byte position to a character offset using the
// file-wide average bytes-per-character ratio.
func proportional(bytePos, totalBytes, totalChars int64) int64 {
	if totalBytes == 0 {
		return 0
	}
	return bytePos * totalChars / totalBytes
}
