package textcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

// requirePartition asserts that the chapters' byte spans exactly cover
// [0, totalBytes) in order with no gaps or overlaps.
func requirePartition(t *testing.T, chapters []domain.Chapter, totalBytes int64) {
	t.Helper()
	require.NotEmpty(t, chapters)
	assert.Equal(t, int64(0), chapters[0].StartByte)
	for i := 1; i < len(chapters); i++ {
		assert.Equal(t, chapters[i-1].EndByte, chapters[i].StartByte, "gap before chapter %d", i)
	}
	assert.Equal(t, totalBytes, chapters[len(chapters)-1].EndByte)
	for i, ch := range chapters {
		assert.LessOrEqual(t, ch.EndByte-ch.StartByte, int64(maxChapterBytes), "chapter %d oversize", i)
	}
}

func TestSegmentBasic(t *testing.T) {
	candidates := []domain.ChapterCandidate{
		{Title: "第一章", CharOffset: 0, ByteOffset: 0, Strength: domain.StrengthStrong},
		{Title: "第二章", CharOffset: 500, ByteOffset: 1500, Strength: domain.StrengthStrong},
		{Title: "第三章", CharOffset: 900, ByteOffset: 2700, Strength: domain.StrengthStrong},
	}
	chapters := Segment(candidates, 1200, 3600)

	require.Len(t, chapters, 3)
	assert.Equal(t, "第一章", chapters[0].Title)
	assert.Equal(t, int64(500), chapters[0].EndOffset)
	assert.Equal(t, int64(1500), chapters[1].StartByte)
	assert.Equal(t, int64(1200), chapters[2].EndOffset)
	requirePartition(t, chapters, 3600)
}

func TestSegmentDropsPlaceholderWhenRealMarkersExist(t *testing.T) {
	candidates := []domain.ChapterCandidate{
		{Title: "正文", CharOffset: 0, ByteOffset: 0, Strength: domain.StrengthStrong, Placeholder: true},
		{Title: "第一章", CharOffset: 200, ByteOffset: 600, Strength: domain.StrengthStrong},
		{Title: "第二章", CharOffset: 5000, ByteOffset: 15000, Strength: domain.StrengthStrong},
	}
	chapters := Segment(candidates, 9000, 27000)

	for _, ch := range chapters {
		assert.NotEqual(t, "正文", ch.Title)
	}
	// The first real marker is deep enough in to earn a preface.
	assert.Equal(t, prefaceTitle, chapters[0].Title)
	assert.Equal(t, int64(0), chapters[0].StartOffset)
	assert.Equal(t, int64(200), chapters[0].EndOffset)
	requirePartition(t, chapters, 27000)
}

func TestSegmentPlaceholderOnlyDocumentKeepsIt(t *testing.T) {
	candidates := []domain.ChapterCandidate{
		{Title: "正文", CharOffset: 0, ByteOffset: 0, Strength: domain.StrengthStrong, Placeholder: true},
	}
	chapters := Segment(candidates, 1000, 3000)
	require.Len(t, chapters, 1)
	assert.Equal(t, "正文", chapters[0].Title)
	requirePartition(t, chapters, 3000)
}

func TestSegmentNearTopCandidateOwnsLeadingText(t *testing.T) {
	candidates := []domain.ChapterCandidate{
		{Title: "第一章", CharOffset: 60, ByteOffset: 180, Strength: domain.StrengthStrong},
	}
	chapters := Segment(candidates, 2000, 6000)
	require.Len(t, chapters, 1)
	assert.Equal(t, int64(0), chapters[0].StartOffset)
	requirePartition(t, chapters, 6000)
}

func TestSegmentKeepsAdjacentStrongMarkers(t *testing.T) {
	// Short chapters put equal-strength markers well inside minGap; both
	// must survive, and a leading divider must not swallow either.
	candidates := []domain.ChapterCandidate{
		{Title: "正文", CharOffset: 0, ByteOffset: 0, Strength: domain.StrengthStrong, Placeholder: true},
		{Title: "第一章 开始", CharOffset: 4, ByteOffset: 10, Strength: domain.StrengthStrong},
		{Title: "第二章 继续", CharOffset: 16, ByteOffset: 42, Strength: domain.StrengthStrong},
	}
	chapters := Segment(candidates, 22, 58)

	require.Len(t, chapters, 2)
	assert.Equal(t, "第一章 开始", chapters[0].Title)
	assert.Equal(t, "第二章 继续", chapters[1].Title)
	assert.Equal(t, int64(0), chapters[0].StartOffset)
	assert.Equal(t, int64(16), chapters[1].StartOffset)
	requirePartition(t, chapters, 58)
}

func TestSegmentCollapseKeepsStronger(t *testing.T) {
	candidates := []domain.ChapterCandidate{
		{Title: "3 第三章", CharOffset: 100, ByteOffset: 300, Strength: domain.StrengthWeak},
		{Title: "第三章 雪夜", CharOffset: 110, ByteOffset: 330, Strength: domain.StrengthStrong},
		{Title: "第四章", CharOffset: 800, ByteOffset: 2400, Strength: domain.StrengthStrong},
	}
	chapters := Segment(candidates, 1000, 3000)

	titles := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		titles = append(titles, ch.Title)
	}
	assert.NotContains(t, titles, "3 第三章")
	assert.Contains(t, titles, "第三章 雪夜")
	requirePartition(t, chapters, 3000)
}

func TestSegmentFallbackSmallFile(t *testing.T) {
	chapters := Segment(nil, 500, 1500)
	require.Len(t, chapters, 1)
	assert.Equal(t, fullTextTitle, chapters[0].Title)
	assert.Equal(t, int64(500), chapters[0].EndOffset)
	requirePartition(t, chapters, 1500)
}

func TestSegmentFallbackLargeFileChunks(t *testing.T) {
	totalBytes := int64(3 << 20) // 3 MB, above the single-chapter limit
	totalChars := int64(1 << 20)
	chapters := Segment(nil, totalChars, totalBytes)

	wantChunks := int((totalBytes + fallbackChunkBytes - 1) / fallbackChunkBytes)
	require.Len(t, chapters, wantChunks)
	assert.Equal(t, fmt.Sprintf("1/%d", wantChunks), chapters[0].Title)
	requirePartition(t, chapters, totalBytes)

	// Character offsets stay monotonic and end exactly at the total.
	for i := 1; i < len(chapters); i++ {
		assert.GreaterOrEqual(t, chapters[i].StartOffset, chapters[i-1].StartOffset)
	}
	assert.Equal(t, totalChars, chapters[len(chapters)-1].EndOffset)
}

func TestSegmentSplitsOversizeChapter(t *testing.T) {
	totalBytes := int64(5 << 20)
	candidates := []domain.ChapterCandidate{
		{Title: "第一章", CharOffset: 0, ByteOffset: 0, Strength: domain.StrengthStrong},
	}
	chapters := Segment(candidates, 2<<20, totalBytes)

	require.Len(t, chapters, 3)
	assert.Equal(t, "第一章 (1/3)", chapters[0].Title)
	assert.Equal(t, "第一章 (3/3)", chapters[2].Title)
	requirePartition(t, chapters, totalBytes)
}

func TestSegmentIsDeterministic(t *testing.T) {
	candidates := []domain.ChapterCandidate{
		{Title: "第二章", CharOffset: 400, ByteOffset: 1200, Strength: domain.StrengthStrong},
		{Title: "第一章", CharOffset: 10, ByteOffset: 30, Strength: domain.StrengthStrong},
	}
	a := Segment(candidates, 1000, 3000)
	b := Segment(candidates, 1000, 3000)
	assert.Equal(t, a, b)
	assert.Equal(t, "第一章", a[0].Title)
}
