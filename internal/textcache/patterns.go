// Package textcache turns raw text files of unknown encoding into a
// canonical UTF-8 cache with a byte-indexed chapter list, and serves
// paginated and per-chapter reads from it with bounded memory.
package textcache

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/lectern-cli/internal/core/domain"
)

const (
	// maxTitleLen caps a candidate title in characters.
	maxTitleLen = 50
	// inlineWindow bounds how much trailing context an inline match may
	// absorb into its title.
	inlineWindow = 40
)

// Whole-line marker shapes, tried in order. A line must match after
// trimming and fit maxTitleLen to qualify.
var strongPatterns = []*regexp.Regexp{
	// 第一章 开始 / 第12节 / 第三卷 风云
	regexp.MustCompile(`^第\s*[0-9零〇一二三四五六七八九十百千万两]+\s*[章节卷部集篇回](\s*\S.*)?$`),
	// Chapter 7 / chapter 12: The Fall
	regexp.MustCompile(`(?i)^chapter\s+[0-9]+([\s.:].*)?$`),
	// Bracket-only lines.
	regexp.MustCompile(`^【[^【】]{1,48}】$`),
	regexp.MustCompile(`^《[^《》]{1,48}》$`),
	// Named sections.
	regexp.MustCompile(`(?i)^(序章|序言|自序|前言|引言|引子|楔子|尾声|终章|后记|番外|外传|附录|prologue|epilogue|preface|foreword|afterword|introduction)$`),
}

// inlinePattern finds a strong chapter marker embedded in a longer line.
var inlinePattern = regexp.MustCompile(`第\s*[0-9零〇一二三四五六七八九十百千万两]+\s*[章节卷部集篇回]`)

// weakPattern matches numeric-prefixed lines: "12. Title", "12 Title".
// Accepted only with a blank neighbour, to avoid numbered prose.
var weakPattern = regexp.MustCompile(`^[0-9]{1,4}[.、．:：\s]\s*\S.*$`)

// placeholderPattern matches bare body dividers that must never become
// chapters when real markers exist elsewhere in the document.
var placeholderPattern = regexp.MustCompile(`^(正文|正文卷|全文)$`)

// LineCandidate is the classifier's verdict for one line. Offsets are
// relative to the start of the unmodified line.
type LineCandidate struct {
	Title       string
	Strength    domain.CandidateStrength
	Placeholder bool
	RuneOffset  int
	ByteOffset  int
}

// ClassifyLine decides whether line is a chapter-boundary candidate.
// prevBlank and nextBlank describe the neighbouring lines; nextBlank is
// why classification needs one line of lookback. The function is pure:
// no I/O, no state.
func ClassifyLine(line string, prevBlank, nextBlank bool) (LineCandidate, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return LineCandidate{}, false
	}
	lead := leadingOffsets(line)

	if utf8.RuneCountInString(trimmed) <= maxTitleLen {
		if placeholderPattern.MatchString(trimmed) {
			return LineCandidate{
				Title:       trimmed,
				Strength:    domain.StrengthStrong,
				Placeholder: true,
				RuneOffset:  lead.runes,
				ByteOffset:  lead.bytes,
			}, true
		}
		for _, p := range strongPatterns {
			if p.MatchString(trimmed) {
				return LineCandidate{
					Title:      trimmed,
					Strength:   domain.StrengthStrong,
					RuneOffset: lead.runes,
					ByteOffset: lead.bytes,
				}, true
			}
		}
		if (prevBlank || nextBlank) && weakPattern.MatchString(trimmed) {
			return LineCandidate{
				Title:      trimmed,
				Strength:   domain.StrengthWeak,
				RuneOffset: lead.runes,
				ByteOffset: lead.bytes,
			}, true
		}
	}

	// Inline: a strong marker inside a longer line. The offset is the
	// match's position, not the line start.
	if loc := inlinePattern.FindStringIndex(trimmed); loc != nil {
		title := clipRunes(trimmed[loc[0]:], inlineWindow)
		title = strings.TrimSpace(title)
		if title != "" && utf8.RuneCountInString(title) <= maxTitleLen {
			return LineCandidate{
				Title:      title,
				Strength:   domain.StrengthInline,
				RuneOffset: lead.runes + utf8.RuneCountInString(trimmed[:loc[0]]),
				ByteOffset: lead.bytes + loc[0],
			}, true
		}
	}

	return LineCandidate{}, false
}

type offsets struct {
	runes int
	bytes int
}

// leadingOffsets measures the whitespace stripped from the front of line.
func leadingOffsets(line string) offsets {
	trimmed := strings.TrimLeft(line, " \t\r　")
	lead := line[:len(line)-len(trimmed)]
	return offsets{runes: utf8.RuneCountInString(lead), bytes: len(lead)}
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
