// Package chunker splits outbound message text into segments that fit the
// Discord per-message length limit.
//
// Lengths are counted in Unicode code points, which is how Discord counts the
// 2000 character content limit. Splits prefer line boundaries; a single line
// longer than the limit is hard-split into fixed-size slices.
//
// The newline separating two lines is consumed when a chunk boundary falls on
// it. Re-inserting exactly one newline at each such boundary reproduces the
// original text verbatim.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the Discord content limit for a regular bot message.
const MaxMessageLength = 2000

// Split breaks text into an ordered sequence of chunks, each at most maxLen
// code points long.
//
// Text that already fits is returned as a single chunk; this includes the
// empty string, which yields []string{""}. Otherwise lines are packed greedily
// and a line longer than maxLen is emitted as consecutive maxLen-sized slices,
// each its own chunk.
//
// Split panics if maxLen < 1.
func Split(text string, maxLen int) []string {
	if maxLen < 1 {
		panic("chunker: maxLen must be >= 1")
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
		open   bool // cur holds a chunk in progress, possibly an empty line
	)
	flush := func() {
		if !open {
			return
		}
		chunks = append(chunks, cur.String())
		cur.Reset()
		curLen = 0
		open = false
	}

	for line := range strings.SplitSeq(text, "\n") {
		n := utf8.RuneCountInString(line)

		if n > maxLen {
			flush()
			chunks = append(chunks, hardSplit(line, maxLen)...)
			continue
		}

		// +1 for the newline joining line to the chunk in progress.
		if open && curLen+1+n <= maxLen {
			cur.WriteByte('\n')
			cur.WriteString(line)
			curLen += 1 + n
			continue
		}

		flush()
		cur.WriteString(line)
		curLen = n
		open = true
	}
	flush()

	return chunks
}

// hardSplit cuts s into consecutive slices of size code points. The final
// slice holds the remainder and may be shorter. Slicing happens on byte
// offsets so invalid UTF-8 passes through unchanged.
func hardSplit(s string, size int) []string {
	var out []string
	start, count := 0, 0
	for i := 0; i < len(s); {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
		count++
		if count == size {
			out = append(out, s[start:i])
			start, count = i, 0
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
