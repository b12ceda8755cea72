// Package chunker splits passage text into bounded pieces on paragraph, line
// and word boundaries.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// Options configures chunking behavior. Sizes are in bytes.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Piece is a trimmed span of the input. Text == input[Start:End].
type Piece struct {
	Text  string
	Start int
	End   int
}

// Chunk splits text into pieces in input order. Text no longer than MaxSize
// is returned as a single piece; whitespace-only text yields nil.
func Chunk(text string, opts Options) []Piece {
	if opts.TargetSize <= 0 {
		opts = DefaultOptions()
	}
	if opts.MaxSize < opts.TargetSize {
		opts.MaxSize = opts.TargetSize
	}

	if len(text) <= opts.MaxSize {
		if p, ok := makePiece(text, 0, len(text)); ok {
			return []Piece{p}
		}
		return nil
	}

	return mergeBlocks(text, splitBlocks(text), opts)
}

// Prefix returns the longest run of leading pieces that fits in maxBytes,
// and whether anything was cut off. Nothing fits when the first piece is
// already too long for maxBytes after splitting.
func Prefix(text string, maxBytes int) (string, bool) {
	if maxBytes <= 0 {
		return "", strings.TrimSpace(text) != ""
	}
	pieces := Chunk(text, Options{TargetSize: maxBytes, MaxSize: maxBytes})
	if len(pieces) == 0 {
		return "", false
	}
	start := pieces[0].Start
	end := start
	for _, p := range pieces {
		if p.End-start > maxBytes {
			break
		}
		end = p.End
	}
	return text[start:end], end < pieces[len(pieces)-1].End
}

// span is a half-open byte range of the input.
type span struct {
	start int
	end   int
}

// splitBlocks splits text on blank lines and before heading lines.
func splitBlocks(text string) []span {
	var blocks []span
	start := -1
	pos := 0
	for pos < len(text) {
		lineEnd, next := len(text), len(text)
		if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
			lineEnd = pos + i
			next = lineEnd + 1
		}
		line := strings.TrimSpace(text[pos:lineEnd])

		switch {
		case line == "":
			if start >= 0 {
				blocks = append(blocks, span{start, pos})
				start = -1
			}
		case strings.HasPrefix(line, "#") && start >= 0:
			blocks = append(blocks, span{start, pos})
			start = pos
		case start < 0:
			start = pos
		}
		pos = next
	}
	if start >= 0 {
		blocks = append(blocks, span{start, len(text)})
	}
	return blocks
}

// mergeBlocks combines adjacent small blocks and splits oversized ones.
func mergeBlocks(text string, blocks []span, opts Options) []Piece {
	var results []Piece
	accum := span{-1, -1}

	flush := func() {
		if accum.start < 0 {
			return
		}
		if accum.end-accum.start > opts.MaxSize {
			results = append(results, hardSplit(text, accum, opts)...)
		} else if p, ok := makePiece(text, accum.start, accum.end); ok {
			results = append(results, p)
		}
		accum = span{-1, -1}
	}

	for _, b := range blocks {
		if accum.start < 0 {
			accum = b
			continue
		}
		if b.end-accum.start <= opts.TargetSize {
			accum.end = b.end
		} else {
			flush()
			accum = b
		}
	}
	flush()

	return results
}

// hardSplit cuts a block into pieces of at most TargetSize bytes.
func hardSplit(text string, s span, opts Options) []Piece {
	var results []Piece
	start := s.start
	for start < s.end {
		end := s.end
		if end-start > opts.TargetSize {
			end = cutPoint(text, start, start+opts.TargetSize)
		}
		if p, ok := makePiece(text, start, end); ok {
			results = append(results, p)
		}
		start = end
	}
	return results
}

// cutPoint picks the last line break, then the last space, then the last
// rune boundary in (start, limit]. limit must be < len(text).
func cutPoint(text string, start, limit int) int {
	window := text[start:limit]
	if i := strings.LastIndexByte(window, '\n'); i > 0 {
		return start + i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		return start + i + 1
	}
	for i := limit; i > start; i-- {
		if utf8.RuneStart(text[i]) {
			return i
		}
	}
	_, size := utf8.DecodeRuneInString(text[start:])
	return start + size
}

func makePiece(text string, start, end int) (Piece, bool) {
	seg := text[start:end]
	lead := len(seg) - len(strings.TrimLeftFunc(seg, unicode.IsSpace))
	trail := len(strings.TrimRightFunc(seg, unicode.IsSpace))
	if trail <= lead {
		return Piece{}, false
	}
	return Piece{Text: seg[lead:trail], Start: start + lead, End: start + trail}, true
}
