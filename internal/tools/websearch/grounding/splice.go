package grounding

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Splice inserts markers into text at UTF-8 byte offsets.
//
// Insertions are applied from the end of the text backwards. Each index is
// clamped to the text length and to the position of the previously applied
// (higher) insertion, so malformed or overlapping offsets never fail.
func Splice(text string, insertions []Insertion) string {
	if len(insertions) == 0 {
		return text
	}

	sorted := slices.Clone(insertions)
	slices.SortStableFunc(sorted, func(a, b Insertion) int {
		return cmp.Compare(b.Index, a.Index)
	})

	// fragments are collected right to left
	fragments := make([]string, 0, 2*len(sorted)+1)
	size := len(text)
	right := len(text)
	for _, ins := range sorted {
		idx := min(max(ins.Index, 0), right)
		fragments = append(fragments, text[idx:right], ins.Marker)
		size += len(ins.Marker)
		right = idx
	}
	fragments = append(fragments, text[:right])

	var b strings.Builder
	b.Grow(size)
	for i := len(fragments) - 1; i >= 0; i-- {
		b.WriteString(fragments[i])
	}

	out := b.String()
	if !utf8.ValidString(out) {
		// an offset landed inside a multi-byte sequence
		out = toWellFormed(out)
	}
	return out
}

// toWellFormed replaces each maximal ill-formed subsequence with one U+FFFD.
// This is the substitution WHATWG decoders apply, so a character split by a
// marker reads the same as it would in a browser or Node.
func toWellFormed(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2*utf8.UTFMax)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError || size > 1 {
			b.WriteString(s[i : i+size])
			i += size
			continue
		}
		b.WriteRune(utf8.RuneError)
		i += illFormedPrefixLen(s[i:])
	}
	return b.String()
}

// illFormedPrefixLen is the length of the maximal ill-formed subsequence at
// the start of s: a valid lead byte plus whatever continuation bytes could
// still have completed it, or a single stray byte
func illFormedPrefixLen(s string) int {
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch c := s[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c >= 0xE1 && c <= 0xEC, c == 0xEE, c == 0xEF:
		need = 2
	case c == 0xED:
		need, hi = 2, 0x9F
	case c == 0xF0:
		need, lo = 3, 0x90
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	case c == 0xF4:
		need, hi = 3, 0x8F
	default:
		return 1
	}

	n := 1
	for ; n <= need && n < len(s); n++ {
		if s[n] < lo || s[n] > hi {
			break
		}
		lo, hi = 0x80, 0xBF
	}
	return n
}
