package grounding

import (
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

const annotationTypeURLCitation = "url_citation"

// AggregateSegments builds insertions and sources from segment-style
// (Gemini) grounding metadata.
//
// Sources are the grounding chunks in order, without deduplication. Each
// support with an end index and at least one in-range chunk index yields
// a marker such as "[1][3]" at the segment end. Citation numbers are the
// 1-based chunk positions.
func AggregateSegments(meta *GroundingMetadata) ([]Insertion, []Source) {
	if meta == nil || len(meta.GroundingChunks) == 0 {
		return nil, nil
	}

	sources := make([]Source, 0, len(meta.GroundingChunks))
	for _, chunk := range meta.GroundingChunks {
		var src Source
		if chunk.Web != nil {
			src.Title = chunk.Web.Title
			src.URI = chunk.Web.URI
		}
		sources = append(sources, src)
	}

	var insertions []Insertion
	for _, support := range meta.GroundingSupports {
		if support.Segment == nil || support.Segment.EndIndex == nil || len(support.GroundingChunkIndices) == 0 {
			continue
		}

		numbers := make([]int, 0, len(support.GroundingChunkIndices))
		for _, idx := range support.GroundingChunkIndices {
			// markers only ever reference a listed source
			if idx < 0 || idx >= len(sources) {
				continue
			}
			numbers = append(numbers, idx+1)
		}
		if len(numbers) == 0 {
			continue
		}

		insertions = append(insertions, Insertion{
			Index:  *support.Segment.EndIndex,
			Marker: marker(numbers),
		})
	}

	return insertions, sources
}

// AggregateAnnotations builds insertions and sources from point annotations
// (OpenRouter, OpenAI). Sources are deduplicated by URL and numbered in order
// of first appearance. Annotation end offsets are UTF-16 code units into
// text and are converted to byte offsets here.
func AggregateAnnotations(text string, annotations []Annotation) ([]Insertion, []Source) {
	var sources []Source
	numberByURL := make(map[string]int)

	var offsets []int
	numbersByOffset := make(map[int][]int)

	for _, ann := range annotations {
		if ann.URL == "" || (ann.Type != "" && ann.Type != annotationTypeURLCitation) {
			continue
		}

		n, seen := numberByURL[ann.URL]
		if !seen {
			sources = append(sources, Source{Title: ann.Title, URI: ann.URL})
			n = len(sources)
			numberByURL[ann.URL] = n
		} else if sources[n-1].Title == "" {
			sources[n-1].Title = ann.Title
		}

		offset := utf16ToByteOffset(text, ann.EndIndex)
		if _, ok := numbersByOffset[offset]; !ok {
			offsets = append(offsets, offset)
		}
		numbersByOffset[offset] = append(numbersByOffset[offset], n)
	}

	if len(sources) == 0 {
		return nil, nil
	}

	insertions := make([]Insertion, 0, len(offsets))
	for _, offset := range offsets {
		insertions = append(insertions, Insertion{
			Index:  offset,
			Marker: marker(numbersByOffset[offset]),
		})
	}

	return insertions, sources
}

// marker renders unique citation numbers in ascending order, e.g. "[1][2]"
func marker(numbers []int) string {
	sorted := slices.Clone(numbers)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var b strings.Builder
	for _, n := range sorted {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(n))
		b.WriteByte(']')
	}
	return b.String()
}

// utf16ToByteOffset converts an offset in UTF-16 code units to a byte
// offset in the UTF-8 text. Offsets past the end clamp to len(text); an
// offset inside a surrogate pair moves past that character.
func utf16ToByteOffset(text string, units int) int {
	if units <= 0 {
		return 0
	}

	count := 0
	for i, r := range text {
		if count >= units {
			return i
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		count += n
	}
	return len(text)
}
