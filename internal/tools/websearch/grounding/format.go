package grounding

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultPrefix introduces the quoted query in the answer
	DefaultPrefix = "Web search results for "

	noInformationDisplay = "No information found."
	untitledSource       = "Untitled"
	missingSourceURI     = "No URI"
)

// Formatter assembles provider answers into a Result
type Formatter struct {
	// Prefix is written before the quoted query on the first line
	Prefix string
}

// NewFormatter returns a Formatter using prefix, or DefaultPrefix when empty
func NewFormatter(prefix string) Formatter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Formatter{Prefix: prefix}
}

// FormatResponse formats a segment-style (Gemini) response
func (f Formatter) FormatResponse(resp *Response, query string) Result {
	text := ResponseText(resp)
	if isBlank(text) {
		return NoInformation(query)
	}

	var meta *GroundingMetadata
	if candidate := firstCandidate(resp); candidate != nil {
		meta = candidate.GroundingMetadata
	}

	insertions, sources := AggregateSegments(meta)
	return f.assemble(query, text, insertions, sources)
}

// FormatAnnotated formats answer text carrying point annotations
func (f Formatter) FormatAnnotated(text string, annotations []Annotation, query string) Result {
	if isBlank(text) {
		return NoInformation(query)
	}

	insertions, sources := AggregateAnnotations(text, annotations)
	return f.assemble(query, text, insertions, sources)
}

func (f Formatter) assemble(query, text string, insertions []Insertion, sources []Source) Result {
	body := text
	if len(sources) > 0 {
		var b strings.Builder
		b.WriteString(Splice(text, insertions))
		b.WriteString("\n\nSources:")
		for i, src := range sources {
			title := src.Title
			if title == "" {
				title = untitledSource
			}
			uri := src.URI
			if uri == "" {
				uri = missingSourceURI
			}
			fmt.Fprintf(&b, "\n[%d] %s (%s)", i+1, title, uri)
		}
		body = b.String()
	}

	result := Result{
		LLMContent:    f.Prefix + `"` + query + `":` + "\n\n" + body,
		ReturnDisplay: `Search results for "` + query + `" returned.`,
	}
	if len(sources) > 0 {
		result.Sources = sources
	}
	return result
}

// NoInformation is the result for an answer with no usable text
func NoInformation(query string) Result {
	return Result{
		LLMContent:    `No search results or information found for query: "` + query + `"`,
		ReturnDisplay: noInformationDisplay,
	}
}

// ErrorResult reports a failed search
func ErrorResult(errType, message string) Result {
	return Result{
		LLMContent:    "Error: " + message,
		ReturnDisplay: "Error performing web search.",
		Error: &ResultError{
			Message: message,
			Type:    errType,
		},
	}
}

// ResponseText concatenates the non-thought text parts of the first candidate
func ResponseText(resp *Response) string {
	candidate := firstCandidate(resp)
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func firstCandidate(resp *Response) *Candidate {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return &resp.Candidates[0]
}

// isBlank reports whether text is empty after trimming whitespace and the
// byte order mark
func isBlank(text string) bool {
	return strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\ufeff'
	}) == ""
}
