// Package grounding turns provider grounding and annotation metadata into
// citation-annotated markdown. It performs no I/O.
package grounding

import "encoding/json"

// Response is the Gemini-style generateContent payload. Every field is
// optional; absent data is treated as "no data", never as an error.
type Response struct {
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Candidate is a single generated answer
type Candidate struct {
	Content           *Content           `json:"content,omitempty"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
	FinishReason      string             `json:"finishReason,omitempty"`
}

// Content holds the parts of a candidate
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is one fragment of generated content. Thought parts carry reasoning
// traces and never reach the answer text.
type Part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

// GroundingMetadata links spans of the answer text to web sources
type GroundingMetadata struct {
	GroundingChunks   []GroundingChunk   `json:"groundingChunks,omitempty"`
	GroundingSupports []GroundingSupport `json:"groundingSupports,omitempty"`
	WebSearchQueries  []string           `json:"webSearchQueries,omitempty"`
}

// GroundingChunk is one cited source
type GroundingChunk struct {
	Web *WebChunk `json:"web,omitempty"`
}

// WebChunk is the web form of a grounding chunk
type WebChunk struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// GroundingSupport attributes a segment of the answer to chunks by index
type GroundingSupport struct {
	Segment               *Segment `json:"segment,omitempty"`
	GroundingChunkIndices []int    `json:"groundingChunkIndices,omitempty"`
}

// Segment is a span of the answer in UTF-8 byte offsets.
// Nil indices mean the provider did not send them.
type Segment struct {
	StartIndex *int   `json:"startIndex,omitempty"`
	EndIndex   *int   `json:"endIndex,omitempty"`
	Text       string `json:"text,omitempty"`
}

// Annotation is a point citation in UTF-16 code unit offsets, as returned by
// OpenAI-compatible Responses APIs.
type Annotation struct {
	Type       string `json:"type,omitempty"`
	URL        string `json:"url,omitempty"`
	Title      string `json:"title,omitempty"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// UnmarshalJSON accepts both the flat Responses shape and the nested
// chat-completions shape ({"type":"url_citation","url_citation":{...}}).
func (a *Annotation) UnmarshalJSON(data []byte) error {
	type flat Annotation
	var raw struct {
		flat
		URLCitation *flat `json:"url_citation,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*a = Annotation(raw.flat)
	if nested := raw.URLCitation; nested != nil {
		if a.URL == "" {
			a.URL = nested.URL
		}
		if a.Title == "" {
			a.Title = nested.Title
		}
		if a.StartIndex == 0 {
			a.StartIndex = nested.StartIndex
		}
		if a.EndIndex == 0 {
			a.EndIndex = nested.EndIndex
		}
	}
	return nil
}

// Source is one entry of the numbered sources list
type Source struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// Insertion places Marker at byte offset Index of the answer text
type Insertion struct {
	Index  int
	Marker string
}

// Result is the serialised output of a web search
type Result struct {
	LLMContent    string       `json:"llmContent"`
	ReturnDisplay string       `json:"returnDisplay"`
	Sources       []Source     `json:"sources,omitempty"`
	Error         *ResultError `json:"error,omitempty"`
}

// ResultError describes a failed search
type ResultError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
