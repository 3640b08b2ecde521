// Package responses talks to OpenAI-compatible Responses APIs and extracts
// answer text and url citations from what they return.
package responses

import (
	"bytes"
	"encoding/json"
	"unicode/utf16"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
)

// Response is the subset of a Responses API object the search tool reads
type Response struct {
	ID         string       `json:"id,omitempty"`
	Status     string       `json:"status,omitempty"`
	Model      string       `json:"model,omitempty"`
	OutputText string       `json:"output_text,omitempty"`
	Output     []OutputItem `json:"output,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the error object a failed response carries
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// OutputItem is one entry of output[]. Only message items carry text.
type OutputItem struct {
	Type    string        `json:"type,omitempty"`
	ID      string        `json:"id,omitempty"`
	Role    string        `json:"role,omitempty"`
	Status  string        `json:"status,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ContentPart is one piece of message content
type ContentPart struct {
	Type        string                 `json:"type,omitempty"`
	Text        TextValue              `json:"text"`
	Annotations []grounding.Annotation `json:"annotations,omitempty"`
}

// TextValue decodes either a plain string or an object holding "value"
type TextValue string

// UnmarshalJSON implements json.Unmarshaler
func (t *TextValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = TextValue(s)
		return nil
	}

	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*t = TextValue(wrapped.Value)
	return nil
}

// Answer returns the answer text and its citations. Text comes from
// output_text parts of output[] in order, falling back to the top level
// output_text field. Annotation offsets are rebased onto the joined text.
func (r *Response) Answer() (string, []grounding.Annotation) {
	if r == nil {
		return "", nil
	}

	var (
		text        []byte
		annotations []grounding.Annotation
		units       int
		found       bool
	)

	for _, item := range r.Output {
		if item.Type != "" && item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if !isTextPart(part.Type) {
				continue
			}
			found = true
			for _, ann := range part.Annotations {
				ann.StartIndex += units
				ann.EndIndex += units
				annotations = append(annotations, ann)
			}
			text = append(text, part.Text...)
			units += utf16Len(string(part.Text))
		}
	}

	if !found || len(text) == 0 {
		return r.OutputText, nil
	}
	return string(text), annotations
}

func isTextPart(partType string) bool {
	return partType == "" || partType == "output_text" || partType == "text"
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}
