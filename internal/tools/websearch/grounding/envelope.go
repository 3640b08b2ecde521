package grounding

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnvelopeKind identifies which shape a generateContent body arrived in
type EnvelopeKind int

const (
	// EnvelopeUnknown is a body with neither a response field nor candidates
	EnvelopeUnknown EnvelopeKind = iota
	// EnvelopeWrapped is {"response": {...}}, as sent by Code Assist
	EnvelopeWrapped
	// EnvelopeDirect is {"candidates": [...]}
	EnvelopeDirect
	// EnvelopeArray is a JSON array whose first recognisable element was used
	EnvelopeArray
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeWrapped:
		return "wrapped"
	case EnvelopeDirect:
		return "direct"
	case EnvelopeArray:
		return "array"
	default:
		return "unknown"
	}
}

// Envelope is a decoded generateContent body. Response is never nil.
type Envelope struct {
	Kind     EnvelopeKind
	Response *Response
}

// DecodeEnvelope decodes a generateContent body. A "response" field takes
// precedence over "candidates"; arrays are searched element by element for
// either form. Unrecognised but valid JSON yields an empty Response.
func DecodeEnvelope(body []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Envelope{Kind: EnvelopeUnknown, Response: &Response{}}, nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode response array: %w", err)
		}
		for _, item := range items {
			env, err := decodeObject(item)
			if err != nil {
				return Envelope{}, err
			}
			if env.Kind != EnvelopeUnknown {
				env.Kind = EnvelopeArray
				return env, nil
			}
		}
		return Envelope{Kind: EnvelopeUnknown, Response: &Response{}}, nil
	}

	return decodeObject(trimmed)
}

func decodeObject(raw json.RawMessage) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return Envelope{}, fmt.Errorf("failed to decode response: invalid JSON")
		}
		return Envelope{Kind: EnvelopeUnknown, Response: &Response{}}, nil
	}

	var shape struct {
		Response   json.RawMessage `json:"response"`
		Candidates json.RawMessage `json:"candidates"`
	}
	if err := json.Unmarshal(trimmed, &shape); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if present(shape.Response) {
		var resp Response
		if err := json.Unmarshal(shape.Response, &resp); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode wrapped response: %w", err)
		}
		return Envelope{Kind: EnvelopeWrapped, Response: &resp}, nil
	}

	if present(shape.Candidates) {
		var resp Response
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return Envelope{}, fmt.Errorf("failed to decode candidates: %w", err)
		}
		return Envelope{Kind: EnvelopeDirect, Response: &resp}, nil
	}

	return Envelope{Kind: EnvelopeUnknown, Response: &Response{}}, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
