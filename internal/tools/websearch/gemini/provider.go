// Package gemini searches through the Gemini API with the Google Search
// grounding tool, authenticated by API key.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sammcj/mcp-websearch/internal/tools/websearch/grounding"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// GeminiProvider implements provider.Provider using google.golang.org/genai
type GeminiProvider struct {
	model       string
	baseURL     string
	credentials provider.CredentialResolver
	httpClient  *http.Client
	formatter   grounding.Formatter
}

// Options configures a GeminiProvider
type Options struct {
	Model       string
	BaseURL     string
	Credentials provider.CredentialResolver
	HTTPClient  *http.Client
	Formatter   grounding.Formatter
}

// NewGeminiProvider creates a Gemini API key provider
func NewGeminiProvider(opts Options) *GeminiProvider {
	return &GeminiProvider{
		model:       opts.Model,
		baseURL:     opts.BaseURL,
		credentials: opts.Credentials,
		httpClient:  opts.HTTPClient,
		formatter:   opts.Formatter,
	}
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return provider.NameGemini
}

// Search runs a grounded generateContent call for query
func (p *GeminiProvider) Search(ctx context.Context, logger *logrus.Logger, query string) (*grounding.Result, error) {
	query, err := provider.ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	if err := provider.ValidateModel(p.model); err != nil {
		return nil, err
	}
	if p.credentials == nil {
		return nil, provider.NewAuthError(p.Name(), provider.ErrMissingAuth)
	}

	apiKey, err := p.credentials.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"provider": p.Name(),
		"model":    p.model,
		"query":    query,
	}).Debug("Gemini search request")

	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text(query), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return nil, p.wrapError(err)
	}

	normalised := toResponse(resp)
	result := p.formatter.FormatResponse(normalised, query)

	logger.WithFields(logrus.Fields{
		"provider":     p.Name(),
		"source_count": len(result.Sources),
	}).Debug("Gemini search completed successfully")

	return &result, nil
}

func (p *GeminiProvider) wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return &provider.UpstreamError{Provider: p.Name(), Message: err.Error()}
	}

	upstream := &provider.UpstreamError{
		Provider:   p.Name(),
		StatusCode: apiErr.Code,
		Message:    apiErr.Message,
	}
	if upstream.Message == "" {
		upstream.Message = http.StatusText(apiErr.Code)
	}
	if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
		return provider.NewAuthError(p.Name(), upstream)
	}
	return upstream
}

// toResponse maps the SDK response onto the grounding model. A zero segment
// end index is how the SDK represents an absent one.
func toResponse(resp *genai.GenerateContentResponse) *grounding.Response {
	out := &grounding.Response{}
	if resp == nil {
		return out
	}

	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}

		candidate := grounding.Candidate{FinishReason: string(c.FinishReason)}
		if c.Content != nil {
			content := &grounding.Content{Role: c.Content.Role}
			for _, part := range c.Content.Parts {
				if part == nil {
					continue
				}
				content.Parts = append(content.Parts, grounding.Part{Text: part.Text, Thought: part.Thought})
			}
			candidate.Content = content
		}
		candidate.GroundingMetadata = toMetadata(c.GroundingMetadata)

		out.Candidates = append(out.Candidates, candidate)
	}

	return out
}

func toMetadata(meta *genai.GroundingMetadata) *grounding.GroundingMetadata {
	if meta == nil {
		return nil
	}

	out := &grounding.GroundingMetadata{WebSearchQueries: meta.WebSearchQueries}
	for _, chunk := range meta.GroundingChunks {
		var c grounding.GroundingChunk
		if chunk != nil && chunk.Web != nil {
			c.Web = &grounding.WebChunk{Title: chunk.Web.Title, URI: chunk.Web.URI}
		}
		out.GroundingChunks = append(out.GroundingChunks, c)
	}

	for _, support := range meta.GroundingSupports {
		if support == nil {
			continue
		}

		var s grounding.GroundingSupport
		for _, idx := range support.GroundingChunkIndices {
			s.GroundingChunkIndices = append(s.GroundingChunkIndices, int(idx))
		}
		if seg := support.Segment; seg != nil {
			s.Segment = &grounding.Segment{Text: seg.Text}
			start := int(seg.StartIndex)
			s.Segment.StartIndex = &start
			if seg.EndIndex > 0 {
				end := int(seg.EndIndex)
				s.Segment.EndIndex = &end
			}
		}
		out.GroundingSupports = append(out.GroundingSupports, s)
	}

	return out
}
