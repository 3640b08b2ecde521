package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/sammcj/mcp-websearch/internal/tools/websearch/provider"
)

const responsesPath = "responses"

// Terminal stream event types carrying the finished response
const (
	EventCompleted = "response.completed"
	EventDone      = "response.done"
	EventFailed    = "response.failed"
	EventError     = "error"
)

// Options configures a Client
type Options struct {
	// Provider names the upstream in errors
	Provider   string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	// Headers are sent with every request; empty values are skipped
	Headers map[string]string
}

// Client posts requests to the /responses endpoint of an OpenAI-compatible API
type Client struct {
	provider string
	client   openai.Client
}

// NewClient creates a Client. SDK retries are disabled.
func NewClient(opts Options) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(withTrailingSlash(opts.BaseURL)))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	for name, value := range opts.Headers {
		if value != "" {
			reqOpts = append(reqOpts, option.WithHeader(name, value))
		}
	}

	return &Client{
		provider: opts.Provider,
		client:   openai.NewClient(reqOpts...),
	}
}

// Create posts payload and decodes the complete response
func (c *Client) Create(ctx context.Context, payload any) (*Response, error) {
	var body []byte
	if err := c.client.Post(ctx, responsesPath, payload, &body); err != nil {
		return nil, c.wrapError(err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.UpstreamError{
			Provider:   c.provider,
			StatusCode: http.StatusOK,
			Message:    "failed to decode response: " + err.Error(),
			Body:       provider.Snippet(body),
		}
	}
	if err := c.responseError(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream posts payload as a server-sent event request and returns the
// response carried by the terminal event. Intermediate events are ignored.
func (c *Client) Stream(ctx context.Context, payload any) (*Response, error) {
	var res *http.Response
	err := c.client.Post(ctx, responsesPath, payload, &res, option.WithHeader("Accept", "text/event-stream"))
	if err != nil {
		return nil, c.wrapError(err)
	}

	stream := ssestream.NewDecoder(res)
	if stream == nil {
		return nil, &provider.UpstreamError{Provider: c.provider, Message: "empty event stream"}
	}
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		event := stream.Event()

		switch eventType(event) {
		case EventCompleted, EventDone:
			var terminal struct {
				Response Response `json:"response"`
			}
			if err := json.Unmarshal(event.Data, &terminal); err != nil {
				return nil, &provider.UpstreamError{
					Provider: c.provider,
					Message:  "failed to decode terminal event: " + err.Error(),
					Body:     provider.Snippet(event.Data),
				}
			}
			if err := c.responseError(&terminal.Response); err != nil {
				return nil, err
			}
			return &terminal.Response, nil

		case EventFailed, EventError:
			upstream := provider.NewUpstreamError(c.provider, 0, event.Data)
			var failed struct {
				Response Response `json:"response"`
			}
			if json.Unmarshal(event.Data, &failed) == nil && failed.Response.Error != nil && failed.Response.Error.Message != "" {
				upstream.Message = failed.Response.Error.Message
			}
			return nil, upstream
		}
	}

	if err := stream.Err(); err != nil {
		return nil, c.wrapError(err)
	}
	return nil, &provider.UpstreamError{Provider: c.provider, Message: "stream ended before the response completed"}
}

func (c *Client) responseError(resp *Response) error {
	if resp.Error == nil || resp.Error.Message == "" {
		return nil
	}
	return &provider.UpstreamError{
		Provider: c.provider,
		Message:  resp.Error.Message,
	}
}

func (c *Client) wrapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return &provider.UpstreamError{Provider: c.provider, Message: err.Error()}
	}

	upstream := provider.NewUpstreamError(c.provider, apiErr.StatusCode, []byte(apiErr.RawJSON()))
	if apiErr.Message != "" {
		upstream.Message = apiErr.Message
	}
	if provider.IsUnauthorised(upstream) {
		return provider.NewAuthError(c.provider, upstream)
	}
	return upstream
}

// eventType prefers the SSE event name and falls back to the type field
// of the data payload.
func eventType(event ssestream.Event) string {
	if event.Type != "" {
		return event.Type
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(event.Data, &head); err != nil {
		return ""
	}
	return head.Type
}

func withTrailingSlash(baseURL string) string {
	if strings.HasSuffix(baseURL, "/") {
		return baseURL
	}
	return baseURL + "/"
}
