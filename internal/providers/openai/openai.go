// Package openai implements core.Completer against the OpenAI chat completions API
// or any service that speaks the same protocol (Groq, local gateways).
package openai

import (
	"context"
	"errors"
	"net/http"

	gpt "github.com/sashabaranov/go-openai"

	"chatrelay/internal/core"
	"chatrelay/internal/httpclient"
)

const (
	providerName = "openai"

	defaultBaseURL = "https://api.openai.com/v1"

	clientRequestIDHeader = "X-Client-Request-Id"
)

// Provider implements core.Completer for OpenAI-compatible services
type Provider struct {
	client *gpt.Client
}

var _ core.Completer = (*Provider)(nil)

// New creates a provider for apiKey using the pooled default HTTP client.
// An empty baseURL selects the public OpenAI endpoint.
func New(apiKey, baseURL string) *Provider {
	return NewWithHTTPClient(apiKey, baseURL, httpclient.NewHTTPClient(nil))
}

// NewWithHTTPClient creates a provider with a custom HTTP client.
// If httpClient is nil, http.DefaultClient is used.
func NewWithHTTPClient(apiKey, baseURL string, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Copy so the request ID transport doesn't leak into a shared client.
	hc := *httpClient
	hc.Transport = &requestIDTransport{base: httpClient.Transport}

	cfg := gpt.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &hc

	return &Provider{client: gpt.NewClientWithConfig(cfg)}
}

// CreateChatCompletion sends the conversation in one blocking round trip
func (p *Provider) CreateChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, toUpstreamRequest(req))
	if err != nil {
		return nil, convertError(err)
	}
	return fromUpstreamResponse(req, resp), nil
}

func toUpstreamRequest(req *core.ChatRequest) gpt.ChatCompletionRequest {
	// nil stays nil so a missing "messages" field reaches the upstream unchanged
	var messages []gpt.ChatCompletionMessage
	if req.Messages != nil {
		messages = make([]gpt.ChatCompletionMessage, len(req.Messages))
		for i, m := range req.Messages {
			messages[i] = toUpstreamMessage(m)
		}
	}
	return gpt.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
}

func fromUpstreamResponse(req *core.ChatRequest, resp gpt.ChatCompletionResponse) *core.ChatResponse {
	out := &core.ChatResponse{
		ID:       resp.ID,
		Object:   resp.Object,
		Model:    resp.Model,
		Provider: providerName,
		Created:  resp.Created,
		Usage: core.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	out.Choices = make([]core.Choice, len(resp.Choices))
	for i, c := range resp.Choices {
		out.Choices[i] = core.Choice{
			Index:        c.Index,
			FinishReason: string(c.FinishReason),
			Message:      fromUpstreamMessage(c.Message),
		}
	}
	return out
}

func toUpstreamMessage(m core.Message) gpt.ChatCompletionMessage {
	out := gpt.ChatCompletionMessage{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	if m.FunctionCall != nil {
		out.FunctionCall = &gpt.FunctionCall{Name: m.FunctionCall.Name, Arguments: m.FunctionCall.Arguments}
	}
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]gpt.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = gpt.ToolCall{
				ID:   tc.ID,
				Type: gpt.ToolType(tc.Type),
				Function: gpt.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return out
}

func fromUpstreamMessage(m gpt.ChatCompletionMessage) core.Message {
	out := core.Message{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	if m.FunctionCall != nil {
		out.FunctionCall = &core.FunctionCall{Name: m.FunctionCall.Name, Arguments: m.FunctionCall.Arguments}
	}
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]core.ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = core.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: core.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return out
}

// convertError maps go-openai errors onto core.GatewayError, keeping the
// upstream's own message text.
func convertError(err error) error {
	var apiErr *gpt.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = apiErr.Error()
		}
		if apiErr.HTTPStatusCode == 0 {
			return core.NewProviderError(providerName, http.StatusBadGateway, message, err)
		}
		return core.ClassifyProviderStatus(providerName, apiErr.HTTPStatusCode, message, err)
	}

	var reqErr *gpt.RequestError
	if errors.As(err, &reqErr) {
		return core.ClassifyProviderStatus(providerName, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return core.NewProviderError(providerName, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
}

// requestIDTransport forwards the relay request ID as X-Client-Request-Id.
type requestIDTransport struct {
	base http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	requestID := core.RequestIDFromContext(req.Context())
	if requestID == "" || !isValidClientRequestID(requestID) {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set(clientRequestIDHeader, requestID)
	return base.RoundTrip(req)
}

// isValidClientRequestID checks OpenAI's constraints on X-Client-Request-Id:
// ASCII characters only, max 512 characters. Anything else is answered with 400.
func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}
