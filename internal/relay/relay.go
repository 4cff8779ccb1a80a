// Package relay forwards a client conversation to the completion service and
// returns the first reply.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"chatrelay/internal/core"
	"chatrelay/internal/observability"
	"chatrelay/internal/usage"
)

// Endpoint is the route the relay is served on; it is recorded with usage.
const Endpoint = "/api/chat"

// MissingAPIKeyMessage is returned when no completion service credential is configured.
const MissingAPIKeyMessage = "OpenAI API key not found. Check your .env file and set OPENAI_API_KEY."

// Config holds the relay's fixed settings.
type Config struct {
	APIKey string
	Model  string
}

// Service relays one conversation per call. It holds no per-request state.
type Service struct {
	apiKey    string
	model     string
	completer core.Completer
	usage     usage.Recorder
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithUsageRecorder records token usage of every successful relay.
func WithUsageRecorder(r usage.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.usage = r
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. completer may be nil when no API key is
// configured; Relay then fails before touching it.
func NewService(cfg Config, completer core.Completer, opts ...Option) *Service {
	s := &Service{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		completer: completer,
		usage:     usage.NoopRecorder{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Relay parses body as {"messages": [...]}, submits it with the configured
// model and returns the first candidate's message.
func (s *Service) Relay(ctx context.Context, body io.Reader) (msg *core.Message, err error) {
	defer func() { s.metrics.ObserveRequest(outcome(err)) }()

	if s.apiKey == "" || s.completer == nil {
		return nil, core.NewConfigurationError(MissingAPIKeyMessage)
	}

	req, err := decodeRequest(body)
	if err != nil {
		return nil, err
	}
	req.Model = s.model

	start := time.Now()
	resp, err := s.completer.CreateChatCompletion(ctx, req)
	s.metrics.ObserveUpstream(time.Since(start))
	if err != nil {
		return nil, err
	}

	reply, ok := resp.FirstMessage()
	if !ok {
		return nil, core.NewProviderError(resp.Provider, http.StatusBadGateway, "completion service returned no choices", nil)
	}

	s.recordUsage(ctx, resp)
	return &reply, nil
}

// decodeRequest reads the whole body regardless of Content-Type. Unknown
// fields are ignored; trailing data after the JSON value is rejected.
func decodeRequest(body io.Reader) (*core.ChatRequest, error) {
	if body == nil {
		return nil, core.NewInvalidRequestError("invalid JSON body: empty body", nil)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to read request body: "+err.Error(), err)
	}

	var req core.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, core.NewInvalidRequestError("invalid JSON body: "+err.Error(), err)
	}
	return &req, nil
}

func (s *Service) recordUsage(ctx context.Context, resp *core.ChatResponse) {
	requestID := core.RequestIDFromContext(ctx)

	s.logger.InfoContext(ctx, "token usage",
		"request_id", requestID,
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
	)
	s.metrics.ObserveTokens(resp.Usage)
	s.usage.Record(usage.ExtractFromChatResponse(resp, requestID, Endpoint))
}

func outcome(err error) string {
	if err == nil {
		return observability.OutcomeSuccess
	}
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		return string(gwErr.Type)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "internal_error"
}
