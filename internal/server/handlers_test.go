package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"chatrelay/internal/core"
	"chatrelay/internal/relay"
)

// stubCompleter counts upstream calls and replies with a fixed message or error.
type stubCompleter struct {
	mu       sync.Mutex
	requests []*core.ChatRequest
	reply    core.Message
	err      error
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &core.ChatResponse{
		ID:       "chatcmpl-123",
		Provider: "openai",
		Choices:  []core.Choice{{Message: s.reply, FinishReason: "stop"}},
		Usage:    core.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
	}, nil
}

func (s *stubCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newRelay(apiKey string, completer core.Completer) *relay.Service {
	return relay.NewService(relay.Config{APIKey: apiKey, Model: "gpt-3.5-turbo"}, completer)
}

func doChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChat_ReturnsAssistantMessage(t *testing.T) {
	stub := &stubCompleter{reply: core.Message{Role: "assistant", Content: "hi"}}
	srv := New(newRelay("sk-test", stub), nil)

	rec := doChat(t, srv, `{"messages":[{"role":"user","content":"hello"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"role":"assistant","content":"hi"}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "application/json")
	assert.Equal(t, 1, stub.calls())
}

func TestChat_MissingAPIKey(t *testing.T) {
	stub := &stubCompleter{reply: core.Message{Role: "assistant", Content: "hi"}}
	srv := New(newRelay("", stub), nil)

	rec := doChat(t, srv, `{"messages":[]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"`+relay.MissingAPIKeyMessage+`"}`, rec.Body.String())
	assert.Zero(t, stub.calls(), "no upstream call without a credential")
}

func TestChat_UpstreamErrorMessageIsReturned(t *testing.T) {
	stub := &stubCompleter{err: core.NewAuthenticationError("openai", "Incorrect API key provided")}
	srv := New(newRelay("sk-bad", stub), nil)

	rec := doChat(t, srv, `{"messages":[{"role":"user","content":"hello"}]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Incorrect API key provided", gjson.Get(rec.Body.String(), "error").String())
}

func TestChat_InvalidJSON(t *testing.T) {
	stub := &stubCompleter{}
	srv := New(newRelay("sk-test", stub), nil)

	rec := doChat(t, srv, `{"messages": [`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "error").Exists(), body)
	assert.Len(t, gjson.Parse(body).Map(), 1, "error body carries only the error field")
	assert.Zero(t, stub.calls())
}

func TestChat_ContentTypeIsIgnored(t *testing.T) {
	stub := &stubCompleter{reply: core.Message{Role: "assistant", Content: "hi"}}
	srv := New(newRelay("sk-test", stub), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[]}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChat_SequentialRequestsAreIndependent(t *testing.T) {
	stub := &stubCompleter{reply: core.Message{Role: "assistant", Content: "ok"}}
	srv := New(newRelay("sk-test", stub), nil)

	require.Equal(t, http.StatusOK, doChat(t, srv, `{"messages":[{"role":"user","content":"one"}]}`).Code)
	require.Equal(t, http.StatusOK, doChat(t, srv, `{"messages":[{"role":"user","content":"two"}]}`).Code)

	require.Equal(t, 2, stub.calls())
	assert.Equal(t, "one", stub.requests[0].Messages[0].Content)
	assert.Equal(t, []core.Message{{Role: "user", Content: "two"}}, stub.requests[1].Messages)
}

func TestChat_DistinctErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		body       string
		err        error
		wantStatus int
	}{
		{"missing credential", "", `{"messages":[]}`, nil, http.StatusInternalServerError},
		{"invalid json", "sk-test", `nope`, nil, http.StatusBadRequest},
		{"upstream auth", "sk-test", `{"messages":[]}`, core.NewAuthenticationError("openai", "bad key"), http.StatusUnauthorized},
		{"upstream rate limit", "sk-test", `{"messages":[]}`, core.NewRateLimitError("openai", "slow down"), http.StatusTooManyRequests},
		{"upstream outage", "sk-test", `{"messages":[]}`, core.NewProviderError("openai", http.StatusBadGateway, "down", nil), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubCompleter{err: tt.err}
			srv := New(newRelay(tt.apiKey, stub), &Config{DistinctErrorStatus: true})

			rec := doChat(t, srv, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.True(t, gjson.Get(rec.Body.String(), "error").Exists())
		})
	}
}

func TestHealth(t *testing.T) {
	srv := New(newRelay("", nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
