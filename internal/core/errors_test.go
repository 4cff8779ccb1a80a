package core

import (
	"errors"
	"net/http"
	"testing"
)

func TestGatewayError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *GatewayError
		expected string
	}{
		{
			name: "error with provider",
			err: &GatewayError{
				Type:     ErrorTypeProvider,
				Message:  "upstream error",
				Provider: "openai",
			},
			expected: "[openai] provider_error: upstream error",
		},
		{
			name:     "configuration error",
			err:      NewConfigurationError("OPENAI_API_KEY is not set"),
			expected: "configuration_error: OPENAI_API_KEY is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGatewayError_Unwrap(t *testing.T) {
	originalErr := errors.New("dial tcp: connection refused")
	gatewayErr := NewProviderError("openai", http.StatusBadGateway, "failed to send request", originalErr)

	if !errors.Is(gatewayErr, originalErr) {
		t.Errorf("errors.Is should find the original error through Unwrap")
	}
}

func TestGatewayError_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      *GatewayError
		expected int
	}{
		{"explicit status code", &GatewayError{Type: ErrorTypeProvider, StatusCode: http.StatusServiceUnavailable}, http.StatusServiceUnavailable},
		{"configuration default", &GatewayError{Type: ErrorTypeConfiguration}, http.StatusInternalServerError},
		{"rate limit default", &GatewayError{Type: ErrorTypeRateLimit}, http.StatusTooManyRequests},
		{"invalid request default", &GatewayError{Type: ErrorTypeInvalidRequest}, http.StatusBadRequest},
		{"authentication default", &GatewayError{Type: ErrorTypeAuthentication}, http.StatusUnauthorized},
		{"provider error default", &GatewayError{Type: ErrorTypeProvider}, http.StatusBadGateway},
		{"unknown error type", &GatewayError{Type: ErrorType("unknown")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.expected {
				t.Errorf("HTTPStatusCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGatewayError_ToJSON(t *testing.T) {
	err := NewRateLimitError("openai", "You exceeded your current quota")

	body := err.ToJSON()
	if len(body) != 1 {
		t.Fatalf("ToJSON() should only carry the error key, got %v", body)
	}
	if body["error"] != "You exceeded your current quota" {
		t.Errorf("ToJSON()[error] = %q", body["error"])
	}
}

func TestClassifyProviderStatus(t *testing.T) {
	cause := errors.New("upstream")
	tests := []struct {
		status     int
		wantType   ErrorType
		wantStatus int
	}{
		{http.StatusUnauthorized, ErrorTypeAuthentication, http.StatusUnauthorized},
		{http.StatusForbidden, ErrorTypeAuthentication, http.StatusForbidden},
		{http.StatusTooManyRequests, ErrorTypeRateLimit, http.StatusTooManyRequests},
		{http.StatusNotFound, ErrorTypeInvalidRequest, http.StatusNotFound},
		{http.StatusBadRequest, ErrorTypeInvalidRequest, http.StatusBadRequest},
		{http.StatusInternalServerError, ErrorTypeProvider, http.StatusBadGateway},
		{http.StatusServiceUnavailable, ErrorTypeProvider, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ClassifyProviderStatus("openai", tt.status, "msg", cause)
			if err.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", err.Type, tt.wantType)
			}
			if err.HTTPStatusCode() != tt.wantStatus {
				t.Errorf("HTTPStatusCode() = %d, want %d", err.HTTPStatusCode(), tt.wantStatus)
			}
			if err.Provider != "openai" {
				t.Errorf("Provider = %q, want openai", err.Provider)
			}
			if !errors.Is(err, cause) {
				t.Errorf("original error should be preserved")
			}
		})
	}
}

func TestChatResponse_FirstMessage(t *testing.T) {
	var nilResp *ChatResponse
	if _, ok := nilResp.FirstMessage(); ok {
		t.Error("nil response should have no first message")
	}

	if _, ok := (&ChatResponse{}).FirstMessage(); ok {
		t.Error("empty choices should have no first message")
	}

	resp := &ChatResponse{Choices: []Choice{
		{Message: Message{Role: "assistant", Content: "first"}},
		{Message: Message{Role: "assistant", Content: "second"}, Index: 1},
	}}
	msg, ok := resp.FirstMessage()
	if !ok || msg.Content != "first" {
		t.Errorf("FirstMessage() = %+v, %v; want first candidate", msg, ok)
	}
}
