// Package core defines the core interfaces and types for the chat relay.
package core

import "context"

// Completer submits a conversation to a chat-completion service.
// Implementations perform exactly one upstream round trip per call.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// CreateChatCompletion calls f(ctx, req).
func (f CompleterFunc) CreateChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}
