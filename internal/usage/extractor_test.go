package usage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrelay/internal/core"
)

func TestExtractFromChatResponse(t *testing.T) {
	assert.Nil(t, ExtractFromChatResponse(nil, "req-1", "/api/chat"))

	before := time.Now().UTC()
	entry := ExtractFromChatResponse(&core.ChatResponse{
		ID:       "chatcmpl-123",
		Model:    "gpt-3.5-turbo-0125",
		Provider: "openai",
		Usage: core.Usage{
			PromptTokens:     12,
			CompletionTokens: 7,
			TotalTokens:      19,
		},
	}, "req-123", "/api/chat")
	require.NotNil(t, entry)

	_, err := uuid.Parse(entry.ID)
	assert.NoError(t, err, "entry ID should be a UUID")
	assert.Equal(t, "req-123", entry.RequestID)
	assert.Equal(t, "chatcmpl-123", entry.ProviderID)
	assert.Equal(t, "gpt-3.5-turbo-0125", entry.Model)
	assert.Equal(t, "openai", entry.Provider)
	assert.Equal(t, "/api/chat", entry.Endpoint)
	assert.Equal(t, 12, entry.InputTokens)
	assert.Equal(t, 7, entry.OutputTokens)
	assert.Equal(t, 19, entry.TotalTokens)
	assert.False(t, entry.Timestamp.Before(before))
}

func TestExtractFromChatResponse_UniqueIDs(t *testing.T) {
	resp := &core.ChatResponse{ID: "chatcmpl-1"}
	a := ExtractFromChatResponse(resp, "", "/api/chat")
	b := ExtractFromChatResponse(resp, "", "/api/chat")
	assert.NotEqual(t, a.ID, b.ID)
}
