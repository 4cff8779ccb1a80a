package usage

import (
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/core"
)

// ExtractFromChatResponse builds a UsageEntry from a completed relay call.
// Returns nil for a nil response.
func ExtractFromChatResponse(resp *core.ChatResponse, requestID, endpoint string) *UsageEntry {
	if resp == nil {
		return nil
	}

	return &UsageEntry{
		ID:           uuid.NewString(),
		RequestID:    requestID,
		ProviderID:   resp.ID,
		Timestamp:    time.Now().UTC(),
		Model:        resp.Model,
		Provider:     resp.Provider,
		Endpoint:     endpoint,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
}
