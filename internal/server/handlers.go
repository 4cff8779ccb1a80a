// Package server provides the HTTP surface of the chat relay.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/core"
	"chatrelay/internal/relay"
)

// Relayer turns a request body into the completion service's reply.
type Relayer interface {
	Relay(ctx context.Context, body io.Reader) (*core.Message, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	relay               Relayer
	distinctErrorStatus bool
}

// NewHandler creates a new handler around r
func NewHandler(r Relayer, distinctErrorStatus bool) *Handler {
	return &Handler{
		relay:               r,
		distinctErrorStatus: distinctErrorStatus,
	}
}

// Chat handles POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	msg, err := h.relay.Relay(c.Request().Context(), c.Request().Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, msg)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleError is the echo.HTTPErrorHandler. Every error reaching it is
// answered with {"error": message}; failures on the chat endpoint are logged
// here and nowhere else.
func (h *Handler) HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := err.Error()
	attrs := []any{"request_id", core.RequestIDFromContext(c.Request().Context())}

	// Checked first: a body limit hit while the relay reads the body arrives
	// wrapped in an invalid request error.
	var httpErr *echo.HTTPError
	var gatewayErr *core.GatewayError
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		message = httpMessage(httpErr)
		if httpErr.Internal != nil {
			attrs = append(attrs, "cause", httpErr.Internal.Error())
		}
	case errors.As(err, &gatewayErr):
		status = gatewayErr.HTTPStatusCode()
		message = gatewayErr.ToJSON()["error"]
		attrs = append(attrs, "type", gatewayErr.Type)
	}

	chat := c.Request().Method == http.MethodPost && c.Path() == relay.Endpoint
	if chat && !h.distinctErrorStatus {
		status = http.StatusInternalServerError
	}
	if chat || status >= http.StatusInternalServerError {
		slog.Error("request failed", append([]any{"error", message, "status", status}, attrs...)...)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, map[string]string{"error": message})
	}
	if err != nil {
		slog.Warn("failed to write error response", "error", err)
	}
}

func httpMessage(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok {
		return msg
	}
	return fmt.Sprint(he.Message)
}
