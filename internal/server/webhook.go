package server

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
)

const (
	webhookPath = "/chatwoot-webhook"

	defaultWebhookLimit int64 = 4 << 20
)

type WebhookHandler struct {
	Webhooks WebhookProcessor

	// MaxBody caps how much of an event is read; larger events are treated as malformed.
	MaxBody int64
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST(webhookPath, h.receive)
}

// receive always acknowledges with 200 so Chatwoot does not redeliver;
// failures are logged by the bridge.
func (h *WebhookHandler) receive(c echo.Context) error {
	limit := h.MaxBody
	if limit <= 0 {
		limit = defaultWebhookLimit
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		c.Logger().Warnf("read webhook body: %v", err)
		body = nil
	}
	if int64(len(body)) > limit {
		c.Logger().Warnf("webhook body exceeds %d bytes", limit)
		body = nil
	}
	outcome := h.Webhooks.HandleWebhook(c.Request().Context(), body)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "outcome": string(outcome)})
}

// webhookLimit parses a server.body_limit value such as "32M".
func webhookLimit(limit string) int64 {
	if limit == "" {
		return defaultWebhookLimit
	}
	n, err := bytes.Parse(limit)
	if err != nil || n <= 0 {
		return defaultWebhookLimit
	}
	return n
}
