package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pdfbot/config"
)

// RootHandler serves the navigation document and status.
type RootHandler struct {
	Config    *config.Config
	Documents DocumentStore
	Log       AnswerLog
}

func (h *RootHandler) Register(e *echo.Echo) {
	e.GET("/", h.index)
	e.GET("/status", h.status)
}

func (h *RootHandler) index(c echo.Context) error {
	webhook := h.Config.Chatwoot.WebhookURL
	if webhook == "" {
		webhook = h.Config.Server.PublicURL + "/chatwoot-webhook"
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "PDF Chatbot API",
		"endpoints": map[string]string{
			"chat":             "POST /chat - Ask a question about the uploaded PDFs",
			"answer":           "POST /answer - Store an externally produced answer",
			"documents":        "POST /documents - Upload PDFs (multipart field \"files\")",
			"chatwoot_webhook": "POST /chatwoot-webhook - Chatwoot message_created events",
			"view_all_answers": "GET /answers/all - View all stored answers",
			"view_latest":      "GET /answers/latest - View latest answer",
			"status":           "GET /status - Knowledge base and service status",
			"ui":               "GET /ui - Upload and chat page",
		},
		"webhook_url": webhook,
	})
}

func (h *RootHandler) status(c echo.Context) error {
	st := h.Documents.Status()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"knowledge_base_loaded": st.Loaded(),
		"documents":             st,
		"total_answers":         h.Log.Len(),
		"chatwoot_enabled":      h.Config.Chatwoot.Enabled(),
		"llm": map[string]string{
			"type":  h.Config.LLM.Type,
			"model": h.Config.LLM.Model,
		},
		"llm_key_configured": h.Config.LLM.APIKey != "",
		"dedup_backend":      h.Config.Dedup.Backend,
	})
}
