package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pdfbot/internal/answering"
	"github.com/mohammad-safakhou/pdfbot/models"
)

type ChatHandler struct {
	Answerer Answerer
}

func (h *ChatHandler) Register(e *echo.Echo) {
	e.POST("/chat", h.chat)
}

type chatRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	Answer         string            `json:"answer"`
	Citations      []models.Citation `json:"citations"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

// chat answers a question from the web UI.
func (h *ChatHandler) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.Answerer.Answer(c.Request().Context(), req.Question, answering.Meta{
		Channel:        models.ChannelUI,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		return err
	}
	citations := res.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	return c.JSON(http.StatusOK, chatResponse{
		Answer:         res.Text,
		Citations:      citations,
		ConversationID: req.ConversationID,
	})
}
