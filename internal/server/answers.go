package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pdfbot/models"
)

// AnswersHandler exposes the answer log.
type AnswersHandler struct {
	Log AnswerLog
}

func (h *AnswersHandler) Register(e *echo.Echo) {
	e.POST("/answer", h.store)
	e.GET("/answers/all", h.all)
	e.GET("/answers/latest", h.latest)
}

type storeAnswerRequest struct {
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
	Channel        string `json:"channel"`
}

// timestamp layouts accepted on POST /answer, most specific first
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q is not ISO-8601", models.ErrInvalidRequest, s)
}

// store records an answer produced outside this service.
func (h *AnswersHandler) store(c echo.Context) error {
	var req storeAnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		return fmt.Errorf("%w: question and answer are required", models.ErrInvalidRequest)
	}

	rec := models.Record{
		Question:       req.Question,
		Answer:         req.Answer,
		ConversationID: req.ConversationID,
		Channel:        models.ChannelUI,
	}
	if req.Channel != "" {
		rec.Channel = models.Channel(strings.ToLower(req.Channel))
		if !rec.Channel.Valid() {
			return fmt.Errorf("%w: unknown channel %q", models.ErrInvalidRequest, req.Channel)
		}
	}
	if req.Timestamp != "" {
		ts, err := parseTimestamp(req.Timestamp)
		if err != nil {
			return err
		}
		rec.Timestamp = ts
	}

	stored := h.Log.Append(rec)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"message":         "Answer received and stored successfully",
		"id":              stored.ID,
		"conversation_id": stored.ConversationID,
		"total_stored":    h.Log.Len(),
	})
}

func (h *AnswersHandler) all(c echo.Context) error {
	answers := h.Log.All()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"answers":       answers,
		"total_answers": len(answers),
	})
}

type latestResponse struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Timestamp time.Time      `json:"timestamp"`
	Channel   models.Channel `json:"channel"`
}

func (h *AnswersHandler) latest(c echo.Context) error {
	rec, err := h.Log.Latest()
	if err != nil {
		return fmt.Errorf("no answers stored yet: %w", err)
	}
	return c.JSON(http.StatusOK, latestResponse{
		Question:  rec.Question,
		Answer:    rec.Answer,
		Timestamp: rec.Timestamp,
		Channel:   rec.Channel,
	})
}
