package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/pdfbot/config"
	"github.com/mohammad-safakhou/pdfbot/internal/answering"
	"github.com/mohammad-safakhou/pdfbot/internal/chatwoot"
	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/internal/telemetry"
	"github.com/mohammad-safakhou/pdfbot/models"
)

// DocumentStore is the part of the document store the API needs.
type DocumentStore interface {
	Ingest(ctx context.Context, files ...document.File) (models.IngestResult, error)
	Status() document.Status
}

// Answerer answers a question against the loaded documents.
type Answerer interface {
	Answer(ctx context.Context, question string, meta answering.Meta) (models.AnswerResult, error)
}

// AnswerLog stores question/answer records.
type AnswerLog interface {
	Append(r models.Record) models.Record
	All() []models.Record
	Latest() (models.Record, error)
	Len() int
}

// WebhookProcessor consumes Chatwoot webhook bodies.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, body []byte) chatwoot.Outcome
}

// Deps are the components the HTTP layer is built from.
type Deps struct {
	Config    *config.Config
	Documents DocumentStore
	Answerer  Answerer
	Log       AnswerLog
	Webhooks  WebhookProcessor
	Metrics   *telemetry.Metrics
}

type Server struct {
	e      *echo.Echo
	cfg    config.ServerConfig
	logger *log.Logger
}

// New builds the echo instance with every route registered.
func New(deps Deps) *Server {
	cfg := deps.Config
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.General.Debug
	e.Use(middleware.Recover())
	if cfg.General.Debug {
		e.Use(middleware.Logger())
	}
	// Unified HTTP error handler with structured JSON and logging
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code, msg := statusFor(err)
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept},
	}))
	if cfg.Server.BodyLimit != "" {
		// the webhook enforces its own limit so oversized events are still acknowledged
		e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
			Limit: cfg.Server.BodyLimit,
			Skipper: func(c echo.Context) bool {
				return c.Request().URL.Path == webhookPath
			},
		}))
	}
	e.Use(requestMetrics(deps.Metrics))

	health := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/healthz", health)
	e.GET("/health", health)
	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))

	root := &RootHandler{Config: cfg, Documents: deps.Documents, Log: deps.Log}
	root.Register(e)

	chat := &ChatHandler{Answerer: deps.Answerer}
	chat.Register(e)

	answers := &AnswersHandler{Log: deps.Log}
	answers.Register(e)

	docs := &DocumentsHandler{Store: deps.Documents}
	docs.Register(e)

	hooks := &WebhookHandler{Webhooks: deps.Webhooks, MaxBody: webhookLimit(cfg.Server.BodyLimit)}
	hooks.Register(e)

	registerUI(e)

	return &Server{e: e, cfg: cfg.Server, logger: baseLogger}
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.Address()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Printf("shutting down")
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// statusFor maps an error returned by a handler to a status code and the
// message sent to the client.
func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}
	switch {
	case errors.Is(err, models.ErrEmptyQuestion), errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrExtraction):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, models.ErrModelUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, models.ErrRetrieval):
		return http.StatusServiceUnavailable, models.ErrRetrieval.Error()
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}

func requestMetrics(m *telemetry.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if err != nil {
				status, _ = statusFor(err)
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.ObserveRequest(c.Request().Method, path, status)
			return err
		}
	}
}
