package server

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed web/index.html
var indexHTML string

// registerUI serves the single-page upload and chat UI.
func registerUI(e *echo.Echo) {
	e.GET("/ui", func(c echo.Context) error {
		return c.HTML(http.StatusOK, indexHTML)
	})
}
