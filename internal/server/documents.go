package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pdfbot/internal/document"
	"github.com/mohammad-safakhou/pdfbot/models"
)

// DocumentsHandler accepts PDF uploads into the knowledge base.
type DocumentsHandler struct {
	Store DocumentStore
}

func (h *DocumentsHandler) Register(e *echo.Echo) {
	e.POST("/documents", h.upload)
}

// upload ingests every multipart part named "files" (or "file") as one
// knowledge base, replacing the previous one.
func (h *DocumentsHandler) upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fmt.Errorf("%w: expected multipart/form-data with PDF files", models.ErrInvalidRequest)
	}
	headers := append(form.File["files"], form.File["file"]...)
	if len(headers) == 0 {
		return fmt.Errorf("%w: no files uploaded", models.ErrInvalidRequest)
	}

	files := make([]document.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", models.ErrInvalidRequest, fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", models.ErrInvalidRequest, fh.Filename, err)
		}
		files = append(files, document.File{Name: fh.Filename, Data: data})
	}

	res, err := h.Store.Ingest(c.Request().Context(), files...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        res.Version,
		"files":          res.Files,
		"chunks_created": res.Chunks,
		"text_length":    res.TextLength,
	})
}
