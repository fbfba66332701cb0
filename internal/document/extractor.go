package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/mohammad-safakhou/pdfbot/models"
)

// Extractor turns the raw bytes of an uploaded file into plain text.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (string, error)
}

// PDFExtractor reads text page by page with ledongthuc/pdf.
type PDFExtractor struct{}

// Extract returns the concatenated page text. Unparseable input, including
// inputs that make the parser panic, and documents without any text come
// back as *models.ExtractionError.
func (PDFExtractor) Extract(ctx context.Context, name string, data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", &models.ExtractionError{File: name, Err: errors.New("empty file")}
	}
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &models.ExtractionError{File: name, Err: fmt.Errorf("pdf parser panic: %v", r)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &models.ExtractionError{File: name, Err: err}
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// image-only or damaged page
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageText)
	}

	if sb.Len() == 0 {
		return "", &models.ExtractionError{File: name, Err: errors.New("no extractable text")}
	}
	return sb.String(), nil
}
