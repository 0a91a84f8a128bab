// Package extractor pulls plain text out of user-uploaded files. PDF goes
// through a real parser, everything else is treated as UTF-8 text.
package extractor

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return extractPDF(filename, data)
	}
	return extractPlaintext(filename, data)
}

func extractPlaintext(filename string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract_text",
			fmt.Errorf("unsupported binary format: %s", filename))
	}
	return strings.TrimSpace(string(data)), nil
}

func extractPDF(filename string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract_pdf",
			fmt.Errorf("parse %s: %w", filename, err))
	}

	content, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract_pdf",
			fmt.Errorf("read text of %s: %w", filename, err))
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, content); err != nil {
		return "", fmt.Errorf("copy pdf text of %s: %w", filename, err)
	}
	return strings.TrimSpace(sb.String()), nil
}
