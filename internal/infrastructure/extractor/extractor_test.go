package extractor

import (
	"errors"
	"testing"

	"github.com/gorsovet/urban-advisor/internal/core/domain"
)

func TestExtractPlaintext(t *testing.T) {
	e := New()
	got, err := e.Extract("notes.txt", []byte("  Запись к врачу через Госуслуги.  \n"))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Запись к врачу через Госуслуги." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractEmptyFile(t *testing.T) {
	e := New()
	got, err := e.Extract("empty.txt", nil)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestExtractBinaryIsInvalidInput(t *testing.T) {
	e := New()
	_, err := e.Extract("photo.jpg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input kind, got %v", err)
	}
}

func TestExtractBrokenPDFIsInvalidInput(t *testing.T) {
	e := New()
	_, err := e.Extract("doc.pdf", []byte("%PDF-1.4 truncated"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid-input kind, got %v", err)
	}
}
