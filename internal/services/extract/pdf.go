package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDFEngine extracts the text layer of a PDF. A scanned PDF with no text
// layer yields empty output, which the registry reports as an empty-flagged
// success rather than a failure.
type PDFEngine struct{}

func NewPDFEngine() PDFEngine {
	return PDFEngine{}
}

func (PDFEngine) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}

	text, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}

	return string(text), nil
}
