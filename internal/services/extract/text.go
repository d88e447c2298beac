package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextEngine passes plain text and code files through verbatim after encoding
// normalization. No extraction engine is involved.
type TextEngine struct{}

func NewTextEngine() TextEngine {
	return TextEngine{}
}

func (TextEngine) Extract(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}
