package scoring

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractText returns the readable text of an uploaded resume. PDFs go
// through the PDF reader; everything else must be plain text.
func ExtractText(data []byte) (string, error) {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return pdfText(data)
	}
	return DecodeText(data)
}

func pdfText(data []byte) (text string, err error) {
	// the reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: unreadable pdf: %v", ErrNotText, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotText, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotText, err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(out))
	if s == "" {
		return "", fmt.Errorf("%w: pdf has no text layer", ErrNotText)
	}
	return s, nil
}
