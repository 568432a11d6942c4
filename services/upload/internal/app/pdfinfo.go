package app

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// pdfHints is what intake can learn from the file itself.
type pdfHints struct {
	PageCount int
	Title     string
}

// inspectPDF reads the page count and document-info title. The parser
// panics on some malformed inputs, so panics are turned into errors.
func inspectPDF(data []byte) (hints pdfHints, err error) {
	defer func() {
		if r := recover(); r != nil {
			hints = pdfHints{}
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return pdfHints{}, fmt.Errorf("open pdf: %w", err)
	}
	hints.PageCount = reader.NumPage()
	hints.Title = strings.TrimSpace(reader.Trailer().Key("Info").Key("Title").Text())
	return hints, nil
}
