package ingestion

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"github.com/recoverlink/backend/pkg/errs"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// ExtractText recovers plain text from an uploaded discharge document.
// PDFs are read page by page; HTML is stripped of markup; anything else
// is treated as plain text. Returns an extraction error when no usable
// text remains.
func ExtractText(raw []byte, contentType string) (string, error) {
	var text string
	var err error

	switch {
	case isPDF(raw, contentType):
		text, err = extractPDF(raw)
	case isHTML(raw, contentType):
		text, err = extractHTML(raw)
	default:
		text = string(raw)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.Extraction("no text recoverable from document")
	}

	return text, nil
}

func isPDF(raw []byte, contentType string) bool {
	return strings.Contains(contentType, "pdf") || bytes.HasPrefix(raw, []byte("%PDF-"))
}

func isHTML(raw []byte, contentType string) bool {
	if strings.Contains(contentType, "html") {
		return true
	}
	head := strings.ToLower(string(raw[:min(len(raw), 256)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func extractPDF(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", errs.Extraction("failed to open PDF: %v", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages; an all-empty document is caught
			// by the caller's emptiness check.
			continue
		}
		if pageText != "" {
			sb.WriteString(pageText)
			sb.WriteString("\n")
		}
	}

	return sb.String(), nil
}

func extractHTML(raw []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", errs.Extraction("failed to parse HTML: %v", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	return whitespacePattern.ReplaceAllString(text, " "), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
