package normalize

import (
	"bytes"
	"strings"
)

const (
	sourcePDF   = "pdf"
	sourceImage = "image"
)

var pdfMagic = []byte("%PDF-")

// kindFromMime maps a MIME hint to a source kind, sniffing the magic
// bytes when the hint is missing or generic.
func kindFromMime(mimeHint string, data []byte) string {
	switch {
	case strings.HasPrefix(mimeHint, "application/pdf"):
		return sourcePDF
	case strings.HasPrefix(mimeHint, "image/"):
		return sourceImage
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return sourcePDF
	}
	if len(data) > 4 && (bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}) ||
		bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF})) {
		return sourceImage
	}
	return ""
}

func extFor(kind string) string {
	if kind == sourceImage {
		return ".png"
	}
	return ".pdf"
}

// detectLanguage is a cheap hint for downstream prompts: Romanian
// diacritics mark Romanian, otherwise assume English.
func detectLanguage(text string) string {
	if text == "" {
		return "unknown"
	}
	if strings.ContainsAny(text, "ăâîșțĂÂÎȘȚ") {
		return "romanian"
	}
	return "english"
}
