package normalize

import (
	"context"
	"strings"
)

func (e *Extractor) tesseractOCR(ctx context.Context, imgPath string) (text string, warnings []string, err error) {
	args := []string{imgPath, "stdout", "-l", e.cfg.TesseractLang}
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", []string{string(errb)}, err
	}
	if msg := strings.TrimSpace(string(errb)); msg != "" {
		warnings = append(warnings, msg)
	}
	return string(out), warnings, nil
}
