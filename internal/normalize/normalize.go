package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/freightflow/extractd/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "ron+eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	// MinTextLength is the usable-content floor: a ladder method whose
	// output is shorter moves on to the next method.
	MinTextLength int
}

// Document is the normalized representation handed to provider adapters.
type Document struct {
	Text       string
	Pages      int
	Images     [][]byte // rendered page PNGs, populated only on the optical path
	SourceType string   // "pdf" | "image"
	Method     string   // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string   // "romanian" | "english" | "unknown"
	Scanned    bool
	Duration   time.Duration
	Warnings   []string
}

// Normalizer converts raw document bytes into an extractable Document.
type Normalizer interface {
	Normalize(ctx context.Context, data []byte, mimeHint string) (*Document, error)
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "ron+eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = 64
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Normalize tries extraction methods in a fixed priority ladder and stops
// at the first one yielding usable content. It is a pure transform: same
// bytes, same outcome. Failures are deterministic and never retried.
func (e *Extractor) Normalize(ctx context.Context, data []byte, mimeHint string) (*Document, error) {
	start := time.Now()

	tmpDir, err := os.MkdirTemp("", "extractd-norm-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("normalize.cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	kind := kindFromMime(mimeHint, data)
	path := filepath.Join(tmpDir, "input"+extFor(kind))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp input: %w", err)
	}

	e.logger.Debug("normalize.start", "mime", mimeHint, "kind", kind, "bytes", len(data))

	var doc *Document
	switch kind {
	case sourcePDF:
		doc, err = e.normalizePDF(ctx, path, tmpDir)
	case sourceImage:
		doc, err = e.normalizeImage(ctx, path)
	default:
		return nil, common.NewAppError("UNSUPPORTED_FORMAT",
			fmt.Sprintf("unsupported mime type %q", mimeHint), common.ErrUnreadableDocument)
	}
	if err != nil {
		return nil, err
	}

	doc.Duration = time.Since(start)
	doc.Language = detectLanguage(doc.Text)
	e.logger.Info("normalize.ok",
		"method", doc.Method,
		"pages", doc.Pages,
		"text_len", len(doc.Text),
		"language", doc.Language,
		"scanned", doc.Scanned,
		"duration_ms", doc.Duration.Milliseconds(),
	)
	return doc, nil
}

// normalizePDF runs the pdf-text -> pdf-ocr ladder.
func (e *Extractor) normalizePDF(ctx context.Context, path, tmpDir string) (*Document, error) {
	var warnings []string

	text, pages, warns, err := e.pdfToText(ctx, path)
	warnings = append(warnings, warns...)
	if err == nil && e.usable(text) {
		return &Document{
			Text:       strings.TrimSpace(text),
			Pages:      pages,
			SourceType: sourcePDF,
			Method:     "pdf-text",
			Warnings:   warnings,
		}, nil
	}
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("pdf-text: %v", err))
	}

	text, pages, images, warns, err := e.pdfToOCR(ctx, path, tmpDir)
	warnings = append(warnings, warns...)
	if err == nil && e.usable(text) {
		return &Document{
			Text:       strings.TrimSpace(text),
			Pages:      pages,
			Images:     images,
			SourceType: sourcePDF,
			Method:     "pdf-ocr",
			Scanned:    true,
			Warnings:   warnings,
		}, nil
	}
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("pdf-ocr: %v", err))
	}

	e.logger.Error("normalize.exhausted", "source", sourcePDF, "warnings", strings.Join(warnings, "; "))
	return nil, common.NewAppError("UNREADABLE_DOCUMENT",
		"all extraction methods produced empty output", common.ErrUnreadableDocument)
}

// normalizeImage is a single-rung ladder: direct optical recognition.
func (e *Extractor) normalizeImage(ctx context.Context, path string) (*Document, error) {
	text, warns, err := e.tesseractOCR(ctx, path)
	if err != nil || !e.usable(text) {
		if err != nil {
			warns = append(warns, err.Error())
		}
		e.logger.Error("normalize.exhausted", "source", sourceImage, "warnings", strings.Join(warns, "; "))
		return nil, common.NewAppError("UNREADABLE_DOCUMENT",
			"optical recognition produced no usable text", common.ErrUnreadableDocument)
	}
	return &Document{
		Text:       strings.TrimSpace(text),
		Pages:      1,
		SourceType: sourceImage,
		Method:     "image-ocr",
		Scanned:    true,
		Warnings:   warns,
	}, nil
}

func (e *Extractor) usable(text string) bool {
	return len(strings.TrimSpace(text)) >= e.cfg.MinTextLength
}
