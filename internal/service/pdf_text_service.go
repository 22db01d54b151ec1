package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
)

type PDFTextServiceInterface interface {
	ExtractText(ctx context.Context, payload []byte) (string, error)
}

// PageSource is an opened document. Close releases whatever the engine
// allocated and is always called once the source was opened.
type PageSource interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	Close() error
}

// DocumentOpener opens raw PDF bytes.
type DocumentOpener func(data []byte) (PageSource, error)

const (
	PDFEngineFitz = "fitz"
	PDFEnginePure = "pure"
)

// DefaultMinTextChars is the shortest text accepted as a real text layer.
const DefaultMinTextChars = 100

var unreadableMessage = "The document has no readable text layer. It may be a scanned image or empty; upload a text-based PDF."

type PDFTextService struct {
	open     DocumentOpener
	minChars int
	logger   *slog.Logger
}

// OpenerForEngine returns the opener for a PDF engine name.
func OpenerForEngine(engine string) (DocumentOpener, error) {
	switch strings.ToLower(engine) {
	case "", PDFEngineFitz:
		return openWithFitz, nil
	case PDFEnginePure:
		return openWithPurePDF, nil
	default:
		return nil, fmt.Errorf("unknown PDF engine %q", engine)
	}
}

func NewPDFTextService(open DocumentOpener, minChars int, logger *slog.Logger) *PDFTextService {
	if minChars <= 0 {
		minChars = DefaultMinTextChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFTextService{open: open, minChars: minChars, logger: logger}
}

// ExtractText decodes the transport encoding, converts the PDF to text and
// rejects documents whose text layer is missing or too short.
func (s *PDFTextService) ExtractText(ctx context.Context, payload []byte) (string, error) {
	data, err := DecodeDocumentPayload(payload)
	if err != nil {
		return "", apperror.New(apperror.KindUnreadableDocument, "The uploaded file could not be decoded as a PDF.", err)
	}

	doc, err := s.open(data)
	if err != nil {
		return "", apperror.New(apperror.KindUnreadableDocument, "The uploaded file could not be opened as a PDF.", err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			s.logger.Warn("close pdf document", "error", cerr)
		}
	}()

	var fullText strings.Builder
	pages := doc.NumPage()
	for n := 0; n < pages; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pageText, err := doc.Text(n)
		if err != nil {
			s.logger.Warn("pdf page text failed", "page", n+1, "error", err)
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		fullText.WriteString(pageText)
		fullText.WriteString("\n\n")
	}

	result := strings.TrimSpace(fullText.String())
	chars := utf8.RuneCountInString(result)
	s.logger.Info("pdf text extracted", "pages", pages, "chars", chars)

	if chars < s.minChars {
		return "", apperror.New(apperror.KindUnreadableDocument, unreadableMessage,
			fmt.Errorf("extracted %d characters from %d pages, need at least %d", chars, pages, s.minChars))
	}
	return result, nil
}

var pdfMagic = []byte("%PDF")

// DecodeDocumentPayload returns raw PDF bytes. Payloads that do not start
// with the PDF header are treated as base64, optionally as a data URL.
func DecodeDocumentPayload(payload []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if bytes.HasPrefix(trimmed, pdfMagic) {
		return trimmed, nil
	}

	encoded := string(trimmed)
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if !bytes.HasPrefix(decoded, pdfMagic) {
		return nil, fmt.Errorf("decoded payload is not a PDF")
	}
	return decoded, nil
}

func openWithFitz(data []byte) (PageSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return doc, nil
}

// purePDF holds the per-page text layer read by ledongthuc/pdf, which has
// nothing native to release.
type purePDF struct {
	pages []string
}

func openWithPurePDF(data []byte) (src PageSource, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			src, err = nil, fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	doc := &purePDF{pages: make([]string, reader.NumPage())}
	for i := range doc.pages {
		page := reader.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read text of page %d: %w", i+1, err)
		}
		doc.pages[i] = text
	}
	return doc, nil
}

func (p *purePDF) NumPage() int {
	return len(p.pages)
}

func (p *purePDF) Text(n int) (string, error) {
	if n < 0 || n >= len(p.pages) {
		return "", fmt.Errorf("page %d out of range", n+1)
	}
	return p.pages[n], nil
}

func (p *purePDF) Close() error {
	return nil
}
