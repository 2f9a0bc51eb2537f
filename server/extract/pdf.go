// Package extract turns an attachment locator into plain text. The document
// is staged in a scratch file that is removed on every exit path, success or
// failure; nothing about an attachment survives the delivery that carried it.
package extract

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/chloebot/chloe/errors"
)

// Downloader resolves an attachment locator into file bytes. The messaging
// collaborator implements this.
type Downloader interface {
	DownloadFile(ctx context.Context, url string, w io.Writer) error
}

// Extractor is the gateway-facing contract.
type Extractor interface {
	ExtractText(ctx context.Context, locator string) (string, error)
}

// PDFExtractor downloads a PDF attachment and extracts its text, page texts
// joined with a single space in page order. Every failure is Fatal for the
// attachment: a corrupt document will not parse better on a retry.
type PDFExtractor struct {
	downloader Downloader
	logger     *zap.Logger
}

var _ Extractor = (*PDFExtractor)(nil)

// NewPDFExtractor creates an extractor using the given downloader.
func NewPDFExtractor(downloader Downloader, logger *zap.Logger) *PDFExtractor {
	return &PDFExtractor{
		downloader: downloader,
		logger:     logger,
	}
}

// ExtractText downloads the document behind locator and returns its plain
// text.
func (e *PDFExtractor) ExtractText(ctx context.Context, locator string) (string, error) {
	tmp, err := os.CreateTemp("", "chloe-*.pdf")
	if err != nil {
		return "", errors.NewFatal("failed to create scratch file", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := e.downloader.DownloadFile(ctx, locator, tmp); err != nil {
		tmp.Close()
		return "", errors.NewFatal("failed to download attachment", err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.NewFatal("failed to flush scratch file", err)
	}

	text, err := extractPlainText(tmp.Name())
	if err != nil {
		return "", errors.NewFatal("failed to extract text from document", err)
	}

	e.logger.Debug("Extracted attachment text",
		zap.String("locator", locator),
		zap.Int("characters", len(text)),
	)
	return text, nil
}

func extractPlainText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", err
		}
		pages = append(pages, text)
	}

	return strings.Join(pages, " "), nil
}
