package services

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/northbeam/portal-api/utils"
	"github.com/northbeam/portal-api/utils/pdfvalidation"
	"go.uber.org/zap"
)

// minExtractedChars is the least text a resume must yield to be worth parsing
const minExtractedChars = 50

// ErrNoExtractableText means the PDF is probably scanned or image-based
var ErrNoExtractableText = errors.New("no extractable text in PDF")

// PDFExtractor handles PDF text extraction using ledongthuc/pdf (MIT license)
type PDFExtractor struct {
	logger *zap.Logger
}

// NewPDFExtractor creates a new PDF extractor
func NewPDFExtractor(logger *zap.Logger) *PDFExtractor {
	return &PDFExtractor{logger: utils.OrNop(logger)}
}

// ExtractText extracts text from PDF bytes, one line per text row
func (p *PDFExtractor) ExtractText(content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("empty PDF content")
	}
	content = pdfvalidation.Sanitize(content)

	pdfReader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	numPages := pdfReader.NumPage()
	if numPages == 0 {
		return "", fmt.Errorf("PDF has no pages")
	}

	var textBuilder strings.Builder
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			p.logger.Debug("Row extraction failed, trying plain text", zap.Int("page", i), zap.Error(err))
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				p.logger.Warn("Plain text extraction failed", zap.Int("page", i), zap.Error(plainErr))
				continue
			}
			textBuilder.WriteString(text)
			textBuilder.WriteString("\n")
			continue
		}

		for _, row := range rows {
			var rowText strings.Builder
			for _, word := range row.Content {
				rowText.WriteString(word.S)
			}
			if line := strings.TrimSpace(rowText.String()); line != "" {
				textBuilder.WriteString(line)
				textBuilder.WriteString("\n")
			}
		}
		textBuilder.WriteString("\n")
	}

	extracted := strings.TrimSpace(textBuilder.String())
	if len(extracted) < minExtractedChars {
		return "", fmt.Errorf("%w: only %d characters", ErrNoExtractableText, len(extracted))
	}

	p.logger.Debug("Extracted PDF text", zap.Int("pages", numPages), zap.Int("chars", len(extracted)))
	return extracted, nil
}
