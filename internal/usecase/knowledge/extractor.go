package knowledge

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"

	"concierge-api/internal/domain/entity"
)

type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract converts a raw file into UTF-8 plain text based on its file type.
// Returns entity.ErrUnsupportedFormat when no extractor exists for the type
// and entity.ErrExtractionFailed when the extractor errors.
func (te *TextExtractor) Extract(data []byte, fileType string) (string, error) {
	switch NormalizeFileType(fileType) {
	case "pdf":
		return te.ExtractFromPDF(data)
	case "docx":
		return te.ExtractFromDOCX(data)
	case "png", "jpeg", "webp":
		return te.ExtractFromImage(data)
	default:
		return "", fmt.Errorf("%w: %s", entity.ErrUnsupportedFormat, fileType)
	}
}

// NormalizeFileType maps a MIME type or file extension onto the extractor
// dispatch keys: pdf, docx, png, jpeg, webp.
func NormalizeFileType(fileType string) string {
	ft := strings.ToLower(strings.TrimSpace(fileType))
	ft = strings.TrimPrefix(ft, ".")

	switch ft {
	case "pdf", "application/pdf":
		return "pdf"
	case "docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "png", "image/png":
		return "png"
	case "jpg", "jpeg", "image/jpg", "image/jpeg":
		return "jpeg"
	case "webp", "image/webp":
		return "webp"
	}
	return ft
}

// SupportedFileType reports whether an extractor exists for the type.
func SupportedFileType(fileType string) bool {
	switch NormalizeFileType(fileType) {
	case "pdf", "docx", "png", "jpeg", "webp":
		return true
	}
	return false
}

func (te *TextExtractor) ExtractFromPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", entity.ErrExtractionFailed, err)
	}

	var sb strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		sb.WriteString(decodePercentRuns(text))
		sb.WriteString("\n")
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("%w: pdf contained no extractable text", entity.ErrExtractionFailed)
	}
	return out, nil
}

var percentRunRe = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)

// decodePercentRuns URL-decodes percent-encoded glyph sequences some PDF
// producers leave in text runs. Text that fails to decode is kept as-is.
func decodePercentRuns(text string) string {
	if !percentRunRe.MatchString(text) {
		return text
	}
	decoded, err := url.PathUnescape(text)
	if err != nil {
		return text
	}
	return decoded
}

// docx body structure, word/document.xml
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

// ExtractFromDOCX unzips the document and extracts the body's textual runs,
// discarding all formatting.
func (te *TextExtractor) ExtractFromDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open docx: %v", entity.ErrExtractionFailed, err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open document.xml: %v", entity.ErrExtractionFailed, err)
		}

		var doc docxDocument
		err = xml.NewDecoder(rc).Decode(&doc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: parse document.xml: %v", entity.ErrExtractionFailed, err)
		}

		var sb strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, run := range para.Runs {
				for _, text := range run.Text {
					sb.WriteString(text.Content)
				}
			}
		}
		return strings.TrimSpace(sb.String()), nil
	}

	return "", fmt.Errorf("%w: docx has no word/document.xml", entity.ErrExtractionFailed)
}

// ExtractFromImage runs OCR against the raster content. Confidence is
// best-effort: low-confidence text is still returned. The raster is staged
// through a temp file that is removed on every exit path.
func (te *TextExtractor) ExtractFromImage(data []byte) (string, error) {
	tmp, err := os.CreateTemp("", "concierge-ocr-*")
	if err != nil {
		return "", fmt.Errorf("%w: stage image: %v", entity.ErrExtractionFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: stage image: %v", entity.ErrExtractionFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: stage image: %v", entity.ErrExtractionFailed, err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImage(tmp.Name()); err != nil {
		return "", fmt.Errorf("%w: ocr set image: %v", entity.ErrExtractionFailed, err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("%w: ocr: %v", entity.ErrExtractionFailed, err)
	}

	return strings.TrimSpace(text), nil
}
