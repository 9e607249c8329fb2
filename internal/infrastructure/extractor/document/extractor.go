package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
)

var errNoText = errors.New("no text content extracted")

// Extractor turns stored PDF, spreadsheet and UTF-8 text documents into plain text.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc domain.StoredDocument) (string, error) {
	reader, err := e.storage.Open(ctx, doc.Key)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	var text string
	switch format(doc.Key, raw) {
	case "pdf":
		text, err = extractPDF(raw)
	case "xlsx":
		text, err = extractSpreadsheet(raw)
	default:
		if !utf8.Valid(raw) {
			return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported binary format: %s", filepath.Base(doc.Key)))
		}
		text = string(raw)
	}
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("%s: %w", filepath.Base(doc.Key), err))
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("%s: %w", filepath.Base(doc.Key), errNoText))
	}
	return text, nil
}

func format(key string, raw []byte) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".pdf":
		return "pdf"
	case ".xlsx", ".xlsm":
		return "xlsx"
	}
	if bytes.HasPrefix(raw, []byte("%PDF-")) {
		return "pdf"
	}
	return "text"
}

func extractPDF(raw []byte) (text string, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// extractSpreadsheet renders every sheet as tab-separated rows.
func extractSpreadsheet(raw []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		b.WriteString(sheet)
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
