package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
	"github.com/kirillkom/regulatory-assistant/internal/core/ports"
)

// DocumentProcessor extracts the text of a stored document and splits it
// into fragments ready for indexing.
type DocumentProcessor struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
}

func NewDocumentProcessor(extractor ports.TextExtractor, chunker ports.Chunker) *DocumentProcessor {
	return &DocumentProcessor{
		extractor: extractor,
		chunker:   chunker,
	}
}

func (p *DocumentProcessor) Process(ctx context.Context, doc domain.StoredDocument) ([]string, domain.DocumentMetadata, error) {
	text, err := p.extractText(ctx, doc)
	if err != nil {
		return nil, domain.DocumentMetadata{}, err
	}

	chunks, err := p.chunk(text)
	if err != nil {
		return nil, domain.DocumentMetadata{}, err
	}

	chunkSize, overlap := p.chunker.Settings()
	meta := domain.DocumentMetadata{
		FileName:    documentName(doc),
		FilePath:    doc.Path,
		Source:      doc.Handle.Source,
		NumChunks:   len(chunks),
		TotalLength: utf8.RuneCountInString(text),
		ChunkSize:   chunkSize,
		Overlap:     overlap,
	}
	slog.Info("document_processed",
		"document", meta.FileName,
		"source", meta.Source,
		"chars", meta.TotalLength,
		"chunks", meta.NumChunks,
	)
	return chunks, meta, nil
}

func (p *DocumentProcessor) extractText(ctx context.Context, doc domain.StoredDocument) (string, error) {
	text, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (p *DocumentProcessor) chunk(text string) ([]string, error) {
	chunks, err := p.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func documentName(doc domain.StoredDocument) string {
	switch {
	case doc.Path != "":
		return filepath.Base(doc.Path)
	case doc.Key != "":
		return filepath.Base(doc.Key)
	default:
		return "unknown"
	}
}
