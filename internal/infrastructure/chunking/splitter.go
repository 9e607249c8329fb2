package chunking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/regulatory-assistant/internal/core/domain"
)

// Splitter is a fixed-size sliding window over the runes of a text.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new splitter", errors.New("chunk size must be positive"))
	}
	if overlap < 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new splitter", errors.New("overlap cannot be negative"))
	}
	if overlap >= chunkSize {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"new splitter",
			fmt.Errorf("overlap %d must be less than chunk size %d", overlap, chunkSize),
		)
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}, nil
}

func (s *Splitter) Settings() (int, int) {
	return s.ChunkSize, s.Overlap
}

// Split walks windows of ChunkSize runes advancing by ChunkSize-Overlap until
// the window start passes the end of the text. Windows are kept verbatim;
// whitespace-only windows are dropped.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "split text", errors.New("text cannot be empty"))
	}

	runes := []rune(text)
	step := s.ChunkSize - s.Overlap

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := min(start+s.ChunkSize, len(runes))
		chunk := string(runes[start:end])
		if strings.TrimSpace(chunk) != "" {
			out = append(out, chunk)
		}
	}
	return out, nil
}
