package index

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Tokenizer counts tokens the way the embedding and chat models see them.
type Tokenizer interface {
	Count(text string) int
}

// TiktokenCounter counts cl100k_base tokens.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return &TiktokenCounter{codec: codec}, nil
}

// Count returns the number of tokens in text. If encoding fails it falls back
// to a four-bytes-per-token estimate.
func (t *TiktokenCounter) Count(text string) int {
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}

// RuneCounter treats every rune as one token. Used in tests and as a fallback.
type RuneCounter struct{}

// Count returns the rune count of text.
func (RuneCounter) Count(text string) int {
	return utf8.RuneCountInString(text)
}
