package completion

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in prompt text.
type Tokenizer interface {
	CountTokens(text string) int
}

// TokenCounter counts tokens with the model's tiktoken encoding. Building
// one may fetch encoding data, so it is optional: the client works without
// it and just skips token accounting.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter for the specified model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for model %s: %v", model, err)
	}
	return &TokenCounter{encoding: encoding}, nil
}

// CountTokens counts the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}
