// Package monitoring - tokens.go estimates token counts for telemetry.
//
// The upstream reports no usage, so history and telemetry columns carry
// estimates: tiktoken's cl100k_base when the encoder loads, a chars/4
// approximation otherwise (the encoder fetches its vocabulary on first
// use and can fail offline).
package monitoring

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackCharsPerToken approximates token counts when no encoder is available.
const fallbackCharsPerToken = 4

// TokenEstimator counts tokens for telemetry purposes.
type TokenEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenEstimator returns an estimator. The encoder loads lazily on
// first Count call.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

// Count returns the estimated token count of text.
func (e *TokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			e.enc = enc
		}
	})
	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return (len(text) + fallbackCharsPerToken - 1) / fallbackCharsPerToken
}
