package retrieval

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/papercomputeco/mnemo/pkg/logger"
)

// TokenEstimator prices a memory's text in tokens.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharEstimator charges ceil(runes / CharsPerToken). Zero means 4.
type CharEstimator struct {
	CharsPerToken int
}

func (c CharEstimator) Estimate(text string) int {
	per := c.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// TiktokenEstimator counts BPE tokens with a tiktoken encoding. The
// encoding is loaded on first use; if it can't be loaded the estimator
// falls back to Fallback for the life of the process.
type TiktokenEstimator struct {
	Encoding string
	Fallback TokenEstimator

	log  *slog.Logger
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenEstimator returns an estimator for the named encoding,
// "cl100k_base" when empty.
func NewTiktokenEstimator(encoding string, fallback TokenEstimator, log *slog.Logger) *TiktokenEstimator {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if fallback == nil {
		fallback = CharEstimator{}
	}
	return &TiktokenEstimator{Encoding: encoding, Fallback: fallback, log: logger.OrNop(log)}
}

func (t *TiktokenEstimator) Estimate(text string) int {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.Encoding)
		if err != nil {
			t.log.Warn("tiktoken encoding unavailable, estimating by characters",
				"encoding", t.Encoding, "error", err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return t.Fallback.Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// NewEstimator picks an estimator by name: "tiktoken" or anything else for
// characters.
func NewEstimator(name string, charsPerToken int, log *slog.Logger) TokenEstimator {
	chars := CharEstimator{CharsPerToken: charsPerToken}
	if name == "tiktoken" {
		return NewTiktokenEstimator("", chars, log)
	}
	return chars
}
