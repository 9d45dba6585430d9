// Package tokens estimates prompt sizes for metrics and budgets.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// Offline BPE ranks: no network fetch on first use.
func init() {
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
}

// Encoding is the BPE used for estimates. Provider tokenizers differ, the count is approximate.
const Encoding = "cl100k_base"

// Estimator counts tokens in text.
type Estimator interface {
	Count(text string) int
}

// Tiktoken estimates with a BPE encoding.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

var (
	shared     *Tiktoken
	sharedOnce sync.Once
	sharedErr  error
)

// NewTiktoken returns the process-wide estimator. The encoding is loaded once.
func NewTiktoken() (*Tiktoken, error) {
	sharedOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(Encoding)
		if err != nil {
			sharedErr = err
			return
		}
		shared = &Tiktoken{enc: enc}
	})
	if sharedErr != nil {
		return nil, sharedErr
	}
	return shared, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Heuristic approximates four characters per token. Used when the encoding cannot be loaded.
type Heuristic struct{}

// Count returns ceil(runes/4).
func (Heuristic) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// Default returns the tiktoken estimator, or the heuristic when the encoding fails to load.
func Default() Estimator {
	if t, err := NewTiktoken(); err == nil {
		return t
	}
	return Heuristic{}
}
