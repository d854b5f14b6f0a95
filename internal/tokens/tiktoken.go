package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// CL100K is the BPE encoding used by the default tokenizer.
const CL100K = "cl100k_base"

// BPE returns a tokenizer for the named tiktoken encoding. The encoding is
// loaded on first use; if loading fails every Count returns that error, so
// the estimator keeps using the heuristic.
func BPE(encoding string) Tokenizer {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
		err  error
	)
	return TokenizerFunc(func(text string) (int, error) {
		once.Do(func() { enc, err = tiktoken.GetEncoding(encoding) })
		if err != nil {
			return 0, err
		}
		return len(enc.Encode(text, nil, nil)), nil
	})
}

// NewDefaultEstimator returns an estimator with the cl100k_base tokenizer
// registered for every family.
func NewDefaultEstimator() *Estimator {
	e := NewEstimator()
	e.Register("", BPE(CL100K))
	return e
}
