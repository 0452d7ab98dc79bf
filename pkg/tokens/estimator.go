package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator estimates the token count of a prompt for a given model.
type Estimator interface {
	// EstimateText returns the estimated token count for text. An
	// estimator must always return a usable count for non-empty text.
	EstimateText(text, model string) int
}

// DefaultCharsPerToken is the character estimator's fallback ratio.
const DefaultCharsPerToken = 4.0

// CharEstimator estimates tokens from character counts using
// model-specific characters-per-token ratios. Very fast, no setup, a
// few percent error on typical text.
type CharEstimator struct {
	// Ratios maps a model name or prefix to its characters-per-token
	// ratio. A "default" entry overrides DefaultCharsPerToken.
	Ratios map[string]float64
}

// EstimateText implements Estimator.
func (e *CharEstimator) EstimateText(text, model string) int {
	if text == "" {
		return 0
	}
	tokens := float64(len(text)) / e.ratioFor(model)
	if tokens < 1 {
		return 1
	}
	return int(tokens + 0.5)
}

func (e *CharEstimator) ratioFor(model string) float64 {
	if ratio, ok := e.Ratios[model]; ok {
		return ratio
	}
	for pattern, ratio := range e.Ratios {
		if pattern != "default" && strings.HasPrefix(model, pattern) {
			return ratio
		}
	}
	if ratio, ok := e.Ratios["default"]; ok {
		return ratio
	}
	return DefaultCharsPerToken
}

// modelEncodings maps model families to their tiktoken encodings.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

const defaultEncoding = "cl100k_base"

// BPEEstimator counts tokens with tiktoken, falling back to character
// estimation when an encoding cannot be initialized. Safe for
// concurrent use; encoders are cached per encoding name.
type BPEEstimator struct {
	fallback CharEstimator

	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewBPEEstimator creates a tiktoken-backed estimator. Encodings are
// initialized lazily on first use per model family.
func NewBPEEstimator() *BPEEstimator {
	return &BPEEstimator{
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

// EstimateText implements Estimator.
func (e *BPEEstimator) EstimateText(text, model string) int {
	if text == "" {
		return 0
	}
	enc := e.encoder(encodingFor(model))
	if enc == nil {
		return e.fallback.EstimateText(text, model)
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *BPEEstimator) encoder(encoding string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encoders[encoding]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		// Cache the failure so we don't retry the download per call.
		e.encoders[encoding] = nil
		return nil
	}
	e.encoders[encoding] = enc
	return enc
}

func encodingFor(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	for prefix, enc := range modelEncodings {
		if strings.HasPrefix(model, prefix) {
			return enc
		}
	}
	return defaultEncoding
}
