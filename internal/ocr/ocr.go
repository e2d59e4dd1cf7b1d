package ocr

import (
	"context"
	"time"
)

// Attempt is the output of a single engine invocation.
type Attempt struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Engine is one text-extraction backend. Implementations must return
// empty text and confidence 0.0 when no text is found, not an error.
type Engine interface {
	// Name identifies the engine in results and logs.
	Name() string
	// Recognize extracts text from PNG image data.
	Recognize(ctx context.Context, pngData []byte) (Attempt, error)
	// Close releases engine resources.
	Close() error
}

// Result is the outcome of running the full recognition chain.
type Result struct {
	Success        bool          `json:"success"`
	Method         string        `json:"method"`
	Text           string        `json:"text"`
	Confidence     float64       `json:"confidence"`
	ProcessingTime time.Duration `json:"processing_time"`
	Error          string        `json:"error,omitempty"`
}
