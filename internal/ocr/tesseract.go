package ocr

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract is the local fallback engine. It is slower and less
// accurate on receipt fonts than the cloud engines but works offline.
type Tesseract struct {
	language string
}

// NewTesseract creates the local engine. Language defaults to English.
func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}
}

// Available reports whether a tesseract installation can be found.
// Call once at startup to decide whether to enable the fallback.
func Available() bool {
	_, err := exec.LookPath("tesseract")
	return err == nil
}

// Name implements Engine.
func (t *Tesseract) Name() string { return "tesseract" }

// Recognize implements Engine. Confidence is the mean of the per-word
// confidences tesseract reports.
//
// gosseract calls cannot be interrupted, so the work runs on its own
// goroutine; on cancellation the goroutine is abandoned and cleans up
// its client when tesseract eventually returns.
func (t *Tesseract) Recognize(ctx context.Context, pngData []byte) (Attempt, error) {
	if err := ctx.Err(); err != nil {
		return Attempt{}, err
	}

	type outcome struct {
		attempt Attempt
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		attempt, err := t.run(pngData)
		done <- outcome{attempt: attempt, err: err}
	}()

	select {
	case <-ctx.Done():
		return Attempt{}, ctx.Err()
	case out := <-done:
		return out.attempt, out.err
	}
}

func (t *Tesseract) run(pngData []byte) (Attempt, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return Attempt{}, fmt.Errorf("setting language: %w", err)
	}
	if err := client.SetImageFromBytes(pngData); err != nil {
		return Attempt{}, fmt.Errorf("setting image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return Attempt{}, fmt.Errorf("running tesseract: %w", err)
	}
	if text == "" {
		return Attempt{Text: "", Confidence: 0}, nil
	}

	confidence := 0.5
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		var sum float64
		var n int
		for _, box := range boxes {
			if box.Word == "" {
				continue
			}
			sum += box.Confidence / 100.0
			n++
		}
		if n > 0 {
			confidence = sum / float64(n)
		}
	}

	return Attempt{Text: text, Confidence: confidence}, nil
}

// Close implements Engine. Clients are per-call, so nothing to release.
func (t *Tesseract) Close() error { return nil }
