package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DingoOz/receipt-scanner/internal/imageio"
)

// Orchestrator runs text-extraction engines in a fixed priority order.
// Cloud engines are accepted only when their confidence clears the
// threshold; the local fallback engine, when present, is accepted as-is.
// A single engine failure never aborts the chain.
type Orchestrator struct {
	engines        []Engine
	fallback       Engine
	threshold      float64
	attemptTimeout time.Duration
	preprocess     bool
}

// NewOrchestrator builds an orchestrator over the given cloud engines
// and an optional local fallback engine (nil disables the fallback).
// Engine availability is resolved by the caller at construction time,
// not re-queried per image. With preprocess enabled every image is
// cleaned up for OCR before it enters the chain.
func NewOrchestrator(engines []Engine, fallback Engine, threshold float64, attemptTimeout time.Duration, preprocess bool) *Orchestrator {
	return &Orchestrator{
		engines:        engines,
		fallback:       fallback,
		threshold:      threshold,
		attemptTimeout: attemptTimeout,
		preprocess:     preprocess,
	}
}

// Recognize converts the image to PNG and walks the engine chain,
// short-circuiting on the first attempt whose confidence clears the
// threshold. If nothing clears the bar and no fallback succeeds, the
// best attempt is returned with Success=false and the collected errors.
func (o *Orchestrator) Recognize(ctx context.Context, imageData []byte, contentType string) (Result, error) {
	start := time.Now()

	pngData, err := imageio.ToPNG(imageData, contentType)
	if err != nil {
		return Result{
			Method:         "none",
			ProcessingTime: time.Since(start),
			Error:          err.Error(),
		}, fmt.Errorf("preparing image: %w", err)
	}

	if o.preprocess {
		if processed, err := imageio.Preprocess(pngData); err != nil {
			slog.Warn("image preprocessing failed, using original", "error", err)
		} else {
			pngData = processed
		}
	}

	var (
		best     Result
		bestSet  bool
		attemptE []error
	)

	for _, engine := range o.engines {
		res, err := o.attempt(ctx, engine, pngData)
		if err != nil {
			slog.Warn("OCR attempt failed", "method", engine.Name(), "error", err)
			attemptE = append(attemptE, fmt.Errorf("%s: %w", engine.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if res.Confidence >= o.threshold {
			res.Success = true
			res.ProcessingTime = time.Since(start)
			return res, nil
		}
		slog.Debug("OCR confidence below threshold", "method", engine.Name(), "confidence", res.Confidence)
		if !bestSet || res.Confidence > best.Confidence {
			best = res
			bestSet = true
		}
	}

	if o.fallback != nil && ctx.Err() == nil {
		res, err := o.attempt(ctx, o.fallback, pngData)
		if err != nil {
			slog.Warn("fallback OCR failed", "method", o.fallback.Name(), "error", err)
			attemptE = append(attemptE, fmt.Errorf("%s: %w", o.fallback.Name(), err))
		} else {
			res.Success = true
			res.ProcessingTime = time.Since(start)
			return res, nil
		}
	}

	joined := errors.Join(attemptE...)
	if !bestSet {
		best = Result{Method: "none"}
	}
	best.Success = false
	best.ProcessingTime = time.Since(start)
	if joined != nil {
		best.Error = joined.Error()
	} else {
		best.Error = "no OCR method cleared the confidence threshold"
	}
	return best, nil
}

// attempt runs one engine under its own timeout. Timeouts are treated
// identically to engine errors: the chain moves on.
func (o *Orchestrator) attempt(ctx context.Context, engine Engine, pngData []byte) (Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	start := time.Now()
	att, err := engine.Recognize(attemptCtx, pngData)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, err
	}

	slog.Debug("OCR attempt completed",
		"method", engine.Name(),
		"confidence", att.Confidence,
		"chars", len(att.Text),
		"duration", elapsed,
	)

	return Result{
		Method:         engine.Name(),
		Text:           att.Text,
		Confidence:     att.Confidence,
		ProcessingTime: elapsed,
	}, nil
}

// Close closes every engine in the chain.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, engine := range o.engines {
		if err := engine.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if o.fallback != nil {
		if err := o.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
