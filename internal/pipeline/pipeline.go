// Package pipeline wires the receipt stages together: download, cache,
// OCR, extraction, enhancement, validation and duplicate detection.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/DingoOz/receipt-scanner/internal/cache"
	"github.com/DingoOz/receipt-scanner/internal/dedup"
	"github.com/DingoOz/receipt-scanner/internal/extract"
	"github.com/DingoOz/receipt-scanner/internal/imageio"
	"github.com/DingoOz/receipt-scanner/internal/ocr"
	"github.com/DingoOz/receipt-scanner/internal/receipt"
	"github.com/DingoOz/receipt-scanner/internal/source"
	"github.com/DingoOz/receipt-scanner/internal/validate"
)

// Recognizer runs OCR over one image.
type Recognizer interface {
	Recognize(ctx context.Context, imageData []byte, contentType string) (ocr.Result, error)
}

// Store caches downloaded bytes between runs.
type Store interface {
	Put(id string, data []byte) (cache.Entry, error)
	Get(id string) ([]byte, cache.Entry, error)
}

// ItemResult is the outcome of processing one source item. A failed
// item never aborts the batch; the failure is recorded here instead.
type ItemResult struct {
	Item       source.Item     `json:"item"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	OCR        ocr.Result      `json:"ocr"`
	Receipt    *receipt.Record `json:"receipt,omitempty"`
	Validation validate.Result `json:"validation"`

	img image.Image
}

// BatchResult is the outcome of one batch run.
type BatchResult struct {
	Results         []ItemResult  `json:"results"`
	DuplicateGroups [][]string    `json:"duplicate_groups,omitempty"`
	Matches         []dedup.Match `json:"duplicate_matches,omitempty"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
}

// Service processes batches of receipt images.
type Service struct {
	provider   source.Provider
	store      Store
	recognizer Recognizer
	extractor  *extract.Extractor
	enhancer   *extract.Enhancer
	validator  *validate.Validator
	detector   *dedup.Detector
	workers    int
}

// NewService creates a pipeline. store and detector may be nil to
// disable caching and duplicate detection respectively. workers below 1
// is treated as 1.
func NewService(
	provider source.Provider,
	store Store,
	recognizer Recognizer,
	validator *validate.Validator,
	detector *dedup.Detector,
	workers int,
) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		provider:   provider,
		store:      store,
		recognizer: recognizer,
		extractor:  extract.NewExtractor(),
		enhancer:   extract.NewEnhancer(),
		validator:  validator,
		detector:   detector,
		workers:    workers,
	}
}

// ProcessBatch lists the container and runs every item through the
// pipeline with a bounded worker pool, then scans the batch for
// duplicates. On cancellation the partial batch is returned alongside
// the context error: finished items keep their records and unstarted
// items are marked as not processed.
func (s *Service) ProcessBatch(ctx context.Context, containerID string) (BatchResult, error) {
	items, err := s.provider.ListItems(ctx, containerID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("listing items: %w", err)
	}
	slog.Info("starting batch", "provider", s.provider.Name(), "container", containerID, "items", len(items), "workers", s.workers)

	results := make([]ItemResult, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.processItem(ctx, items[i])
			}
		}()
	}

	fed := 0
feed:
	for i := range items {
		select {
		case jobs <- i:
			fed++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// Items never handed to a worker are marked, not dropped; items
	// that completed before the cancel keep their records.
	for i := fed; i < len(items); i++ {
		results[i] = ItemResult{Item: items[i], Error: "not processed"}
	}

	batch := BatchResult{Results: results}
	for i := range results {
		if results[i].Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}

	if err := ctx.Err(); err != nil {
		return batch, err
	}

	if s.detector != nil {
		var candidates []dedup.Candidate
		for i := range results {
			if results[i].Success && results[i].img != nil {
				candidates = append(candidates, dedup.Candidate{ID: results[i].Item.ID, Image: results[i].img})
			}
		}
		matches, err := s.detector.FindDuplicates(candidates)
		if err != nil {
			return BatchResult{}, fmt.Errorf("detecting duplicates: %w", err)
		}
		batch.Matches = matches
		batch.DuplicateGroups = dedup.Groups(matches)
	}

	slog.Info("batch complete", "succeeded", batch.Succeeded, "failed", batch.Failed, "duplicate_groups", len(batch.DuplicateGroups))
	return batch, nil
}

func (s *Service) processItem(ctx context.Context, item source.Item) ItemResult {
	result := ItemResult{Item: item}

	fail := func(err error) ItemResult {
		slog.Warn("item failed", "id", item.ID, "error", err)
		result.Error = err.Error()
		return result
	}

	data, err := s.fetch(ctx, item)
	if err != nil {
		return fail(fmt.Errorf("fetching: %w", err))
	}

	pngData, err := imageio.ToPNG(data, item.MIMEType)
	if err != nil {
		return fail(fmt.Errorf("converting: %w", err))
	}
	if img, err := imageio.Decode(pngData); err == nil {
		result.img = img
	}

	ocrResult, err := s.recognizer.Recognize(ctx, pngData, "image/png")
	if err != nil {
		return fail(fmt.Errorf("recognizing: %w", err))
	}
	result.OCR = ocrResult
	if ocrResult.Text == "" {
		if ocrResult.Error != "" {
			return fail(fmt.Errorf("recognizing: %s", ocrResult.Error))
		}
		return fail(errors.New("no text recognized"))
	}

	rec := s.extractor.Extract(ocrResult.Text, ocrResult.Confidence)
	rec = s.enhancer.Enhance(ocrResult.Text, rec)
	result.Receipt = rec
	result.Validation = s.validator.Validate(rec)

	result.Success = true
	slog.Debug("item processed", "id", item.ID, "method", ocrResult.Method, "confidence", result.Validation.Confidence, "valid", result.Validation.IsValid)
	return result
}

// fetch serves bytes from the cache when possible and fills the cache
// on a miss. Without a store it downloads every time.
func (s *Service) fetch(ctx context.Context, item source.Item) ([]byte, error) {
	if s.store != nil {
		if data, _, err := s.store.Get(item.ID); err == nil {
			slog.Debug("cache hit", "id", item.ID)
			return data, nil
		} else if !errors.Is(err, cache.ErrMiss) {
			return nil, err
		}
	}

	data, err := s.provider.Download(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if _, err := s.store.Put(item.ID, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}
