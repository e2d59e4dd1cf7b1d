package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/DingoOz/receipt-scanner/internal/cache"
	"github.com/DingoOz/receipt-scanner/internal/config"
	"github.com/DingoOz/receipt-scanner/internal/dedup"
	"github.com/DingoOz/receipt-scanner/internal/ocr"
	"github.com/DingoOz/receipt-scanner/internal/pipeline"
	"github.com/DingoOz/receipt-scanner/internal/source"
	"github.com/DingoOz/receipt-scanner/internal/validate"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	defaults := config.Default()

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		sourceType   = fs.StringLong("source", "local", "Image source: 'local' or 'drive'")
		input        = fs.StringLong("input", ".", "Local directory or Drive folder ID to scan")
		credentials  = fs.StringLong("credentials", "", "Google service account credentials file (drive source)")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set RECEIPT_SCANNER_GEMINI_KEY)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		language     = fs.StringLong("language", "eng", "Tesseract language")
		noFallback   = fs.BoolLong("no-fallback", "Disable the local tesseract fallback engine")
		noPreprocess = fs.BoolLong("no-preprocess", "Skip image cleanup before OCR")
		ocrThreshold = fs.Float64Long("confidence-threshold", defaults.ConfidenceThreshold, "Accept an OCR attempt at or above this confidence")
		ocrTimeout   = fs.IntLong("ocr-timeout", defaults.AttemptTimeoutSecs, "Per-engine OCR timeout in seconds")
		minValid     = fs.Float64Long("min-confidence", defaults.MinValidConfidence, "Minimum confidence for a receipt to validate")
		noDuplicates = fs.BoolLong("no-duplicates", "Skip duplicate detection")
		dupThreshold = fs.Float64Long("duplicate-threshold", defaults.DuplicateThreshold, "Similarity at or above which images are duplicates")
		hashMethod   = fs.StringLong("hash-method", defaults.HashMethod, "Perceptual hash: 'phash', 'dhash' or 'blurhash'")
		cacheDir     = fs.StringLong("cache-dir", defaults.CacheDir, "Cache directory")
		cacheSizeMB  = fs.IntLong("cache-max-mb", defaults.MaxCacheSizeMB, "Cache size limit in megabytes")
		cacheMaxAge  = fs.IntLong("cache-max-age-days", defaults.CacheMaxAgeDays, "Evict cache entries older than this many days")
		workers      = fs.IntLong("workers", defaults.Workers, "Concurrent pipeline workers")
		output       = fs.StringLong("output", "", "Write batch results JSON to this file (default stdout)")
		verbose      = fs.BoolLong("verbose", "Enable debug logging")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Config{
		ConfidenceThreshold: *ocrThreshold,
		FallbackToTesseract: !*noFallback,
		PreprocessImages:    !*noPreprocess,
		AttemptTimeoutSecs:  *ocrTimeout,
		MinValidConfidence:  *minValid,
		DuplicateThreshold:  *dupThreshold,
		HashMethod:          *hashMethod,
		CacheDir:            *cacheDir,
		MaxCacheSizeMB:      *cacheSizeMB,
		CacheMaxAgeDays:     *cacheMaxAge,
		Workers:             *workers,
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(cfg.CacheDir, cfg.MaxCacheSizeMB)
	if err != nil {
		slog.Error("Failed to open cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if _, err := store.Evict(cfg.CacheMaxAgeDays); err != nil {
		slog.Warn("Cache eviction failed", "error", err)
	}
	if _, err := store.EnforceSizeLimit(); err != nil {
		slog.Warn("Cache size enforcement failed", "error", err)
	}

	var engines []ocr.Engine
	if *geminiKey != "" {
		slog.Info("Initializing Gemini engines", "model", *geminiModel)
		text, err := ocr.NewGeminiText(*geminiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini text engine", "error", err)
			os.Exit(1)
		}
		document, err := ocr.NewGeminiDocument(*geminiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini document engine", "error", err)
			os.Exit(1)
		}
		engines = append(engines, text, document)
	}

	var fallback ocr.Engine
	if cfg.FallbackToTesseract && ocr.Available() {
		slog.Info("Local tesseract fallback enabled", "language", *language)
		fallback = ocr.NewTesseract(*language)
	}

	if len(engines) == 0 && fallback == nil {
		slog.Error("No OCR engine available. Provide --gemini-key or install tesseract")
		os.Exit(1)
	}

	orchestrator := ocr.NewOrchestrator(engines, fallback, cfg.ConfidenceThreshold, time.Duration(cfg.AttemptTimeoutSecs)*time.Second, cfg.PreprocessImages)
	defer orchestrator.Close()

	var provider source.Provider
	switch *sourceType {
	case "local":
		provider = source.NewLocal(*input)
	case "drive":
		drive, err := source.NewDrive(ctx, *credentials)
		if err != nil {
			slog.Error("Failed to initialize Drive source", "error", err)
			os.Exit(1)
		}
		provider = drive
	default:
		slog.Error("Invalid source type", "type", *sourceType, "valid", "local or drive")
		os.Exit(1)
	}

	var detector *dedup.Detector
	if !*noDuplicates {
		detector = dedup.NewDetector(cfg.DuplicateThreshold, dedup.Method(cfg.HashMethod))
	}

	service := pipeline.NewService(
		provider,
		store,
		orchestrator,
		validate.NewValidator(cfg.MinValidConfidence),
		detector,
		cfg.Workers,
	)

	container := ""
	if *sourceType == "drive" {
		container = *input
	}

	batch, err := service.ProcessBatch(ctx, container)
	if err != nil {
		slog.Error("Batch processing failed", "error", err)
		os.Exit(1)
	}

	if err := writeResults(batch, *output); err != nil {
		slog.Error("Failed to write results", "error", err)
		os.Exit(1)
	}

	slog.Info("Done",
		"succeeded", batch.Succeeded,
		"failed", batch.Failed,
		"duplicate_groups", len(batch.DuplicateGroups),
	)
	if batch.Failed > 0 {
		os.Exit(2)
	}
}

func writeResults(batch pipeline.BatchResult, path string) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}
