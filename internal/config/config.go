package config

import "fmt"

// Config holds all pipeline tuning knobs. Values come from flags and
// environment variables in the command entrypoint; Validate must pass
// before the pipeline runs.
type Config struct {
	// OCR
	ConfidenceThreshold float64 // accept an OCR attempt at or above this
	FallbackToTesseract bool
	PreprocessImages    bool // clean images up before the engine chain
	AttemptTimeoutSecs  int

	// Validation
	MinValidConfidence float64

	// Duplicate detection
	DuplicateThreshold float64
	HashMethod         string // "phash", "dhash" or "blurhash"

	// Cache
	CacheDir        string
	MaxCacheSizeMB  int
	CacheMaxAgeDays int

	// Pipeline
	Workers int
}

// Default returns the configuration used when no overrides are given.
func Default() Config {
	return Config{
		ConfidenceThreshold: 0.8,
		FallbackToTesseract: true,
		PreprocessImages:    true,
		AttemptTimeoutSecs:  30,
		MinValidConfidence:  0.6,
		DuplicateThreshold:  0.95,
		HashMethod:          "phash",
		CacheDir:            "cache",
		MaxCacheSizeMB:      1000,
		CacheMaxAgeDays:     30,
		Workers:             4,
	}
}

// Validate rejects configurations the pipeline must not run with.
// Invalid values are reported, never silently clamped.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0.0 and 1.0, got %v", c.ConfidenceThreshold)
	}
	if c.MinValidConfidence < 0 || c.MinValidConfidence > 1 {
		return fmt.Errorf("minimum valid confidence must be between 0.0 and 1.0, got %v", c.MinValidConfidence)
	}
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("duplicate threshold must be between 0.0 and 1.0, got %v", c.DuplicateThreshold)
	}
	switch c.HashMethod {
	case "phash", "dhash", "blurhash":
	default:
		return fmt.Errorf("unknown hash method %q (want phash, dhash or blurhash)", c.HashMethod)
	}
	if c.MaxCacheSizeMB <= 0 {
		return fmt.Errorf("max cache size must be positive, got %d", c.MaxCacheSizeMB)
	}
	if c.CacheMaxAgeDays <= 0 {
		return fmt.Errorf("cache max age must be positive, got %d", c.CacheMaxAgeDays)
	}
	if c.AttemptTimeoutSecs <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got %d", c.AttemptTimeoutSecs)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	return nil
}
