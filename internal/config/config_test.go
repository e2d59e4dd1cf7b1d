package config

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Validate", func() {
	var cfg Config

	BeforeEach(func() {
		cfg = Default()
	})

	It("should accept the defaults", func() {
		Expect(cfg.Validate()).To(Succeed())
	})

	It("should reject out-of-range confidence thresholds", func() {
		cfg.ConfidenceThreshold = 1.5
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("confidence threshold")))

		cfg = Default()
		cfg.ConfidenceThreshold = -0.1
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("confidence threshold")))
	})

	It("should reject an out-of-range minimum valid confidence", func() {
		cfg.MinValidConfidence = 2
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("minimum valid confidence")))
	})

	It("should reject an out-of-range duplicate threshold", func() {
		cfg.DuplicateThreshold = 1.01
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("duplicate threshold")))
	})

	It("should reject unknown hash methods", func() {
		cfg.HashMethod = "md5"
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("unknown hash method")))
	})

	It("should reject non-positive limits", func() {
		cfg.MaxCacheSizeMB = 0
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("cache size")))

		cfg = Default()
		cfg.CacheMaxAgeDays = -1
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("cache max age")))

		cfg = Default()
		cfg.AttemptTimeoutSecs = 0
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("attempt timeout")))

		cfg = Default()
		cfg.Workers = 0
		Expect(cfg.Validate()).To(MatchError(ContainSubstring("worker count")))
	})
})
