// Package config holds the tunable knobs of the viewer core. Values are
// validated with struct tags so a bad profile fails at startup instead of
// deep inside a render worker.
package config

import (
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// MinCacheBytes and MaxCacheBytes bound the page-cache byte budget.
	MinCacheBytes = 10 << 20
	MaxCacheBytes = 1 << 30
)

// Config configures the services owned by the application root.
type Config struct {
	// CacheBytes is the page-cache byte budget.
	CacheBytes int64 `validate:"min=10485760,max=1073741824"`
	// MaxConcurrentRenders bounds parallel rasterization.
	MaxConcurrentRenders int `validate:"min=1"`
	// QualityLevels is the default pass count for progressive rendering.
	QualityLevels int `validate:"min=1,max=8"`
	// GhostscriptPath locates the PostScript interpreter. Empty means
	// look up "gs" on PATH.
	GhostscriptPath string
	// PSRenderTimeout caps one interpreter invocation. Zero means
	// unbounded.
	PSRenderTimeout time.Duration
	// OCRLanguages are BCP-47 hints passed to the OCR engine.
	OCRLanguages []string
	// AutoRemovePasswords makes save emit unencrypted output for
	// encrypted originals.
	AutoRemovePasswords bool
	// ProfileDir is the per-profile state directory.
	ProfileDir string
}

// Default returns the stock configuration: 50 MiB cache, two render
// workers, three quality levels.
func Default() *Config {
	return &Config{
		CacheBytes:           50 << 20,
		MaxConcurrentRenders: 2,
		QualityLevels:        3,
	}
}

// Validate checks bounds. MaxConcurrentRenders is additionally clamped to
// the CPU count, which struct tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.MaxConcurrentRenders > runtime.NumCPU() {
		c.MaxConcurrentRenders = runtime.NumCPU()
	}
	return nil
}
