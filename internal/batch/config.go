package batch

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/MeKo-Tech/docscan/internal/pipeline"
)

// Config holds all configuration for batch processing.
type Config struct {
	// Workers is the number of pipelines run side by side; 0 means NumCPU.
	Workers int
	// ContinueOnError records a failing document and moves on. When false
	// the first failure stops the batch.
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// Languages overrides the pipeline languages for every document.
	Languages []string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ProgressInterval time.Duration
	// Progress receives per-document events; when nil and ShowProgress is
	// set a console bar is drawn on stderr.
	Progress pipeline.ProgressCallback

	Logger *slog.Logger
}

// DefaultConfig returns a config that keeps going on errors with one worker per CPU.
func DefaultConfig() *Config {
	return &Config{
		Workers:          0,
		ContinueOnError:  true,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("batch config is nil")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress interval must be non-negative, got %v", c.ProgressInterval)
	}
	return nil
}

// workerCount resolves the effective worker count for n documents.
func (c *Config) workerCount(n int) int {
	w := c.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return max(1, min(w, n))
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
