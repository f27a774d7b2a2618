package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/docscan/internal/batch"
	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/engine/tesseract"
	"github.com/MeKo-Tech/docscan/internal/engine/vision"
	"github.com/MeKo-Tech/docscan/internal/pdf"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
	"github.com/MeKo-Tech/docscan/internal/preprocess"
	"github.com/MeKo-Tech/docscan/internal/recognition"
	"github.com/MeKo-Tech/docscan/internal/server"
)

// Log levels accepted by log_level.
var validLogLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	opts := preprocess.DefaultOptions()
	srv := server.DefaultConfig()
	return Config{
		LogLevel: "info",
		Preprocess: PreprocessConfig{
			Enabled:    true,
			Scale:      opts.Scale,
			Contrast:   opts.Contrast,
			Brightness: opts.Brightness,
			Sharpen:    opts.Sharpen,
			Grayscale:  opts.Grayscale,
			Denoise:    opts.Denoise,
			Resample:   opts.Resample,
			MaxPixels:  opts.MaxPixels,
		},
		Recognition: RecognitionConfig{
			Languages: slices.Clone(engine.DefaultLanguages),
		},
		Fallback: FallbackConfig{
			Enabled:           true,
			Threshold:         recognition.DefaultThreshold,
			TimeoutSec:        int(recognition.DefaultTimeout / time.Second),
			Endpoint:          vision.DefaultEndpoint,
			DefaultConfidence: vision.DefaultConfidence,
		},
		Output: OutputConfig{
			Format: pipeline.FormatJSON,
		},
		PDF: PDFConfig{
			MinImageSize: pdf.DefaultProcessorConfig().MinImageSize,
		},
		Server: ServerConfig{
			Host:            srv.Host,
			Port:            srv.Port,
			CORSOrigin:      srv.CORSOrigin,
			MaxUploadMB:     int(srv.MaxUploadMB),
			TimeoutSec:      srv.TimeoutSec,
			ShutdownTimeout: int(srv.ShutdownTimeout / time.Second),
			Pipelines:       srv.Pipelines,
		},
		Batch: BatchConfig{
			Workers:         0,
			ContinueOnError: true,
		},
	}
}

// OutputFormats lists the values accepted by output.format.
func OutputFormats() []string {
	return append(pipeline.Formats(), batch.FormatJSONL)
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if c.Output.Format != "" && !slices.Contains(OutputFormats(), c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(OutputFormats(), ", "))
	}

	if err := c.Preprocess.Options().Validate(); err != nil {
		return fmt.Errorf("invalid preprocess options: %w", err)
	}

	if len(c.Recognition.Languages) == 0 {
		return errors.New("recognition.languages must name at least one language")
	}
	if _, err := engine.NormalizeLanguages(c.Recognition.Languages); err != nil {
		return fmt.Errorf("invalid recognition.languages: %w", err)
	}
	if c.Recognition.PageSegMode < 0 || c.Recognition.PageSegMode > 13 {
		return fmt.Errorf("invalid recognition.page_seg_mode: %d (must be between 0 and 13)", c.Recognition.PageSegMode)
	}

	if c.Fallback.Threshold < 0 || c.Fallback.Threshold > 100 {
		return fmt.Errorf("invalid fallback.threshold: %.2f (must be between 0 and 100)", c.Fallback.Threshold)
	}
	if c.Fallback.Enabled && c.Fallback.TimeoutSec <= 0 {
		return fmt.Errorf("invalid fallback.timeout_sec: %d (must be positive when the fallback is enabled)", c.Fallback.TimeoutSec)
	}
	if c.Fallback.DefaultConfidence < 0 || c.Fallback.DefaultConfidence > 100 {
		return fmt.Errorf("invalid fallback.default_confidence: %.2f (must be between 0 and 100)", c.Fallback.DefaultConfidence)
	}

	if c.PDF.MinImageSize < 0 {
		return fmt.Errorf("invalid pdf.min_image_size: %d (must not be negative)", c.PDF.MinImageSize)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d (must not be negative)", c.Server.ShutdownTimeout)
	}
	if c.Server.Pipelines < 0 {
		return fmt.Errorf("invalid server pipelines: %d (must not be negative)", c.Server.Pipelines)
	}

	if c.Batch.Workers < 0 {
		return fmt.Errorf("invalid batch workers: %d (must not be negative)", c.Batch.Workers)
	}

	return nil
}

// Options converts the preprocess section to preprocess.Options.
func (p PreprocessConfig) Options() preprocess.Options {
	return preprocess.Options{
		Scale:      p.Scale,
		Contrast:   p.Contrast,
		Brightness: p.Brightness,
		Sharpen:    p.Sharpen,
		Grayscale:  p.Grayscale,
		Denoise:    p.Denoise,
		Resample:   p.Resample,
		MaxPixels:  p.MaxPixels,
	}
}

// Policy converts the fallback section to a recognition.Policy.
func (f FallbackConfig) Policy() recognition.Policy {
	return recognition.Policy{
		Enabled:      f.Enabled,
		Threshold:    f.Threshold,
		Timeout:      time.Duration(f.TimeoutSec) * time.Second,
		SendEnhanced: f.SendEnhanced,
	}
}

// ToPipelineConfig converts the config to the pipeline configuration. Engines
// are left unset; callers attach them.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.PreprocessEnabled = c.Preprocess.Enabled
	cfg.Preprocess = c.Preprocess.Options()
	cfg.Languages = slices.Clone(c.Recognition.Languages)
	cfg.Policy = c.Fallback.Policy()
	return cfg
}

// TesseractConfig converts the recognition section for the local engine.
func (c *Config) TesseractConfig() tesseract.Config {
	return tesseract.Config{
		TessdataPrefix: c.Recognition.TessdataPrefix,
		PageSegMode:    c.Recognition.PageSegMode,
	}
}

// VisionConfig converts the fallback section for the Vision engine.
func (c *Config) VisionConfig(logger *slog.Logger) vision.Config {
	return vision.Config{
		APIKey:            c.Fallback.APIKey,
		Endpoint:          c.Fallback.Endpoint,
		DefaultConfidence: c.Fallback.DefaultConfidence,
		Logger:            logger,
	}
}

// ToServerConfig converts the server section.
func (c *Config) ToServerConfig(logger *slog.Logger) server.Config {
	rl := c.Server.RateLimit
	format := c.Output.Format
	if !slices.Contains(pipeline.Formats(), format) {
		format = pipeline.FormatJSON
	}
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		MaxUploadMB:     int64(c.Server.MaxUploadMB),
		TimeoutSec:      c.Server.TimeoutSec,
		ShutdownTimeout: time.Duration(c.Server.ShutdownTimeout) * time.Second,
		Pipelines:       c.Server.Pipelines,
		DefaultFormat:   format,
		RateLimit: server.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     rl.MaxDataPerDayMB * 1024 * 1024,
		},
		Logger: logger,
	}
}

// ToBatchConfig converts the batch section.
func (c *Config) ToBatchConfig(logger *slog.Logger) *batch.Config {
	cfg := batch.DefaultConfig()
	cfg.Workers = c.Batch.Workers
	cfg.ContinueOnError = c.Batch.ContinueOnError
	cfg.Recursive = c.Batch.Recursive
	cfg.Logger = logger
	return cfg
}

// ToPDFConfig converts the pdf section.
func (c *Config) ToPDFConfig(logger *slog.Logger) *pdf.ProcessorConfig {
	cfg := pdf.DefaultProcessorConfig()
	cfg.MinImageSize = c.PDF.MinImageSize
	cfg.Logger = logger
	return cfg
}

// SlogLevel maps log_level and verbose to an slog level. Verbose forces debug.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
