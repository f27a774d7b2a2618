package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/docscan/internal/batch"
	"github.com/MeKo-Tech/docscan/internal/pipeline"
	"github.com/MeKo-Tech/docscan/internal/preprocess"
	"github.com/MeKo-Tech/docscan/internal/recognition"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"eng"}, cfg.Recognition.Languages)
	assert.Equal(t, recognition.DefaultThreshold, cfg.Fallback.Threshold)
	assert.Equal(t, 30, cfg.Fallback.TimeoutSec)
	assert.Equal(t, preprocess.DefaultOptions(), cfg.Preprocess.Options())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Server.Pipelines)
	assert.True(t, cfg.Batch.ContinueOnError)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"output format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"scale", func(c *Config) { c.Preprocess.Scale = 0 }, "invalid preprocess options"},
		{"resample", func(c *Config) { c.Preprocess.Resample = "cubic" }, "invalid preprocess options"},
		{"max pixels", func(c *Config) { c.Preprocess.MaxPixels = -1 }, "invalid preprocess options"},
		{"no languages", func(c *Config) { c.Recognition.Languages = nil }, "at least one language"},
		{"unknown language", func(c *Config) { c.Recognition.Languages = []string{"xx"} }, "invalid recognition.languages"},
		{"page seg mode", func(c *Config) { c.Recognition.PageSegMode = 14 }, "page_seg_mode"},
		{"threshold", func(c *Config) { c.Fallback.Threshold = 101 }, "fallback.threshold"},
		{"fallback timeout", func(c *Config) { c.Fallback.TimeoutSec = 0 }, "fallback.timeout_sec"},
		{"default confidence", func(c *Config) { c.Fallback.DefaultConfidence = -1 }, "default_confidence"},
		{"pdf min size", func(c *Config) { c.PDF.MinImageSize = -1 }, "pdf.min_image_size"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"max upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "invalid max upload size"},
		{"server timeout", func(c *Config) { c.Server.TimeoutSec = -5 }, "invalid timeout"},
		{"shutdown", func(c *Config) { c.Server.ShutdownTimeout = -1 }, "invalid shutdown timeout"},
		{"pipelines", func(c *Config) { c.Server.Pipelines = -1 }, "invalid server pipelines"},
		{"workers", func(c *Config) { c.Batch.Workers = -2 }, "invalid batch workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DisabledFallbackIgnoresTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fallback.Enabled = false
	cfg.Fallback.TimeoutSec = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidate_AcceptsEveryOutputFormat(t *testing.T) {
	for _, f := range OutputFormats() {
		cfg := DefaultConfig()
		cfg.Output.Format = f
		assert.NoError(t, cfg.Validate(), f)
	}
	assert.Contains(t, OutputFormats(), batch.FormatJSONL)
}

func TestFallbackConfig_Policy(t *testing.T) {
	p := FallbackConfig{Enabled: true, Threshold: 70, TimeoutSec: 12, SendEnhanced: true}.Policy()
	assert.Equal(t, recognition.Policy{
		Enabled:      true,
		Threshold:    70,
		Timeout:      12 * time.Second,
		SendEnhanced: true,
	}, p)
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preprocess.Enabled = false
	cfg.Preprocess.Scale = 1.5
	cfg.Recognition.Languages = []string{"eng", "hin"}
	cfg.Fallback.Threshold = 65

	pc := cfg.ToPipelineConfig()
	assert.False(t, pc.PreprocessEnabled)
	assert.InDelta(t, 1.5, pc.Preprocess.Scale, 1e-9)
	assert.Equal(t, []string{"eng", "hin"}, pc.Languages)
	assert.InDelta(t, 65, pc.Policy.Threshold, 1e-9)
	assert.Nil(t, pc.LocalEngine)
	assert.Nil(t, pc.FallbackEngine)

	// The pipeline config owns its slice.
	pc.Languages[0] = "tam"
	assert.Equal(t, "eng", cfg.Recognition.Languages[0])
}

func TestEngineConfigs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Recognition.TessdataPrefix = "/opt/tessdata"
	cfg.Recognition.PageSegMode = 6
	cfg.Fallback.APIKey = "k"
	cfg.Fallback.Endpoint = "http://vision.local"

	tc := cfg.TesseractConfig()
	assert.Equal(t, "/opt/tessdata", tc.TessdataPrefix)
	assert.Equal(t, 6, tc.PageSegMode)

	logger := slog.New(slog.DiscardHandler)
	vc := cfg.VisionConfig(logger)
	assert.Equal(t, "k", vc.APIKey)
	assert.Equal(t, "http://vision.local", vc.Endpoint)
	assert.Same(t, logger, vc.Logger)
}

func TestToServerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 9000
	cfg.Server.ShutdownTimeout = 4
	cfg.Server.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 5, MaxDataPerDayMB: 2}
	cfg.Output.Format = batch.FormatJSONL

	sc := cfg.ToServerConfig(nil)
	assert.Equal(t, "localhost:9000", sc.Addr())
	assert.Equal(t, 4*time.Second, sc.ShutdownTimeout)
	assert.True(t, sc.RateLimit.Enabled)
	assert.Equal(t, 5, sc.RateLimit.RequestsPerMinute)
	assert.Equal(t, int64(2*1024*1024), sc.RateLimit.MaxDataPerDay)
	// jsonl is a batch-only format; the server falls back to json.
	assert.Equal(t, pipeline.FormatJSON, sc.DefaultFormat)
}

func TestToBatchAndPDFConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Batch.Workers = 3
	cfg.Batch.Recursive = true
	cfg.PDF.MinImageSize = 64

	bc := cfg.ToBatchConfig(nil)
	assert.Equal(t, 3, bc.Workers)
	assert.True(t, bc.Recursive)
	assert.True(t, bc.ContinueOnError)

	pc := cfg.ToPDFConfig(nil)
	assert.Equal(t, 64, pc.MinImageSize)
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for level, want := range tests {
		cfg := DefaultConfig()
		cfg.LogLevel = level
		assert.Equal(t, want, cfg.SlogLevel(), level)
	}

	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	cfg.Verbose = true
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}
