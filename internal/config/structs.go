//nolint:lll
package config

// Config represents the complete configuration for the docscan application.
// It covers every command (image, pdf, batch, serve) and is loaded from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Preprocess  PreprocessConfig  `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Recognition RecognitionConfig `mapstructure:"recognition" yaml:"recognition" json:"recognition"`
	Fallback    FallbackConfig    `mapstructure:"fallback" yaml:"fallback" json:"fallback"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output" json:"output"`
	PDF         PDFConfig         `mapstructure:"pdf" yaml:"pdf" json:"pdf"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// PreprocessConfig contains the image enhancement settings.
type PreprocessConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Scale      float64 `mapstructure:"scale" yaml:"scale" json:"scale"`
	Contrast   float64 `mapstructure:"contrast" yaml:"contrast" json:"contrast"`
	Brightness float64 `mapstructure:"brightness" yaml:"brightness" json:"brightness"`
	Sharpen    bool    `mapstructure:"sharpen" yaml:"sharpen" json:"sharpen"`
	Grayscale  bool    `mapstructure:"grayscale" yaml:"grayscale" json:"grayscale"`
	Denoise    bool    `mapstructure:"denoise" yaml:"denoise" json:"denoise"`
	Resample   string  `mapstructure:"resample" yaml:"resample" json:"resample"`
	MaxPixels  int     `mapstructure:"max_pixels" yaml:"max_pixels" json:"max_pixels"`
}

// RecognitionConfig contains local engine settings.
type RecognitionConfig struct {
	Languages      []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	TessdataPrefix string   `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
	PageSegMode    int      `mapstructure:"page_seg_mode" yaml:"page_seg_mode" json:"page_seg_mode"`
}

// FallbackConfig contains the cloud fallback settings.
type FallbackConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Threshold         float64 `mapstructure:"threshold" yaml:"threshold" json:"threshold"`
	TimeoutSec        int     `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Endpoint          string  `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	SendEnhanced      bool    `mapstructure:"send_enhanced" yaml:"send_enhanced" json:"send_enhanced"`
	DefaultConfidence float64 `mapstructure:"default_confidence" yaml:"default_confidence" json:"default_confidence"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// PDFConfig contains scanned PDF settings.
type PDFConfig struct {
	MinImageSize int    `mapstructure:"min_image_size" yaml:"min_image_size" json:"min_image_size"`
	Password     string `mapstructure:"password" yaml:"password" json:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	Pipelines       int             `mapstructure:"pipelines" yaml:"pipelines" json:"pipelines"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool   `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Recursive       bool   `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	XLSX            string `mapstructure:"xlsx" yaml:"xlsx" json:"xlsx"`
}
